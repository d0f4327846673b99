package table

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/neardup/internal/domain"
	"github.com/kailas-cloud/neardup/internal/domain/record"
)

const readBatchRows = 1000

func readParquet(path string) (*Dataset, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %v: %w", path, err, domain.ErrInvalidInput)
	}

	schema := pf.Schema()
	header, err := flatColumns(schema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var rows []parquet.Row
	for _, rg := range pf.RowGroups() {
		rgRows, err := readRowGroup(rg)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		rows = append(rows, rgRows...)
	}

	t := &record.Table{Header: header, Rows: make([][]string, len(rows))}
	for i, row := range rows {
		t.Rows[i] = rowStrings(row, len(header))
	}
	return &Dataset{Table: t, Format: FormatParquet, schema: schema, rows: rows}, nil
}

// flatColumns returns the leaf column names. Repeated (list) columns have no
// single text value per row and are rejected.
func flatColumns(schema *parquet.Schema) ([]string, error) {
	paths := schema.Columns()
	names := make([]string, len(paths))
	for i, p := range paths {
		leaf, ok := schema.Lookup(p...)
		if !ok {
			return nil, fmt.Errorf("column %s not in schema: %w", strings.Join(p, "."), domain.ErrInvalidInput)
		}
		if leaf.MaxRepetitionLevel > 0 {
			return nil, fmt.Errorf("repeated column %s is not supported: %w", strings.Join(p, "."), domain.ErrInvalidInput)
		}
		names[i] = strings.Join(p, ".")
	}
	return names, nil
}

func readRowGroup(rg parquet.RowGroup) ([]parquet.Row, error) {
	rows := rg.Rows()
	defer func() { _ = rows.Close() }()

	out := make([]parquet.Row, 0, rg.NumRows())
	buf := make([]parquet.Row, readBatchRows)
	for {
		n, err := rows.ReadRows(buf)
		for i := 0; i < n; i++ {
			out = append(out, buf[i].Clone())
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("read rows: %w", err)
		}
		if n == 0 {
			return out, nil
		}
	}
}

// rowStrings renders each column of a flat row as text; nulls become "".
func rowStrings(row parquet.Row, columns int) []string {
	out := make([]string, columns)
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= columns || v.IsNull() {
			continue
		}
		out[col] = v.String()
	}
	return out
}

func writeParquet(path string, d *Dataset) error {
	if d.schema == nil {
		return fmt.Errorf("dataset has no parquet schema: %w", domain.ErrInvalidInput)
	}
	return writeAtomic(path, func(f *os.File) error {
		w := parquet.NewWriter(f, d.schema)
		if _, err := w.WriteRows(d.rows); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("close writer: %w", err)
		}
		return nil
	})
}
