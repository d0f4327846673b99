package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/neardup/internal/domain"
	"github.com/kailas-cloud/neardup/internal/domain/record"
)

const utf8BOM = "\uFEFF"

func readCSV(path string, opts ReadOptions) (*Dataset, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	if opts.Comma != 0 {
		r.Comma = opts.Comma
	}
	lines, err := r.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("parse %s: %v: %w", path, parseErr, domain.ErrInvalidInput)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(lines) > 0 && len(lines[0]) > 0 {
		lines[0][0] = strings.TrimPrefix(lines[0][0], utf8BOM)
	}

	t := &record.Table{}
	if opts.HasHeader && len(lines) > 0 {
		t.Header, lines = lines[0], lines[1:]
	}
	t.Rows = lines
	return &Dataset{Table: t, Format: FormatCSV, comma: r.Comma}, nil
}

func writeCSV(path string, d *Dataset) error {
	return writeAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if d.comma != 0 {
			w.Comma = d.comma
		}
		if len(d.Table.Header) > 0 {
			if err := w.Write(d.Table.Header); err != nil {
				return fmt.Errorf("write header: %w", err)
			}
		}
		if err := w.WriteAll(d.Table.Rows); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		return nil
	})
}

// writeAtomic writes through a temporary file in the target directory and
// renames it into place, so a failed run never leaves a truncated output.
func writeAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
