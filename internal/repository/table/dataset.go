// Package table reads and writes record tables as CSV or Parquet files,
// preserving the input format and column layout on output.
package table

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/neardup/internal/domain"
	"github.com/kailas-cloud/neardup/internal/domain/record"
)

// Format is the on-disk encoding of a table.
type Format string

// Supported formats.
const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("unsupported file extension %q (want .csv or .parquet): %w",
			filepath.Ext(path), domain.ErrInvalidInput)
	}
}

// Dataset is a record table together with what is needed to write it back
// in its original encoding.
type Dataset struct {
	Table  *record.Table
	Format Format

	// CSV only: the delimiter the table was read with.
	comma rune

	// Parquet only: the typed rows and schema they were read with.
	schema *parquet.Schema
	rows   []parquet.Row
}

// Keep returns a dataset with only the given rows, in order.
func (d *Dataset) Keep(indices []int) *Dataset {
	out := &Dataset{
		Table:  d.Table.Keep(indices),
		Format: d.Format,
		comma:  d.comma,
		schema: d.schema,
	}
	if d.rows != nil {
		out.rows = make([]parquet.Row, 0, len(indices))
		for _, i := range indices {
			out.rows = append(out.rows, d.rows[i])
		}
	}
	return out
}

// ReadOptions controls how a table file is interpreted.
type ReadOptions struct {
	// HasHeader treats the first CSV line as column names. Parquet always has names.
	HasHeader bool
	// Comma is the CSV field delimiter (default ',').
	Comma rune
}

// Read loads a table, choosing the decoder from the file extension.
func Read(path string, opts ReadOptions) (*Dataset, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatParquet:
		return readParquet(path)
	default:
		return readCSV(path, opts)
	}
}

// Write stores the dataset at path in its own format. The path extension must
// match it, so a CSV input is never silently converted.
func Write(path string, d *Dataset) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if format != d.Format {
		return fmt.Errorf("output %s does not match input format %s: %w", format, d.Format, domain.ErrInvalidInput)
	}
	switch format {
	case FormatParquet:
		return writeParquet(path, d)
	default:
		return writeCSV(path, d)
	}
}
