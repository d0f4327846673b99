package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/neardup/internal/domain"
)

// Table is an ordered set of rows loaded from a tabular source.
// Header is empty when the source has no header row.
type Table struct {
	Header []string
	Rows   [][]string
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// ColumnIndex resolves a column reference: a header name, or a zero-based index.
// An empty reference selects the first column.
func (t *Table) ColumnIndex(ref string) (int, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return 0, nil
	}
	for i, name := range t.Header {
		if name == ref {
			return i, nil
		}
	}
	idx, err := strconv.Atoi(ref)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("column %q not found: %w", ref, domain.ErrInvalidInput)
	}
	if len(t.Header) > 0 && idx >= len(t.Header) {
		return 0, fmt.Errorf("column index %d out of range (%d columns): %w", idx, len(t.Header), domain.ErrInvalidInput)
	}
	return idx, nil
}

// Texts returns the values of the referenced column, one per row.
// Every row must carry the column.
func (t *Table) Texts(ref string) ([]string, error) {
	if t.Len() == 0 {
		return nil, fmt.Errorf("empty record set: %w", domain.ErrInvalidInput)
	}
	col, err := t.ColumnIndex(ref)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if col >= len(row) {
			return nil, fmt.Errorf("row %d has no column %d: %w", i, col, domain.ErrInvalidInput)
		}
		texts[i] = row[col]
	}
	return texts, nil
}

// Keep returns a table with only the given rows, in the given order.
// Header and row contents are shared with t.
func (t *Table) Keep(indices []int) *Table {
	rows := make([][]string, 0, len(indices))
	for _, i := range indices {
		rows = append(rows, t.Rows[i])
	}
	return &Table{Header: t.Header, Rows: rows}
}
