// Package table implements the in-memory tabular container shared by the
// loader, the sandbox and both generation loops.
//
// Cells are stored as strings with "" as the missing-value sentinel; the
// schema carries the inferred logical type per column. Transforms never
// mutate a table in place — they produce a new one, so the original stays
// available for before/after comparison.
package table

import (
	"fmt"
	"strings"
)

// DataType is the inferred logical type of a column.
type DataType string

const (
	TypeInteger DataType = "INTEGER"
	TypeReal    DataType = "REAL"
	TypeText    DataType = "TEXT"
	TypeDate    DataType = "DATE"
)

// IsNumericType reports whether t is INTEGER or REAL.
func IsNumericType(t DataType) bool {
	return t == TypeInteger || t == TypeReal
}

// Column describes one column of a table.
type Column struct {
	Name string
	Type DataType
	// Width is the smallest safe bit width for INTEGER columns (8, 16,
	// 32 or 64); 0 for non-integer columns.
	Width int
	// Mixed marks a column whose raw values did not agree on a single
	// type. Mixed columns are coerced to TEXT before any cache write.
	Mixed bool
}

// Table is a named, typed, two-dimensional table.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]string
}

// New creates a table, padding or truncating every row to the column count.
func New(name string, columns []Column, rows [][]string) *Table {
	n := len(columns)
	for i, row := range rows {
		if len(row) == n {
			continue
		}
		fixed := make([]string, n)
		copy(fixed, row)
		rows[i] = fixed
	}
	return &Table{Name: name, Columns: columns, Rows: rows}
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return len(t.Rows) }

// NumCols returns the column count.
func (t *Table) NumCols() int { return len(t.Columns) }

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, c := range t.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Column returns the values of the named column.
func (t *Table) Column(name string) ([]string, error) {
	idx, ok := t.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found (available: %s)",
			name, strings.Join(t.ColumnNames(), ", "))
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// Head returns a new table with at most n leading rows.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	if n < 0 {
		n = 0
	}
	out := t.cloneSchema()
	out.Rows = make([][]string, n)
	for i := 0; i < n; i++ {
		out.Rows[i] = append([]string(nil), t.Rows[i]...)
	}
	return out
}

// Clone returns a deep copy. The sandbox binds a clone into every script
// so concurrent executions against the same logical table never observe
// each other's mutations.
func (t *Table) Clone() *Table {
	out := t.cloneSchema()
	out.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

func (t *Table) cloneSchema() *Table {
	return &Table{
		Name:    t.Name,
		Columns: append([]Column(nil), t.Columns...),
	}
}

// DuplicateColumns returns the names that occur more than once.
// A non-empty result is a hard validation failure for any transform.
func (t *Table) DuplicateColumns() []string {
	seen := make(map[string]int, len(t.Columns))
	var dups []string
	for _, c := range t.Columns {
		seen[c.Name]++
		if seen[c.Name] == 2 {
			dups = append(dups, c.Name)
		}
	}
	return dups
}

// Equal reports whether two tables have identical schema and cells.
func (t *Table) Equal(other *Table) bool {
	if other == nil || len(t.Columns) != len(other.Columns) || len(t.Rows) != len(other.Rows) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i].Name != other.Columns[i].Name {
			return false
		}
	}
	for i := range t.Rows {
		for j := range t.Rows[i] {
			if t.Rows[i][j] != other.Rows[i][j] {
				return false
			}
		}
	}
	return true
}
