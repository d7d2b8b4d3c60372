package table

import (
	"fmt"
)

// Table is a small in-memory column-oriented table. Column order is
// significant and preserved through serialization; pivot stages add columns
// dynamically and only materialize names at the CSV boundary.
type Table struct {
	cols  []string
	index map[string]int
	rows  [][]Value
}

func New(cols ...string) *Table {
	t := &Table{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		t.addColumn(c)
	}
	return t
}

func (t *Table) addColumn(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	t.cols = append(t.cols, name)
	i := len(t.cols) - 1
	t.index[name] = i
	for r := range t.rows {
		t.rows[r] = append(t.rows[r], Null())
	}
	return i
}

// AddColumn appends a column, null-filled for existing rows. Adding an
// existing column is a no-op.
func (t *Table) AddColumn(name string) { t.addColumn(name) }

func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

func (t *Table) NumRows() int { return len(t.rows) }
func (t *Table) NumCols() int { return len(t.cols) }

// AppendRow adds a row whose length must match the current column count.
func (t *Table) AppendRow(row []Value) error {
	if len(row) != len(t.cols) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(row), len(t.cols))
	}
	t.rows = append(t.rows, row)
	return nil
}

// AppendEmptyRow adds an all-null row and returns its index.
func (t *Table) AppendEmptyRow() int {
	row := make([]Value, len(t.cols))
	t.rows = append(t.rows, row)
	return len(t.rows) - 1
}

// Value returns the cell at (row, col); absent columns read as null.
func (t *Table) Value(row int, col string) Value {
	i, ok := t.index[col]
	if !ok {
		return Null()
	}
	return t.rows[row][i]
}

// Set writes a cell, creating the column if needed.
func (t *Table) Set(row int, col string, v Value) {
	i := t.addColumn(col)
	t.rows[row][i] = v
}

// Row returns a copy of the row's cells in column order.
func (t *Table) Row(row int) []Value {
	out := make([]Value, len(t.cols))
	copy(out, t.rows[row])
	return out
}

// Select returns a new table holding the named columns in the given order.
// Columns absent from the source come back null-filled, so a canonical
// column set can be enforced over heterogeneous batches.
func (t *Table) Select(cols []string) *Table {
	out := New(cols...)
	for r := range t.rows {
		row := make([]Value, len(cols))
		for i, c := range cols {
			row[i] = t.Value(r, c)
		}
		out.rows = append(out.rows, row)
	}
	return out
}

// RenameColumn renames a column in place. Renaming onto an existing name or
// from an absent one is a no-op.
func (t *Table) RenameColumn(old, new string) {
	i, ok := t.index[old]
	if !ok || old == new {
		return
	}
	if _, exists := t.index[new]; exists {
		return
	}
	t.cols[i] = new
	delete(t.index, old)
	t.index[new] = i
}

// AppendTable appends all rows of src, aligning by column name and adding
// any columns src has that t lacks.
func (t *Table) AppendTable(src *Table) {
	for _, c := range src.cols {
		t.addColumn(c)
	}
	for r := 0; r < src.NumRows(); r++ {
		i := t.AppendEmptyRow()
		for _, c := range src.cols {
			t.rows[i][t.index[c]] = src.Value(r, c)
		}
	}
}
