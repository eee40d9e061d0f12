package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Column is an ordered sequence of cells under a name. Cells hold float64,
// string, bool, time.Time, or nil for a missing value.
type Column struct {
	Name  string
	Cells []any
}

// Table is an in-memory dataset: ordered named columns of equal length.
type Table struct {
	cols []Column
}

func New(cols []Column) (*Table, error) {
	seen := make(map[string]struct{}, len(cols))
	rows := -1
	for _, col := range cols {
		if strings.TrimSpace(col.Name) == "" {
			return nil, fmt.Errorf("column name is required")
		}
		if _, dup := seen[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", col.Name)
		}
		seen[col.Name] = struct{}{}
		if rows == -1 {
			rows = len(col.Cells)
		} else if len(col.Cells) != rows {
			return nil, fmt.Errorf("column %q has %d cells, want %d", col.Name, len(col.Cells), rows)
		}
	}
	return &Table{cols: cols}, nil
}

// Empty returns a table with the given column names and zero rows.
func Empty(names []string) (*Table, error) {
	cols := make([]Column, 0, len(names))
	for _, name := range names {
		cols = append(cols, Column{Name: name})
	}
	return New(cols)
}

func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0].Cells)
}

func (t *Table) NumCols() int {
	return len(t.cols)
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, col := range t.cols {
		names[i] = col.Name
	}
	return names
}

// Column returns the column with the given name, or false if absent.
func (t *Table) Column(name string) (Column, bool) {
	for _, col := range t.cols {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// Row returns the cells of row i in column order.
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.cols))
	for c, col := range t.cols {
		row[c] = col.Cells[i]
	}
	return row
}

// Clone deep-copies the table. History snapshots must never alias cell
// storage, so every column slice is duplicated.
func (t *Table) Clone() *Table {
	cols := make([]Column, len(t.cols))
	for i, col := range t.cols {
		cells := make([]any, len(col.Cells))
		copy(cells, col.Cells)
		cols[i] = Column{Name: col.Name, Cells: cells}
	}
	return &Table{cols: cols}
}

// Head returns a copy of the first n rows (all rows if n exceeds the count).
func (t *Table) Head(n int) *Table {
	return t.slice(0, min(n, t.NumRows()))
}

// Tail returns a copy of the last n rows.
func (t *Table) Tail(n int) *Table {
	rows := t.NumRows()
	if n > rows {
		n = rows
	}
	return t.slice(rows-n, rows)
}

func (t *Table) slice(from, to int) *Table {
	cols := make([]Column, len(t.cols))
	for i, col := range t.cols {
		cells := make([]any, to-from)
		copy(cells, col.Cells[from:to])
		cols[i] = Column{Name: col.Name, Cells: cells}
	}
	return &Table{cols: cols}
}

// Equal reports structural equality: same column names in the same order and
// cell-wise equal values. NaN cells compare equal to NaN.
func (t *Table) Equal(other *Table) bool {
	if other == nil || len(t.cols) != len(other.cols) {
		return false
	}
	for i, col := range t.cols {
		o := other.cols[i]
		if col.Name != o.Name || len(col.Cells) != len(o.Cells) {
			return false
		}
		for j, cell := range col.Cells {
			if !cellsEqual(cell, o.Cells[j]) {
				return false
			}
		}
	}
	return true
}

func cellsEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(av) && math.IsNaN(bv) {
			return true
		}
		return av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return a == b
	}
}

// timeLayouts is the fixed set of datetime shapes recognized when inferring
// cell types from text. Order matters: most specific first.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime reports whether s matches one of the recognized datetime layouts.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ParseCell infers a typed cell from raw text: empty becomes missing, then
// number, boolean, and datetime are tried before falling back to the string.
func ParseCell(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return n
	}
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}
	if ts, ok := ParseTime(trimmed); ok {
		return ts
	}
	return trimmed
}

// FormatCell renders a cell for delimited-text output. Missing cells render
// as the empty string.
func FormatCell(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
