// Package preview renders tables as JSON-safe row previews.
package preview

import (
	"math"

	"github.com/cleanslate/cleanslate/internal/table"
)

// Row is one preview row as ordered column/value pairs. A plain map would
// lose column order through JSON marshaling, so rows marshal themselves.
type Row struct {
	Columns []string
	Values  []any
}

// Format returns up to limit rows with every cell made JSON-representable:
// NaN and infinities become explicit nulls. The input table is not mutated.
func Format(t *table.Table, limit int) []Row {
	rows := t.NumRows()
	if limit < rows {
		rows = limit
	}
	if rows < 0 {
		rows = 0
	}
	names := t.ColumnNames()
	out := make([]Row, rows)
	for r := 0; r < rows; r++ {
		values := make([]any, len(names))
		for c, cell := range t.Row(r) {
			values[c] = SafeValue(cell)
		}
		out[r] = Row{Columns: names, Values: values}
	}
	return out
}

// SafeValue maps a cell to a JSON-representable value. Non-finite numbers
// have no JSON encoding and become nil.
func SafeValue(cell any) any {
	if n, ok := cell.(float64); ok {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
	}
	return cell
}
