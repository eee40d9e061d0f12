package pipeline

import (
	"fmt"
	"strings"

	"github.com/cleanslate/cleanslate/internal/codegen"
	"github.com/cleanslate/cleanslate/internal/table"
)

// noNumericDataMarker stands in for statistics when a table has nothing
// numeric to describe; an all-text table is not an error.
const noNumericDataMarker = "no numeric data"

// buildRequest assembles the generation context for one command: schema,
// head/tail samples, and descriptive statistics of the current table. Built
// fresh per request, never stored.
func buildRequest(query string, t *table.Table, sampleRows int) codegen.Request {
	if sampleRows <= 0 {
		sampleRows = 5
	}
	req := codegen.Request{
		Query:      query,
		Columns:    t.ColumnNames(),
		RowCount:   t.NumRows(),
		SampleHead: renderSample(t.Head(sampleRows)),
		Stats:      renderStats(t),
	}
	if t.NumRows() > 2*sampleRows {
		req.SampleTail = renderSample(t.Tail(sampleRows))
	}
	return req
}

func renderSample(t *table.Table) string {
	var b strings.Builder
	b.WriteString(strings.Join(t.ColumnNames(), "\t"))
	for r := 0; r < t.NumRows(); r++ {
		b.WriteByte('\n')
		for c, cell := range t.Row(r) {
			if c > 0 {
				b.WriteByte('\t')
			}
			if cell == nil {
				b.WriteString("null")
			} else {
				b.WriteString(table.FormatCell(cell))
			}
		}
	}
	return b.String()
}

func renderStats(t *table.Table) string {
	stats, err := table.Describe(t)
	if err != nil {
		return noNumericDataMarker
	}
	lines := make([]string, len(stats))
	for i, s := range stats {
		lines[i] = fmt.Sprintf("%s: count=%d mean=%.4g std=%.4g min=%.4g max=%.4g",
			s.Column, s.Count, s.Mean, s.Std, s.Min, s.Max)
	}
	return strings.Join(lines, "\n")
}
