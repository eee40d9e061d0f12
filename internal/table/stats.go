package table

import (
	"errors"
	"math"
)

// ErrNoNumericData is returned by Describe when no column holds a single
// finite numeric cell. Callers that only need a textual summary substitute a
// marker instead of propagating it.
var ErrNoNumericData = errors.New("table has no numeric data")

type ColumnStats struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Describe computes descriptive statistics for every column with at least
// one finite numeric cell. Missing and non-numeric cells are skipped.
func Describe(t *Table) ([]ColumnStats, error) {
	stats := make([]ColumnStats, 0, t.NumCols())
	for _, col := range t.cols {
		values := make([]float64, 0, len(col.Cells))
		for _, cell := range col.Cells {
			if n, ok := cell.(float64); ok && !math.IsNaN(n) && !math.IsInf(n, 0) {
				values = append(values, n)
			}
		}
		if len(values) == 0 {
			continue
		}
		stats = append(stats, summarize(col.Name, values))
	}
	if len(stats) == 0 {
		return nil, ErrNoNumericData
	}
	return stats, nil
}

func summarize(name string, values []float64) ColumnStats {
	s := ColumnStats{Column: name, Count: len(values), Min: values[0], Max: values[0]}
	sum := 0.0
	for _, v := range values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(len(values))
	if len(values) > 1 {
		sq := 0.0
		for _, v := range values {
			d := v - s.Mean
			sq += d * d
		}
		s.Std = math.Sqrt(sq / float64(len(values)-1))
	}
	return s
}
