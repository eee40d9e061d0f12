package tablecodec

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/cleanslate/cleanslate/internal/table"
)

const ParquetContentType = "application/vnd.apache.parquet"

// EncodeParquet renders the table as a parquet file. The schema is derived
// per column: all-numeric columns become optional doubles, all-boolean
// columns optional booleans, everything else optional strings (datetimes are
// rendered as RFC 3339 text). Parquet groups order fields by name, so column
// order is not preserved by this format.
func EncodeParquet(t *table.Table, name string) ([]byte, error) {
	if t.NumCols() == 0 {
		return nil, fmt.Errorf("table has no columns")
	}

	group := parquet.Group{}
	kinds := make(map[string]cellKind, t.NumCols())
	for _, colName := range t.ColumnNames() {
		col, _ := t.Column(colName)
		kind := columnKind(col)
		kinds[colName] = kind
		switch kind {
		case kindNumber:
			group[colName] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		case kindBool:
			group[colName] = parquet.Optional(parquet.Leaf(parquet.BooleanType))
		default:
			group[colName] = parquet.Optional(parquet.String())
		}
	}
	schema := parquet.NewSchema(name, group)

	rows := make([]map[string]any, t.NumRows())
	for r := range rows {
		row := make(map[string]any, t.NumCols())
		for c, colName := range t.ColumnNames() {
			row[colName] = parquetCell(t.Row(r)[c], kinds[colName])
		}
		rows[r] = row
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[map[string]any](buf, schema)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

type cellKind int

const (
	kindString cellKind = iota
	kindNumber
	kindBool
)

func columnKind(col table.Column) cellKind {
	kind := kindString
	decided := false
	for _, cell := range col.Cells {
		switch cell.(type) {
		case nil:
			continue
		case float64:
			if decided && kind != kindNumber {
				return kindString
			}
			kind, decided = kindNumber, true
		case bool:
			if decided && kind != kindBool {
				return kindString
			}
			kind, decided = kindBool, true
		default:
			return kindString
		}
	}
	return kind
}

func parquetCell(cell any, kind cellKind) any {
	if cell == nil {
		return nil
	}
	switch kind {
	case kindNumber:
		if n, ok := cell.(float64); ok && !math.IsNaN(n) {
			return n
		}
		return nil
	case kindBool:
		if b, ok := cell.(bool); ok {
			return b
		}
		return nil
	default:
		if ts, ok := cell.(time.Time); ok {
			return ts.Format(time.RFC3339)
		}
		return table.FormatCell(cell)
	}
}
