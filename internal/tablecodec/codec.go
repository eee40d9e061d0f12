// Package tablecodec converts uploaded bytes to tables and tables back to
// downloadable bytes. Decoding is a fixed chain of format guesses; a guess
// that fails is a signal to try the next strategy, not an error. Only when
// every strategy fails does decoding surface an UnreadableFileError with the
// per-strategy reasons.
package tablecodec

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/cleanslate/cleanslate/internal/table"
)

const (
	csvContentType  = "text/csv; charset=utf-8"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	outputSuffix = "_clean"
)

var spreadsheetExts = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
}

type StrategyError struct {
	Strategy string
	Err      error
}

// UnreadableFileError means no decode strategy succeeded. Attempts holds one
// entry per strategy tried, in order.
type UnreadableFileError struct {
	Filename string
	Attempts []StrategyError
}

func (e *UnreadableFileError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, attempt := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", attempt.Strategy, attempt.Err)
	}
	return fmt.Sprintf("unreadable file %q: %s", e.Filename, strings.Join(parts, "; "))
}

// Diagnostics returns one human-readable line per attempted strategy.
func (e *UnreadableFileError) Diagnostics() []string {
	lines := make([]string, len(e.Attempts))
	for i, attempt := range e.Attempts {
		lines[i] = fmt.Sprintf("%s: %v", attempt.Strategy, attempt.Err)
	}
	return lines
}

// Decode turns raw upload bytes into a table. The bytes may be gzip-wrapped;
// decompression failure just means they were not compressed. Strategies, in
// order: spreadsheet when the filename says so, UTF-8 delimited text,
// spreadsheet when the bytes are not valid text, Latin-1 delimited text.
func Decode(data []byte, filename string) (*table.Table, error) {
	data = maybeGunzip(data)

	var attempts []StrategyError
	triedSpreadsheet := false

	if spreadsheetExts[strings.ToLower(filepath.Ext(filename))] {
		triedSpreadsheet = true
		if t, err := decodeSpreadsheet(data); err == nil {
			return t, nil
		} else {
			attempts = append(attempts, StrategyError{Strategy: "spreadsheet (by extension)", Err: err})
		}
	}

	if utf8.Valid(data) {
		if t, err := decodeCSV(data); err == nil {
			return t, nil
		} else {
			attempts = append(attempts, StrategyError{Strategy: "csv (utf-8)", Err: err})
		}
	} else {
		attempts = append(attempts, StrategyError{Strategy: "csv (utf-8)", Err: fmt.Errorf("input is not valid UTF-8")})
		if !triedSpreadsheet {
			if t, err := decodeSpreadsheet(data); err == nil {
				return t, nil
			} else {
				attempts = append(attempts, StrategyError{Strategy: "spreadsheet (binary fallback)", Err: err})
			}
		}
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		attempts = append(attempts, StrategyError{Strategy: "csv (latin-1)", Err: err})
	} else if t, err := decodeCSV(decoded); err == nil {
		return t, nil
	} else {
		attempts = append(attempts, StrategyError{Strategy: "csv (latin-1)", Err: err})
	}

	return nil, &UnreadableFileError{Filename: filename, Attempts: attempts}
}

// Encode renders the table for download. Spreadsheet filenames get a
// spreadsheet back; if that encode fails the codec falls back to CSV
// silently, since a usable download beats a failed one.
func Encode(t *table.Table, filename string) (data []byte, contentType, outputName string, err error) {
	if spreadsheetExts[strings.ToLower(filepath.Ext(filename))] {
		if data, err := encodeSpreadsheet(t); err == nil {
			return data, xlsxContentType, OutputName(filename), nil
		}
		data, err := EncodeCSV(t)
		if err != nil {
			return nil, "", "", fmt.Errorf("encode csv fallback: %w", err)
		}
		return data, csvContentType, replaceExt(OutputName(filename), ".csv"), nil
	}

	data, err = EncodeCSV(t)
	if err != nil {
		return nil, "", "", fmt.Errorf("encode csv: %w", err)
	}
	return data, csvContentType, OutputName(filename), nil
}

// EncodeAs is Encode with an explicit format override: "csv", "xlsx", or
// "parquet". An empty format defers to the filename.
func EncodeAs(t *table.Table, filename, format string) (data []byte, contentType, outputName string, err error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "":
		return Encode(t, filename)
	case "csv":
		data, err := EncodeCSV(t)
		if err != nil {
			return nil, "", "", fmt.Errorf("encode csv: %w", err)
		}
		return data, csvContentType, replaceExt(OutputName(filename), ".csv"), nil
	case "xlsx":
		data, err := encodeSpreadsheet(t)
		if err != nil {
			return nil, "", "", fmt.Errorf("encode spreadsheet: %w", err)
		}
		return data, xlsxContentType, replaceExt(OutputName(filename), ".xlsx"), nil
	case "parquet":
		data, err := EncodeParquet(t, strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
		if err != nil {
			return nil, "", "", fmt.Errorf("encode parquet: %w", err)
		}
		return data, ParquetContentType, replaceExt(OutputName(filename), ".parquet"), nil
	default:
		return nil, "", "", fmt.Errorf("unsupported download format %q", format)
	}
}

// OutputName derives the download filename: stem + "_clean" + the original
// extension, or ".csv" when the extension is missing or unknown.
func OutputName(filename string) string {
	base := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = "data"
	}
	if ext != ".csv" && !spreadsheetExts[ext] {
		ext = ".csv"
	}
	return stem + outputSuffix + ext
}

func replaceExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

func maybeGunzip(data []byte) []byte {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data
	}
	defer func() { _ = reader.Close() }()
	plain, err := io.ReadAll(reader)
	if err != nil {
		return data
	}
	return plain
}

func decodeCSV(data []byte) (*table.Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return rowsToTable(header, records)
}

func rowsToTable(header []string, records [][]string) (*table.Table, error) {
	cols := make([]table.Column, len(header))
	for i, name := range header {
		cols[i] = table.Column{Name: name, Cells: make([]any, len(records))}
	}
	for r, record := range records {
		for c := range header {
			if c < len(record) {
				cols[c].Cells[r] = table.ParseCell(record[c])
			}
		}
	}
	return table.New(cols)
}
