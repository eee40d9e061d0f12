package tablecodec

import (
	"bytes"
	"compress/gzip"
	"errors"
	"strings"
	"testing"

	"github.com/cleanslate/cleanslate/internal/table"
)

const sampleCSV = "name,age\nAnn,30\nBob,\nCid,40\n"

func decodeSample(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := Decode([]byte(sampleCSV), "people.csv")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return tbl
}

func TestDecodeCSVInfersTypesAndMissing(t *testing.T) {
	tbl := decodeSample(t)

	if tbl.NumRows() != 3 || tbl.NumCols() != 2 {
		t.Fatalf("shape = %dx%d, want 3x2", tbl.NumRows(), tbl.NumCols())
	}
	if names := tbl.ColumnNames(); names[0] != "name" || names[1] != "age" {
		t.Fatalf("columns = %v", names)
	}

	age, _ := tbl.Column("age")
	if age.Cells[0] != 30.0 {
		t.Fatalf("age[0] = %v, want 30", age.Cells[0])
	}
	if age.Cells[1] != nil {
		t.Fatalf("age[1] = %v, want missing", age.Cells[1])
	}
	if age.Cells[2] != 40.0 {
		t.Fatalf("age[2] = %v, want 40", age.Cells[2])
	}
}

func TestDecodeToleratesWhitespace(t *testing.T) {
	tbl, err := Decode([]byte(" name , age\n Ann , 30\n"), "padded.csv")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if names := tbl.ColumnNames(); names[0] != "name" || names[1] != "age" {
		t.Fatalf("columns = %v", names)
	}
	name, _ := tbl.Column("name")
	if name.Cells[0] != "Ann" {
		t.Fatalf("name[0] = %v", name.Cells[0])
	}
}

func TestDecodeGzippedCSV(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(sampleCSV)); err != nil {
		t.Fatalf("gzip write failed: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close failed: %v", err)
	}

	tbl, err := Decode(buf.Bytes(), "people.csv")
	if err != nil {
		t.Fatalf("Decode(gzip) error = %v", err)
	}
	if tbl.NumRows() != 3 {
		t.Fatalf("rows = %d, want 3", tbl.NumRows())
	}
}

func TestDecodeLatin1Fallback(t *testing.T) {
	// 0xE9 is é in Latin-1 and invalid as a UTF-8 sequence start here.
	raw := []byte("name,city\nRen\xe9,Z\xfcrich\n")
	tbl, err := Decode(raw, "latin.csv")
	if err != nil {
		t.Fatalf("Decode(latin-1) error = %v", err)
	}
	name, _ := tbl.Column("name")
	if name.Cells[0] != "René" {
		t.Fatalf("name[0] = %v, want René", name.Cells[0])
	}
}

func TestDecodeUnreadableReportsEveryStrategy(t *testing.T) {
	// Invalid UTF-8 and a bare quote that breaks CSV parsing in any charset.
	raw := []byte("\xffbroken\"quote\nrow")
	_, err := Decode(raw, "garbage.bin")
	if err == nil {
		t.Fatal("Decode() should fail for unparseable bytes")
	}

	var unreadable *UnreadableFileError
	if !errors.As(err, &unreadable) {
		t.Fatalf("error = %T, want *UnreadableFileError", err)
	}
	diags := unreadable.Diagnostics()
	if len(diags) != 3 {
		t.Fatalf("diagnostics = %v, want 3 strategies", diags)
	}
	joined := strings.Join(diags, "\n")
	for _, strategy := range []string{"csv (utf-8)", "spreadsheet", "csv (latin-1)"} {
		if !strings.Contains(joined, strategy) {
			t.Fatalf("diagnostics missing %q: %v", strategy, diags)
		}
	}
}

func TestDecodeRaggedRowsPadWithMissing(t *testing.T) {
	tbl, err := Decode([]byte("a,b,c\n1,2\n"), "ragged.csv")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	c, _ := tbl.Column("c")
	if c.Cells[0] != nil {
		t.Fatalf("c[0] = %v, want missing", c.Cells[0])
	}
}

func TestEncodeRoundTripsCSV(t *testing.T) {
	tbl := decodeSample(t)

	data, contentType, outputName, err := Encode(tbl, "people.csv")
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if contentType != csvContentType {
		t.Fatalf("contentType = %q", contentType)
	}
	if outputName != "people_clean.csv" {
		t.Fatalf("outputName = %q", outputName)
	}
	if string(data) != sampleCSV {
		t.Fatalf("encoded CSV = %q, want %q", data, sampleCSV)
	}
}

func TestSpreadsheetRoundTrip(t *testing.T) {
	tbl := decodeSample(t)

	data, err := encodeSpreadsheet(tbl)
	if err != nil {
		t.Fatalf("encodeSpreadsheet() error = %v", err)
	}
	back, err := decodeSpreadsheet(data)
	if err != nil {
		t.Fatalf("decodeSpreadsheet() error = %v", err)
	}
	if !tbl.Equal(back) {
		t.Fatalf("spreadsheet round trip changed the table: %v vs %v", tbl.ColumnNames(), back.ColumnNames())
	}
}

func TestDecodeSpreadsheetByExtension(t *testing.T) {
	tbl := decodeSample(t)
	data, err := encodeSpreadsheet(tbl)
	if err != nil {
		t.Fatalf("encodeSpreadsheet() error = %v", err)
	}

	back, err := Decode(data, "people.xlsx")
	if err != nil {
		t.Fatalf("Decode(xlsx) error = %v", err)
	}
	if !tbl.Equal(back) {
		t.Fatal("xlsx decode by extension changed the table")
	}
}

func TestEncodeAsFormats(t *testing.T) {
	tbl := decodeSample(t)

	data, contentType, name, err := EncodeAs(tbl, "people.csv", "xlsx")
	if err != nil {
		t.Fatalf("EncodeAs(xlsx) error = %v", err)
	}
	if contentType != xlsxContentType || name != "people_clean.xlsx" || len(data) == 0 {
		t.Fatalf("xlsx encode = %q %q %d bytes", contentType, name, len(data))
	}

	data, contentType, name, err = EncodeAs(tbl, "people.xlsx", "csv")
	if err != nil {
		t.Fatalf("EncodeAs(csv) error = %v", err)
	}
	if contentType != csvContentType || name != "people_clean.csv" {
		t.Fatalf("csv encode = %q %q", contentType, name)
	}
	if string(data) != sampleCSV {
		t.Fatalf("csv encode body = %q", data)
	}

	data, contentType, name, err = EncodeAs(tbl, "people.csv", "parquet")
	if err != nil {
		t.Fatalf("EncodeAs(parquet) error = %v", err)
	}
	if contentType != ParquetContentType || name != "people_clean.parquet" || len(data) == 0 {
		t.Fatalf("parquet encode = %q %q %d bytes", contentType, name, len(data))
	}

	if _, _, _, err := EncodeAs(tbl, "people.csv", "pdf"); err == nil {
		t.Fatal("EncodeAs should reject unknown formats")
	}
}

func TestOutputName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"sales.csv", "sales_clean.csv"},
		{"book.xlsx", "book_clean.xlsx"},
		{"data.json", "data_clean.csv"},
		{"noext", "noext_clean.csv"},
		{"nested/dir/report.csv", "report_clean.csv"},
	}
	for _, tc := range cases {
		if got := OutputName(tc.in); got != tc.want {
			t.Fatalf("OutputName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
