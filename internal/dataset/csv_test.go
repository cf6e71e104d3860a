package dataset

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
)

func TestParseCSVColumnsAndRows(t *testing.T) {
	table, err := ParseCSV([]byte("Name,Company\nAda,Acme\nBob,Globex\nCy,Acme\n"), ParseOptions{})
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if !reflect.DeepEqual(table.Columns, []string{"Name", "Company"}) {
		t.Fatalf("Columns = %#v", table.Columns)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("rows = %d", len(table.Rows))
	}
	if table.Rows[1]["Name"] != "Bob" || table.Rows[1]["Company"] != "Globex" {
		t.Fatalf("row[1] = %#v", table.Rows[1])
	}
}

func TestParseCSVHeaderOnly(t *testing.T) {
	table, err := ParseCSV([]byte("Name,Company\n"), ParseOptions{})
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(table.Columns) != 2 || len(table.Rows) != 0 {
		t.Fatalf("table = %#v", table)
	}
}

func TestParseCSVRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"whitespace":     "  \n\n ",
		"blank header":   "Name,,Company\na,b,c\n",
		"duplicate":      "Name,Name\na,b\n",
		"case duplicate": "Name,name\nAda,x\n",
		"ragged row":     "Name,Company\nAda\n",
		"bare quote":     "Name,Company\nA\"da,Acme\n",
		"unterminated":   "Name,Company\n\"Ada,Acme\n",
		"too many field": "Name,Company\nAda,Acme,Extra\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCSV([]byte(body), ParseOptions{})
			if !errors.Is(err, ErrMalformedInput) {
				t.Fatalf("ParseCSV() error = %v, want ErrMalformedInput", err)
			}
		})
	}
}

func TestParseCSVKeepsHeaderNamesVerbatim(t *testing.T) {
	table, err := ParseCSV([]byte("First Name , Company\nAda,Acme\n"), ParseOptions{})
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if !reflect.DeepEqual(table.Columns, []string{"First Name ", " Company"}) {
		t.Fatalf("Columns = %#v", table.Columns)
	}
	body, err := EncodeCSV(table.Columns, table.Rows)
	if err != nil {
		t.Fatalf("EncodeCSV() error = %v", err)
	}
	if !strings.HasPrefix(string(body), "First Name , Company\n") {
		t.Fatalf("header = %q", body)
	}
}

func TestParseCSVEnforcesRowLimit(t *testing.T) {
	_, err := ParseCSV([]byte("Name\na\nb\nc\n"), ParseOptions{MaxRows: 2})
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if _, err := ParseCSV([]byte("Name\na\nb\n"), ParseOptions{MaxRows: 2}); err != nil {
		t.Fatalf("ParseCSV() at limit error = %v", err)
	}
}

func TestParseCSVSkipsLinkedInPreamble(t *testing.T) {
	body := "Notes:\n" +
		"\"When exporting your connection data, you may notice that some of the email addresses are missing.\"\n" +
		"\n" +
		"First Name,Last Name,Company,Position,Connected On\n" +
		"Ada,Lovelace,Acme,Engineer,01 Mar 2024\n"

	table, err := ParseCSV([]byte(body), ParseOptions{SkipPreamble: true})
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if table.Columns[0] != "First Name" || len(table.Columns) != 5 {
		t.Fatalf("Columns = %#v", table.Columns)
	}
	if len(table.Rows) != 1 || table.Rows[0]["Connected On"] != "01 Mar 2024" {
		t.Fatalf("Rows = %#v", table.Rows)
	}

	if _, err := ParseCSV([]byte(body), ParseOptions{}); !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("without preamble skipping error = %v", err)
	}
}

func TestParseCSVSingleColumnWithPreambleSkipping(t *testing.T) {
	table, err := ParseCSV([]byte("Name\nAda\nBob\n"), ParseOptions{SkipPreamble: true})
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if len(table.Columns) != 1 || len(table.Rows) != 2 {
		t.Fatalf("table = %#v", table)
	}
}

func TestParseCSVDecodesLegacyEncodings(t *testing.T) {
	// "José" in Windows-1252.
	body := []byte("Name,Company\nJos\xe9,Acme\n")
	table, err := ParseCSV(body, ParseOptions{})
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if table.Rows[0]["Name"] != "José" {
		t.Fatalf("Name = %q", table.Rows[0]["Name"])
	}
}

func TestParseCSVStripsBOM(t *testing.T) {
	table, err := ParseCSV([]byte("\xEF\xBB\xBFName,Company\nAda,Acme\n"), ParseOptions{})
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if table.Columns[0] != "Name" {
		t.Fatalf("Columns[0] = %q", table.Columns[0])
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	columns := []string{"Name", "Company", "Notes"}
	rows := []Row{
		{"Name": "Ada", "Company": "Acme", "Notes": "likes, commas"},
		{"Name": "Bob", "Company": "Globex", "Notes": "says \"hi\""},
	}
	body, err := EncodeCSV(columns, rows)
	if err != nil {
		t.Fatalf("EncodeCSV() error = %v", err)
	}
	table, err := ParseCSV(body, ParseOptions{})
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	if !reflect.DeepEqual(table.Columns, columns) {
		t.Fatalf("Columns = %#v", table.Columns)
	}
	if !reflect.DeepEqual(table.Rows, rows) {
		t.Fatalf("Rows = %#v", table.Rows)
	}
}

func TestWriteCSVHeaderOnly(t *testing.T) {
	body, err := EncodeCSV([]string{"Name", "Company"}, nil)
	if err != nil {
		t.Fatalf("EncodeCSV() error = %v", err)
	}
	if strings.TrimSpace(string(body)) != "Name,Company" {
		t.Fatalf("body = %q", body)
	}
}

func TestDatasetHeadAndSample(t *testing.T) {
	ds := Dataset{
		Columns: []string{"Name", "Company"},
		Rows: []Row{
			{"Name": "Ada", "Company": "Acme"},
			{"Name": "Bob", "Company": "Globex"},
		},
	}
	if got := ds.Head(5); len(got) != 2 {
		t.Fatalf("Head(5) = %d rows", len(got))
	}
	if got := ds.Head(0); len(got) != 0 {
		t.Fatalf("Head(0) = %d rows", len(got))
	}
	sample := ds.SampleValues(1)
	if !reflect.DeepEqual(sample, [][]string{{"Ada", "Acme"}}) {
		t.Fatalf("SampleValues() = %#v", sample)
	}
	if !ds.HasColumn("Company") || ds.HasColumn("Email") {
		t.Fatal("HasColumn() mismatch")
	}
}

func TestWriteParquet(t *testing.T) {
	columns := []string{"Name", "Company"}
	rows := []Row{
		{"Name": "Ada", "Company": "Acme"},
		{"Name": "Cy", "Company": "Acme"},
	}
	buf := bytes.NewBuffer(nil)
	if err := WriteParquet(buf, columns, rows); err != nil {
		t.Fatalf("WriteParquet() error = %v", err)
	}

	file, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if file.NumRows() != 2 {
		t.Fatalf("NumRows() = %d", file.NumRows())
	}
	names := map[string]bool{}
	for _, path := range file.Schema().Columns() {
		names[path[0]] = true
	}
	if !names["Name"] || !names["Company"] {
		t.Fatalf("schema columns = %#v", file.Schema().Columns())
	}
}
