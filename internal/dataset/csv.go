package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type ParseOptions struct {
	// MaxRows caps the number of data rows; zero disables the cap.
	MaxRows int
	// SkipPreamble drops leading single-field records such as the "Notes:"
	// block LinkedIn places above the header of its connections export.
	SkipPreamble bool
}

func ParseCSV(body []byte, opts ParseOptions) (Table, error) {
	text, err := decodeText(body)
	if err != nil {
		return Table{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Table{}, fmt.Errorf("%w: file is empty", ErrMalformedInput)
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	records, err := readRecords(reader)
	if err != nil {
		return Table{}, err
	}
	if len(records) == 0 {
		return Table{}, fmt.Errorf("%w: file is empty", ErrMalformedInput)
	}

	headerIndex := 0
	if opts.SkipPreamble {
		headerIndex = findHeader(records)
	}
	columns, err := parseHeader(records[headerIndex])
	if err != nil {
		return Table{}, err
	}

	data := records[headerIndex+1:]
	if opts.MaxRows > 0 && len(data) > opts.MaxRows {
		return Table{}, fmt.Errorf("%w: file exceeds the limit of %d rows", ErrMalformedInput, opts.MaxRows)
	}
	rows := make([]Row, 0, len(data))
	for i, record := range data {
		if len(record) != len(columns) {
			return Table{}, fmt.Errorf("%w: row %d has %d fields, expected %d", ErrMalformedInput, i+1, len(record), len(columns))
		}
		row := make(Row, len(columns))
		for j, column := range columns {
			row[column] = record[j]
		}
		rows = append(rows, row)
	}
	return Table{Columns: columns, Rows: rows}, nil
}

func WriteCSV(w io.Writer, columns []string, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, column := range columns {
			record[i] = row[column]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func EncodeCSV(columns []string, rows []Row) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := WriteCSV(buf, columns, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeText accepts UTF-8 first, then falls back to Windows-1252 and
// finally ISO-8859-1, which accepts any byte sequence.
func decodeText(body []byte) (string, error) {
	body = bytes.TrimPrefix(body, utf8BOM)
	if utf8.Valid(body) {
		return string(body), nil
	}
	if decoded, err := charmap.Windows1252.NewDecoder().Bytes(body); err == nil && !bytes.ContainsRune(decoded, utf8.RuneError) {
		return string(decoded), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("%w: unable to decode file: %v", ErrMalformedInput, err)
	}
	return string(decoded), nil
}

func readRecords(reader *csv.Reader) ([][]string, error) {
	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		records = append(records, record)
	}
}

func findHeader(records [][]string) int {
	for i, record := range records {
		if len(record) >= 2 {
			return i
		}
	}
	return 0
}

// parseHeader keeps column names exactly as written. Names that differ only
// by case are rejected because SQL engines fold identifier case.
func parseHeader(record []string) ([]string, error) {
	columns := make([]string, 0, len(record))
	seen := make(map[string]string, len(record))
	for i, name := range record {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: header column %d is blank", ErrMalformedInput, i+1)
		}
		folded := strings.ToLower(name)
		if previous, ok := seen[folded]; ok {
			return nil, fmt.Errorf("%w: duplicate header column %q (conflicts with %q)", ErrMalformedInput, name, previous)
		}
		seen[folded] = name
		columns = append(columns, name)
	}
	return columns, nil
}
