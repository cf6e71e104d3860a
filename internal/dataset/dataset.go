// Package dataset holds the tabular model shared by the upload, filter and
// download paths, together with its CSV and Parquet codecs.
package dataset

import (
	"errors"
	"time"
)

var ErrMalformedInput = errors.New("malformed input")

// Row maps a column name to its raw cell text.
type Row map[string]string

// Table is the parsed content of an upload.
type Table struct {
	Columns []string
	Rows    []Row
}

// Dataset is an uploaded table bound to its session. A Dataset is shared by
// concurrent filter calls and must be treated as read-only.
type Dataset struct {
	FileID    string
	Filename  string
	Columns   []string
	Rows      []Row
	SizeBytes int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (d Dataset) TotalRows() int {
	return len(d.Rows)
}

// Head returns up to n leading rows in upload order.
func (d Dataset) Head(n int) []Row {
	return Head(d.Rows, n)
}

// SampleValues returns up to n leading rows as positional values in column
// order, the shape used to give the generator a glimpse of the data.
func (d Dataset) SampleValues(n int) [][]string {
	head := d.Head(n)
	out := make([][]string, 0, len(head))
	for _, row := range head {
		values := make([]string, len(d.Columns))
		for i, column := range d.Columns {
			values[i] = row[column]
		}
		out = append(out, values)
	}
	return out
}

func (d Dataset) HasColumn(name string) bool {
	for _, column := range d.Columns {
		if column == name {
			return true
		}
	}
	return false
}

func Head(rows []Row, n int) []Row {
	if n <= 0 {
		return []Row{}
	}
	if len(rows) < n {
		n = len(rows)
	}
	out := make([]Row, n)
	copy(out, rows[:n])
	return out
}
