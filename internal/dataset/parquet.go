package dataset

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

const parquetBatchSize = 1024

// WriteParquet writes rows as a Parquet file with one required UTF-8 column
// per source column. Parquet orders group fields by name, so values are
// placed by leaf index rather than by upload order.
func WriteParquet(w io.Writer, columns []string, rows []Row) error {
	group := parquet.Group{}
	for _, column := range columns {
		group[column] = parquet.String()
	}
	schema := parquet.NewSchema("connections", group)

	leafIndex := make(map[string]int, len(columns))
	for i, path := range schema.Columns() {
		if len(path) > 0 {
			leafIndex[path[0]] = i
		}
	}

	writer := parquet.NewWriter(w, schema)
	batch := make([]parquet.Row, 0, parquetBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := writer.WriteRows(batch); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for _, row := range rows {
		out := make(parquet.Row, len(columns))
		for _, column := range columns {
			idx := leafIndex[column]
			out[idx] = parquet.ValueOf(row[column]).Level(0, 0, idx)
		}
		batch = append(batch, out)
		if len(batch) == parquetBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
