// Package duckdb evaluates predicates inside an embedded DuckDB database. The
// dataset is staged as a Parquet file in a scratch directory and the compiled
// predicate is selected once per row.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/linkreach/linkreach/internal/dataset"
	"github.com/linkreach/linkreach/internal/executor"
	"github.com/linkreach/linkreach/internal/predicate"
)

type Engine struct {
	threshold float64
	logger    *slog.Logger
}

func NewEngine(threshold float64, logger *slog.Logger) *Engine {
	if threshold < 0 {
		threshold = executor.DefaultErrorThreshold
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{threshold: threshold, logger: logger}
}

func (e *Engine) Apply(ctx context.Context, ds dataset.Dataset, expr predicate.Expr) (executor.Result, error) {
	condition, args, err := compile(expr)
	if err != nil {
		return executor.Result{}, fmt.Errorf("%w: compile predicate: %w", executor.ErrExecutionFailure, err)
	}
	if len(ds.Rows) == 0 {
		return executor.Result{Rows: []dataset.Row{}}, nil
	}
	if err := checkColumnNames(ds.Columns); err != nil {
		return executor.Result{}, fmt.Errorf("%w: %w", executor.ErrExecutionFailure, err)
	}

	workDir, err := os.MkdirTemp("", "linkreach-filter-")
	if err != nil {
		return executor.Result{}, fmt.Errorf("create filter temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, "dataset.parquet")
	if err := writeParquetFile(localPath, ds); err != nil {
		return executor.Result{}, fmt.Errorf("stage dataset %q: %w", ds.FileID, err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return executor.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	// Row order follows the file because insertion order is preserved for
	// plain scans.
	sqlText := fmt.Sprintf("SELECT %s AS keep FROM read_parquet(%s)", condition, quoteStringArray([]string{localPath}))
	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return executor.Result{}, fmt.Errorf("%w: execute predicate: %w", executor.ErrExecutionFailure, err)
	}
	defer func() { _ = rows.Close() }()

	result := executor.Result{Rows: make([]dataset.Row, 0)}
	index := 0
	for rows.Next() {
		if index >= len(ds.Rows) {
			return executor.Result{}, fmt.Errorf("duckdb returned more rows than the dataset holds")
		}
		var keep sql.NullBool
		if err := rows.Scan(&keep); err != nil {
			return executor.Result{}, fmt.Errorf("scan row: %w", err)
		}
		switch {
		case !keep.Valid:
			result.Errors++
			if result.FirstError == nil {
				result.FirstError = fmt.Errorf("%w: row %d: %s", predicate.ErrEvaluation, index, expr)
			}
			e.logger.DebugContext(ctx, "row evaluation failed", "row", index)
		case keep.Bool:
			result.Rows = append(result.Rows, ds.Rows[index])
		}
		index++
	}
	if err := rows.Err(); err != nil {
		return executor.Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	if index != len(ds.Rows) {
		return executor.Result{}, fmt.Errorf("duckdb returned %d rows, dataset holds %d", index, len(ds.Rows))
	}

	if err := executor.CheckErrorRate(result, len(ds.Rows), e.threshold); err != nil {
		return executor.Result{}, err
	}
	return result, nil
}

// checkColumnNames refuses columns DuckDB cannot tell apart, since it
// resolves identifiers case-insensitively.
func checkColumnNames(columns []string) error {
	seen := make(map[string]string, len(columns))
	for _, column := range columns {
		folded := strings.ToLower(column)
		if previous, ok := seen[folded]; ok {
			return fmt.Errorf("columns %q and %q differ only by case", previous, column)
		}
		seen[folded] = column
	}
	return nil
}

func writeParquetFile(path string, ds dataset.Dataset) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if err := dataset.WriteParquet(file, ds.Columns, ds.Rows); err != nil {
		return err
	}
	return file.Sync()
}
