// Package executor applies a validated predicate to every row of a dataset.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/linkreach/linkreach/internal/dataset"
	"github.com/linkreach/linkreach/internal/observability"
	"github.com/linkreach/linkreach/internal/predicate"
)

var ErrExecutionFailure = errors.New("filter execution failed")

const DefaultErrorThreshold = 0.5

// Result holds the matching rows in upload order. Rows whose evaluation
// failed are excluded and counted in Errors.
type Result struct {
	Rows       []dataset.Row
	Errors     int
	FirstError error
}

type Engine interface {
	Apply(ctx context.Context, ds dataset.Dataset, expr predicate.Expr) (Result, error)
}

// CheckErrorRate records row errors and fails the call when their share of
// total rows exceeds threshold. An empty dataset never fails.
func CheckErrorRate(result Result, total int, threshold float64) error {
	if result.Errors == 0 {
		return nil
	}
	observability.AddRowEvaluationErrors(result.Errors)
	if total == 0 {
		return nil
	}
	if float64(result.Errors)/float64(total) > threshold {
		return fmt.Errorf("%w: %d of %d rows could not be evaluated: %w", ErrExecutionFailure, result.Errors, total, result.FirstError)
	}
	return nil
}

// NativeEngine interprets the predicate AST row by row.
type NativeEngine struct {
	threshold float64
	logger    *slog.Logger
}

func NewNativeEngine(threshold float64, logger *slog.Logger) *NativeEngine {
	if threshold < 0 {
		threshold = DefaultErrorThreshold
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &NativeEngine{threshold: threshold, logger: logger}
}

func (e *NativeEngine) Apply(ctx context.Context, ds dataset.Dataset, expr predicate.Expr) (Result, error) {
	matcher, err := predicate.NewMatcher(expr)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrExecutionFailure, err)
	}

	result := Result{Rows: make([]dataset.Row, 0)}
	for i, row := range ds.Rows {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		ok, err := matcher.Match(row)
		if err != nil {
			result.Errors++
			if result.FirstError == nil {
				result.FirstError = err
			}
			e.logger.DebugContext(ctx, "row evaluation failed", "row", i, "error", err)
			continue
		}
		if ok {
			result.Rows = append(result.Rows, row)
		}
	}
	if err := CheckErrorRate(result, len(ds.Rows), e.threshold); err != nil {
		return Result{}, err
	}
	return result, nil
}
