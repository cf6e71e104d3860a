package filtergen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/linkreach/linkreach/internal/observability"
	"github.com/linkreach/linkreach/internal/predicate"
)

type ValidatingConfig struct {
	// Provider labels metrics and logs.
	Provider    string
	Timeout     time.Duration
	MaxAttempts int
	Limits      predicate.Limits
}

// Validating wraps a Generator so that every returned Result carries a parsed
// predicate that only references the request columns. The whole call, retries
// included, is bounded by the configured timeout.
type Validating struct {
	next        Generator
	provider    string
	timeout     time.Duration
	maxAttempts int
	limits      predicate.Limits
	logger      *slog.Logger
}

func NewValidating(next Generator, cfg ValidatingConfig, logger *slog.Logger) (*Validating, error) {
	if next == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "unknown"
	}
	return &Validating{
		next:        next,
		provider:    provider,
		timeout:     timeout,
		maxAttempts: attempts,
		limits:      cfg.Limits,
		logger:      logger,
	}, nil
}

func (v *Validating) Generate(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	result, err := v.generate(ctx, req)
	status := "ok"
	switch {
	case errors.Is(err, ErrGenerationTimeout):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	observability.ObserveGeneration(v.provider, status, time.Since(started))
	return result, err
}

func (v *Validating) generate(ctx context.Context, req Request) (Result, error) {
	genCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= v.maxAttempts; attempt++ {
		result, err := v.next.Generate(genCtx, req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
				return Result{}, fmt.Errorf("%w after %s", ErrGenerationTimeout, v.timeout)
			}
			return Result{}, fmt.Errorf("%w: %w", ErrGenerationFailure, err)
		}

		expr, err := v.check(result.Expression, req.Columns)
		if err == nil {
			result.Expression = expr.String()
			result.Predicate = expr
			return result, nil
		}
		lastErr = err
		v.logger.WarnContext(ctx, "generated expression rejected",
			"provider", v.provider,
			"attempt", attempt,
			"expression", result.Expression,
			"error", err,
		)
		req.Feedback = err.Error()
	}
	return Result{}, fmt.Errorf("%w: %w", ErrGenerationFailure, lastErr)
}

func (v *Validating) check(expression string, columns []string) (predicate.Expr, error) {
	expr, err := predicate.Parse(stripMarkdown(expression))
	if err != nil {
		return nil, err
	}
	if err := predicate.Validate(expr, columns, v.limits); err != nil {
		return nil, err
	}
	return expr, nil
}
