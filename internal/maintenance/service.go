// Package maintenance removes sessions whose time to live has passed.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linkreach/linkreach/internal/catalog"
	"github.com/linkreach/linkreach/internal/observability"
)

type Catalog interface {
	ListExpiredDatasets(ctx context.Context, now time.Time, limit int) ([]catalog.DatasetRecord, error)
	CountLiveDatasets(ctx context.Context, now time.Time) (int, error)
}

// Expirer deletes a dataset together with its artifacts.
type Expirer interface {
	Expire(ctx context.Context, record catalog.DatasetRecord) error
}

type Config struct {
	SweepInterval time.Duration
	BatchSize     int
}

type Service struct {
	Catalog Catalog
	Files   Expirer
	Config  Config
	Logger  *slog.Logger
	Clock   func() time.Time
}

type SweepSummary struct {
	Expired  int `json:"expired"`
	Live     int `json:"live"`
	Failures int `json:"failures"`
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	ticker := time.NewTicker(s.Config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := s.SweepOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "session sweep failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if s.Logger != nil && summary.Expired > 0 {
				s.Logger.InfoContext(ctx, "session sweep completed", slog.Any("summary", summary))
			}
		}
	}
}

// SweepOnce expires datasets in batches until none are left or a batch hits
// a failure, in which case the remainder waits for the next tick.
func (s *Service) SweepOnce(ctx context.Context) (SweepSummary, error) {
	s.ensureDefaults()
	if s.Catalog == nil {
		return SweepSummary{}, fmt.Errorf("catalog is required")
	}
	if s.Files == nil {
		return SweepSummary{}, fmt.Errorf("file store is required")
	}

	started := time.Now()
	now := s.Clock().UTC()
	summary := SweepSummary{}
	failures := make([]string, 0)

	for {
		expired, err := s.Catalog.ListExpiredDatasets(ctx, now, s.Config.BatchSize)
		if err != nil {
			sweepRunsTotal.WithLabelValues("failed").Inc()
			return summary, fmt.Errorf("list expired datasets: %w", err)
		}
		for _, record := range expired {
			if err := s.Files.Expire(ctx, record); err != nil {
				summary.Failures++
				failures = append(failures, fmt.Sprintf("dataset %s: %v", record.FileID, err))
				continue
			}
			summary.Expired++
		}
		if len(expired) < s.Config.BatchSize || len(failures) > 0 {
			break
		}
	}

	live, err := s.Catalog.CountLiveDatasets(ctx, now)
	if err != nil {
		failures = append(failures, fmt.Sprintf("count live datasets: %v", err))
	} else {
		summary.Live = live
	}
	observability.ObserveSweep(summary.Expired, summary.Live)
	sweepDurationMs.Observe(float64(time.Since(started).Milliseconds()))

	if len(failures) > 0 {
		sweepRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("sweep encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	sweepRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Config.SweepInterval <= 0 {
		s.Config.SweepInterval = 5 * time.Minute
	}
	if s.Config.BatchSize <= 0 {
		s.Config.BatchSize = 100
	}
}
