// Package pipeline wires the upload, generate, execute and package steps
// behind the operations exposed over HTTP.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linkreach/linkreach/internal/dataset"
	"github.com/linkreach/linkreach/internal/executor"
	"github.com/linkreach/linkreach/internal/filestore"
	"github.com/linkreach/linkreach/internal/filtergen"
	"github.com/linkreach/linkreach/internal/observability"
	"github.com/linkreach/linkreach/internal/packager"
	"github.com/linkreach/linkreach/internal/session"
)

var ErrInvalidRequest = errors.New("invalid request")

const (
	DefaultMaxPromptLength   = 500
	DefaultSampleRows        = 5
	DefaultUploadPreviewRows = 5
)

type Config struct {
	MaxPromptLength   int
	SampleRows        int
	UploadPreviewRows int
}

type UploadResult struct {
	FileID      string
	Filename    string
	TotalRows   int
	Columns     []string
	PreviewRows []dataset.Row
	ExpiresAt   time.Time
	Message     string
}

type FilterRequest struct {
	Prompt string
	FileID string
}

type FilterOutcome struct {
	packager.FilterResult
	Explanation string
	Provider    string
	Message     string
}

type Service struct {
	files     *filestore.Store
	generator filtergen.Generator
	engine    executor.Engine
	packager  *packager.Packager
	logger    *slog.Logger
	cfg       Config
}

func New(cfg Config, files *filestore.Store, generator filtergen.Generator, engine executor.Engine, pkg *packager.Packager, logger *slog.Logger) (*Service, error) {
	if files == nil {
		return nil, fmt.Errorf("file store is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("filter engine is required")
	}
	if pkg == nil {
		return nil, fmt.Errorf("packager is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = slog.New(observability.NewContextHandler(logger.Handler()))
	if cfg.MaxPromptLength <= 0 {
		cfg.MaxPromptLength = DefaultMaxPromptLength
	}
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = DefaultSampleRows
	}
	if cfg.UploadPreviewRows <= 0 {
		cfg.UploadPreviewRows = DefaultUploadPreviewRows
	}
	return &Service{
		files:     files,
		generator: generator,
		engine:    engine,
		packager:  pkg,
		logger:    logger,
		cfg:       cfg,
	}, nil
}

func (s *Service) Upload(ctx context.Context, filename string, body []byte) (UploadResult, error) {
	if !strings.EqualFold(path.Ext(strings.TrimSpace(filename)), ".csv") {
		observability.ObserveUpload("rejected", 0)
		return UploadResult{}, fmt.Errorf("%w: file must be a CSV", dataset.ErrMalformedInput)
	}
	ds, err := s.files.Store(ctx, filename, body)
	if err != nil {
		observability.ObserveUpload(uploadStatus(err), 0)
		return UploadResult{}, err
	}
	observability.ObserveUpload("ok", ds.TotalRows())
	s.logger.InfoContext(observability.ContextWithFileID(ctx, ds.FileID), "dataset uploaded",
		"filename", ds.Filename,
		"rows", ds.TotalRows(),
		"columns", len(ds.Columns),
		"bytes", ds.SizeBytes,
	)
	return UploadResult{
		FileID:      ds.FileID,
		Filename:    ds.Filename,
		TotalRows:   ds.TotalRows(),
		Columns:     ds.Columns,
		PreviewRows: ds.Head(s.cfg.UploadPreviewRows),
		ExpiresAt:   ds.ExpiresAt,
		Message:     fmt.Sprintf("Successfully uploaded %s", ds.Filename),
	}, nil
}

func (s *Service) Filter(ctx context.Context, req FilterRequest) (FilterOutcome, error) {
	outcome, err := s.filter(ctx, req)
	observability.ObserveFilter(filterOutcome(err))
	return outcome, err
}

func (s *Service) filter(ctx context.Context, req FilterRequest) (FilterOutcome, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return FilterOutcome{}, fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(prompt) > s.cfg.MaxPromptLength {
		return FilterOutcome{}, fmt.Errorf("%w: prompt must be at most %d characters", ErrInvalidRequest, s.cfg.MaxPromptLength)
	}
	fileID := strings.TrimSpace(req.FileID)
	if fileID == "" {
		return FilterOutcome{}, fmt.Errorf("%w: file_id is required", ErrInvalidRequest)
	}
	ctx = observability.ContextWithFileID(ctx, fileID)

	ds, err := s.files.Get(ctx, fileID)
	if err != nil {
		return FilterOutcome{}, err
	}

	generated, err := s.generator.Generate(ctx, filtergen.Request{
		Prompt:     prompt,
		Columns:    ds.Columns,
		SampleRows: ds.Head(s.cfg.SampleRows),
	})
	if err != nil {
		return FilterOutcome{}, err
	}
	if generated.Predicate == nil {
		return FilterOutcome{}, fmt.Errorf("%w: generator returned no predicate", filtergen.ErrGenerationFailure)
	}

	executed, err := s.engine.Apply(ctx, ds, generated.Predicate)
	if err != nil {
		return FilterOutcome{}, err
	}

	packaged, err := s.packager.Package(ctx, ds, executed.Rows, executed.Errors, generated.Expression)
	if err != nil {
		return FilterOutcome{}, err
	}
	s.logger.InfoContext(ctx, "dataset filtered",
		"provider", generated.Provider,
		"expression", generated.Expression,
		"matched", packaged.FilteredCount,
		"total", packaged.TotalCount,
		"row_errors", executed.Errors,
	)
	return FilterOutcome{
		FilterResult: packaged,
		Explanation:  generated.Explanation,
		Provider:     generated.Provider,
		Message:      fmt.Sprintf("Successfully filtered %d connections from %d total", packaged.FilteredCount, packaged.TotalCount),
	}, nil
}

func (s *Service) Download(ctx context.Context, token, format string) (packager.Download, error) {
	return s.packager.Open(ctx, token, format)
}

// Reset removes a dataset and every artifact derived from it.
func (s *Service) Reset(ctx context.Context, fileID string) error {
	ctx = observability.ContextWithFileID(ctx, fileID)
	if err := s.files.Delete(ctx, fileID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "session reset")
	return nil
}

func uploadStatus(err error) string {
	switch {
	case errors.Is(err, filestore.ErrTooLarge):
		return "too_large"
	case errors.Is(err, dataset.ErrMalformedInput):
		return "malformed"
	}
	return "error"
}

func filterOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, session.ErrUnknownSession):
		return "unknown_session"
	case errors.Is(err, filtergen.ErrGenerationTimeout):
		return "generation_timeout"
	case errors.Is(err, filtergen.ErrGenerationFailure):
		return "generation_failure"
	case errors.Is(err, executor.ErrExecutionFailure):
		return "execution_failure"
	}
	return "error"
}
