// Package packager turns filter results into a response preview and a
// downloadable artifact.
package packager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/linkreach/linkreach/internal/catalog"
	"github.com/linkreach/linkreach/internal/dataset"
	"github.com/linkreach/linkreach/internal/observability"
	"github.com/linkreach/linkreach/internal/session"
	"github.com/linkreach/linkreach/internal/storage"
)

const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"

	DefaultPreviewRows = 50
)

var ErrUnsupportedFormat = errors.New("unsupported download format")

type Config struct {
	PreviewRows int
}

type FilterResult struct {
	FileID        string
	FilteredCount int
	TotalCount    int
	ErrorRows     int
	PreviewRows   []dataset.Row
	DownloadToken string
	Expression    string
	ExpiresAt     time.Time
}

type Download struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

type Packager struct {
	objects     storage.ObjectStore
	catalog     catalog.Repository
	sessions    *session.Manager
	logger      *slog.Logger
	previewRows int
}

func New(cfg Config, objects storage.ObjectStore, repo catalog.Repository, sessions *session.Manager, logger *slog.Logger) (*Packager, error) {
	if objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("catalog repository is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	previewRows := cfg.PreviewRows
	if previewRows <= 0 {
		previewRows = DefaultPreviewRows
	}
	return &Packager{
		objects:     objects,
		catalog:     repo,
		sessions:    sessions,
		logger:      logger,
		previewRows: previewRows,
	}, nil
}

// Package writes rows as a CSV artifact in the dataset's column order and
// registers it. The catalog entry is only created after the object write
// succeeded, so a token never resolves to a partial file.
func (p *Packager) Package(ctx context.Context, ds dataset.Dataset, rows []dataset.Row, errorRows int, expression string) (FilterResult, error) {
	token, err := session.NewDownloadToken()
	if err != nil {
		return FilterResult{}, err
	}
	key, err := storage.BuildArtifactPath(ds.FileID, token, FormatCSV)
	if err != nil {
		return FilterResult{}, err
	}
	encoded, err := dataset.EncodeCSV(ds.Columns, rows)
	if err != nil {
		return FilterResult{}, err
	}

	info, err := p.objects.Put(ctx, key, bytes.NewReader(encoded), int64(len(encoded)), storage.PutOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return FilterResult{}, fmt.Errorf("put artifact %q: %w", key, err)
	}

	record, err := p.catalog.CreateArtifact(ctx, catalog.CreateArtifactInput{
		Token:      token,
		FileID:     ds.FileID,
		ObjectKey:  key,
		Format:     FormatCSV,
		RowCount:   len(rows),
		SizeBytes:  info.Size,
		Expression: expression,
		ExpiresAt:  ds.ExpiresAt,
	})
	if err != nil {
		if deleteErr := p.objects.Delete(ctx, key); deleteErr != nil && !errors.Is(deleteErr, storage.ErrObjectNotFound) {
			p.logger.WarnContext(ctx, "orphaned artifact object", "key", key, "error", deleteErr)
		}
		if errors.Is(err, catalog.ErrNotFound) {
			return FilterResult{}, fmt.Errorf("%w: %s", session.ErrUnknownSession, ds.FileID)
		}
		return FilterResult{}, fmt.Errorf("register artifact: %w", err)
	}
	observability.ObserveArtifact(info.Size)

	return FilterResult{
		FileID:        ds.FileID,
		FilteredCount: len(rows),
		TotalCount:    ds.TotalRows(),
		ErrorRows:     errorRows,
		PreviewRows:   dataset.Head(rows, p.previewRows),
		DownloadToken: record.Token,
		Expression:    expression,
		ExpiresAt:     record.ExpiresAt,
	}, nil
}

// Open streams the artifact behind token. Parquet is produced on demand from
// the stored CSV.
func (p *Packager) Open(ctx context.Context, token, format string) (Download, error) {
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatParquet {
		return Download{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	record, err := p.sessions.ResolveArtifact(ctx, token)
	if err != nil {
		return Download{}, err
	}

	body, err := p.objects.Get(ctx, record.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return Download{}, fmt.Errorf("%w: %s", session.ErrUnknownSession, token)
		}
		return Download{}, fmt.Errorf("get artifact %q: %w", record.ObjectKey, err)
	}
	filename := downloadFilename(record.CreatedAt, format)
	if format == FormatCSV {
		return Download{Filename: filename, ContentType: "text/csv", Size: record.SizeBytes, Body: body}, nil
	}

	defer func() { _ = body.Close() }()
	raw, err := io.ReadAll(body)
	if err != nil {
		return Download{}, fmt.Errorf("read artifact %q: %w", record.ObjectKey, err)
	}
	table, err := dataset.ParseCSV(raw, dataset.ParseOptions{})
	if err != nil {
		return Download{}, fmt.Errorf("decode artifact %q: %w", record.ObjectKey, err)
	}
	buf := bytes.NewBuffer(nil)
	if err := dataset.WriteParquet(buf, table.Columns, table.Rows); err != nil {
		return Download{}, err
	}
	return Download{
		Filename:    filename,
		ContentType: "application/vnd.apache.parquet",
		Size:        int64(buf.Len()),
		Body:        io.NopCloser(buf),
	}, nil
}

func downloadFilename(createdAt time.Time, format string) string {
	return fmt.Sprintf("filtered_results_%s.%s", createdAt.UTC().Format("20060102_150405"), format)
}
