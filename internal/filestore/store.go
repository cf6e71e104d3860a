// Package filestore owns uploaded datasets: it parses uploads, persists the
// raw bytes to the object store, registers them in the catalog and keeps
// parsed tables in memory for the filter path.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/linkreach/linkreach/internal/catalog"
	"github.com/linkreach/linkreach/internal/dataset"
	"github.com/linkreach/linkreach/internal/observability"
	"github.com/linkreach/linkreach/internal/session"
	"github.com/linkreach/linkreach/internal/storage"
)

var ErrTooLarge = errors.New("upload exceeds size limit")

type Config struct {
	MaxBytes     int64
	MaxRows      int
	SkipPreamble bool
}

type Store struct {
	objects  storage.ObjectStore
	catalog  catalog.Repository
	sessions *session.Manager
	logger   *slog.Logger

	maxBytes int64
	parse    dataset.ParseOptions

	mu    sync.RWMutex
	cache map[string]dataset.Dataset
	// evictions counts cache removals; a reload only caches its result when
	// no eviction happened since its catalog lookup.
	evictions uint64
}

func New(cfg Config, objects storage.ObjectStore, repo catalog.Repository, sessions *session.Manager, logger *slog.Logger) (*Store, error) {
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
	logger = slog.New(observability.NewContextHandler(logger.Handler()))
	return &Store{
		objects:  objects,
		catalog:  repo,
		sessions: sessions,
		logger:   logger,
		maxBytes: cfg.MaxBytes,
		parse:    dataset.ParseOptions{MaxRows: cfg.MaxRows, SkipPreamble: cfg.SkipPreamble},
		cache:    map[string]dataset.Dataset{},
	}, nil
}

// Store parses body and, only when it is a well-formed table, persists it
// under a fresh file id.
func (s *Store) Store(ctx context.Context, filename string, body []byte) (dataset.Dataset, error) {
	if s.maxBytes > 0 && int64(len(body)) > s.maxBytes {
		return dataset.Dataset{}, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(body), s.maxBytes)
	}
	table, err := dataset.ParseCSV(body, s.parse)
	if err != nil {
		return dataset.Dataset{}, err
	}

	fileID, err := session.NewFileID()
	if err != nil {
		return dataset.Dataset{}, err
	}
	key, err := storage.BuildDatasetPath(fileID)
	if err != nil {
		return dataset.Dataset{}, err
	}
	filename = cleanFilename(filename)

	if _, err := s.objects.Put(ctx, key, bytes.NewReader(body), int64(len(body)), storage.PutOptions{
		ContentType:        "text/csv",
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", filename),
	}); err != nil {
		return dataset.Dataset{}, fmt.Errorf("persist upload: %w", err)
	}

	record, err := s.catalog.CreateDataset(ctx, catalog.CreateDatasetInput{
		FileID:    fileID,
		Filename:  filename,
		ObjectKey: key,
		Columns:   table.Columns,
		TotalRows: len(table.Rows),
		SizeBytes: int64(len(body)),
		ExpiresAt: s.sessions.ExpiresAt(),
	})
	if err != nil {
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			s.logger.WarnContext(observability.ContextWithFileID(ctx, fileID), "failed to remove orphaned upload", "error", delErr)
		}
		return dataset.Dataset{}, fmt.Errorf("register upload: %w", err)
	}

	ds := dataset.Dataset{
		FileID:    fileID,
		Filename:  filename,
		Columns:   table.Columns,
		Rows:      table.Rows,
		SizeBytes: record.SizeBytes,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}
	s.mu.Lock()
	s.cache[fileID] = ds
	s.mu.Unlock()
	return ds, nil
}

// Get returns the dataset for fileID, reloading it from the object store
// when another replica accepted the upload.
func (s *Store) Get(ctx context.Context, fileID string) (dataset.Dataset, error) {
	s.mu.RLock()
	generation := s.evictions
	s.mu.RUnlock()

	record, err := s.sessions.ResolveDataset(ctx, fileID)
	if err != nil {
		if errors.Is(err, session.ErrUnknownSession) {
			s.evict(fileID)
		}
		return dataset.Dataset{}, err
	}

	s.mu.RLock()
	ds, ok := s.cache[fileID]
	s.mu.RUnlock()
	if ok {
		return ds, nil
	}

	reader, err := s.objects.Get(ctx, record.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return dataset.Dataset{}, session.ErrUnknownSession
		}
		return dataset.Dataset{}, fmt.Errorf("load dataset %s: %w", fileID, err)
	}
	defer func() { _ = reader.Close() }()
	body, err := io.ReadAll(reader)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("read dataset %s: %w", fileID, err)
	}
	table, err := dataset.ParseCSV(body, s.parse)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("reparse dataset %s: %w", fileID, err)
	}

	ds = dataset.Dataset{
		FileID:    record.FileID,
		Filename:  record.Filename,
		Columns:   table.Columns,
		Rows:      table.Rows,
		SizeBytes: record.SizeBytes,
		CreatedAt: record.CreatedAt,
		ExpiresAt: record.ExpiresAt,
	}
	s.mu.Lock()
	cached := s.evictions == generation
	if cached {
		s.cache[fileID] = ds
	}
	s.mu.Unlock()
	s.logger.DebugContext(observability.ContextWithFileID(ctx, fileID), "dataset reloaded from object store", "rows", len(ds.Rows), "cached", cached)
	return ds, nil
}

// Delete removes a dataset together with its artifacts. Objects go first so
// a failed call can be retried; the catalog row is dropped last, after which
// the artifact prefix is swept once more for artifacts registered meanwhile.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	if !session.ValidFileID(fileID) {
		return session.ErrUnknownSession
	}
	record, err := s.catalog.GetDataset(ctx, fileID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.evict(fileID)
			return session.ErrUnknownSession
		}
		return fmt.Errorf("lookup dataset %s: %w", fileID, err)
	}
	return s.remove(ctx, record)
}

// Expire removes a dataset the sweeper found past its expiry.
func (s *Store) Expire(ctx context.Context, record catalog.DatasetRecord) error {
	return s.remove(ctx, record)
}

func (s *Store) remove(ctx context.Context, record catalog.DatasetRecord) error {
	s.evict(record.FileID)

	artifacts, err := s.catalog.ListArtifacts(ctx, record.FileID)
	if err != nil {
		return fmt.Errorf("list artifacts of %s: %w", record.FileID, err)
	}
	for _, artifact := range artifacts {
		if err := s.objects.Delete(ctx, artifact.ObjectKey); err != nil {
			return fmt.Errorf("delete artifact %s: %w", artifact.Token, err)
		}
	}
	if err := s.objects.Delete(ctx, record.ObjectKey); err != nil {
		return fmt.Errorf("delete upload %s: %w", record.FileID, err)
	}
	if _, err := s.catalog.DeleteDataset(ctx, record.FileID); err != nil {
		return fmt.Errorf("unregister dataset %s: %w", record.FileID, err)
	}

	prefix, err := storage.ArtifactPrefix(record.FileID)
	if err != nil {
		return err
	}
	stragglers, err := storage.DeletePrefix(ctx, s.objects, prefix)
	if err != nil {
		return fmt.Errorf("sweep artifacts of %s: %w", record.FileID, err)
	}
	if stragglers > 0 {
		s.logger.InfoContext(observability.ContextWithFileID(ctx, record.FileID), "removed artifacts written during delete", "count", stragglers)
	}
	return nil
}

func (s *Store) CachedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

func (s *Store) evict(fileID string) {
	s.mu.Lock()
	delete(s.cache, fileID)
	s.evictions++
	s.mu.Unlock()
}

func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		return "upload.csv"
	}
	return name
}
