// Package memory is the default catalog for a single API process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/linkreach/linkreach/internal/catalog"
)

type Repository struct {
	mu        sync.RWMutex
	datasets  map[string]catalog.DatasetRecord
	artifacts map[string]catalog.ArtifactRecord
	now       func() time.Time
}

func NewRepository() *Repository {
	return &Repository{
		datasets:  map[string]catalog.DatasetRecord{},
		artifacts: map[string]catalog.ArtifactRecord{},
		now:       time.Now,
	}
}

func (r *Repository) HealthCheck(context.Context) error {
	return nil
}

func (r *Repository) CreateDataset(_ context.Context, in catalog.CreateDatasetInput) (catalog.DatasetRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.datasets[in.FileID]; exists {
		return catalog.DatasetRecord{}, fmt.Errorf("create dataset: file id %q already exists", in.FileID)
	}
	record := catalog.DatasetRecord{
		FileID:    in.FileID,
		Filename:  in.Filename,
		ObjectKey: in.ObjectKey,
		Columns:   append([]string(nil), in.Columns...),
		TotalRows: in.TotalRows,
		SizeBytes: in.SizeBytes,
		CreatedAt: r.now().UTC(),
		ExpiresAt: in.ExpiresAt,
	}
	r.datasets[in.FileID] = record
	return record, nil
}

func (r *Repository) GetDataset(_ context.Context, fileID string) (catalog.DatasetRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.datasets[fileID]
	if !ok {
		return catalog.DatasetRecord{}, catalog.ErrNotFound
	}
	return record, nil
}

// DeleteDataset removes the dataset and, like the Postgres foreign key,
// every artifact that belongs to it.
func (r *Repository) DeleteDataset(_ context.Context, fileID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.datasets[fileID]; !ok {
		return false, nil
	}
	delete(r.datasets, fileID)
	for token, artifact := range r.artifacts {
		if artifact.FileID == fileID {
			delete(r.artifacts, token)
		}
	}
	return true, nil
}

func (r *Repository) ListExpiredDatasets(_ context.Context, now time.Time, limit int) ([]catalog.DatasetRecord, error) {
	r.mu.RLock()
	out := make([]catalog.DatasetRecord, 0)
	for _, record := range r.datasets {
		if !record.ExpiresAt.After(now) {
			out = append(out, record)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) CountLiveDatasets(_ context.Context, now time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, record := range r.datasets {
		if record.ExpiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

func (r *Repository) CreateArtifact(_ context.Context, in catalog.CreateArtifactInput) (catalog.ArtifactRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.datasets[in.FileID]; !ok {
		return catalog.ArtifactRecord{}, catalog.ErrNotFound
	}
	if _, exists := r.artifacts[in.Token]; exists {
		return catalog.ArtifactRecord{}, fmt.Errorf("create artifact: token %q already exists", in.Token)
	}
	record := catalog.ArtifactRecord{
		Token:      in.Token,
		FileID:     in.FileID,
		ObjectKey:  in.ObjectKey,
		Format:     in.Format,
		RowCount:   in.RowCount,
		SizeBytes:  in.SizeBytes,
		Expression: in.Expression,
		CreatedAt:  r.now().UTC(),
		ExpiresAt:  in.ExpiresAt,
	}
	r.artifacts[in.Token] = record
	return record, nil
}

func (r *Repository) GetArtifact(_ context.Context, token string) (catalog.ArtifactRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.artifacts[token]
	if !ok {
		return catalog.ArtifactRecord{}, catalog.ErrNotFound
	}
	return record, nil
}

func (r *Repository) ListArtifacts(_ context.Context, fileID string) ([]catalog.ArtifactRecord, error) {
	r.mu.RLock()
	out := make([]catalog.ArtifactRecord, 0)
	for _, record := range r.artifacts {
		if record.FileID == fileID {
			out = append(out, record)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
