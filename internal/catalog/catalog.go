// Package catalog records which datasets and download artifacts exist and
// when they expire. Bytes live in the object store; the catalog is the
// source of truth for whether an identifier resolves.
package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("catalog: not found")

type Repository interface {
	HealthCheck(ctx context.Context) error
	CreateDataset(ctx context.Context, in CreateDatasetInput) (DatasetRecord, error)
	GetDataset(ctx context.Context, fileID string) (DatasetRecord, error)
	DeleteDataset(ctx context.Context, fileID string) (bool, error)
	ListExpiredDatasets(ctx context.Context, now time.Time, limit int) ([]DatasetRecord, error)
	CountLiveDatasets(ctx context.Context, now time.Time) (int, error)
	CreateArtifact(ctx context.Context, in CreateArtifactInput) (ArtifactRecord, error)
	GetArtifact(ctx context.Context, token string) (ArtifactRecord, error)
	ListArtifacts(ctx context.Context, fileID string) ([]ArtifactRecord, error)
}

type DatasetRecord struct {
	FileID    string
	Filename  string
	ObjectKey string
	Columns   []string
	TotalRows int
	SizeBytes int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type ArtifactRecord struct {
	Token      string
	FileID     string
	ObjectKey  string
	Format     string
	RowCount   int
	SizeBytes  int64
	Expression string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

type CreateDatasetInput struct {
	FileID    string
	Filename  string
	ObjectKey string
	Columns   []string
	TotalRows int
	SizeBytes int64
	ExpiresAt time.Time
}

type CreateArtifactInput struct {
	Token      string
	FileID     string
	ObjectKey  string
	Format     string
	RowCount   int
	SizeBytes  int64
	Expression string
	ExpiresAt  time.Time
}
