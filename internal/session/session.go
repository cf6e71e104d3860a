// Package session issues dataset and download identifiers and resolves them
// against the catalog, enforcing expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/linkreach/linkreach/internal/catalog"
)

var ErrUnknownSession = errors.New("unknown or expired session")

const (
	FileIDPrefix        = "f_"
	DownloadTokenPrefix = "d_"
)

var (
	fileIDPattern        = regexp.MustCompile(`^f_[0-9a-f]{32}$`)
	downloadTokenPattern = regexp.MustCompile(`^d_[0-9a-f]{32}$`)
)

// NewFileID returns a random 122-bit identifier for an uploaded dataset.
func NewFileID() (string, error) {
	return newID(FileIDPrefix)
}

// NewDownloadToken returns a random identifier for one filter result.
func NewDownloadToken() (string, error) {
	return newID(DownloadTokenPrefix)
}

func newID(prefix string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate identifier: %w", err)
	}
	return prefix + strings.ReplaceAll(id.String(), "-", ""), nil
}

func ValidFileID(value string) bool {
	return fileIDPattern.MatchString(value)
}

func ValidDownloadToken(value string) bool {
	return downloadTokenPattern.MatchString(value)
}

type Config struct {
	TTL time.Duration
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

type Manager struct {
	catalog catalog.Repository
	ttl     time.Duration
	now     func() time.Time
}

func NewManager(repo catalog.Repository, cfg Config) (*Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("session ttl must be > 0")
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Manager{catalog: repo, ttl: cfg.TTL, now: now}, nil
}

func (m *Manager) Now() time.Time {
	return m.now().UTC()
}

// ExpiresAt is the expiry assigned to a dataset created now. Artifacts
// inherit the expiry of their dataset.
func (m *Manager) ExpiresAt() time.Time {
	return m.Now().Add(m.ttl)
}

func (m *Manager) ResolveDataset(ctx context.Context, fileID string) (catalog.DatasetRecord, error) {
	if !ValidFileID(fileID) {
		return catalog.DatasetRecord{}, ErrUnknownSession
	}
	record, err := m.catalog.GetDataset(ctx, fileID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.DatasetRecord{}, ErrUnknownSession
		}
		return catalog.DatasetRecord{}, fmt.Errorf("resolve dataset: %w", err)
	}
	if !record.ExpiresAt.After(m.Now()) {
		return catalog.DatasetRecord{}, ErrUnknownSession
	}
	return record, nil
}

func (m *Manager) ResolveArtifact(ctx context.Context, token string) (catalog.ArtifactRecord, error) {
	if !ValidDownloadToken(token) {
		return catalog.ArtifactRecord{}, ErrUnknownSession
	}
	record, err := m.catalog.GetArtifact(ctx, token)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.ArtifactRecord{}, ErrUnknownSession
		}
		return catalog.ArtifactRecord{}, fmt.Errorf("resolve artifact: %w", err)
	}
	if !record.ExpiresAt.After(m.Now()) {
		return catalog.ArtifactRecord{}, ErrUnknownSession
	}
	return record, nil
}
