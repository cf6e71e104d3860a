package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/linkreach/linkreach/internal/catalog"
	"github.com/linkreach/linkreach/internal/catalog/memory"
)

func TestIdentifiersAreDistinctAndWellFormed(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		id, err := NewFileID()
		if err != nil {
			t.Fatalf("NewFileID() error = %v", err)
		}
		if !ValidFileID(id) || !strings.HasPrefix(id, "f_") {
			t.Fatalf("NewFileID() = %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
	token, err := NewDownloadToken()
	if err != nil {
		t.Fatalf("NewDownloadToken() error = %v", err)
	}
	if !ValidDownloadToken(token) || ValidFileID(token) {
		t.Fatalf("NewDownloadToken() = %q", token)
	}
}

func TestResolveDataset(t *testing.T) {
	repo := memory.NewRepository()
	manager, err := NewManager(repo, Config{TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return clock }
	ctx := context.Background()

	fileID, _ := NewFileID()
	if _, err := repo.CreateDataset(ctx, catalog.CreateDatasetInput{FileID: fileID, ExpiresAt: manager.ExpiresAt()}); err != nil {
		t.Fatalf("CreateDataset() error = %v", err)
	}

	if _, err := manager.ResolveDataset(ctx, fileID); err != nil {
		t.Fatalf("ResolveDataset() error = %v", err)
	}

	missing, _ := NewFileID()
	for _, id := range []string{missing, "", "../etc/passwd", "f_XYZ"} {
		if _, err := manager.ResolveDataset(ctx, id); !errors.Is(err, ErrUnknownSession) {
			t.Fatalf("ResolveDataset(%q) error = %v", id, err)
		}
	}

	clock = clock.Add(time.Hour)
	if _, err := manager.ResolveDataset(ctx, fileID); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("ResolveDataset() after expiry error = %v", err)
	}
}

func TestResolveArtifact(t *testing.T) {
	repo := memory.NewRepository()
	manager, err := NewManager(repo, Config{TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	ctx := context.Background()

	fileID, _ := NewFileID()
	token, _ := NewDownloadToken()
	expires := manager.ExpiresAt()
	if _, err := repo.CreateDataset(ctx, catalog.CreateDatasetInput{FileID: fileID, ExpiresAt: expires}); err != nil {
		t.Fatalf("CreateDataset() error = %v", err)
	}
	if _, err := repo.CreateArtifact(ctx, catalog.CreateArtifactInput{Token: token, FileID: fileID, ExpiresAt: expires}); err != nil {
		t.Fatalf("CreateArtifact() error = %v", err)
	}

	record, err := manager.ResolveArtifact(ctx, token)
	if err != nil {
		t.Fatalf("ResolveArtifact() error = %v", err)
	}
	if record.FileID != fileID {
		t.Fatalf("FileID = %q", record.FileID)
	}
	if _, err := manager.ResolveArtifact(ctx, fileID); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("ResolveArtifact(fileID) error = %v", err)
	}
}

func TestNewManagerValidatesConfig(t *testing.T) {
	if _, err := NewManager(nil, Config{TTL: time.Hour}); err == nil {
		t.Fatal("expected missing repository error")
	}
	if _, err := NewManager(memory.NewRepository(), Config{}); err == nil {
		t.Fatal("expected ttl error")
	}
}
