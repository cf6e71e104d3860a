package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType        string
	ContentDisposition string
}

// ObjectStore holds uploaded sources and download artifacts. Put must be
// atomic: a reader never observes a partially written object.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// List returns the objects whose keys start with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// DeletePrefix removes every object below prefix and reports how many were
// deleted.
func DeletePrefix(ctx context.Context, store ObjectStore, prefix string) (int, error) {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list %q: %w", prefix, err)
	}
	deleted := 0
	for _, object := range objects {
		if err := store.Delete(ctx, object.Key); err != nil && !errors.Is(err, ErrObjectNotFound) {
			return deleted, fmt.Errorf("delete %q: %w", object.Key, err)
		}
		deleted++
	}
	return deleted, nil
}

// HealthChecker is implemented by stores that can report whether their
// backend is reachable.
type HealthChecker interface {
	Check(ctx context.Context) error
}
