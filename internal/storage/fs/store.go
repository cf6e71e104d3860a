// Package fs stores objects as files below a root directory. Writes go to a
// temporary file that is renamed into place, so readers only ever see
// complete objects.
package fs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/linkreach/linkreach/internal/storage"
)

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: abs}, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	target, normalized, err := s.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return storage.ObjectInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create object dir %q: %w", normalized, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create temp file for %q: %w", normalized, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	hash := md5.New()
	written, err := io.Copy(io.MultiWriter(tmp, hash), body)
	if err != nil {
		_ = tmp.Close()
		return storage.ObjectInfo{}, fmt.Errorf("write object %q: %w", normalized, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return storage.ObjectInfo{}, fmt.Errorf("sync object %q: %w", normalized, err)
	}
	if err := tmp.Close(); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("close object %q: %w", normalized, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("commit object %q: %w", normalized, err)
	}
	committed = true

	stat, err := os.Stat(target)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("stat object %q: %w", normalized, err)
	}
	return storage.ObjectInfo{
		Key:          normalized,
		Size:         written,
		ETag:         hex.EncodeToString(hash.Sum(nil)),
		LastModified: stat.ModTime().UTC(),
	}, nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	target, normalized, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("open object %q: %w", normalized, err)
	}
	return file, nil
}

func (s *Store) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	target, normalized, err := s.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	stat, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.ObjectInfo{}, storage.ErrObjectNotFound
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat object %q: %w", normalized, err)
	}
	return storage.ObjectInfo{Key: normalized, Size: stat.Size(), LastModified: stat.ModTime().UTC()}, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	target, normalized, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object %q: %w", normalized, err)
	}
	// Drop the per-dataset directory once it is empty; failure just means
	// other objects remain.
	_ = os.Remove(filepath.Dir(target))
	return nil
}

// List walks the directory holding prefix. In-flight temp files are skipped.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	prefix = strings.TrimPrefix(strings.TrimSpace(prefix), "/")
	if strings.Contains(prefix, "..") {
		return nil, fmt.Errorf("invalid object prefix: %q", prefix)
	}
	start := s.root
	if dir := path.Dir(prefix + "x"); dir != "." {
		start = filepath.Join(s.root, filepath.FromSlash(dir))
	}

	out := make([]storage.ObjectInfo, 0)
	err := filepath.WalkDir(start, func(current string, entry iofs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrNotExist) {
				return filepath.SkipDir
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, current)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		out = append(out, storage.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("list objects %q: %w", prefix, err)
	}
	return out, nil
}

func (s *Store) Check(_ context.Context) error {
	stat, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("stat storage root: %w", err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("storage root %q is not a directory", s.root)
	}
	return nil
}

func (s *Store) resolve(key string) (string, string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(key, "/"))
	if key == "" {
		return "", "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), cleaned, nil
}
