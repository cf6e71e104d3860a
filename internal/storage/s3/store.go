// Package s3 keeps uploads and download artifacts in an S3 compatible
// bucket. Only keys in the dataset or artifact layout are accepted; every
// object is tagged with the file id that owns it, and artifacts are stored
// with a Content-Disposition so a presigned or console download keeps a
// sensible file name.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/linkreach/linkreach/internal/storage"
)

const (
	metaFileID = "Linkreach-File-Id"
	metaKind   = "Linkreach-Kind"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// bucketAPI is the part of the minio client the store drives, bound to a
// single bucket.
type bucketAPI interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	StatObject(ctx context.Context, key string) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, key string) error
	ListObjects(ctx context.Context, prefix string) ([]minio.ObjectInfo, error)
	BucketExists(ctx context.Context) (bool, error)
	MakeBucket(ctx context.Context, region string) error
}

type Store struct {
	bucket bucketAPI
	name   string
	layout layout
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	api, err := dialBucket(cfg, name)
	if err != nil {
		return nil, err
	}
	store := &Store{bucket: api, name: name, layout: newLayout(cfg.Prefix)}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(name, prefix string, api bucketAPI) (*Store, error) {
	if api == nil {
		return nil, fmt.Errorf("bucket client is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &Store{bucket: api, name: name, layout: newLayout(prefix)}, nil
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	parsed, objectKey, err := s.layout.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	uploaded, err := s.bucket.PutObject(ctx, objectKey, body, size, putOptions(parsed, opts))
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put %s %q: %w", parsed.Kind, key, mapError(err))
	}
	return storage.ObjectInfo{
		Key:          s.layout.relative(uploaded.Key, key),
		Size:         uploaded.Size,
		ETag:         uploaded.ETag,
		LastModified: uploaded.LastModified,
	}, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	_, objectKey, err := s.layout.resolve(key)
	if err != nil {
		return nil, err
	}
	body, err := s.bucket.GetObject(ctx, objectKey)
	if err != nil {
		if err = mapError(err); errors.Is(err, storage.ErrObjectNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return body, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	_, objectKey, err := s.layout.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.bucket.StatObject(ctx, objectKey)
	if err != nil {
		if err = mapError(err); errors.Is(err, storage.ErrObjectNotFound) {
			return storage.ObjectInfo{}, err
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat %q: %w", key, err)
	}
	return s.objectInfo(info), nil
}

// Delete is idempotent: a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, objectKey, err := s.layout.resolve(key)
	if err != nil {
		return err
	}
	if err := mapError(s.bucket.RemoveObject(ctx, objectKey)); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	listed, err := s.bucket.ListObjects(ctx, s.layout.prefixed(prefix))
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, mapError(err))
	}
	out := make([]storage.ObjectInfo, 0, len(listed))
	for _, info := range listed {
		out = append(out, s.objectInfo(info))
	}
	return out, nil
}

// Check reports whether the bucket is reachable; it backs /api/ready.
func (s *Store) Check(ctx context.Context) error {
	exists, err := s.bucket.BucketExists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.name, err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.name)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.bucket.BucketExists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.name, err)
	}
	if exists {
		return nil
	}
	if err := s.bucket.MakeBucket(ctx, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.name, err)
	}
	return nil
}

func (s *Store) objectInfo(info minio.ObjectInfo) storage.ObjectInfo {
	return storage.ObjectInfo{
		Key:          s.layout.relative(info.Key, info.Key),
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}
}

// putOptions fills in what the caller left empty from the key: the media
// type from the extension and, for artifacts, an attachment name.
func putOptions(key storage.Key, opts storage.PutOptions) minio.PutObjectOptions {
	contentType := opts.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeFor(key.Name)
	}
	disposition := opts.ContentDisposition
	if disposition == "" && key.Kind == storage.KindArtifact {
		disposition = mime.FormatMediaType("attachment", map[string]string{"filename": "linkreach_" + key.Name})
	}
	return minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: disposition,
		UserMetadata: map[string]string{
			metaFileID: key.FileID,
			metaKind:   string(key.Kind),
		},
	}
}

// layout maps storage keys onto bucket keys below an optional prefix.
type layout struct {
	prefix string
}

func newLayout(prefix string) layout {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		prefix = path.Clean(prefix)
	}
	if prefix == "." {
		prefix = ""
	}
	return layout{prefix: prefix}
}

func (l layout) resolve(key string) (storage.Key, string, error) {
	rel := strings.TrimPrefix(strings.TrimSpace(key), "/")
	parsed, err := storage.ParseKey(rel)
	if err != nil {
		return storage.Key{}, "", err
	}
	return parsed, l.prefixed(rel), nil
}

func (l layout) prefixed(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if l.prefix == "" {
		return rel
	}
	return l.prefix + "/" + rel
}

// relative strips the bucket prefix, falling back when the backend does not
// echo a key.
func (l layout) relative(objectKey, fallback string) string {
	if objectKey == "" {
		return strings.TrimPrefix(fallback, "/")
	}
	if l.prefix == "" {
		return objectKey
	}
	return strings.TrimPrefix(objectKey, l.prefix+"/")
}

func dialBucket(cfg Config, bucket string) (*minioBucket, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &minioBucket{client: client, bucket: bucket}, nil
}

func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("s3 endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("endpoint host is required")
	}
	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, useSSL, nil
	}
	return "", false, fmt.Errorf("unsupported endpoint scheme %q", parsed.Scheme)
}

type minioBucket struct {
	client *minio.Client
	bucket string
}

func (m *minioBucket) PutObject(ctx context.Context, key string, body io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return m.client.PutObject(ctx, m.bucket, key, body, size, opts)
}

// GetObject stats before returning so a missing key fails here rather than
// on the first Read.
func (m *minioBucket) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}

func (m *minioBucket) StatObject(ctx context.Context, key string) (minio.ObjectInfo, error) {
	return m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
}

func (m *minioBucket) RemoveObject(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *minioBucket) ListObjects(ctx context.Context, prefix string) ([]minio.ObjectInfo, error) {
	var out []minio.ObjectInfo
	for info := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, info.Err
		}
		out = append(out, info)
	}
	return out, nil
}

func (m *minioBucket) BucketExists(ctx context.Context) (bool, error) {
	return m.client.BucketExists(ctx, m.bucket)
}

func (m *minioBucket) MakeBucket(ctx context.Context, region string) error {
	return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: region})
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	response := minio.ToErrorResponse(err)
	switch {
	case response.Code == "NoSuchKey", response.Code == "NoSuchBucket", response.StatusCode == http.StatusNotFound:
		return storage.ErrObjectNotFound
	}
	return err
}
