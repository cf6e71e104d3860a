package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/linkreach/linkreach/internal/storage"
)

func TestPutPrefixesKeyAndTagsOwner(t *testing.T) {
	bucket := newFakeBucket()
	store, err := newStore("bucket-a", "/linkreach/prod/", bucket)
	if err != nil {
		t.Fatalf("newStore() error = %v", err)
	}

	info, err := store.Put(context.Background(), "/datasets/f_1/source.csv", bytes.NewBufferString("abc"), 3, storage.PutOptions{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Key != "datasets/f_1/source.csv" || info.Size != 3 {
		t.Fatalf("Put() info = %+v", info)
	}
	stored, ok := bucket.objects["linkreach/prod/datasets/f_1/source.csv"]
	if !ok {
		t.Fatalf("objects = %v", bucket.keys())
	}
	if stored.opts.ContentType != "text/csv" {
		t.Fatalf("ContentType = %q", stored.opts.ContentType)
	}
	if stored.opts.ContentDisposition != "" {
		t.Fatalf("dataset ContentDisposition = %q", stored.opts.ContentDisposition)
	}
	if stored.opts.UserMetadata[metaFileID] != "f_1" || stored.opts.UserMetadata[metaKind] != "dataset" {
		t.Fatalf("UserMetadata = %v", stored.opts.UserMetadata)
	}
}

func TestPutNamesArtifactDownloads(t *testing.T) {
	bucket := newFakeBucket()
	store, _ := newStore("bucket-a", "", bucket)

	if _, err := store.Put(context.Background(), "artifacts/f_1/d_2.parquet", bytes.NewBufferString("PAR1"), 4, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	opts := bucket.objects["artifacts/f_1/d_2.parquet"].opts
	if opts.ContentType != "application/vnd.apache.parquet" {
		t.Fatalf("ContentType = %q", opts.ContentType)
	}
	if opts.ContentDisposition != `attachment; filename=linkreach_d_2.parquet` {
		t.Fatalf("ContentDisposition = %q", opts.ContentDisposition)
	}

	if _, err := store.Put(context.Background(), "artifacts/f_1/d_3.csv", bytes.NewBufferString("a"), 1, storage.PutOptions{ContentType: "text/plain", ContentDisposition: "inline"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	opts = bucket.objects["artifacts/f_1/d_3.csv"].opts
	if opts.ContentType != "text/plain" || opts.ContentDisposition != "inline" {
		t.Fatalf("caller options overridden: %+v", opts)
	}
}

func TestPutRejectsKeysOutsideLayout(t *testing.T) {
	store, _ := newStore("bucket-a", "", newFakeBucket())
	for _, key := range []string{"../secrets.txt", "datasets/../../etc/passwd", "notes/f_1/x.csv", "source.csv", ""} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("Put(%q) expected layout error", key)
		}
	}
}

func TestListStripsPrefixAndDeletePrefixClearsArtifacts(t *testing.T) {
	bucket := newFakeBucket()
	store, _ := newStore("bucket-a", "tenant", bucket)
	ctx := context.Background()
	for _, key := range []string{"artifacts/f_1/d_2.csv", "artifacts/f_1/d_3.csv", "artifacts/f_10/d_4.csv", "datasets/f_1/source.csv"} {
		if _, err := store.Put(ctx, key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err != nil {
			t.Fatalf("Put(%q) error = %v", key, err)
		}
	}

	listed, err := store.List(ctx, "artifacts/f_1/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 2 || listed[0].Key != "artifacts/f_1/d_2.csv" || listed[1].Key != "artifacts/f_1/d_3.csv" {
		t.Fatalf("List() = %+v", listed)
	}
	if bucket.lastListPrefix != "tenant/artifacts/f_1/" {
		t.Fatalf("list prefix = %q", bucket.lastListPrefix)
	}

	deleted, err := storage.DeletePrefix(ctx, store, "artifacts/f_1/")
	if err != nil {
		t.Fatalf("DeletePrefix() error = %v", err)
	}
	if deleted != 2 {
		t.Fatalf("deleted = %d", deleted)
	}
	if got := bucket.keys(); len(got) != 2 || got[0] != "tenant/artifacts/f_10/d_4.csv" || got[1] != "tenant/datasets/f_1/source.csv" {
		t.Fatalf("remaining = %v", got)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	bucket := newFakeBucket()
	store, _ := newStore("bucket-a", "", bucket)

	if err := store.ensureBucket(context.Background(), "eu-central-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if bucket.createdRegion != "eu-central-1" || !bucket.exists {
		t.Fatalf("bucket not created: region=%q exists=%v", bucket.createdRegion, bucket.exists)
	}
}

func TestCheckReportsMissingBucket(t *testing.T) {
	bucket := newFakeBucket()
	store, _ := newStore("bucket-a", "", bucket)
	if err := store.Check(context.Background()); err == nil {
		t.Fatal("expected missing bucket error")
	}
	bucket.exists = true
	if err := store.Check(context.Background()); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
}

func TestMissingObjectsMapToNotFound(t *testing.T) {
	bucket := newFakeBucket()
	store, _ := newStore("bucket-a", "", bucket)
	ctx := context.Background()

	if _, err := store.Get(ctx, "artifacts/f_1/d_2.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := store.Stat(ctx, "artifacts/f_1/d_2.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() error = %v", err)
	}
	if err := store.Delete(ctx, "artifacts/f_1/d_2.csv"); err != nil {
		t.Fatalf("Delete() of missing object error = %v", err)
	}

	bucket.removeErr = errors.New("access denied")
	if err := store.Delete(ctx, "artifacts/f_1/d_2.csv"); err == nil {
		t.Fatal("expected delete error to surface")
	}
}

func TestMapErrorRecognisesMinioNotFound(t *testing.T) {
	cases := []error{
		minio.ErrorResponse{Code: "NoSuchKey"},
		minio.ErrorResponse{Code: "NoSuchBucket"},
		minio.ErrorResponse{StatusCode: 404},
	}
	for _, err := range cases {
		if !errors.Is(mapError(err), storage.ErrObjectNotFound) {
			t.Fatalf("mapError(%#v) did not map to not found", err)
		}
	}
	other := minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}
	if errors.Is(mapError(other), storage.ErrObjectNotFound) {
		t.Fatal("AccessDenied mapped to not found")
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{raw: "https://minio.example.com", wantHost: "minio.example.com", wantSecure: true},
		{raw: "http://localhost:9000", useSSL: false, wantHost: "localhost:9000"},
		{raw: "localhost:9000", useSSL: true, wantHost: "localhost:9000", wantSecure: true},
	}
	for _, tc := range cases {
		host, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tc.raw, err)
		}
		if host != tc.wantHost || secure != tc.wantSecure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tc.raw, host, secure)
		}
	}
	if _, _, err := parseEndpoint("ftp://minio", false); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
	if _, _, err := parseEndpoint(" ", false); err == nil {
		t.Fatal("expected missing endpoint error")
	}
}

type storedObject struct {
	body []byte
	opts minio.PutObjectOptions
}

type fakeBucket struct {
	objects        map[string]storedObject
	exists         bool
	createdRegion  string
	lastListPrefix string
	removeErr      error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string]storedObject{}}
}

func (f *fakeBucket) keys() []string {
	out := make([]string, 0, len(f.objects))
	for key := range f.objects {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (f *fakeBucket) PutObject(_ context.Context, key string, body io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[key] = storedObject{body: data, opts: opts}
	return minio.UploadInfo{Key: key, Size: int64(len(data)), ETag: "etag", LastModified: time.Now().UTC()}, nil
}

func (f *fakeBucket) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	obj, ok := f.objects[key]
	if !ok {
		return nil, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return io.NopCloser(bytes.NewReader(obj.body)), nil
}

func (f *fakeBucket) StatObject(_ context.Context, key string) (minio.ObjectInfo, error) {
	obj, ok := f.objects[key]
	if !ok {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return minio.ObjectInfo{Key: key, Size: int64(len(obj.body))}, nil
}

func (f *fakeBucket) RemoveObject(_ context.Context, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	if _, ok := f.objects[key]; !ok {
		return minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeBucket) ListObjects(_ context.Context, prefix string) ([]minio.ObjectInfo, error) {
	f.lastListPrefix = prefix
	var out []minio.ObjectInfo
	for _, key := range f.keys() {
		if strings.HasPrefix(key, prefix) {
			out = append(out, minio.ObjectInfo{Key: key, Size: int64(len(f.objects[key].body))})
		}
	}
	return out, nil
}

func (f *fakeBucket) BucketExists(context.Context) (bool, error) {
	return f.exists, nil
}

func (f *fakeBucket) MakeBucket(_ context.Context, region string) error {
	f.createdRegion = region
	f.exists = true
	return nil
}
