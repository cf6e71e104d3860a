package packager

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	catalogmemory "github.com/linkreach/linkreach/internal/catalog/memory"
	"github.com/linkreach/linkreach/internal/dataset"
	"github.com/linkreach/linkreach/internal/filestore"
	"github.com/linkreach/linkreach/internal/session"
	storagememory "github.com/linkreach/linkreach/internal/storage/memory"
)

type fixture struct {
	packager *Packager
	files    *filestore.Store
	objects  *storagememory.Store
	clock    *time.Time
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	objects := storagememory.New()
	repo := catalogmemory.NewRepository()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := fixture{objects: objects, clock: &clock}
	sessions, err := session.NewManager(repo, session.Config{TTL: time.Hour, Clock: func() time.Time { return *f.clock }})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	files, err := filestore.New(filestore.Config{}, objects, repo, sessions, nil)
	if err != nil {
		t.Fatalf("filestore.New() error = %v", err)
	}
	packager, err := New(cfg, objects, repo, sessions, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.files = files
	f.packager = packager
	return f
}

func (f fixture) upload(t *testing.T, body string) dataset.Dataset {
	t.Helper()
	ds, err := f.files.Store(context.Background(), "connections.csv", []byte(body))
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	return ds
}

func readAll(t *testing.T, download Download) []byte {
	t.Helper()
	defer func() { _ = download.Body.Close() }()
	body, err := io.ReadAll(download.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return body
}

func TestPackageWritesCSVArtifact(t *testing.T) {
	f := newFixture(t, Config{PreviewRows: 1})
	ctx := context.Background()
	ds := f.upload(t, "Name,Company\nAda,Acme\nBob,Globex\nCy,Acme\n")
	rows := []dataset.Row{ds.Rows[0], ds.Rows[2]}

	result, err := f.packager.Package(ctx, ds, rows, 0, `Company == "Acme"`)
	if err != nil {
		t.Fatalf("Package() error = %v", err)
	}
	if result.FilteredCount != 2 || result.TotalCount != 3 {
		t.Fatalf("counts = %d/%d", result.FilteredCount, result.TotalCount)
	}
	if len(result.PreviewRows) != 1 || result.PreviewRows[0]["Name"] != "Ada" {
		t.Fatalf("preview = %#v", result.PreviewRows)
	}
	if !session.ValidDownloadToken(result.DownloadToken) {
		t.Fatalf("token = %q", result.DownloadToken)
	}
	if !result.ExpiresAt.Equal(ds.ExpiresAt) {
		t.Fatalf("ExpiresAt = %v, want %v", result.ExpiresAt, ds.ExpiresAt)
	}

	download, err := f.packager.Open(ctx, result.DownloadToken, "")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if download.ContentType != "text/csv" || !strings.HasPrefix(download.Filename, "filtered_results_") || !strings.HasSuffix(download.Filename, ".csv") {
		t.Fatalf("download = %+v", download)
	}
	if got := string(readAll(t, download)); got != "Name,Company\nAda,Acme\nCy,Acme\n" {
		t.Fatalf("artifact = %q", got)
	}
}

func TestPackageZeroMatchesIsHeaderOnly(t *testing.T) {
	f := newFixture(t, Config{})
	ds := f.upload(t, "Name,Company\nAda,Acme\n")

	result, err := f.packager.Package(context.Background(), ds, nil, 0, `Company == "Nobody"`)
	if err != nil {
		t.Fatalf("Package() error = %v", err)
	}
	if result.FilteredCount != 0 || len(result.PreviewRows) != 0 {
		t.Fatalf("result = %+v", result)
	}
	download, err := f.packager.Open(context.Background(), result.DownloadToken, FormatCSV)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := string(readAll(t, download)); got != "Name,Company\n" {
		t.Fatalf("artifact = %q", got)
	}
}

func TestOpenConvertsToParquet(t *testing.T) {
	f := newFixture(t, Config{})
	ds := f.upload(t, "Name,Company\nAda,Acme\nBob,Globex\n")
	result, err := f.packager.Package(context.Background(), ds, ds.Rows, 0, `Company != ""`)
	if err != nil {
		t.Fatalf("Package() error = %v", err)
	}

	download, err := f.packager.Open(context.Background(), result.DownloadToken, FormatParquet)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !strings.HasSuffix(download.Filename, ".parquet") {
		t.Fatalf("Filename = %q", download.Filename)
	}
	body := readAll(t, download)
	file, err := parquet.OpenFile(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if file.NumRows() != 2 {
		t.Fatalf("NumRows() = %d", file.NumRows())
	}
}

func TestOpenRejectsUnknownAndExpired(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if _, err := f.packager.Open(ctx, "d_00000000000000000000000000000000", FormatCSV); !errors.Is(err, session.ErrUnknownSession) {
		t.Fatalf("unknown token error = %v", err)
	}
	if _, err := f.packager.Open(ctx, "../../etc/passwd", FormatCSV); !errors.Is(err, session.ErrUnknownSession) {
		t.Fatalf("malformed token error = %v", err)
	}

	ds := f.upload(t, "Name\nAda\n")
	result, err := f.packager.Package(ctx, ds, ds.Rows, 0, `Name == "Ada"`)
	if err != nil {
		t.Fatalf("Package() error = %v", err)
	}
	if _, err := f.packager.Open(ctx, result.DownloadToken, "xlsx"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("format error = %v", err)
	}

	*f.clock = f.clock.Add(2 * time.Hour)
	if _, err := f.packager.Open(ctx, result.DownloadToken, FormatCSV); !errors.Is(err, session.ErrUnknownSession) {
		t.Fatalf("expired token error = %v", err)
	}
}

func TestPackageForDeletedDataset(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	ds := f.upload(t, "Name\nAda\n")
	if err := f.files.Delete(ctx, ds.FileID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	before := f.objects.Len()

	if _, err := f.packager.Package(ctx, ds, ds.Rows, 0, `Name == "Ada"`); !errors.Is(err, session.ErrUnknownSession) {
		t.Fatalf("Package() error = %v", err)
	}
	if f.objects.Len() != before {
		t.Fatalf("orphaned artifact left behind: %d objects", f.objects.Len())
	}
}
