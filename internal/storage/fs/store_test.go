package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/linkreach/linkreach/internal/storage"
)

func TestStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	payload := []byte("First Name,Company\nAda,Acme\n")

	info, err := store.Put(ctx, "artifacts/f_1/d_2.csv", bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Size != int64(len(payload)) || info.ETag == "" {
		t.Fatalf("Put() info = %+v", info)
	}
	if _, err := os.Stat(filepath.Join(root, "artifacts", "f_1", "d_2.csv")); err != nil {
		t.Fatalf("object file missing: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(root, "artifacts", "f_1"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}

	reader, err := store.Get(ctx, "artifacts/f_1/d_2.csv")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got, _ := io.ReadAll(reader)
	_ = reader.Close()
	if !bytes.Equal(got, payload) {
		t.Fatalf("Get() = %q", got)
	}

	if err := store.Delete(ctx, "artifacts/f_1/d_2.csv"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Stat(ctx, "artifacts/f_1/d_2.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() after delete error = %v", err)
	}
	if _, err := store.Get(ctx, "artifacts/f_1/d_2.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() after delete error = %v", err)
	}
	if err := store.Check(ctx); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Put(context.Background(), "../escape.csv", bytes.NewReader([]byte("x")), 1, storage.PutOptions{}); err == nil {
		t.Fatal("expected path traversal error")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("boom")
}

func TestPutLeavesNoPartialObjectOnFailure(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := store.Put(context.Background(), "artifacts/f_1/d_3.csv", failingReader{}, 10, storage.PutOptions{}); err == nil {
		t.Fatal("expected write error")
	}
	if _, err := store.Stat(context.Background(), "artifacts/f_1/d_3.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() error = %v, want ErrObjectNotFound", err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, "artifacts", "f_1"))
	if len(entries) != 0 {
		t.Fatalf("left %d files behind", len(entries))
	}
}

func TestListReturnsObjectsBelowPrefix(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"artifacts/f_1/d_2.csv", "artifacts/f_1/d_3.csv", "artifacts/f_10/d_4.csv", "datasets/f_1/source.csv"} {
		if _, err := store.Put(ctx, key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err != nil {
			t.Fatalf("Put(%q) error = %v", key, err)
		}
	}

	objects, err := store.List(ctx, "artifacts/f_1/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 2 || objects[0].Key != "artifacts/f_1/d_2.csv" || objects[1].Key != "artifacts/f_1/d_3.csv" {
		t.Fatalf("List() = %+v", objects)
	}

	missing, err := store.List(ctx, "artifacts/f_99/")
	if err != nil {
		t.Fatalf("List(missing) error = %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("List(missing) = %+v", missing)
	}
	if _, err := store.List(ctx, "../"); err == nil {
		t.Fatal("expected invalid prefix error")
	}
}
