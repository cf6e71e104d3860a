package linkreachctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunHealthCommand(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "health"}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/api/health" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if !strings.Contains(stdout.String(), `"healthy"`) {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunUploadCommand(t *testing.T) {
	var gotFilename, gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer func() { _ = file.Close() }()
		raw, _ := io.ReadAll(file)
		gotFilename = header.Filename
		gotContent = string(raw)
		_, _ = w.Write([]byte(`{"file_id":"f_1"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "connections.csv")
	if err := os.WriteFile(path, []byte("Name\nAda\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	code := Run(context.Background(), []string{"-base-url", srv.URL, "upload", path}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotFilename != "connections.csv" || gotContent != "Name\nAda\n" {
		t.Fatalf("upload = %q %q", gotFilename, gotContent)
	}
}

func TestRunFilterCommand(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/filter" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"filtered_count":2}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "filter", "f_1", "engineers", "at", "Acme"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got["file_id"] != "f_1" || got["prompt"] != "engineers at Acme" {
		t.Fatalf("payload = %#v", got)
	}
}

func TestRunDownloadCommandWritesFile(t *testing.T) {
	var gotPath, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFormat = r.URL.Query().Get("format")
		_, _ = w.Write([]byte("PAR1data"))
	}))
	defer srv.Close()

	output := filepath.Join(t.TempDir(), "out.parquet")
	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-format", "parquet",
		"-output", output,
		"download", "/api/download/d_abc",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotPath != "/api/download/d_abc" || gotFormat != "parquet" {
		t.Fatalf("request = %s format=%q", gotPath, gotFormat)
	}
	raw, err := os.ReadFile(output)
	if err != nil || string(raw) != "PAR1data" {
		t.Fatalf("output = %q, %v", raw, err)
	}
}

func TestRunResetCommand(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "reset", "f_1"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/session/f_1" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"unknown or expired session","error_code":"UNKNOWN_SESSION"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "reset", "f_1"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "http 404: unknown or expired session") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	for _, args := range [][]string{{"unknown"}, {"filter", "f_1"}, {"upload"}, {}} {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("%v: exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("%v: expected usage output", args)
		}
	}
}
