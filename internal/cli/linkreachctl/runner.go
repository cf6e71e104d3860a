package linkreachctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type apiRequest struct {
	method      string
	path        string
	body        io.Reader
	contentType string
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("linkreachctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "LinkReach API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")
	output := fs.String("output", "", "download: write the file here instead of stdout")
	format := fs.String("format", "csv", "download: csv or parquet")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	operands := fs.Args()[1:]
	var (
		req apiRequest
		err error
	)
	switch command {
	case "health":
		req = apiRequest{method: http.MethodGet, path: "/api/health"}
	case "ready":
		req = apiRequest{method: http.MethodGet, path: "/api/ready"}
	case "upload":
		if len(operands) != 1 {
			return usageError(stderr, "upload needs exactly one CSV path")
		}
		req, err = uploadRequest(operands[0])
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "upload: %v\n", err)
			return 1
		}
	case "filter":
		if len(operands) < 2 {
			return usageError(stderr, "filter needs a file id and a prompt")
		}
		payload, _ := json.Marshal(map[string]string{
			"file_id": operands[0],
			"prompt":  strings.Join(operands[1:], " "),
		})
		req = apiRequest{method: http.MethodPost, path: "/api/filter", body: bytes.NewReader(payload), contentType: "application/json"}
	case "download":
		if len(operands) != 1 {
			return usageError(stderr, "download needs a token or download url")
		}
		req = apiRequest{method: http.MethodGet, path: downloadPath(operands[0], *format)}
	case "reset":
		if len(operands) != 1 {
			return usageError(stderr, "reset needs a file id")
		}
		req = apiRequest{method: http.MethodDelete, path: "/api/session/" + url.PathEscape(operands[0])}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req, endpoint)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, errorDetail(responseBody))
		return 1
	}

	if command == "download" {
		return writeDownload(stdout, stderr, *output, responseBody)
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func uploadRequest(path string) (apiRequest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return apiRequest{}, err
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return apiRequest{}, err
	}
	if _, err := part.Write(content); err != nil {
		return apiRequest{}, err
	}
	if err := writer.Close(); err != nil {
		return apiRequest{}, err
	}
	return apiRequest{method: http.MethodPost, path: "/api/upload", body: body, contentType: writer.FormDataContentType()}, nil
}

// downloadPath accepts either a bare token or the download_url returned by
// the filter endpoint.
func downloadPath(tokenOrURL, format string) string {
	token := strings.TrimSpace(tokenOrURL)
	if idx := strings.LastIndex(token, "/"); idx >= 0 {
		token = token[idx+1:]
	}
	path := "/api/download/" + url.PathEscape(token)
	if format != "" && format != "csv" {
		path += "?format=" + url.QueryEscape(format)
	}
	return path
}

func doRequest(ctx context.Context, client *http.Client, r apiRequest, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, r.body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func writeDownload(stdout, stderr io.Writer, output string, body []byte) int {
	if output == "" {
		_, _ = stdout.Write(body)
		return 0
	}
	if err := os.WriteFile(output, body, 0o644); err != nil {
		_, _ = fmt.Fprintf(stderr, "write %s: %v\n", output, err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "wrote %d bytes to %s\n", len(body), output)
	return 0
}

func errorDetail(raw []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(raw))
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func usageError(w io.Writer, message string) int {
	_, _ = fmt.Fprintf(w, "%s\n\n", message)
	writeUsage(w)
	return 2
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: linkreachctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                     GET /api/health")
	_, _ = fmt.Fprintln(w, "  ready                      GET /api/ready")
	_, _ = fmt.Fprintln(w, "  upload <file.csv>          POST /api/upload")
	_, _ = fmt.Fprintln(w, "  filter <file_id> <prompt>  POST /api/filter")
	_, _ = fmt.Fprintln(w, "  download <token|url>       GET /api/download/{token}")
	_, _ = fmt.Fprintln(w, "  reset <file_id>            DELETE /api/session/{file_id}")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
