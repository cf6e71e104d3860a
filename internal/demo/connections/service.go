package connections

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

type Service struct {
	cfg       Config
	log       *slog.Logger
	http      *http.Client
	generator *Generator
}

type uploadResponse struct {
	FileID    string   `json:"file_id"`
	TotalRows int      `json:"total_rows"`
	Columns   []string `json:"columns"`
}

type filterResponse struct {
	FilteredCount int    `json:"filtered_count"`
	TotalCount    int    `json:"total_count"`
	ErrorRows     int    `json:"error_rows"`
	DownloadURL   string `json:"download_url"`
	Expression    string `json:"expression"`
}

type FilterSummary struct {
	Prompt        string
	Expression    string
	FilteredCount int
	TotalCount    int
	DownloadURL   string
}

func NewService(cfg Config, logger *slog.Logger, client *http.Client) (*Service, error) {
	if cfg.Rows <= 0 {
		return nil, fmt.Errorf("row count must be > 0")
	}
	if cfg.Drive && strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return &Service{
		cfg:       cfg,
		log:       logger,
		http:      client,
		generator: NewGenerator(cfg.Seed),
	}, nil
}

// Run writes the demo export and, when driving is enabled, uploads it and
// runs every configured prompt against the API.
func (s *Service) Run(ctx context.Context) error {
	body := bytes.NewBuffer(nil)
	if err := s.generator.WriteExport(body, s.cfg.Rows, s.cfg.Preamble); err != nil {
		return err
	}
	if s.cfg.OutputPath != "" {
		if err := os.WriteFile(s.cfg.OutputPath, body.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write demo export: %w", err)
		}
		s.log.Info("wrote demo connections", slog.String("path", s.cfg.OutputPath), slog.Int("rows", s.cfg.Rows))
	}
	if !s.cfg.Drive {
		return nil
	}
	_, err := s.Drive(ctx, filepath.Base(firstNonEmpty(s.cfg.OutputPath, "connections_demo.csv")), body.Bytes())
	return err
}

// Drive uploads body and filters it once per prompt. A failing prompt is
// logged and skipped so one bad generation does not end the run.
func (s *Service) Drive(ctx context.Context, filename string, body []byte) ([]FilterSummary, error) {
	uploaded, err := s.upload(ctx, filename, body)
	if err != nil {
		return nil, err
	}
	s.log.Info("uploaded demo connections",
		slog.String("file_id", uploaded.FileID),
		slog.Int("total_rows", uploaded.TotalRows),
	)

	summaries := make([]FilterSummary, 0, len(s.cfg.Prompts))
	for _, prompt := range s.cfg.Prompts {
		var response filterResponse
		status, raw, err := s.doJSON(ctx, http.MethodPost, "/api/filter", map[string]string{
			"prompt":  prompt,
			"file_id": uploaded.FileID,
		}, &response)
		if err != nil {
			return summaries, fmt.Errorf("filter request failed: %w", err)
		}
		if status != http.StatusOK {
			s.log.Warn("demo prompt failed",
				slog.String("prompt", prompt),
				slog.Int("status", status),
				slog.String("body", strings.TrimSpace(string(raw))),
			)
			continue
		}
		summary := FilterSummary{
			Prompt:        prompt,
			Expression:    response.Expression,
			FilteredCount: response.FilteredCount,
			TotalCount:    response.TotalCount,
			DownloadURL:   response.DownloadURL,
		}
		summaries = append(summaries, summary)
		s.log.Info("filtered demo connections",
			slog.String("prompt", prompt),
			slog.String("expression", summary.Expression),
			slog.Int("filtered_count", summary.FilteredCount),
			slog.Int("total_count", summary.TotalCount),
			slog.Int("error_rows", response.ErrorRows),
			slog.String("download_url", s.cfg.APIBaseURL+summary.DownloadURL),
		)
	}
	return summaries, nil
}

func (s *Service) upload(ctx context.Context, filename string, content []byte) (uploadResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return uploadResponse{}, err
	}
	if _, err := part.Write(content); err != nil {
		return uploadResponse{}, err
	}
	if err := writer.Close(); err != nil {
		return uploadResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIBaseURL+"/api/upload", body)
	if err != nil {
		return uploadResponse{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("upload request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return uploadResponse{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return uploadResponse{}, fmt.Errorf("upload request status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return uploadResponse{}, fmt.Errorf("decode upload response: %w", err)
	}
	return out, nil
}

func (s *Service) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) (int, []byte, error) {
	var payload io.Reader
	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	if resp.StatusCode == http.StatusOK && responseBody != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, responseBody); err != nil {
			return resp.StatusCode, body, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, body, nil
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
