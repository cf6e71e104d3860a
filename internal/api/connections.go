package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/linkreach/linkreach/internal/dataset"
	"github.com/linkreach/linkreach/internal/pipeline"
)

const (
	defaultMaxUploadBytes = 10 << 20
	multipartOverhead     = 1 << 20
	multipartMemory       = 8 << 20
	maxFilterBodyBytes    = 64 << 10
)

type uploadResponse struct {
	Success     bool          `json:"success"`
	Message     string        `json:"message"`
	FileID      string        `json:"file_id"`
	Filename    string        `json:"filename"`
	TotalRows   int           `json:"total_rows"`
	Columns     []string      `json:"columns"`
	PreviewData []dataset.Row `json:"preview_data"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

type filterRequest struct {
	Prompt string `json:"prompt"`
	FileID string `json:"file_id"`
}

type filterResponse struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	FileID        string        `json:"file_id"`
	FilteredCount int           `json:"filtered_count"`
	TotalCount    int           `json:"total_count"`
	ErrorRows     int           `json:"error_rows"`
	PreviewData   []dataset.Row `json:"preview_data"`
	DownloadURL   string        `json:"download_url"`
	Expression    string        `json:"expression"`
	Explanation   string        `json:"explanation,omitempty"`
	ExpiresAt     time.Time     `json:"expires_at"`
}

func handleUpload(deps Dependencies, maxBytes int64, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline is not configured", false)
		return
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", fmt.Sprintf("upload exceeds %d bytes", maxBytes), false)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "expected a multipart form with a file field", false)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "file is required", false)
		return
	}
	defer func() { _ = file.Close() }()

	body, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "read uploaded file failed", false)
		return
	}

	result, err := deps.Pipeline.Upload(r.Context(), header.Filename, body)
	if err != nil {
		writeDomainError(r.Context(), deps, w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:     true,
		Message:     result.Message,
		FileID:      result.FileID,
		Filename:    result.Filename,
		TotalRows:   result.TotalRows,
		Columns:     result.Columns,
		PreviewData: nonNilRows(result.PreviewRows),
		ExpiresAt:   result.ExpiresAt,
	})
}

func handleFilter(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline is not configured", false)
		return
	}

	var req filterRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFilterBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON payload: "+err.Error(), false)
		return
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "request body must contain a single JSON object", false)
		return
	}

	outcome, err := deps.Pipeline.Filter(r.Context(), pipeline.FilterRequest{Prompt: req.Prompt, FileID: req.FileID})
	if err != nil {
		writeDomainError(r.Context(), deps, w, err)
		return
	}
	writeJSON(w, http.StatusOK, filterResponse{
		Success:       true,
		Message:       outcome.Message,
		FileID:        outcome.FileID,
		FilteredCount: outcome.FilteredCount,
		TotalCount:    outcome.TotalCount,
		ErrorRows:     outcome.ErrorRows,
		PreviewData:   nonNilRows(outcome.PreviewRows),
		DownloadURL:   "/api/download/" + outcome.DownloadToken,
		Expression:    outcome.Expression,
		Explanation:   outcome.Explanation,
		ExpiresAt:     outcome.ExpiresAt,
	})
}

func handleDownload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline is not configured", false)
		return
	}

	download, err := deps.Pipeline.Download(r.Context(), r.PathValue("token"), r.URL.Query().Get("format"))
	if err != nil {
		writeDomainError(r.Context(), deps, w, err)
		return
	}
	defer func() { _ = download.Body.Close() }()

	w.Header().Set("Content-Type", download.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": download.Filename}))
	if download.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(download.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, download.Body); err != nil && deps.Logger != nil {
		deps.Logger.WarnContext(r.Context(), "download interrupted", "filename", download.Filename, "error", err)
	}
}

func handleReset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "pipeline is not configured", false)
		return
	}
	if err := deps.Pipeline.Reset(r.Context(), r.PathValue("file_id")); err != nil {
		writeDomainError(r.Context(), deps, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNilRows(rows []dataset.Row) []dataset.Row {
	if rows == nil {
		return []dataset.Row{}
	}
	return rows
}
