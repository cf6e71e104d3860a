package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkreach/linkreach/internal/config"
	"github.com/linkreach/linkreach/internal/middleware"
	"github.com/linkreach/linkreach/internal/observability"
	"github.com/linkreach/linkreach/internal/packager"
	"github.com/linkreach/linkreach/internal/pipeline"
)

type ReadinessCheck func(ctx context.Context) error

// Pipeline is the upload, filter and download flow the handlers drive.
type Pipeline interface {
	Upload(ctx context.Context, filename string, body []byte) (pipeline.UploadResult, error)
	Filter(ctx context.Context, req pipeline.FilterRequest) (pipeline.FilterOutcome, error)
	Download(ctx context.Context, token, format string) (packager.Download, error)
	Reset(ctx context.Context, fileID string) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Pipeline          Pipeline
	UI                http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "healthy",
			"service": cfg.Service.Name,
			"message": "LinkReach API is running",
		})
	})

	mux.HandleFunc("GET /api/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /api/metrics", promhttp.Handler())

	maxUploadBytes := cfg.Upload.MaxBytes
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		handleUpload(deps, maxUploadBytes, w, r)
	})

	filterLimiter := middleware.RateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimit.FilterRequestsPerSecond,
		Burst:             cfg.RateLimit.FilterBurst,
	})
	mux.Handle("POST /api/filter", filterLimiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleFilter(deps, w, r)
	})))

	mux.HandleFunc("GET /api/download/{token}", func(w http.ResponseWriter, r *http.Request) {
		handleDownload(deps, w, r)
	})
	mux.HandleFunc("DELETE /api/session/{file_id}", func(w http.ResponseWriter, r *http.Request) {
		handleReset(deps, w, r)
	})

	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckCatalogDSN fails when the Postgres catalog is selected without a DSN.
func CheckCatalogDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Catalog.Backend == config.CatalogPostgres && cfg.Catalog.DSN == "" {
			return errors.New("catalog dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		switch cfg.Storage.Backend {
		case config.StorageS3:
			if cfg.Storage.Endpoint == "" {
				return errors.New("object store endpoint is not configured")
			}
			if cfg.Storage.Bucket == "" {
				return errors.New("object store bucket is not configured")
			}
		case config.StorageFS:
			if cfg.Storage.Root == "" {
				return errors.New("object store root is not configured")
			}
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, detail string, retryable bool) {
	writeJSON(w, status, map[string]any{
		"detail":     detail,
		"error_code": code,
		"retryable":  retryable,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
