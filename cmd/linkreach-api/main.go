package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linkreach/linkreach/internal/api"
	"github.com/linkreach/linkreach/internal/api/uistatic"
	"github.com/linkreach/linkreach/internal/config"
	"github.com/linkreach/linkreach/internal/filestore"
	"github.com/linkreach/linkreach/internal/maintenance"
	"github.com/linkreach/linkreach/internal/observability"
	"github.com/linkreach/linkreach/internal/packager"
	"github.com/linkreach/linkreach/internal/pipeline"
	"github.com/linkreach/linkreach/internal/session"
)

func main() {
	cfg, err := config.LoadFromEnv("linkreach-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, catalogDB, err := openCatalog(ctx, cfg)
	if err != nil {
		logger.Error("failed to open catalog", slog.Any("error", err))
		os.Exit(1)
	}
	if catalogDB != nil {
		defer func() { _ = catalogDB.Close() }()
	}

	objectStore, err := openObjectStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	sessions, err := session.NewManager(repo, session.Config{TTL: cfg.Session.TTL})
	if err != nil {
		logger.Error("failed to initialize sessions", slog.Any("error", err))
		os.Exit(1)
	}
	files, err := filestore.New(filestore.Config{
		MaxBytes:     cfg.Upload.MaxBytes,
		MaxRows:      cfg.Upload.MaxRows,
		SkipPreamble: cfg.Upload.SkipPreamble,
	}, objectStore, repo, sessions, logger)
	if err != nil {
		logger.Error("failed to initialize file store", slog.Any("error", err))
		os.Exit(1)
	}
	pkg, err := packager.New(packager.Config{PreviewRows: cfg.Filter.PreviewRows}, objectStore, repo, sessions, logger)
	if err != nil {
		logger.Error("failed to initialize packager", slog.Any("error", err))
		os.Exit(1)
	}

	generator, generatorCloser, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize filter generator", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = generatorCloser.Close() }()

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize filter engine", slog.Any("error", err))
		os.Exit(1)
	}

	service, err := pipeline.New(pipeline.Config{
		MaxPromptLength:   cfg.Filter.MaxPromptLength,
		SampleRows:        cfg.AI.SampleRows,
		UploadPreviewRows: cfg.Upload.PreviewRows,
	}, files, generator, engine, pkg, logger)
	if err != nil {
		logger.Error("failed to initialize pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	sweeper := &maintenance.Service{
		Catalog: repo,
		Files:   files,
		Config:  maintenance.Config{SweepInterval: cfg.Session.SweepInterval},
		Logger:  logger,
	}
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session sweeper stopped", slog.Any("error", err))
		}
	}()

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:            logger,
		Readiness:         readinessChecks(cfg, repo, objectStore),
		DependencyTimeout: time.Second,
		Pipeline:          service,
		UI:                uistatic.Handler(),
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("storage", cfg.Storage.Backend),
			slog.String("catalog", cfg.Catalog.Backend),
			slog.String("ai_provider", cfg.AI.Provider),
			slog.String("filter_engine", cfg.Filter.Engine),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
