package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	catalogpostgres "github.com/linkreach/linkreach/internal/catalog/postgres"
	"github.com/linkreach/linkreach/internal/config"
	"github.com/linkreach/linkreach/internal/filestore"
	"github.com/linkreach/linkreach/internal/maintenance"
	"github.com/linkreach/linkreach/internal/observability"
	"github.com/linkreach/linkreach/internal/session"
	s3store "github.com/linkreach/linkreach/internal/storage/s3"
)

// linkreach-sweeper expires sessions for a fleet of API replicas that share
// the Postgres catalog and S3 bucket. Replicas can then run without their own
// sweeper loop.
func main() {
	cfg, err := config.LoadFromEnv("linkreach-sweeper")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)
	if cfg.Catalog.Backend != config.CatalogPostgres || cfg.Storage.Backend != config.StorageS3 {
		logger.Error("sweeper requires the postgres catalog and s3 storage backends")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := catalogpostgres.Open(ctx, catalogpostgres.DBConfig{
		DSN:              cfg.Catalog.DSN,
		MaxOpenConns:     cfg.Catalog.MaxOpenConns,
		MaxIdleConns:     cfg.Catalog.MaxIdleConns,
		ConnMaxIdleTime:  cfg.Catalog.ConnMaxIdleTime,
		ConnMaxLifetime:  cfg.Catalog.ConnMaxLifetime,
		ApplicationName:  cfg.Service.Name,
		StatementTimeout: cfg.Catalog.StatementTimeout,
		RequireSchema:    true,
	})
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.Storage.Endpoint,
		Region:           cfg.Storage.Region,
		Bucket:           cfg.Storage.Bucket,
		AccessKeyID:      cfg.Storage.AccessKeyID,
		SecretAccessKey:  cfg.Storage.SecretAccessKey,
		UseSSL:           cfg.Storage.UseSSL,
		Prefix:           cfg.Storage.Prefix,
		AutoCreateBucket: cfg.Storage.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	repo := catalogpostgres.NewRepository(db)
	sessions, err := session.NewManager(repo, session.Config{TTL: cfg.Session.TTL})
	if err != nil {
		logger.Error("failed to initialize sessions", slog.Any("error", err))
		os.Exit(1)
	}
	files, err := filestore.New(filestore.Config{MaxBytes: cfg.Upload.MaxBytes, MaxRows: cfg.Upload.MaxRows}, store, repo, sessions, logger)
	if err != nil {
		logger.Error("failed to initialize file store", slog.Any("error", err))
		os.Exit(1)
	}

	svc := &maintenance.Service{
		Catalog: repo,
		Files:   files,
		Config:  maintenance.Config{SweepInterval: cfg.Session.SweepInterval},
		Logger:  logger,
	}

	logger.Info("session sweeper started", slog.Duration("interval", cfg.Session.SweepInterval))
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("session sweeper failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("session sweeper stopped")
}
