package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/linkreach/linkreach/internal/api"
	"github.com/linkreach/linkreach/internal/catalog"
	catalogmemory "github.com/linkreach/linkreach/internal/catalog/memory"
	catalogpostgres "github.com/linkreach/linkreach/internal/catalog/postgres"
	"github.com/linkreach/linkreach/internal/config"
	"github.com/linkreach/linkreach/internal/executor"
	duckdbengine "github.com/linkreach/linkreach/internal/executor/duckdb"
	"github.com/linkreach/linkreach/internal/filtergen"
	"github.com/linkreach/linkreach/internal/predicate"
	"github.com/linkreach/linkreach/internal/storage"
	fsstore "github.com/linkreach/linkreach/internal/storage/fs"
	storagememory "github.com/linkreach/linkreach/internal/storage/memory"
	s3store "github.com/linkreach/linkreach/internal/storage/s3"
)

func openObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		return storagememory.New(), nil
	case config.StorageFS:
		return fsstore.New(cfg.Storage.Root)
	case config.StorageS3:
		return s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.Storage.Endpoint,
			Region:           cfg.Storage.Region,
			Bucket:           cfg.Storage.Bucket,
			AccessKeyID:      cfg.Storage.AccessKeyID,
			SecretAccessKey:  cfg.Storage.SecretAccessKey,
			UseSSL:           cfg.Storage.UseSSL,
			Prefix:           cfg.Storage.Prefix,
			AutoCreateBucket: cfg.Storage.AutoCreateBucket,
		})
	}
	return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
}

// openCatalog returns the repository and, for Postgres, the pool the caller
// must close.
func openCatalog(ctx context.Context, cfg config.Config) (catalog.Repository, *sql.DB, error) {
	switch cfg.Catalog.Backend {
	case config.CatalogMemory:
		return catalogmemory.NewRepository(), nil, nil
	case config.CatalogPostgres:
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
			return nil, nil, err
		}
		return catalogpostgres.NewRepository(db), db, nil
	}
	return nil, nil, fmt.Errorf("unsupported catalog backend %q", cfg.Catalog.Backend)
}

// buildGenerator picks the provider and wraps it with parsing, validation and
// retry. The returned closer releases provider clients.
func buildGenerator(ctx context.Context, cfg config.Config, logger *slog.Logger) (filtergen.Generator, io.Closer, error) {
	var (
		provider filtergen.Generator
		closer   io.Closer = nopCloser{}
	)
	switch cfg.AI.Provider {
	case config.ProviderOpenAI:
		generator, err := filtergen.NewOpenAIGenerator(filtergen.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
		})
		if err != nil {
			return nil, nil, err
		}
		provider = generator
	case config.ProviderGemini:
		generator, err := filtergen.NewGeminiGenerator(ctx, filtergen.GeminiConfig{
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
		})
		if err != nil {
			return nil, nil, err
		}
		provider = generator
		closer = generator
	case config.ProviderStatic:
		if cfg.AI.StaticExpression == "" {
			return nil, nil, fmt.Errorf("LINKREACH_AI_STATIC_EXPRESSION is required for the static provider")
		}
		provider = filtergen.StaticGenerator{Expression: cfg.AI.StaticExpression}
	default:
		return nil, nil, fmt.Errorf("unsupported ai provider %q", cfg.AI.Provider)
	}

	validating, err := filtergen.NewValidating(provider, filtergen.ValidatingConfig{
		Provider:    cfg.AI.Provider,
		Timeout:     cfg.AI.Timeout,
		MaxAttempts: cfg.AI.MaxAttempts,
		Limits:      predicate.DefaultLimits(),
	}, logger)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return validating, closer, nil
}

func buildEngine(cfg config.Config, logger *slog.Logger) (executor.Engine, error) {
	switch cfg.Filter.Engine {
	case config.EngineNative:
		return executor.NewNativeEngine(cfg.Filter.ErrorThreshold, logger), nil
	case config.EngineDuckDB:
		return duckdbengine.NewEngine(cfg.Filter.ErrorThreshold, logger), nil
	}
	return nil, fmt.Errorf("unsupported filter engine %q", cfg.Filter.Engine)
}

func readinessChecks(cfg config.Config, repo catalog.Repository, objects storage.ObjectStore) api.ReadinessCheck {
	checks := []api.ReadinessCheck{
		api.CheckCatalogDSN(cfg),
		api.CheckObjectStoreConfig(cfg),
		repo.HealthCheck,
	}
	if checker, ok := objects.(storage.HealthChecker); ok {
		checks = append(checks, checker.Check)
	}
	return api.CombineReadinessChecks(checks...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
