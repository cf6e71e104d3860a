package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageS3     = "s3"

	CatalogMemory   = "memory"
	CatalogPostgres = "postgres"

	EngineNative = "native"
	EngineDuckDB = "duckdb"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderStatic = "static"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Session       SessionConfig
	Upload        UploadConfig
	Filter        FilterConfig
	AI            AIConfig
	Storage       StorageConfig
	Catalog       CatalogConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

type UploadConfig struct {
	MaxBytes     int64
	MaxRows      int
	SkipPreamble bool
	PreviewRows  int
}

type FilterConfig struct {
	PreviewRows     int
	ErrorThreshold  float64
	Engine          string
	MaxPromptLength int
}

type AIConfig struct {
	Provider         string
	BaseURL          string
	APIKey           string
	Model            string
	Temperature      float64
	Timeout          time.Duration
	SampleRows       int
	MaxAttempts      int
	StaticExpression string
}

type StorageConfig struct {
	Backend          string
	Root             string
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type CatalogConfig struct {
	Backend         string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	// StatementTimeout bounds every catalog statement server side; zero
	// leaves the server default.
	StatementTimeout time.Duration
}

type RateLimitConfig struct {
	FilterRequestsPerSecond float64
	FilterBurst             int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("LINKREACH_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid LINKREACH_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	steps := []func() error{
		func() error { return applyString(lookup, "LINKREACH_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "LINKREACH_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "LINKREACH_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "LINKREACH_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "LINKREACH_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyDuration(lookup, "LINKREACH_SESSION_TTL", &cfg.Session.TTL) },
		func() error { return applyDuration(lookup, "LINKREACH_SESSION_SWEEP_INTERVAL", &cfg.Session.SweepInterval) },
		func() error { return applyInt64(lookup, "LINKREACH_UPLOAD_MAX_BYTES", &cfg.Upload.MaxBytes) },
		func() error { return applyInt(lookup, "LINKREACH_UPLOAD_MAX_ROWS", &cfg.Upload.MaxRows) },
		func() error { return applyBool(lookup, "LINKREACH_UPLOAD_SKIP_PREAMBLE", &cfg.Upload.SkipPreamble) },
		func() error { return applyInt(lookup, "LINKREACH_UPLOAD_PREVIEW_ROWS", &cfg.Upload.PreviewRows) },
		func() error { return applyInt(lookup, "LINKREACH_PREVIEW_ROWS", &cfg.Filter.PreviewRows) },
		func() error { return applyFloat(lookup, "LINKREACH_FILTER_ERROR_THRESHOLD", &cfg.Filter.ErrorThreshold) },
		func() error { return applyString(lookup, "LINKREACH_FILTER_ENGINE", &cfg.Filter.Engine) },
		func() error { return applyInt(lookup, "LINKREACH_FILTER_MAX_PROMPT_LENGTH", &cfg.Filter.MaxPromptLength) },
		func() error { return applyString(lookup, "LINKREACH_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "LINKREACH_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "LINKREACH_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "LINKREACH_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "LINKREACH_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "LINKREACH_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyInt(lookup, "LINKREACH_AI_SAMPLE_ROWS", &cfg.AI.SampleRows) },
		func() error { return applyInt(lookup, "LINKREACH_AI_MAX_ATTEMPTS", &cfg.AI.MaxAttempts) },
		func() error { return applyString(lookup, "LINKREACH_AI_STATIC_EXPRESSION", &cfg.AI.StaticExpression) },
		func() error { return applyString(lookup, "LINKREACH_STORAGE_BACKEND", &cfg.Storage.Backend) },
		func() error { return applyString(lookup, "LINKREACH_STORAGE_ROOT", &cfg.Storage.Root) },
		func() error { return applyString(lookup, "LINKREACH_STORAGE_ENDPOINT", &cfg.Storage.Endpoint) },
		func() error { return applyString(lookup, "LINKREACH_STORAGE_REGION", &cfg.Storage.Region) },
		func() error { return applyString(lookup, "LINKREACH_STORAGE_BUCKET", &cfg.Storage.Bucket) },
		func() error { return applyString(lookup, "LINKREACH_STORAGE_ACCESS_KEY", &cfg.Storage.AccessKeyID) },
		func() error { return applyString(lookup, "LINKREACH_STORAGE_SECRET_KEY", &cfg.Storage.SecretAccessKey) },
		func() error { return applyBool(lookup, "LINKREACH_STORAGE_USE_SSL", &cfg.Storage.UseSSL) },
		func() error { return applyString(lookup, "LINKREACH_STORAGE_PREFIX", &cfg.Storage.Prefix) },
		func() error { return applyBool(lookup, "LINKREACH_STORAGE_AUTO_CREATE_BUCKET", &cfg.Storage.AutoCreateBucket) },
		func() error { return applyString(lookup, "LINKREACH_CATALOG_BACKEND", &cfg.Catalog.Backend) },
		func() error { return applyString(lookup, "LINKREACH_CATALOG_DSN", &cfg.Catalog.DSN) },
		func() error { return applyInt(lookup, "LINKREACH_CATALOG_MAX_OPEN_CONNS", &cfg.Catalog.MaxOpenConns) },
		func() error { return applyInt(lookup, "LINKREACH_CATALOG_MAX_IDLE_CONNS", &cfg.Catalog.MaxIdleConns) },
		func() error { return applyDuration(lookup, "LINKREACH_CATALOG_CONN_MAX_IDLE_TIME", &cfg.Catalog.ConnMaxIdleTime) },
		func() error { return applyDuration(lookup, "LINKREACH_CATALOG_CONN_MAX_LIFETIME", &cfg.Catalog.ConnMaxLifetime) },
		func() error {
			return applyDuration(lookup, "LINKREACH_CATALOG_STATEMENT_TIMEOUT", &cfg.Catalog.StatementTimeout)
		},
		func() error {
			return applyFloat(lookup, "LINKREACH_RATELIMIT_FILTER_RPS", &cfg.RateLimit.FilterRequestsPerSecond)
		},
		func() error { return applyInt(lookup, "LINKREACH_RATELIMIT_FILTER_BURST", &cfg.RateLimit.FilterBurst) },
		func() error { return applyBool(lookup, "LINKREACH_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "LINKREACH_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
	cfg.Catalog.Backend = strings.ToLower(cfg.Catalog.Backend)
	cfg.Filter.Engine = strings.ToLower(cfg.Filter.Engine)
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("LINKREACH_SESSION_TTL must be > 0")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("LINKREACH_SESSION_SWEEP_INTERVAL must be > 0")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("LINKREACH_UPLOAD_MAX_BYTES must be > 0")
	}
	if c.Upload.MaxRows <= 0 {
		return fmt.Errorf("LINKREACH_UPLOAD_MAX_ROWS must be > 0")
	}
	if c.Filter.PreviewRows <= 0 {
		return fmt.Errorf("LINKREACH_PREVIEW_ROWS must be > 0")
	}
	if c.Filter.ErrorThreshold < 0 || c.Filter.ErrorThreshold > 1 {
		return fmt.Errorf("LINKREACH_FILTER_ERROR_THRESHOLD must be within [0, 1]")
	}
	if c.Filter.MaxPromptLength <= 0 {
		return fmt.Errorf("LINKREACH_FILTER_MAX_PROMPT_LENGTH must be > 0")
	}
	if c.AI.MaxAttempts <= 0 {
		return fmt.Errorf("LINKREACH_AI_MAX_ATTEMPTS must be > 0")
	}
	switch c.Filter.Engine {
	case EngineNative, EngineDuckDB:
	default:
		return fmt.Errorf("invalid LINKREACH_FILTER_ENGINE: %q", c.Filter.Engine)
	}
	switch c.AI.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderStatic:
	default:
		return fmt.Errorf("invalid LINKREACH_AI_PROVIDER: %q", c.AI.Provider)
	}
	switch c.Storage.Backend {
	case StorageMemory, StorageFS, StorageS3:
	default:
		return fmt.Errorf("invalid LINKREACH_STORAGE_BACKEND: %q", c.Storage.Backend)
	}
	switch c.Catalog.Backend {
	case CatalogMemory:
	case CatalogPostgres:
		if c.Catalog.DSN == "" {
			return fmt.Errorf("LINKREACH_CATALOG_DSN is required for the postgres catalog")
		}
	default:
		return fmt.Errorf("invalid LINKREACH_CATALOG_BACKEND: %q", c.Catalog.Backend)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "linkreach-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Session: SessionConfig{
			TTL:           time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Upload: UploadConfig{
			MaxBytes:     10 << 20,
			MaxRows:      200_000,
			SkipPreamble: true,
			PreviewRows:  5,
		},
		Filter: FilterConfig{
			PreviewRows:     50,
			ErrorThreshold:  0.5,
			Engine:          EngineNative,
			MaxPromptLength: 500,
		},
		AI: AIConfig{
			Provider:    ProviderOpenAI,
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0,
			Timeout:     15 * time.Second,
			SampleRows:  5,
			MaxAttempts: 2,
		},
		Storage: StorageConfig{
			Backend:          StorageMemory,
			Root:             "",
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "linkreach",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Catalog: CatalogConfig{
			Backend:          CatalogMemory,
			DSN:              "",
			MaxOpenConns:     10,
			MaxIdleConns:     10,
			ConnMaxIdleTime:  5 * time.Minute,
			ConnMaxLifetime:  30 * time.Minute,
			StatementTimeout: 15 * time.Second,
		},
		RateLimit: RateLimitConfig{
			FilterRequestsPerSecond: 1,
			FilterBurst:             5,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.AI.Provider = ProviderStatic
		cfg.RateLimit.FilterRequestsPerSecond = 0
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Storage.UseSSL = true
		cfg.Storage.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
