package connections

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	APIBaseURL  string
	OutputPath  string
	Rows        int
	Seed        int64
	Preamble    bool
	Drive       bool
	Prompts     []string
	HTTPTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:  "http://localhost:8080",
		OutputPath:  "connections_demo.csv",
		Rows:        250,
		Seed:        time.Now().UTC().UnixNano(),
		Preamble:    true,
		Drive:       false,
		Prompts:     []string{"software engineers at big tech", "recruiters and HR people", "people I connected with in 2024"},
		HTTPTimeout: 60 * time.Second,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "LINKREACH_DEMO_API_URL", &cfg.APIBaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "LINKREACH_DEMO_OUTPUT", &cfg.OutputPath); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "LINKREACH_DEMO_ROWS", &cfg.Rows); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "LINKREACH_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "LINKREACH_DEMO_PREAMBLE", &cfg.Preamble); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "LINKREACH_DEMO_DRIVE", &cfg.Drive); err != nil {
		return Config{}, err
	}
	if raw, ok := lookup("LINKREACH_DEMO_PROMPTS"); ok {
		cfg.Prompts = splitPrompts(raw)
	}
	if err := applyDuration(lookup, "LINKREACH_DEMO_HTTP_TIMEOUT", &cfg.HTTPTimeout); err != nil {
		return Config{}, err
	}

	if cfg.Rows <= 0 {
		return Config{}, fmt.Errorf("LINKREACH_DEMO_ROWS must be > 0")
	}
	if strings.TrimSpace(cfg.OutputPath) == "" {
		return Config{}, fmt.Errorf("LINKREACH_DEMO_OUTPUT is required")
	}
	if cfg.Drive {
		if strings.TrimSpace(cfg.APIBaseURL) == "" {
			return Config{}, fmt.Errorf("LINKREACH_DEMO_API_URL is required when driving the API")
		}
		if len(cfg.Prompts) == 0 {
			return Config{}, fmt.Errorf("LINKREACH_DEMO_PROMPTS must name at least one prompt")
		}
	}
	if cfg.HTTPTimeout <= 0 {
		return Config{}, fmt.Errorf("LINKREACH_DEMO_HTTP_TIMEOUT must be > 0")
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.OutputPath = strings.TrimSpace(cfg.OutputPath)
	return cfg, nil
}

// splitPrompts reads a "|" separated prompt list.
func splitPrompts(raw string) []string {
	out := make([]string, 0, 4)
	for _, part := range strings.Split(raw, "|") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
