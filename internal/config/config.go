// Package config provides environment-backed configuration for the CaseForge CLI and server.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultModel           = "gpt-5"
	DefaultTemperature     = 1.0
	DefaultModelKey        = "apqc_pcf"
	DefaultStateDir        = ".caseforge"
	DefaultMaxContextChars = 6000
	DefaultPollInterval    = 60
)

// Config holds runtime configuration shared by the pipeline commands and the server.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `validate:"required"`

	// OpenAIAPIKey authenticates against the batch completion service.
	OpenAIAPIKey string `validate:"required"`

	// Model is the completion model submitted with every batch request.
	Model string `validate:"required"`

	// Temperature is recorded in generation metadata for audit.
	Temperature float32 `validate:"gte=0,lte=2"`

	// ModelKey selects the process model variant to operate on.
	ModelKey string `validate:"required"`

	// ServiceAccount is the owner attached to every generated record.
	ServiceAccount string `validate:"required"`

	// StateDir is where per-kind job state and failed-node files live.
	StateDir string `validate:"required"`

	// MaxContextChars bounds the hierarchical context block per request.
	MaxContextChars int `validate:"gt=0"`

	// PollIntervalSeconds is the coarse delay between batch status checks.
	PollIntervalSeconds int `validate:"gt=0"`
}

// Load reads configuration from the environment and validates it.
// Defaults are applied before validation, so only DATABASE_URL and
// OPENAI_API_KEY are strictly required.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:         firstEnv("CASEFORGE_DATABASE_URL", "DATABASE_URL"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		Model:               envOr("OPENAI_MODEL", DefaultModel),
		Temperature:         DefaultTemperature,
		ModelKey:            envOr("CASEFORGE_MODEL_KEY", DefaultModelKey),
		ServiceAccount:      envOr("CASEFORGE_SERVICE_ACCOUNT", "batch@caseforge.local"),
		StateDir:            envOr("CASEFORGE_STATE_DIR", DefaultStateDir),
		MaxContextChars:     DefaultMaxContextChars,
		PollIntervalSeconds: DefaultPollInterval,
	}

	if raw := os.Getenv("OPENAI_TEMPERATURE"); raw != "" {
		t, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid OPENAI_TEMPERATURE %q: %w", raw, err)
		}
		cfg.Temperature = float32(t)
	}
	if raw := os.Getenv("CASEFORGE_MAX_CONTEXT_CHARS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid CASEFORGE_MAX_CONTEXT_CHARS %q: %w", raw, err)
		}
		cfg.MaxContextChars = n
	}
	if raw := os.Getenv("CASEFORGE_POLL_INTERVAL"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid CASEFORGE_POLL_INTERVAL %q: %w", raw, err)
		}
		cfg.PollIntervalSeconds = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
