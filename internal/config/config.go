// Package config loads service configuration from the environment. A .env
// file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/civiclens/civiclens-go/internal/classify"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"json"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	CORSOrigin  string `env:"CORS_ORIGIN" default:"*"`

	SentimentBackend string `env:"SENTIMENT_BACKEND" default:"remote"`
	IssueBackend     string `env:"ISSUE_BACKEND" default:"remote"`
	NERBackend       string `env:"NER_BACKEND" default:"remote"`

	SentimentURL  string        `env:"SENTIMENT_URL"`
	IssueURL      string        `env:"ISSUE_URL"`
	NERURL        string        `env:"NER_URL"`
	RemoteTimeout time.Duration `env:"REMOTE_TIMEOUT" default:"0s"`

	IssueLabelsFile string `env:"ISSUE_LABELS_FILE"`

	ONNXRuntimeLib   string `env:"ONNX_RUNTIME_LIB"`
	ONNXSentimentDir string `env:"ONNX_SENTIMENT_DIR"`
	ONNXIssueDir     string `env:"ONNX_ISSUE_DIR"`
	ONNXNERDir       string `env:"ONNX_NER_DIR"`

	AnthropicAPIKey     string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel      string `env:"ANTHROPIC_MODEL"`
	AnthropicUseBedrock bool   `env:"ANTHROPIC_USE_BEDROCK" default:"false"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL"`

	TLSDomains  string `env:"TLS_DOMAINS"`
	ACMEEmail   string `env:"ACME_EMAIL"`
	ACMEStaging bool   `env:"ACME_STAGING" default:"true"`

	BackfillSchedule   string `env:"BACKFILL_SCHEDULE" default:"@every 1m"`
	BackfillBatch      int    `env:"BACKFILL_BATCH" default:"20"`
	TokenPurgeSchedule string `env:"TOKEN_PURGE_SCHEDULE" default:"@daily"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat)
	}

	if cfg.RemoteTimeout < 0 {
		return errors.New("REMOTE_TIMEOUT must not be negative")
	}
	if cfg.BackfillBatch <= 0 {
		return errors.New("BACKFILL_BATCH must be positive")
	}

	collaborators := []struct {
		name    string
		backend string
		url     string
		urlKey  string
		onnxDir string
		dirKey  string
	}{
		{"SENTIMENT_BACKEND", cfg.SentimentBackend, cfg.SentimentURL, "SENTIMENT_URL", cfg.ONNXSentimentDir, "ONNX_SENTIMENT_DIR"},
		{"ISSUE_BACKEND", cfg.IssueBackend, cfg.IssueURL, "ISSUE_URL", cfg.ONNXIssueDir, "ONNX_ISSUE_DIR"},
		{"NER_BACKEND", cfg.NERBackend, cfg.NERURL, "NER_URL", cfg.ONNXNERDir, "ONNX_NER_DIR"},
	}
	for _, c := range collaborators {
		b, err := classify.ParseBackend(c.backend)
		if err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		switch b {
		case classify.BackendRemote:
			if c.url == "" {
				return fmt.Errorf("%s is required when %s=remote", c.urlKey, c.name)
			}
		case classify.BackendONNX:
			if c.onnxDir == "" {
				return fmt.Errorf("%s is required when %s=onnx", c.dirKey, c.name)
			}
		case classify.BackendClaude:
			if cfg.AnthropicAPIKey == "" && !cfg.AnthropicUseBedrock {
				return fmt.Errorf("ANTHROPIC_API_KEY is required when %s=claude", c.name)
			}
		case classify.BackendOpenAI:
			if cfg.OpenAIAPIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is required when %s=openai", c.name)
			}
		}
	}

	if cfg.TLSDomains != "" && cfg.ACMEEmail == "" {
		return errors.New("ACME_EMAIL is required when TLS_DOMAINS is set")
	}

	return nil
}

// Domains returns the comma-separated TLS_DOMAINS as a list.
func (c *Config) Domains() []string {
	var out []string
	for _, d := range strings.Split(c.TLSDomains, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// ClassifyOptions maps the configuration onto classifier backend options.
func (c *Config) ClassifyOptions(taxonomy *classify.Taxonomy) classify.Options {
	return classify.Options{
		Sentiment: classify.Backend(c.SentimentBackend),
		Issue:     classify.Backend(c.IssueBackend),
		Entities:  classify.Backend(c.NERBackend),
		Taxonomy:  taxonomy,
		Remote: classify.RemoteConfig{
			SentimentURL: c.SentimentURL,
			IssueURL:     c.IssueURL,
			NERURL:       c.NERURL,
			Timeout:      c.RemoteTimeout,
		},
		ONNX: classify.ONNXConfig{
			RuntimeLib:   c.ONNXRuntimeLib,
			SentimentDir: c.ONNXSentimentDir,
			IssueDir:     c.ONNXIssueDir,
			NERDir:       c.ONNXNERDir,
		},
		Claude: classify.ClaudeConfig{
			APIKey:     c.AnthropicAPIKey,
			Model:      c.AnthropicModel,
			UseBedrock: c.AnthropicUseBedrock,
		},
		OpenAI: classify.OpenAIConfig{
			APIKey:  c.OpenAIAPIKey,
			BaseURL: c.OpenAIBaseURL,
			Model:   c.OpenAIModel,
		},
	}
}

// Taxonomy returns the issue taxonomy from ISSUE_LABELS_FILE or the default.
func (c *Config) Taxonomy() (*classify.Taxonomy, error) {
	if c.IssueLabelsFile == "" {
		return classify.DefaultTaxonomy(), nil
	}
	return classify.LoadTaxonomy(c.IssueLabelsFile)
}
