// Package config loads the service configuration from a YAML file with
// environment overrides. Secrets (API keys) come only from the
// environment, never from the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Providers ProvidersConfig `yaml:"providers"`
	Index     IndexConfig     `yaml:"index"`
	Database  DatabaseConfig  `yaml:"database"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig configures the S3 image bucket.
type StorageConfig struct {
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// ProvidersConfig configures the enrichment providers. Keys are loaded
// from the environment only.
type ProvidersConfig struct {
	OpenAIKey     string `yaml:"-"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`
	AzureEndpoint string `yaml:"azure_endpoint"`
	AzureKey      string `yaml:"-"`
}

// IndexConfig configures the search index.
type IndexConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig configures the post record store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// IngestConfig configures the bulk ingestion pipeline.
type IngestConfig struct {
	Dir            string        `yaml:"dir"`
	SignedURLTTL   time.Duration `yaml:"signed_url_ttl"`
	PacingEnriched time.Duration `yaml:"pacing_enriched"`
	PacingPlain    time.Duration `yaml:"pacing_plain"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{
			Prefix: "clothing",
		},
		Providers: ProvidersConfig{
			OpenAIModel: "gpt-4o-mini",
		},
		Index:    IndexConfig{Path: "data/posts.bleve"},
		Database: DatabaseConfig{Path: "data/posts.db"},
		Ingest: IngestConfig{
			Dir:            "images",
			SignedURLTTL:   24 * time.Hour,
			PacingEnriched: 400 * time.Millisecond,
			PacingPlain:    100 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the config file at path (missing file falls back to
// defaults), then applies environment overrides. A .env file in the
// working directory is loaded first, matching local development setups.
func Load(path string) (*Config, error) {
	// Best effort; production deployments set real environment variables.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. TAGSTORE_*
// variables mirror the file schema; provider and AWS credentials use
// their conventional names.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "TAGSTORE_ADDR")
	setString(&cfg.Storage.Bucket, "TAGSTORE_BUCKET")
	setString(&cfg.Storage.Prefix, "TAGSTORE_PREFIX")
	setString(&cfg.Storage.Region, "AWS_REGION")
	setString(&cfg.Storage.PublicBaseURL, "TAGSTORE_PUBLIC_BASE_URL")
	setString(&cfg.Index.Path, "TAGSTORE_INDEX_PATH")
	setString(&cfg.Database.Path, "TAGSTORE_DB_PATH")
	setString(&cfg.Ingest.Dir, "TAGSTORE_INGEST_DIR")
	setString(&cfg.Logging.Level, "TAGSTORE_LOG_LEVEL")
	setString(&cfg.Logging.File, "TAGSTORE_LOG_FILE")

	setString(&cfg.Providers.OpenAIKey, "OPENAI_API_KEY")
	setString(&cfg.Providers.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Providers.OpenAIModel, "OPENAI_MODEL")
	setString(&cfg.Providers.AzureEndpoint, "AZURE_VISION_ENDPOINT")
	setString(&cfg.Providers.AzureKey, "AZURE_VISION_KEY")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Addr == "" {
		problems = append(problems, "server.addr must not be empty")
	}
	if c.Ingest.SignedURLTTL <= 0 {
		problems = append(problems, "ingest.signed_url_ttl must be positive")
	}
	if c.Ingest.PacingEnriched < 0 || c.Ingest.PacingPlain < 0 {
		problems = append(problems, "ingest pacing must not be negative")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
