// Package config loads pipeline configuration from an optional YAML file
// overlaid with environment variables. Environment always wins, so the same
// binary runs unchanged inside the workflow engine and on a laptop.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Source   StoreConfig    `yaml:"source"`
	Target   StoreConfig    `yaml:"target"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Export   ExportConfig   `yaml:"export"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StoreConfig identifies one of the two relational stores.
type StoreConfig struct {
	Name string `yaml:"name"` // used in logs, metrics and export filenames
	DSN  string `yaml:"dsn"`
}

type PipelineConfig struct {
	BatchSize              int           `yaml:"batch_size"`
	MaxAttempts            int           `yaml:"max_attempts"`
	InitialBackoff         time.Duration `yaml:"initial_backoff"`
	StoreTimeout           time.Duration `yaml:"store_timeout"`
	ContinueOnBatchFailure bool          `yaml:"continue_on_batch_failure"`
}

type ExportConfig struct {
	Dir       string `yaml:"dir"`
	BucketURL string `yaml:"bucket_url"` // optional gocloud bucket for artifact copies
}

type ServerConfig struct {
	Address string `yaml:"address"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Source: StoreConfig{Name: "source"},
		Target: StoreConfig{Name: "target"},
		Pipeline: PipelineConfig{
			BatchSize:              1000,
			MaxAttempts:            3,
			InitialBackoff:         time.Second,
			StoreTimeout:           30 * time.Second,
			ContinueOnBatchFailure: false,
		},
		Export: ExportConfig{Dir: "./exports"},
		Server: ServerConfig{Address: ":8090"},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variable overrides, in that order.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MustLoad is Load for main(); it exits on error.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	return cfg
}

// Validate checks the parts of the configuration every mode needs.
func (c Config) Validate() error {
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline batch_size must be >= 1, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline max_attempts must be >= 1, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.InitialBackoff <= 0 {
		return fmt.Errorf("pipeline initial_backoff must be positive, got %s", c.Pipeline.InitialBackoff)
	}
	if c.Pipeline.StoreTimeout <= 0 {
		return fmt.Errorf("pipeline store_timeout must be positive, got %s", c.Pipeline.StoreTimeout)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Source.Name = getenvDefault("SOURCE_NAME", cfg.Source.Name)
	cfg.Source.DSN = getenvDefault("SOURCE_DATABASE_URL", cfg.Source.DSN)
	cfg.Target.Name = getenvDefault("TARGET_NAME", cfg.Target.Name)
	cfg.Target.DSN = getenvDefault("TARGET_DATABASE_URL", cfg.Target.DSN)

	cfg.Pipeline.BatchSize = getenvInt("BATCH_SIZE", cfg.Pipeline.BatchSize)
	cfg.Pipeline.MaxAttempts = getenvInt("MAX_ATTEMPTS", cfg.Pipeline.MaxAttempts)
	cfg.Pipeline.InitialBackoff = getenvDuration("INITIAL_BACKOFF", cfg.Pipeline.InitialBackoff)
	cfg.Pipeline.StoreTimeout = getenvDuration("STORE_TIMEOUT", cfg.Pipeline.StoreTimeout)
	if v := os.Getenv("CONTINUE_ON_BATCH_FAILURE"); v != "" {
		cfg.Pipeline.ContinueOnBatchFailure = v == "true" || v == "1"
	}

	cfg.Export.Dir = getenvDefault("EXPORT_DIR", cfg.Export.Dir)
	cfg.Export.BucketURL = getenvDefault("EXPORT_BUCKET_URL", cfg.Export.BucketURL)

	cfg.Server.Address = getenvDefault("SERVER_ADDRESS", cfg.Server.Address)

	cfg.Logging.Format = getenvDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
