// Package config provides configuration management for ProcSight.
// It loads settings from environment variables with the PROCSIGHT_ prefix
// and provides sensible defaults for all configuration options. An optional
// YAML file (via the -config flag) overlays the environment values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the ProcSight service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Inbox     InboxConfig     `yaml:"inbox"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port              int     `yaml:"port"`                // Server port (default: 8484)
	Host              string  `yaml:"host"`                // Server host (default: 127.0.0.1)
	RateLimitPerSec   float64 `yaml:"rate_limit_per_sec"`  // Requests per second per server (default: 50)
	RateLimitBurst    int     `yaml:"rate_limit_burst"`    // Burst allowance (default: 100)
	ShutdownTimeoutMS int     `yaml:"shutdown_timeout_ms"` // Graceful shutdown timeout (default: 10000)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Storage engine: postgres, sqlite (default: sqlite)
	PostgresDSN string `yaml:"postgres_dsn"` // Postgres connection string
	SQLitePath  string `yaml:"sqlite_path"`  // SQLite database path (default: ./data/procsight.db)
}

// EmbeddingConfig contains embedding backend configuration.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`   // Embedding API URL (default: http://localhost:11434)
	Model     string `yaml:"model"`      // Embedding model name (default: all-minilm)
	TimeoutMS int    `yaml:"timeout_ms"` // Per-request timeout (default: 30000)
	Workers   int    `yaml:"workers"`    // Concurrent embedding batches (default: 4)
}

// IngestConfig contains pipeline tuning knobs.
type IngestConfig struct {
	ChunkSize      int   `yaml:"chunk_size"`       // Chunk window in characters (default: 500)
	ChunkOverlap   int   `yaml:"chunk_overlap"`    // Overlap between chunks (default: 100)
	EventBatchSize int   `yaml:"event_batch_size"` // Events per embedding/persistence batch (default: 100)
	ChunkBatchSize int   `yaml:"chunk_batch_size"` // Chunks per embedding/persistence batch (default: 50)
	MaxUploadMB    int   `yaml:"max_upload_mb"`    // Upload size cap in MB (default: 50)
	TimeoutMS      int64 `yaml:"timeout_ms"`       // Per-ingestion timeout (default: 300000)
}

// InboxConfig contains the filesystem inbox watcher configuration.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"` // Watch a directory for drop-in uploads (default: false)
	Path    string `yaml:"path"`    // Inbox directory (default: ./inbox)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the PROCSIGHT_ prefix.
func LoadConfig() (*Config, error) {
	return buildBaseConfig(), nil
}

// LoadConfigFile loads the environment-based configuration, then overlays
// values from a YAML file. File values win over environment values; fields
// absent from the file keep their environment/default values.
func LoadConfigFile(path string) (*Config, error) {
	cfg := buildBaseConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints that cannot be repaired with a
// default value.
func (c *Config) Validate() error {
	if c.Storage.Engine != "postgres" && c.Storage.Engine != "sqlite" {
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: PROCSIGHT_POSTGRES_DSN is required for the postgres engine")
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("config: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	return nil
}

// IngestTimeout returns the per-ingestion timeout as a duration.
func (c *Config) IngestTimeout() time.Duration {
	return time.Duration(c.Ingest.TimeoutMS) * time.Millisecond
}

// EmbeddingTimeout returns the per-request embedding timeout as a duration.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown timeout as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutMS) * time.Millisecond
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvInt("PROCSIGHT_PORT", 8484),
			Host:              getEnv("PROCSIGHT_HOST", "127.0.0.1"),
			RateLimitPerSec:   getEnvFloat("PROCSIGHT_RATE_LIMIT_PER_SEC", 50),
			RateLimitBurst:    getEnvInt("PROCSIGHT_RATE_LIMIT_BURST", 100),
			ShutdownTimeoutMS: getEnvInt("PROCSIGHT_SHUTDOWN_TIMEOUT_MS", 10000),
		},
		Storage: StorageConfig{
			Engine:      getEnv("PROCSIGHT_STORAGE_ENGINE", "sqlite"),
			PostgresDSN: getEnv("PROCSIGHT_POSTGRES_DSN", ""),
			SQLitePath:  getEnv("PROCSIGHT_SQLITE_PATH", "./data/procsight.db"),
		},
		Embedding: EmbeddingConfig{
			BaseURL:   getEnv("PROCSIGHT_EMBEDDING_URL", "http://localhost:11434"),
			Model:     getEnv("PROCSIGHT_EMBEDDING_MODEL", "all-minilm"),
			TimeoutMS: getEnvInt("PROCSIGHT_EMBEDDING_TIMEOUT_MS", 30000),
			Workers:   getEnvInt("PROCSIGHT_EMBEDDING_WORKERS", 4),
		},
		Ingest: IngestConfig{
			ChunkSize:      getEnvInt("PROCSIGHT_CHUNK_SIZE", 500),
			ChunkOverlap:   getEnvInt("PROCSIGHT_CHUNK_OVERLAP", 100),
			EventBatchSize: getEnvInt("PROCSIGHT_EVENT_BATCH_SIZE", 100),
			ChunkBatchSize: getEnvInt("PROCSIGHT_CHUNK_BATCH_SIZE", 50),
			MaxUploadMB:    getEnvInt("PROCSIGHT_MAX_UPLOAD_MB", 50),
			TimeoutMS:      int64(getEnvInt("PROCSIGHT_INGEST_TIMEOUT_MS", 300000)),
		},
		Inbox: InboxConfig{
			Enabled: getEnvBool("PROCSIGHT_INBOX_ENABLED", false),
			Path:    getEnv("PROCSIGHT_INBOX_PATH", "./inbox"),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" as true and "false", "0", "no" as
// false (case-insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
