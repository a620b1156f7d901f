package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server"`

	// Database configures entity persistence.
	Database DatabaseConfig `yaml:"database"`

	// Output configures artifact generation.
	Output OutputConfig `yaml:"output"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures Prometheus metrics.
	Metrics MetricsConfig `yaml:"metrics"`

	// Cache configures the UI config cache.
	Cache CacheConfig `yaml:"cache"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address the API listens on.
	ListenAddress string `yaml:"listen_address" validate:"required"`

	// ReadTimeout bounds request header and body reads.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" validate:"required"`
}

// OutputConfig configures artifact emission.
type OutputConfig struct {
	// Root is the directory artifacts are written under.
	Root string `yaml:"root" validate:"required"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level sets the minimum log level.
	Level string `yaml:"level" validate:"oneof=trace debug info warn error fatal"`

	// Format specifies the log format (console, json).
	Format string `yaml:"format" validate:"oneof=console json"`

	// Output specifies where logs are written (stdout, stderr, file path).
	Output string `yaml:"output"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	Enabled bool `yaml:"enabled"`

	// Namespace is the metrics namespace prefix.
	Namespace string `yaml:"namespace"`
}

// CacheConfig configures the UI config cache.
type CacheConfig struct {
	// TTL is how long a cached namespace view stays fresh.
	TTL time.Duration `yaml:"ttl"`

	// CleanupInterval is how often expired entries are purged.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:   ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "lamina.db",
		},
		Output: OutputConfig{
			Root: "output",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "lamina",
		},
		Cache: CacheConfig{
			TTL:             30 * time.Second,
			CleanupInterval: time.Minute,
		},
	}
}

// Load reads the configuration from a YAML file, applying defaults for
// anything the file leaves unset. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("invalid configuration: cache ttl must be positive")
	}
	return nil
}
