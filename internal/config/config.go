// Package config loads application configuration from a YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment overrides. A double underscore
// separates nesting levels, e.g. HOOKRELAY_SERVER__PORT.
const envPrefix = "HOOKRELAY_"

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	Queue    QueueConfig    `koanf:"queue"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	Migrate         bool          `koanf:"migrate"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// QueueConfig contains queue processing settings.
type QueueConfig struct {
	BatchSize    int           `koanf:"batch_size"`
	PollInterval time.Duration `koanf:"poll_interval"`
	NumWorkers   int           `koanf:"num_workers"`
	StuckTimeout time.Duration `koanf:"stuck_timeout"`
	PauseOffset  time.Duration `koanf:"pause_offset"`

	Retry     RetryConfig     `koanf:"retry"`
	Delivery  DeliveryConfig  `koanf:"delivery"`
	Retention RetentionConfig `koanf:"retention"`
	Health    HealthConfig    `koanf:"health"`
}

// RetryConfig contains retry policy settings.
type RetryConfig struct {
	// Schedule is the backoff per retry count; the last entry repeats.
	Schedule   []time.Duration `koanf:"schedule"`
	MaxRetries int             `koanf:"max_retries"`
}

// DeliveryConfig contains outbound delivery settings.
type DeliveryConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"` // attempts per second, 0 = unlimited
}

// RetentionConfig contains terminal record retention settings.
type RetentionConfig struct {
	MaxAgeDays int           `koanf:"max_age_days"`
	Interval   time.Duration `koanf:"interval"`
}

// HealthConfig contains queue health thresholds. Zero disables a check.
type HealthConfig struct {
	PendingThreshold int64 `koanf:"pending_threshold"`
	FailedThreshold  int64 `koanf:"failed_threshold"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			Migrate:         true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{},
		},
		Queue: QueueConfig{
			BatchSize:    50,
			PollInterval: 15 * time.Second,
			NumWorkers:   5,
			StuckTimeout: 10 * time.Minute,
			PauseOffset:  7 * 24 * time.Hour,
			Retry: RetryConfig{
				Schedule:   []time.Duration{1 * time.Minute, 5 * time.Minute, 30 * time.Minute},
				MaxRetries: 3,
			},
			Delivery: DeliveryConfig{
				Timeout: 10 * time.Second,
			},
			Retention: RetentionConfig{
				MaxAgeDays: 30,
				Interval:   1 * time.Hour,
			},
			Health: HealthConfig{
				PendingThreshold: 1000,
				FailedThreshold:  100,
			},
		},
	}
}

// Load reads configuration from the optional YAML file at path, then applies
// environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps HOOKRELAY_SERVER__PORT to server.port.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Queue.BatchSize <= 0 {
		return errors.New("queue.batch_size must be positive")
	}
	if c.Queue.NumWorkers <= 0 {
		return errors.New("queue.num_workers must be positive")
	}
	if c.Queue.Retry.MaxRetries < 0 {
		return errors.New("queue.retry.max_retries must not be negative")
	}
	if len(c.Queue.Retry.Schedule) == 0 {
		return errors.New("queue.retry.schedule must not be empty")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}

	return nil
}
