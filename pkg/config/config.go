// Package config loads the signallab configuration from YAML files or the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Storage backend names
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	LoadConfig() (*Config, error)
}

// Config represents the complete configuration structure
type Config struct {
	Analysis AnalysisConfig `yaml:"analysis" json:"analysis"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// AnalysisConfig holds the segmentation, baseline and fractal feature settings
type AnalysisConfig struct {
	SamplesPerSegment int            `yaml:"samples_per_segment" json:"samples_per_segment"`
	LookbackSegments  int            `yaml:"lookback_segments" json:"lookback_segments"`
	LogFloor          float64        `yaml:"log_floor" json:"log_floor"`
	Workers           int            `yaml:"workers" json:"workers"`
	Baseline          BaselineConfig `yaml:"baseline" json:"baseline"`
}

// BaselineConfig holds the seed and hysteresis thresholds of the baseline estimator
type BaselineConfig struct {
	SeedValue        float64 `yaml:"seed_value" json:"seed_value"`
	SeedSpread       float64 `yaml:"seed_spread" json:"seed_spread"`
	LockMaxRange     float64 `yaml:"lock_max_range" json:"lock_max_range"`
	LockMaxMeanDelta float64 `yaml:"lock_max_mean_delta" json:"lock_max_mean_delta"`
	RejectDelta      float64 `yaml:"reject_delta" json:"reject_delta"`
	MaxStep          float64 `yaml:"max_step" json:"max_step"`
	Alpha            float64 `yaml:"alpha" json:"alpha"`
}

// StorageConfig selects where analysis runs are persisted
type StorageConfig struct {
	Backend     string `yaml:"backend" json:"backend"`
	SQLitePath  string `yaml:"sqlite_path,omitempty" json:"sqlite_path,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty" json:"postgres_dsn,omitempty"`
}

// ServerConfig holds the REST server settings
type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr" json:"listen_addr"`
	HTTPPort    int    `yaml:"http_port" json:"http_port"`
	TLSCertPath string `yaml:"tls_cert_path,omitempty" json:"tls_cert_path,omitempty"`
	TLSKeyPath  string `yaml:"tls_key_path,omitempty" json:"tls_key_path,omitempty"`
	MaxBodyMB   int    `yaml:"max_body_mb" json:"max_body_mb"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Debug      bool   `yaml:"debug" json:"debug"`
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// Default returns the configuration for 30 Hz traces with in-memory storage
func Default() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			SamplesPerSegment: 30,
			LookbackSegments:  2,
			LogFloor:          1e-10,
			Workers:           1,
			Baseline: BaselineConfig{
				SeedValue:        700.0,
				SeedSpread:       40.0,
				LockMaxRange:     40,
				LockMaxMeanDelta: 40,
				RejectDelta:      60,
				MaxStep:          10,
				Alpha:            0.1,
			},
		},
		Storage: StorageConfig{
			Backend: StorageMemory,
		},
		Server: ServerConfig{
			ListenAddr: "0.0.0.0",
			HTTPPort:   8080,
			MaxBodyMB:  64,
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Validate checks the configuration for values the components cannot use
func (c *Config) Validate() error {
	a := c.Analysis
	switch {
	case a.SamplesPerSegment <= 0:
		return fmt.Errorf("%w: analysis.samples_per_segment must be positive", ErrInvalidConfig)
	case a.LookbackSegments < 1:
		return fmt.Errorf("%w: analysis.lookback_segments must be at least 1", ErrInvalidConfig)
	case !(a.LogFloor > 0):
		return fmt.Errorf("%w: analysis.log_floor must be positive", ErrInvalidConfig)
	case a.Workers < 1:
		return fmt.Errorf("%w: analysis.workers must be at least 1", ErrInvalidConfig)
	case a.Baseline.Alpha <= 0 || a.Baseline.Alpha > 1:
		return fmt.Errorf("%w: analysis.baseline.alpha must be in (0, 1]", ErrInvalidConfig)
	case a.Baseline.MaxStep < 0 || a.Baseline.RejectDelta < 0:
		return fmt.Errorf("%w: analysis.baseline thresholds must not be negative", ErrInvalidConfig)
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("%w: storage.sqlite_path is required for the sqlite backend", ErrInvalidConfig)
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: storage.postgres_dsn is required for the postgres backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("%w: server.http_port %d out of range", ErrInvalidConfig, c.Server.HTTPPort)
	}
	if (c.Server.TLSCertPath == "") != (c.Server.TLSKeyPath == "") {
		return fmt.Errorf("%w: server.tls_cert_path and server.tls_key_path must be set together", ErrInvalidConfig)
	}

	return nil
}

// applyEnv overrides deployment settings from SIGNALLAB_* variables
func applyEnv(c *Config) error {
	c.Server.ListenAddr = getEnv("SIGNALLAB_LISTEN_ADDR", c.Server.ListenAddr)
	c.Storage.Backend = getEnv("SIGNALLAB_STORAGE_BACKEND", c.Storage.Backend)

	if port := os.Getenv("SIGNALLAB_HTTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%w: SIGNALLAB_HTTP_PORT=%q is not a number", ErrInvalidConfig, port)
		}
		c.Server.HTTPPort = p
	}

	if dsn := os.Getenv("SIGNALLAB_STORAGE_DSN"); dsn != "" {
		switch c.Storage.Backend {
		case StorageSQLite:
			c.Storage.SQLitePath = dsn
		case StoragePostgres:
			c.Storage.PostgresDSN = dsn
		}
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
