// Package config provides configuration management for Basalt.
package config

import (
	"time"
)

// Config is the root configuration structure for Basalt.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Functions FunctionsConfig `mapstructure:"functions"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Maximum request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Enforce foreign keys
	ForeignKeys bool `mapstructure:"foreign_keys"`

	// Busy timeout for concurrent writers
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// SQLite page cache size (negative means KiB)
	CacheSize int `mapstructure:"cache_size"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// Secret used to verify bearer tokens
	JWTSecret string `mapstructure:"jwt_secret"`
}

// FunctionsConfig holds function runtime settings.
type FunctionsConfig struct {
	// Dir is the directory containing function definitions
	Dir string `mapstructure:"dir"`

	// EnvDir is where per-function dependency environments are materialized
	EnvDir string `mapstructure:"env_dir"`

	// Default execution timeout
	Timeout time.Duration `mapstructure:"timeout"`

	// Global environment variables passed to every function
	Env map[string]string `mapstructure:"env"`

	// Watch enables hot reload of the functions directory
	Watch bool `mapstructure:"watch"`
}

// SchedulerConfig holds scheduler settings.
type SchedulerConfig struct {
	// Enabled toggles the background timing loop
	Enabled bool `mapstructure:"enabled"`

	// MaxConcurrent bounds concurrent scheduled fires
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// IdleWait is the wake interval when no schedule is pending
	IdleWait time.Duration `mapstructure:"idle_wait"`
}

// LedgerConfig holds call ledger settings.
type LedgerConfig struct {
	// Retention is how long terminal invocations are kept
	Retention time.Duration `mapstructure:"retention"`

	// CompressLogsOver compresses captured logs larger than this many bytes
	CompressLogsOver int `mapstructure:"compress_logs_over"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format is "console" or "json"
	Format string `mapstructure:"format"`
}
