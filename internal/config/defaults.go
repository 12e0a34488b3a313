package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8090
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 10 * 1024 * 1024 // 10MB

	// Database defaults.
	DefaultDBPath       = "basalt.db"
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Functions defaults.
	DefaultFunctionsDir    = "functions"
	DefaultEnvDir          = ".basalt/envs"
	DefaultFunctionTimeout = 30 * time.Second

	// Scheduler defaults.
	DefaultSchedulerMaxConcurrent = 8
	DefaultSchedulerIdleWait      = time.Minute

	// Ledger defaults.
	DefaultLedgerRetention    = 30 * 24 * time.Hour
	DefaultCompressLogsOver   = 4096
	DefaultRetentionSweepEvery = time.Hour

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		Database: DatabaseConfig{
			Path:         DefaultDBPath,
			WALMode:      true,
			ForeignKeys:  true,
			BusyTimeout:  DefaultBusyTimeout,
			CacheSize:    DefaultCacheSize,
			MaxOpenConns: DefaultMaxOpenConns,
			MaxIdleConns: DefaultMaxIdleConns,
		},
		Functions: FunctionsConfig{
			Dir:     DefaultFunctionsDir,
			EnvDir:  DefaultEnvDir,
			Timeout: DefaultFunctionTimeout,
			Watch:   true,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			MaxConcurrent: DefaultSchedulerMaxConcurrent,
			IdleWait:      DefaultSchedulerIdleWait,
		},
		Ledger: LedgerConfig{
			Retention:        DefaultLedgerRetention,
			CompressLogsOver: DefaultCompressLogsOver,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
