package config

import "time"

// Default configuration values.
const (
	// Scheduler defaults.
	DefaultStorePath     = "scheduled_workflows.json"
	DefaultPollInterval  = time.Minute
	DefaultWatchDebounce = 500 * time.Millisecond

	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8090
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 1024 * 1024 // 1MB

	// Database defaults.
	DefaultDBPath       = "jefe.db"
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Workspace defaults.
	DefaultWorkspaceBaseDir = "workspaces"

	// Pipeline defaults.
	DefaultAgentTimeout   = 10 * time.Minute
	DefaultMaxOutputBytes = 1024 * 1024 // 1MB

	// Runs defaults.
	DefaultRunRetention = 30 * 24 * time.Hour

	// Notify defaults.
	DefaultNotifyMaxAttempts = 5
	DefaultNotifyBaseDelay   = time.Second

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			StorePath:     DefaultStorePath,
			PollInterval:  DefaultPollInterval,
			WatchStore:    true,
			WatchDebounce: DefaultWatchDebounce,
		},
		Server: ServerConfig{
			Enabled:        true,
			Host:           DefaultHost,
			Port:           DefaultPort,
			ReadTimeout:    DefaultReadTimeout,
			WriteTimeout:   DefaultWriteTimeout,
			IdleTimeout:    DefaultIdleTimeout,
			MaxBodySize:    DefaultMaxBodySize,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Path:            DefaultDBPath,
			WALMode:         true,
			CacheSize:       DefaultCacheSize,
			BusyTimeout:     DefaultBusyTimeout,
			ForeignKeys:     true,
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: 0, // No limit
		},
		Workspaces: WorkspacesConfig{
			BaseDir: DefaultWorkspaceBaseDir,
		},
		Pipeline: PipelineConfig{
			AgentTimeout:   DefaultAgentTimeout,
			MaxOutputBytes: DefaultMaxOutputBytes,
		},
		Runs: RunsConfig{
			Retention: DefaultRunRetention,
		},
		Notify: NotifyConfig{
			MaxAttempts: DefaultNotifyMaxAttempts,
			BaseDelay:   DefaultNotifyBaseDelay,
		},
		Logging: LoggingConfig{
			Level:     DefaultLogLevel,
			Format:    DefaultLogFormat,
			Caller:    false,
			Timestamp: true,
		},
	}
}
