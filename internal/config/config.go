// Package config provides configuration management for Jefe.
package config

import (
	"time"
)

// Config is the root configuration structure for Jefe.
type Config struct {
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Workspaces WorkspacesConfig `mapstructure:"workspaces"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Runs       RunsConfig       `mapstructure:"runs"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SchedulerConfig holds dispatch loop and schedule table settings.
type SchedulerConfig struct {
	// Path to the JSON schedule table
	StorePath string `mapstructure:"store_path"`

	// How often the dispatch loop checks for due workflows
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// Reload the table when another process rewrites it
	WatchStore bool `mapstructure:"watch_store"`

	// Quiet period before a detected change triggers a reload
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// ServerConfig holds dashboard HTTP server settings.
type ServerConfig struct {
	// Serve the dashboard API alongside the dispatch loop
	Enabled bool `mapstructure:"enabled"`

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

	// Origins allowed to call the API from a browser (use ["*"] for all)
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds run history database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Cache size in KB (negative for KB, positive for pages)
	CacheSize int `mapstructure:"cache_size"`

	// Busy timeout in milliseconds
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Enable foreign keys
	ForeignKeys bool `mapstructure:"foreign_keys"`

	// Maximum open connections
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// Maximum idle connections
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// Connection max lifetime
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// WorkspacesConfig holds run workspace settings.
type WorkspacesConfig struct {
	// Directory workspace templates resolve under
	BaseDir string `mapstructure:"base_dir"`
}

// PipelineConfig holds orchestrator agent pipeline settings.
type PipelineConfig struct {
	// Path to the YAML agent definitions file (empty for built-ins only)
	AgentsFile string `mapstructure:"agents_file"`

	// Per-agent execution timeout
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`

	// Truncate captured agent output beyond this many bytes
	MaxOutputBytes int `mapstructure:"max_output_bytes"`
}

// RunsConfig holds run history retention settings.
type RunsConfig struct {
	// Delete run records older than this (0 disables pruning)
	Retention time.Duration `mapstructure:"retention"`

	// Write pruned records to gzip archives in this directory before
	// deleting (empty discards them)
	ArchiveDir string `mapstructure:"archive_dir"`
}

// NotifyConfig holds webhook notification settings.
type NotifyConfig struct {
	// POST run outcomes to this URL (empty disables notifications)
	WebhookURL string `mapstructure:"webhook_url"`

	// Give up delivery after this many attempts
	MaxAttempts int `mapstructure:"max_attempts"`

	// First retry delay, doubled per attempt
	BaseDelay time.Duration `mapstructure:"base_delay"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`

	// Include caller info
	Caller bool `mapstructure:"caller"`

	// Include timestamp
	Timestamp bool `mapstructure:"timestamp"`

	// Output file (empty for stdout)
	Output string `mapstructure:"output"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return s.Host + ":" + itoa(s.Port)
}

// itoa converts int to string without importing strconv.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	negative := i < 0
	if negative {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if negative {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
