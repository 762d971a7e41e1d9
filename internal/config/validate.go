package config

import (
	"fmt"
	"strings"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateScheduler(&cfg.Scheduler)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validatePipeline(&cfg.Pipeline)...)
	errs = append(errs, validateRuns(&cfg.Runs)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateScheduler(cfg *SchedulerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.StorePath == "" {
		errs = append(errs, ValidationError{
			Field:   "scheduler.store_path",
			Message: "is required",
		})
	}

	if cfg.PollInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.poll_interval",
			Message: "must be positive",
		})
	}

	if cfg.PollInterval > 0 && cfg.PollInterval < time.Second {
		errs = append(errs, ValidationError{
			Field:   "scheduler.poll_interval",
			Message: "warning: values below 1s waste CPU on an idle table",
		})
	}

	if cfg.WatchDebounce < 0 {
		errs = append(errs, ValidationError{
			Field:   "scheduler.watch_debounce",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return errs
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.write_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxBodySize < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_size",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateDatabase(cfg *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "database.path",
			Message: "is required",
		})
	}

	if cfg.MaxOpenConns < 0 {
		errs = append(errs, ValidationError{
			Field:   "database.max_open_conns",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxIdleConns < 0 {
		errs = append(errs, ValidationError{
			Field:   "database.max_idle_conns",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validatePipeline(cfg *PipelineConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.AgentTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.agent_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxOutputBytes < 0 {
		errs = append(errs, ValidationError{
			Field:   "pipeline.max_output_bytes",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateRuns(cfg *RunsConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Retention < 0 {
		errs = append(errs, ValidationError{
			Field:   "runs.retention",
			Message: "must be non-negative (0 disables pruning)",
		})
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch cfg.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", cfg.Level),
		})
	}

	switch cfg.Format {
	case "json", "console", "":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q (json or console)", cfg.Format),
		})
	}

	return errs
}
