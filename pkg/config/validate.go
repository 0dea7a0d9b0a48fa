package config

import (
	"fmt"
	"net"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for errors. It validates structural
// settings only; limit values are normalized by ApplyDefaults rather than
// rejected here, and an unknown time zone is not an error because the
// window resolver degrades to UTC at runtime.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q (expected debug, info, warn, or error)", cfg.Logging.Level)
	}

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q (expected text or json)", cfg.Logging.Format)
	}

	if _, _, err := net.SplitHostPort(cfg.Server.ListenAddress); err != nil {
		return fmt.Errorf("invalid server listen address %q: %w", cfg.Server.ListenAddress, err)
	}

	if cfg.Sweep.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Sweep.Schedule); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", cfg.Sweep.Schedule, err)
		}
		if cfg.Sweep.TTL <= 0 {
			return fmt.Errorf("sweep ttl must be positive, got %s", cfg.Sweep.TTL)
		}
	}

	if cfg.Storage.BusyTimeout < 0 {
		return fmt.Errorf("storage busy timeout cannot be negative, got %s", cfg.Storage.BusyTimeout)
	}
	if cfg.Storage.CheckpointInterval < 0 {
		return fmt.Errorf("storage checkpoint interval cannot be negative, got %s", cfg.Storage.CheckpointInterval)
	}

	return nil
}
