package config

import (
	"time"

	"ledgerhq/tokenledger/pkg/quota"
)

// Default values for configuration fields.
const (
	DefaultTimeZone               = "UTC"
	DefaultMaxOutputReserveTokens = int64(2048)

	DefaultStorageBusyTimeout        = 5 * time.Second
	DefaultStorageCheckpointInterval = 5 * time.Minute

	DefaultSweepSchedule = "*/10 * * * *"
	DefaultSweepTTL      = time.Hour

	// SweepScheduleOff disables the sweeper when set as the schedule.
	SweepScheduleOff = "off"

	DefaultListenAddress = "127.0.0.1:9475"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// ApplyDefaults fills unset fields with default values. Malformed limit
// overrides (negative values) are silently discarded in favor of the
// compiled-in defaults: quota misconfiguration degrades to defaults, it
// never halts the system.
func ApplyDefaults(cfg *Config) {
	if cfg.Enabled == nil {
		enabled := true
		cfg.Enabled = &enabled
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = DefaultTimeZone
	}
	if cfg.MaxOutputReserveTokens <= 0 {
		cfg.MaxOutputReserveTokens = DefaultMaxOutputReserveTokens
	}

	cfg.Limits.GlobalDailyTokens = normalizeLimit(cfg.Limits.GlobalDailyTokens, quota.DefaultGlobalDailyTokens)
	cfg.Limits.PerUserDailyTokens = normalizeLimit(cfg.Limits.PerUserDailyTokens, quota.DefaultPerUserDailyTokens)
	cfg.Limits.PerTopicDailyTokens = normalizeLimit(cfg.Limits.PerTopicDailyTokens, quota.DefaultPerTopicDailyTokens)

	if cfg.Storage.BusyTimeout <= 0 {
		cfg.Storage.BusyTimeout = DefaultStorageBusyTimeout
	}
	if cfg.Storage.CheckpointInterval <= 0 {
		cfg.Storage.CheckpointInterval = DefaultStorageCheckpointInterval
	}

	switch cfg.Sweep.Schedule {
	case "":
		cfg.Sweep.Schedule = DefaultSweepSchedule
	case SweepScheduleOff:
		// Normalized to empty; an empty schedule keeps the sweeper off.
		cfg.Sweep.Schedule = ""
	}
	if cfg.Sweep.TTL <= 0 {
		cfg.Sweep.TTL = DefaultSweepTTL
	}

	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// normalizeLimit accepts a configured override only when it is present and
// non-negative; anything else resolves to the compiled-in default.
func normalizeLimit(configured *int64, fallback int64) *int64 {
	if configured != nil && *configured >= 0 {
		return configured
	}
	return &fallback
}

// LimitDefaults converts the configured per-scope limits into the form the
// ledger consumes. Call after ApplyDefaults.
func (c *Config) LimitDefaults() quota.LimitDefaults {
	d := quota.CompiledLimitDefaults()
	if c.Limits.GlobalDailyTokens != nil {
		d.GlobalDailyTokens = *c.Limits.GlobalDailyTokens
	}
	if c.Limits.PerUserDailyTokens != nil {
		d.PerUserDailyTokens = *c.Limits.PerUserDailyTokens
	}
	if c.Limits.PerTopicDailyTokens != nil {
		d.PerTopicDailyTokens = *c.Limits.PerTopicDailyTokens
	}
	return d
}
