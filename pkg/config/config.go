package config

import "time"

// Config is the root configuration structure for the token ledger.
type Config struct {
	// Enabled controls quota enforcement. When false, reservations are
	// granted without holds; actual usage is still booked at reconcile
	// time so re-enabling enforcement sees true consumption.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// TimeZone is the IANA zone the daily accounting window is computed
	// in. Blank or unknown zones fall back to UTC.
	// Default: "UTC"
	TimeZone string `yaml:"time_zone"`

	// MaxOutputReserveTokens caps the output portion of a caller's reserve
	// estimate. Advisory: the ledger itself never applies it.
	// Default: 2048
	MaxOutputReserveTokens int64 `yaml:"max_output_reserve_tokens"`

	// BootstrapAdminUserIDs seeds the admin registry on first start. The
	// seeds apply only while the registry is genuinely empty.
	BootstrapAdminUserIDs []string `yaml:"bootstrap_admin_user_ids"`

	// Limits contains the per-scope default daily limits.
	Limits LimitsConfig `yaml:"limits"`

	// Storage configures the ledger store.
	Storage StorageConfig `yaml:"storage"`

	// Sweep configures the stale-reservation sweeper.
	Sweep SweepConfig `yaml:"sweep"`

	// Server configures the status/metrics HTTP listener used by serve.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// LimitsConfig contains per-scope default daily token limits. A nil field
// falls back to the compiled-in default for its scope; negative values are
// treated as malformed and discarded in favor of the default.
type LimitsConfig struct {
	// GlobalDailyTokens is the shared daily budget across everything.
	GlobalDailyTokens *int64 `yaml:"global_daily_tokens"`

	// PerUserDailyTokens is the default daily budget per user.
	PerUserDailyTokens *int64 `yaml:"per_user_daily_tokens"`

	// PerTopicDailyTokens is the default daily budget per topic.
	PerTopicDailyTokens *int64 `yaml:"per_topic_daily_tokens"`
}

// StorageConfig configures the ledger store.
type StorageConfig struct {
	// Path is the SQLite database file. Empty selects the in-memory
	// backend, which loses all state on exit.
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite waits for locks before failing.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// SweepConfig configures the stale-reservation sweeper.
type SweepConfig struct {
	// Schedule is a cron expression for sweep runs. The value "off"
	// disables sweeping; empty selects the default.
	// Default: "*/10 * * * *"
	Schedule string `yaml:"schedule"`

	// TTL is the age past which an unresolved reservation is considered
	// abandoned.
	// Default: 1h
	TTL time.Duration `yaml:"ttl"`
}

// ServerConfig configures the HTTP listener serving /metrics and /status.
type ServerConfig struct {
	// ListenAddress in "host:port" form.
	// Default: "127.0.0.1:9475"
	ListenAddress string `yaml:"listen_address"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format ("text", "json").
	// Default: "text"
	Format string `yaml:"format"`
}

// IsEnabled reports whether enforcement is enabled, defaulting to true
// when the field was never set.
func (c *Config) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}
