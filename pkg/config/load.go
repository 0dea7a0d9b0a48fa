package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention TOKENLEDGER_SECTION_FIELD (e.g., TOKENLEDGER_TIME_ZONE,
// TOKENLEDGER_LIMITS_GLOBAL_DAILY_TOKENS) and always take precedence over
// file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with every default applied, for
// embedders and commands that run without a config file.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// applyEnvOverrides applies environment variable overrides. Unparseable
// values are discarded, keeping the value already in place.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("TOKENLEDGER_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Enabled = &b
		}
	}
	if val := os.Getenv("TOKENLEDGER_TIME_ZONE"); val != "" {
		cfg.TimeZone = val
	}
	if val := os.Getenv("TOKENLEDGER_MAX_OUTPUT_RESERVE_TOKENS"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil && n > 0 {
			cfg.MaxOutputReserveTokens = n
		}
	}
	if val := os.Getenv("TOKENLEDGER_BOOTSTRAP_ADMIN_USER_IDS"); val != "" {
		ids := make([]string, 0)
		for _, id := range strings.Split(val, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		cfg.BootstrapAdminUserIDs = ids
	}

	overrideLimit(&cfg.Limits.GlobalDailyTokens, "TOKENLEDGER_LIMITS_GLOBAL_DAILY_TOKENS")
	overrideLimit(&cfg.Limits.PerUserDailyTokens, "TOKENLEDGER_LIMITS_PER_USER_DAILY_TOKENS")
	overrideLimit(&cfg.Limits.PerTopicDailyTokens, "TOKENLEDGER_LIMITS_PER_TOPIC_DAILY_TOKENS")

	if val := os.Getenv("TOKENLEDGER_STORAGE_PATH"); val != "" {
		cfg.Storage.Path = val
	}
	if val := os.Getenv("TOKENLEDGER_STORAGE_BUSY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			cfg.Storage.BusyTimeout = d
		}
	}

	if val := os.Getenv("TOKENLEDGER_SWEEP_SCHEDULE"); val != "" {
		if val == SweepScheduleOff {
			cfg.Sweep.Schedule = ""
		} else {
			cfg.Sweep.Schedule = val
		}
	}
	if val := os.Getenv("TOKENLEDGER_SWEEP_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			cfg.Sweep.TTL = d
		}
	}

	if val := os.Getenv("TOKENLEDGER_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}

	if val := os.Getenv("TOKENLEDGER_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("TOKENLEDGER_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
}

// overrideLimit parses a non-negative integer limit from the environment.
// Malformed or negative values are discarded, keeping the value already
// resolved from file or defaults.
func overrideLimit(target **int64, envVar string) {
	val := os.Getenv(envVar)
	if val == "" {
		return
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil || n < 0 {
		return
	}
	*target = &n
}
