package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"ledgerhq/tokenledger/pkg/config"
	"ledgerhq/tokenledger/pkg/logging"
	"ledgerhq/tokenledger/pkg/quota"
	"ledgerhq/tokenledger/pkg/quota/storage"
)

// loadConfig reads the configured file, falling back to pure defaults when
// the default config path does not exist (so one-shot commands work against
// a fresh database without any file).
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		if !rootCmd.PersistentFlags().Changed("config") {
			return config.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("config file %q does not exist", cfgFile)
	}
	return config.LoadConfigWithEnvOverrides(cfgFile)
}

// openBackend opens the configured storage backend.
func openBackend(cfg *config.Config) (storage.Backend, error) {
	if cfg.Storage.Path == "" {
		return storage.NewMemoryBackend(), nil
	}
	return storage.NewSQLiteBackendWithConfig(storage.SQLiteBackendConfig{
		DBPath:             cfg.Storage.Path,
		BusyTimeout:        cfg.Storage.BusyTimeout,
		CheckpointInterval: cfg.Storage.CheckpointInterval,
	})
}

// newLedger builds a ledger from configuration. Metrics are attached only
// by serve; one-shot commands run without them.
func newLedger(cfg *config.Config, backend storage.Backend, metrics *quota.Metrics) *quota.Ledger {
	return quota.NewLedger(backend, quota.Options{
		Enabled:  cfg.IsEnabled(),
		Defaults: cfg.LimitDefaults(),
		Metrics:  metrics,
		Logger:   slog.Default(),
	})
}

// initLogging configures the process-wide slog default from config, with
// the --verbose flag forcing debug level.
func initLogging(cfg *config.Config) {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if _, err := logging.Setup(logging.Config{
		Level:  level,
		Format: cfg.Logging.Format,
	}); err != nil {
		// Config validation already vetted both values; fall back to the
		// stock defaults rather than failing the command.
		slog.Warn("failed to configure logging", "error", err)
	}
}

// parseScope validates a --scope flag value.
func parseScope(s string) (quota.Scope, error) {
	switch quota.Scope(s) {
	case quota.ScopeGlobal, quota.ScopeUser, quota.ScopeTopic:
		return quota.Scope(s), nil
	default:
		return "", fmt.Errorf("invalid scope %q (expected global, user, or topic)", s)
	}
}

// requireAdmin verifies the --actor user may perform a gated change.
func requireAdmin(ctx context.Context, ledger *quota.Ledger, actor string) error {
	if actor == "" {
		return fmt.Errorf("--actor is required for this command")
	}
	ok, err := ledger.IsAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%q: %w", actor, quota.ErrNotAdmin)
	}
	return nil
}
