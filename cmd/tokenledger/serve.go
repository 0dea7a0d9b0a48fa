package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"ledgerhq/tokenledger/pkg/config"
	"ledgerhq/tokenledger/pkg/quota"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ledger service",
	Long: `Start the ledger service with the specified configuration.

The service runs the stale-reservation sweeper, watches the config file
for limit-default changes, and serves Prometheus metrics on /metrics plus
a read-only bucket snapshot endpoint on /status.

Examples:
  # Start with default config
  tokenledger serve

  # Start with custom config
  tokenledger serve --config /etc/tokenledger/config.yaml

  # Validate config without starting
  tokenledger serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Logging.Level = serveFlags.logLevel
	}

	initLogging(cfg)

	if serveFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backend, err := openBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.Close()

	metrics := quota.NewMetrics()
	ledger := newLedger(cfg, backend, metrics)

	if err := ledger.EnsureBootstrap(ctx, cfg.BootstrapAdminUserIDs); err != nil {
		return fmt.Errorf("failed to bootstrap admin registry: %w", err)
	}

	sweeper := quota.NewSweeper(ledger, cfg.Sweep.Schedule, cfg.Sweep.TTL)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	defer sweeper.Stop()

	startConfigWatch(ctx, ledger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", statusHandler(ledger, cfg))

	server := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("ledger service listening",
			"address", cfg.Server.ListenAddress,
			"storage", storageDescription(cfg),
			"enabled", cfg.IsEnabled(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// startConfigWatch hot-reloads limit defaults when the config file
// changes. Stored per-bucket overrides are unaffected. Watch failures are
// logged, not fatal: a ledger that cannot watch its config still enforces
// the config it started with.
func startConfigWatch(ctx context.Context, ledger *quota.Ledger) {
	watcher, err := config.NewFileWatcher(cfgFile, slog.Default())
	if err != nil {
		slog.Warn("config watching disabled", "error", err)
		return
	}

	go func() {
		err := watcher.Watch(ctx, func() error {
			reloaded, err := config.LoadConfigWithEnvOverrides(cfgFile)
			if err != nil {
				return err
			}
			ledger.UpdateDefaults(reloaded.LimitDefaults())
			return nil
		})
		if err != nil {
			slog.Warn("config watcher exited", "error", err)
		}
	}()
}

// statusHandler returns bucket snapshots for the current window:
// GET /status?scope=user&key=u1
func statusHandler(ledger *quota.Ledger, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, err := parseScope(r.URL.Query().Get("scope"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		key := r.URL.Query().Get("key")
		if scope == quota.ScopeGlobal && key == "" {
			key = quota.GlobalKey
		}
		if key == "" {
			http.Error(w, "key is required", http.StatusBadRequest)
			return
		}

		window := quota.ResolveWindow(cfg.TimeZone)
		snap, err := ledger.Snapshot(r.Context(), quota.Bucket{Scope: scope, Key: key}, window)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"scope":     snap.Bucket.Scope,
			"key":       snap.Bucket.Key,
			"window":    snap.Window.ID,
			"limit":     snap.Limit,
			"used":      snap.Used,
			"reserved":  snap.Reserved,
			"remaining": snap.Remaining,
		})
	}
}

func storageDescription(cfg *config.Config) string {
	if cfg.Storage.Path == "" {
		return "memory"
	}
	return cfg.Storage.Path
}
