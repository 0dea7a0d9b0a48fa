package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepFlags struct {
	ttl time.Duration
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete stale reservations left by crashed runs",
	Long: `Delete reservation rows older than the TTL.

A run that reserved tokens and then crashed before reconciling or
releasing leaves its hold alive, shrinking the bucket's headroom for the
rest of the window. This command reclaims that headroom. Committed usage
is never touched.

Examples:
  tokenledger sweep
  tokenledger sweep --ttl 30m`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().DurationVar(&sweepFlags.ttl, "ttl", 0, "reservation age past which a hold is stale (defaults to sweep.ttl from config)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	initLogging(cfg)

	ttl := sweepFlags.ttl
	if ttl <= 0 {
		ttl = cfg.Sweep.TTL
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.Close()

	ledger := newLedger(cfg, backend, nil)

	deleted, err := ledger.SweepStale(cmd.Context(), ttl)
	if err != nil {
		return err
	}

	fmt.Printf("Deleted %d stale reservation(s) older than %s\n", deleted, ttl)
	return nil
}
