package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ledgerhq/tokenledger/pkg/quota"
)

var statusFlags struct {
	scope string
	key   string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a bucket's quota state for the current window",
	Long: `Show the resolved limit, committed usage, live reservations, and
remaining headroom of a bucket for the current accounting window.

Examples:
  tokenledger status --scope global
  tokenledger status --scope user --key u1
  tokenledger status --scope topic --key general`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusFlags.scope, "scope", "global", "bucket scope (global, user, topic)")
	statusCmd.Flags().StringVar(&statusFlags.key, "key", "", "bucket key (user id or topic id)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	initLogging(cfg)

	scope, err := parseScope(statusFlags.scope)
	if err != nil {
		return err
	}
	key := statusFlags.key
	if scope == quota.ScopeGlobal && key == "" {
		key = quota.GlobalKey
	}
	if key == "" {
		return fmt.Errorf("--key is required for scope %q", scope)
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.Close()

	ledger := newLedger(cfg, backend, nil)
	window := quota.ResolveWindow(cfg.TimeZone)

	snap, err := ledger.Snapshot(cmd.Context(), quota.Bucket{Scope: scope, Key: key}, window)
	if err != nil {
		return err
	}

	fmt.Printf("Bucket:    %s\n", snap.Bucket)
	fmt.Printf("Window:    %s (%s)\n", snap.Window.ID, snap.Window.TimeZone)
	if snap.Limit == nil {
		fmt.Println("Limit:     unlimited")
	} else {
		fmt.Printf("Limit:     %d\n", *snap.Limit)
	}
	fmt.Printf("Used:      %d\n", snap.Used)
	fmt.Printf("Reserved:  %d\n", snap.Reserved)
	if snap.Remaining == nil {
		fmt.Println("Remaining: unlimited")
	} else {
		fmt.Printf("Remaining: %d\n", *snap.Remaining)
	}
	return nil
}
