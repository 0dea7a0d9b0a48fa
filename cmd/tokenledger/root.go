package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tokenledger",
	Short: "tokenledger - windowed token-quota reservation ledger",
	Long: `Tokenledger enforces per-scope token budgets (global, per-user,
per-topic) over daily accounting windows.

Callers reserve an estimated token cost before performing metered work,
then reconcile the actual cost (or release the hold if the run aborted).
A multi-bucket reservation is granted or denied as a unit, so no bucket
can ever be driven past its configured limit by concurrent in-flight
work. All state lives in a local SQLite file and survives restarts.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
