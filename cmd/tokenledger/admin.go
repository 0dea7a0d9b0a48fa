package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ledgerhq/tokenledger/pkg/quota"
	"ledgerhq/tokenledger/pkg/quota/storage"
)

var adminFlags struct {
	actor string
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage the admin registry",
	Long: `Manage the access-control list that gates limit changes.

The registry is seeded once from bootstrap_admin_user_ids while it is
empty; after that, membership changes only through add and remove, which
are themselves gated on the --actor user being an admin.`,
}

var adminAddCmd = &cobra.Command{
	Use:   "add <user-id>",
	Short: "Add a user to the admin registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminAdd,
}

var adminRemoveCmd = &cobra.Command{
	Use:   "remove <user-id>",
	Short: "Remove a user from the admin registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdminRemove,
}

var adminListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all admins",
	RunE:  runAdminList,
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminAddCmd)
	adminCmd.AddCommand(adminRemoveCmd)
	adminCmd.AddCommand(adminListCmd)

	adminAddCmd.Flags().StringVar(&adminFlags.actor, "actor", "", "acting admin user id")
	adminRemoveCmd.Flags().StringVar(&adminFlags.actor, "actor", "", "acting admin user id")
}

// adminLedger opens the store and bootstraps the registry so admin
// commands work on a fresh database.
func adminLedger(cmd *cobra.Command) (*quota.Ledger, storage.Backend, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	initLogging(cfg)

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	ledger := newLedger(cfg, backend, nil)
	if err := ledger.EnsureBootstrap(cmd.Context(), cfg.BootstrapAdminUserIDs); err != nil {
		backend.Close()
		return nil, nil, err
	}
	return ledger, backend, nil
}

func runAdminAdd(cmd *cobra.Command, args []string) error {
	ledger, backend, err := adminLedger(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := requireAdmin(cmd.Context(), ledger, adminFlags.actor); err != nil {
		return err
	}
	if err := ledger.AddAdmin(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Added admin %q\n", args[0])
	return nil
}

func runAdminRemove(cmd *cobra.Command, args []string) error {
	ledger, backend, err := adminLedger(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := requireAdmin(cmd.Context(), ledger, adminFlags.actor); err != nil {
		return err
	}
	if err := ledger.RemoveAdmin(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed admin %q\n", args[0])
	return nil
}

func runAdminList(cmd *cobra.Command, args []string) error {
	ledger, backend, err := adminLedger(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	admins, err := ledger.ListAdmins(cmd.Context())
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		fmt.Println("No admins configured")
		return nil
	}
	for _, a := range admins {
		fmt.Printf("%s  (since %s)\n", a.UserID, time.Unix(a.CreatedAt, 0).Format(time.RFC3339))
	}
	return nil
}
