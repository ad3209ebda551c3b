package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	rollbackConfirm bool
	rollbackForce   bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <migration-id>",
	Short: "Roll back a completed deprecation migration",
	Long: "Restores the original names of a completed migration's elements and " +
		"stops monitoring them. Backup validation runs first when configured. " +
		"Requires --confirm (or --force).",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		migrationID := args[0]
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Stop()

		migration, err := a.Deprecation.GetMigration(ctx, migrationID)
		if err != nil {
			return err
		}

		if !rollbackConfirm && !rollbackForce {
			fmt.Printf("Migration %s (phase %s) would restore %d element(s):\n\n",
				migration.ID, migration.Phase, len(migration.Elements))
			printElements(migration.Elements)
			fmt.Println("\nRe-run with --confirm to roll back.")
			return nil
		}

		if err := a.Deprecation.RollbackMigration(ctx, migrationID); err != nil {
			return err
		}
		fmt.Printf("Migration %s rolled back; original names restored.\n", migrationID)
		return nil
	},
}

func init() {
	rollbackCmd.Flags().BoolVar(&rollbackConfirm, "confirm", false, "Actually roll back the migration")
	rollbackCmd.Flags().BoolVar(&rollbackForce, "force", false, "Alias for --confirm")
}
