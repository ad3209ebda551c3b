package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	executeConfirm bool
	executeForce   bool
)

var executeCmd = &cobra.Command{
	Use:   "execute <migration-id>",
	Short: "Execute a planned deprecation migration",
	Long: "Applies the rename statements of a planned migration and starts " +
		"monitoring the renamed elements. Requires --confirm (or --force); " +
		"without either the command only describes what would happen.",
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

		if !executeConfirm && !executeForce {
			fmt.Printf("Migration %s would rename %d element(s):\n\n", migration.ID, len(migration.Elements))
			printElements(migration.Elements)
			fmt.Println("\nRe-run with --confirm to execute.")
			return nil
		}

		if err := a.Deprecation.ExecuteDeprecation(ctx, migrationID); err != nil {
			return err
		}
		fmt.Printf("Migration %s executed; %d element(s) renamed and under monitoring.\n",
			migrationID, len(migration.Elements))
		return nil
	},
}

func init() {
	executeCmd.Flags().BoolVar(&executeConfirm, "confirm", false, "Actually execute the migration")
	executeCmd.Flags().BoolVar(&executeForce, "force", false, "Alias for --confirm")
}
