package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/schemaguard/schemaguard/internal/deprecation"
)

var statusDetailed bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize migration history and monitored elements",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Stop()

		status, err := a.Deprecation.GetDeprecationStatus(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Migrations: %d total\n", status.Total)
		for _, phase := range []deprecation.Phase{
			deprecation.PhasePlanned,
			deprecation.PhaseExecuting,
			deprecation.PhaseCompleted,
			deprecation.PhaseFailed,
			deprecation.PhaseRolledBack,
		} {
			if n := status.ByPhase[phase]; n > 0 {
				fmt.Printf("  %-12s %d\n", phase, n)
			}
		}
		fmt.Printf("Deprecated elements in place: %d\n", status.ActiveElements)

		if !statusDetailed {
			return nil
		}

		migrations, err := a.Deprecation.ListMigrations(ctx)
		if err != nil {
			return err
		}
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPHASE\tRISK\tELEMENTS\tPLANNED AT")
		for _, m := range migrations {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				m.ID, m.Phase, m.Metadata.RiskLevel, len(m.Elements),
				m.Timestamp.Format("2006-01-02 15:04:05"))
		}
		w.Flush()
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusDetailed, "detailed", false, "Include the full migration list")
}
