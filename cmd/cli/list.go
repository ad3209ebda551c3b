package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listVerbose bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List migrations, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Stop()

		migrations, err := a.Deprecation.ListMigrations(ctx)
		if err != nil {
			return err
		}
		if len(migrations) == 0 {
			fmt.Println("No migrations.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPHASE\tRISK\tELEMENTS\tPLANNED AT")
		for _, m := range migrations {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				m.ID, m.Phase, m.Metadata.RiskLevel, len(m.Elements),
				m.Timestamp.Format("2006-01-02 15:04:05"))
		}
		w.Flush()

		if !listVerbose {
			return nil
		}
		for _, m := range migrations {
			fmt.Printf("\n%s:\n", m.ID)
			if m.Metadata.Reason != "" {
				fmt.Printf("  Reason: %s\n", m.Metadata.Reason)
			}
			if m.Metadata.ApprovalRequired {
				approved := "pending"
				if m.Metadata.ApprovedBy != "" {
					approved = "by " + m.Metadata.ApprovedBy
				}
				fmt.Printf("  Approval: %s\n", approved)
			}
			if m.Metadata.Error != "" {
				fmt.Printf("  Error: %s\n", m.Metadata.Error)
			}
			for _, el := range m.Elements {
				fmt.Printf("  %s %s -> %s\n", el.Type, el.OriginalName, el.DeprecatedName)
			}
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listVerbose, "verbose", false, "Include element and approval detail per migration")
}
