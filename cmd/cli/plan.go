package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/schemaguard/schemaguard/internal/deprecation"
)

var (
	planReason      string
	planCreatedBy   string
	planEnvironment string
)

var planCmd = &cobra.Command{
	Use:   "plan <type:name> [<type:name>...]",
	Short: "Plan a deprecation migration",
	Long: "Runs the safety check battery against the named elements and records a " +
		"migration plan. Elements are given as type:name, where columns and " +
		"constraints use table.name and an optional schema/ prefix.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs := make([]deprecation.ElementSpec, 0, len(args))
		for _, arg := range args {
			spec, err := deprecation.ParseElementSpec(arg)
			if err != nil {
				return fmt.Errorf("invalid element %q: %w", arg, err)
			}
			specs = append(specs, spec)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Stop()

		migration, err := a.Deprecation.PlanDeprecation(ctx, specs, deprecation.Options{
			Reason:      planReason,
			CreatedBy:   planCreatedBy,
			Environment: planEnvironment,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Migration planned: %s\n", migration.ID)
		fmt.Printf("Risk level: %s\n", migration.Metadata.RiskLevel)
		if migration.Metadata.ApprovalRequired {
			fmt.Println("Approval required before execution.")
		}
		fmt.Println()
		printChecks(migration.SafetyChecks)
		fmt.Println()
		printElements(migration.Elements)
		return nil
	},
}

func printChecks(checks []deprecation.CheckResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tRESULT\tSEVERITY\tMESSAGE")
	for _, c := range checks {
		result := "pass"
		if !c.Passed {
			result = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, result, c.Severity, c.Message)
	}
	w.Flush()
}

func printElements(elements []deprecation.DeprecatedElement) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tORIGINAL\tDEPRECATED NAME")
	for _, el := range elements {
		name := el.OriginalName
		if el.Table != "" {
			name = el.Table + "." + el.OriginalName
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", el.Type, name, el.DeprecatedName)
	}
	w.Flush()
}

func init() {
	planCmd.Flags().StringVar(&planReason, "reason", "", "Why these elements are being deprecated")
	planCmd.Flags().StringVar(&planCreatedBy, "created-by", "", "Operator planning the migration")
	planCmd.Flags().StringVar(&planEnvironment, "environment", "", "Target environment label")
}
