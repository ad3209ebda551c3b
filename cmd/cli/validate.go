package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var validateDetailed bool

var validateCmd = &cobra.Command{
	Use:   "validate [backup-id]",
	Short: "Validate a backup artifact",
	Long: "Runs the structural check battery against a backup artifact. Without " +
		"an argument the most recent backup in the configured directory is used.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Stop()

		if a.Backup == nil {
			return fmt.Errorf("backup validation is disabled in configuration")
		}

		backupID := ""
		if len(args) == 1 {
			backupID = args[0]
		} else {
			backupID, err = a.Backup.LatestBackupID()
			if err != nil {
				return fmt.Errorf("failed to find latest backup: %w", err)
			}
		}

		report, err := a.Backup.ValidateBackup(ctx, backupID)
		if err != nil {
			return err
		}

		verdict := "PASSED"
		if !report.Passed {
			verdict = "FAILED"
		}
		fmt.Printf("Backup %s: %s (score %d/100, %s)\n",
			report.BackupID, verdict, report.Score, report.Duration.Round(time.Millisecond))

		if validateDetailed {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CHECK\tRESULT\tMESSAGE")
			for _, c := range report.Checks {
				result := "pass"
				if !c.Passed {
					result = "FAIL"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, result, c.Message)
			}
			w.Flush()
		}

		if !report.Passed {
			return fmt.Errorf("backup %s failed validation", report.BackupID)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateDetailed, "detailed", false, "Show individual check results")
}
