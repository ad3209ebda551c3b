package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/schemaguard/schemaguard/internal/telemetry"
)

var (
	exportFormat string
	exportDays   int
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export telemetry events and metrics",
	Long: "Exports access events, metric rollups, and a risk summary for the " +
		"requested window as JSON or CSV.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format := telemetry.ExportFormat(exportFormat)
		if format != telemetry.FormatJSON && format != telemetry.FormatCSV {
			return fmt.Errorf("unsupported format %q, use json or csv", exportFormat)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Stop()

		end := time.Now()
		start := end.AddDate(0, 0, -exportDays)
		data, err := a.Telemetry.ExportTelemetryData(start, end, format)
		if err != nil {
			return err
		}

		if exportOutput == "" || exportOutput == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(exportOutput, data, 0o644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Printf("Exported %d bytes to %s\n", len(data), exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json or csv")
	exportCmd.Flags().IntVar(&exportDays, "days", 30, "Window size in days, ending now")
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "Output file, defaults to stdout")
}
