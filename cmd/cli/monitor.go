package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/schemaguard/schemaguard/internal/monitor"
)

var (
	monitorRealtime  bool
	monitorStaleDays int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show monitoring dashboard for deprecated elements",
	Long: "Prints the monitoring overview: tracked elements, access totals, and " +
		"removal candidates. With --realtime the view refreshes every 10 seconds " +
		"until interrupted.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Stop()

		if err := a.Start(); err != nil {
			return err
		}

		printDashboard(a.Monitor.GetDashboardData())
		printCandidates(a.Monitor.GetRemovalCandidates(monitorStaleDays))

		if !monitorRealtime {
			return nil
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				fmt.Println()
				printDashboard(a.Monitor.GetDashboardData())
			case <-sig:
				return nil
			case <-ctx.Done():
				return nil
			}
		}
	},
}

func printDashboard(d *monitor.Dashboard) {
	fmt.Printf("[%s] %d element(s) monitored, %d access(es) recorded, %d buffered, %d removal candidate(s)\n",
		time.Now().Format("15:04:05"), d.MonitoredElements, d.TotalAccesses, d.BufferedEvents, d.RemovalCandidates)

	if len(d.Elements) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ELEMENT\tSTATE\tSTATUS\tACCESSES\tLAST ACCESSED")
	for _, el := range d.Elements {
		last := "never"
		if !el.LastAccessed.IsZero() {
			last = el.LastAccessed.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", el.Key, el.State, el.Status, el.TotalAccess, last)
	}
	w.Flush()
}

func printCandidates(candidates []monitor.RemovalCandidate) {
	if len(candidates) == 0 {
		return
	}
	fmt.Printf("\n%d element(s) are candidates for final removal:\n", len(candidates))
	for _, c := range candidates {
		fmt.Printf("  %s (monitored %s, %d total accesses)\n",
			c.Element.Key(), c.MonitoredFor.Round(time.Hour), c.TotalAccess)
	}
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorRealtime, "realtime", false, "Refresh the dashboard every 10 seconds")
	monitorCmd.Flags().IntVar(&monitorStaleDays, "stale-days", 30, "Days without access before an element is a removal candidate")
}
