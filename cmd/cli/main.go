package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/schemaguard/schemaguard/internal/app"
	"github.com/schemaguard/schemaguard/pkg/config"
	"github.com/schemaguard/schemaguard/pkg/logger"
)

var (
	configFile string
	version    = "0.1.0"
	// Build information variables, set via -ldflags
	Version   = "dev"     // Default version for development
	GitCommit = "unknown" // Git commit hash
	BuildTime = "unknown" // Build timestamp
)

// printVersionInfo displays detailed version information
func printVersionInfo() {
	fmt.Printf("schemaguard v%s (build %s)\n", version, Version)
	fmt.Printf("Built: %s, from commit: %s\n", BuildTime, GitCommit)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "schemaguard",
	Short: "Database deprecation and usage monitoring",
	Long: "Plan, execute, and roll back rename-based schema deprecations, " +
		"and monitor access to deprecated elements before their final removal.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Lookup("version") != nil && cmd.Flags().Lookup("version").Changed {
			printVersionInfo()
			return nil
		}
		return cmd.Help()
	},
}

// newApp loads configuration and builds the component graph for one
// command invocation.
func newApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New("schemaguard")
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", os.ExpandEnv("$HOME/.schemaguard/config.yaml"), "Path to config file")
	rootCmd.Flags().Bool("version", false, "Show version information and exit")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(monitorCmd)
}

func main() {
	Execute()
}
