package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"FMPull/pkg/config"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "fmpull",
	Short: "Bulk downloader for the Financial Modeling Prep API",
	Long: `FMPull fans a request out into one job per series and symbol, runs the
jobs directly or through a queue, and collects a cleaned dataset.

Examples:
  fmpull fetch --symbols AAPL,MSFT --start 2020-01-01
  fmpull fetch --screener 50 --prices-only
  fmpull worker --config configs/config.yaml
  fmpull series`,
	SilenceUsage: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (defaults only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug|info|warn|error)")
}

// loadConfig reads the config file plus environment overrides, then applies
// the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(configFile)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
