package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"papertrader/config"
)

var rootCmd = &cobra.Command{
	Use:   "papertrader",
	Short: "A paper-trading platform with backtesting and simulated execution",
	Long: `Papertrader replays historical bar data through trading strategies and
simulates live order execution against persistent portfolios.

It provides tools for:
  - Backtesting strategies over per-symbol CSV bar data
  - Serving a REST API for backtests, portfolios and orders
  - Simulated order execution with latency, partial fills and slippage
  - Journaling results to SQLite`,
}

var cfgFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(cfgFile)
}

func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}
