package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"papertrader/journal"
)

var exportCmd = &cobra.Command{
	Use:   "export <backtest-id>",
	Short: "Export a journaled backtest's trades and equity curve to CSV",
	Long: `Export reads a finished backtest from the SQLite journal and writes
its trade log and equity curve to two CSV files.

Example:
  papertrader export 01J2... --db papertrader.db --trades trades.csv --equity equity.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var (
	exDBPath     string
	exTradesPath string
	exEquityPath string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exDBPath, "db", "d", "./papertrader.db", "path to the SQLite journal")
	exportCmd.Flags().StringVar(&exTradesPath, "trades", "./trades.csv", "output path for the trade log")
	exportCmd.Flags().StringVar(&exEquityPath, "equity", "./equity.csv", "output path for the equity curve")
}

func runExport(cmd *cobra.Command, args []string) error {
	store, err := journal.NewSQLite(exDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	jobID := args[0]
	if err := store.ExportBacktestCSV(cmd.Context(), jobID, exTradesPath, exEquityPath); err != nil {
		return err
	}

	fmt.Printf("Exported backtest %s\n", jobID)
	fmt.Printf("  Trades: %s\n", exTradesPath)
	fmt.Printf("  Equity: %s\n", exEquityPath)
	return nil
}
