package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"papertrader/backtest"
	"papertrader/journal"
	"papertrader/market"
	"papertrader/pkg/id"
	"papertrader/strategies"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a backtest against historical bar data",
	Long: `Backtest replays daily bars through a strategy and prints the results.

Bars are read from per-symbol CSV files (SYMBOL.csv) in the data
directory, with rows of date,open,high,low,close,volume.

Example:
  papertrader backtest -s ma-cross --symbols AAPL \
    --start 2023-01-01 --end 2023-12-31 \
    --param symbol=AAPL --param short_window=5 --param long_window=20`,
	RunE: runBacktestCmd,
}

var (
	btStrategy string
	btSymbols  []string
	btStart    string
	btEnd      string
	btCapital  float64
	btDataDir  string
	btDBPath   string
	btParams   map[string]string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btStrategy, "strategy", "s", "", "strategy name (see 'papertrader strategies')")
	backtestCmd.Flags().StringSliceVar(&btSymbols, "symbols", nil, "symbols to replay (comma separated)")
	backtestCmd.Flags().StringVar(&btStart, "start", "", "start date (YYYY-MM-DD)")
	backtestCmd.Flags().StringVar(&btEnd, "end", "", "end date (YYYY-MM-DD)")
	backtestCmd.Flags().Float64VarP(&btCapital, "capital", "b", 100_000, "initial capital")
	backtestCmd.Flags().StringVarP(&btDataDir, "data", "d", "./data", "directory of per-symbol CSV bar files")
	backtestCmd.Flags().StringVar(&btDBPath, "db", "", "optionally journal the run to this SQLite file")
	backtestCmd.Flags().StringToStringVarP(&btParams, "param", "p", nil, "strategy parameter (key=value, repeatable)")

	backtestCmd.MarkFlagRequired("strategy")
	backtestCmd.MarkFlagRequired("symbols")
	backtestCmd.MarkFlagRequired("start")
	backtestCmd.MarkFlagRequired("end")
}

func runBacktestCmd(cmd *cobra.Command, args []string) error {
	start, err := time.Parse("2006-01-02", btStart)
	if err != nil {
		return fmt.Errorf("bad start date %q: %w", btStart, err)
	}
	end, err := time.Parse("2006-01-02", btEnd)
	if err != nil {
		return fmt.Errorf("bad end date %q: %w", btEnd, err)
	}

	params := make(map[string]any, len(btParams))
	for k, v := range btParams {
		params[k] = v
	}
	if _, err := strategies.New(btStrategy, params); err != nil {
		return err
	}

	job := &backtest.Job{
		ID:             id.New(),
		Strategy:       btStrategy,
		Params:         params,
		Symbols:        btSymbols,
		Start:          market.Day(start),
		End:            market.Day(end),
		InitialCapital: btCapital,
		Status:         backtest.StatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	fmt.Printf("Running backtest with strategy: %s\n", btStrategy)
	fmt.Printf("  Symbols: %v\n", btSymbols)
	fmt.Printf("  Range: %s .. %s\n\n", btStart, btEnd)

	feed := market.NewCSVFeed(btDataDir)
	backtest.NewRunner(feed, nil).Run(cmd.Context(), job)

	if job.Status == backtest.StatusFailed {
		return fmt.Errorf("backtest failed: %s", job.Error)
	}

	fmt.Printf("Backtest Complete!\n")
	fmt.Printf("  Final Capital: $%.2f\n", job.FinalCapital)
	fmt.Printf("  Profit/Loss: $%.2f\n", job.ProfitLoss)
	fmt.Printf("  Trades: %d\n", job.Metrics.TotalTrades)
	fmt.Printf("  Win Rate: %.1f%%\n", job.Metrics.WinRate*100)
	fmt.Printf("  Sharpe Ratio: %.3f\n", job.Metrics.SharpeRatio)
	fmt.Printf("  Max Drawdown: %.2f%%\n", job.Metrics.MaxDrawdown*100)

	if btDBPath != "" {
		store, err := journal.NewSQLite(btDBPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer store.Close()
		if err := store.SaveBacktest(cmd.Context(), job); err != nil {
			return fmt.Errorf("journal run: %w", err)
		}
		fmt.Printf("\nJournaled as %s in %s\n", job.ID, btDBPath)
	}

	return nil
}
