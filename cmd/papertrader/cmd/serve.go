package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"papertrader/api"
	"papertrader/backtest"
	"papertrader/journal"
	"papertrader/market"
	"papertrader/sim"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server",
	Long: `Serve starts the HTTP API for backtests, portfolios and simulated
order execution. Market orders are priced from the latest close in the
data directory.

Example:
  papertrader serve --config config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	store, err := journal.NewSQLite(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()

	feed := market.NewCSVFeed(cfg.Data.Dir)
	oracle, err := seedOracle(cmd.Context(), feed, cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("seed quotes: %w", err)
	}

	minDelay, maxDelay, err := cfg.Simulator.ParseDelays()
	if err != nil {
		return err
	}
	executor := sim.NewExecutor(store, oracle, sim.Options{
		MinDelay:        minDelay,
		MaxDelay:        maxDelay,
		FillProbability: cfg.Simulator.FillProbability,
		Slippage:        cfg.Simulator.Slippage,
	}, log)

	backtests := backtest.NewService(feed, store, log)

	server := api.NewServer(backtests, executor, store,
		cfg.Defaults.InitialCapital, cfg.Server.AllowedOrigins, log)

	httpSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.Handler(),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("api listening", zap.String("addr", cfg.Server.Addr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	// Let in-flight backtests and order resolutions finish persisting.
	backtests.Wait()
	executor.Wait()
	return nil
}

// seedOracle quotes every symbol in the data directory at its latest close.
func seedOracle(ctx context.Context, feed market.Feed, dir string) (*sim.StaticOracle, error) {
	oracle := sim.NewStaticOracle(nil)

	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}

	for _, path := range files {
		symbol := strings.TrimSuffix(filepath.Base(path), ".csv")
		bars, err := feed.GetBars(ctx, symbol, time.Time{}, time.Now())
		if errors.Is(err, market.ErrDataUnavailable) {
			continue
		}
		if err != nil {
			return nil, err
		}
		oracle.SetQuote(symbol, bars[len(bars)-1].Close)
	}
	return oracle, nil
}
