package journal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/backtest"
	"papertrader/ledger"
	"papertrader/metrics"
	"papertrader/sim"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestPortfolioRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePortfolio(ctx, "paper one", 100_000)
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	assert.Equal(t, 100_000.0, p.Snapshot.Cash)

	got, err := s.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "paper one", got.Name)
	assert.Equal(t, 100_000.0, got.InitialCapital)
	assert.Equal(t, 100_000.0, got.Snapshot.Cash)
	assert.Empty(t, got.Snapshot.Positions)

	_, err = s.GetPortfolio(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.CreatePortfolio(ctx, "broke", 0)
	assert.Error(t, err)
}

func TestListPortfolios(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreatePortfolio(ctx, "a", 1000)
	require.NoError(t, err)
	_, err = s.CreatePortfolio(ctx, "b", 2000)
	require.NoError(t, err)

	all, err := s.ListPortfolios(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestOrderRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	o := &sim.Order{
		ID:          "o1",
		PortfolioID: "p1",
		Symbol:      "AAPL",
		Side:        sim.Buy,
		Quantity:    10,
		Price:       150.25,
		Style:       sim.Limit,
		Status:      sim.StatusPending,
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveOrder(ctx, o))

	got, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, sim.StatusPending, got.Status)
	assert.True(t, got.ResolvedAt.IsZero(), "pending order has no resolution time")
	assert.True(t, got.CreatedAt.Equal(o.CreatedAt))

	// Resolve and re-save through the same upsert path.
	o.Status = sim.StatusExecuted
	o.ExecutedPrice = 150.4
	o.ResolvedAt = o.CreatedAt.Add(2 * time.Second)
	require.NoError(t, s.SaveOrder(ctx, o))

	got, err = s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, sim.StatusExecuted, got.Status)
	assert.Equal(t, 150.4, got.ExecutedPrice)
	assert.True(t, got.ResolvedAt.Equal(o.ResolvedAt))

	_, err = s.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveExecutionCommitsOrderAndSnapshotTogether(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreatePortfolio(ctx, "live", 10_000)
	require.NoError(t, err)

	o := &sim.Order{
		ID:          "o1",
		PortfolioID: p.ID,
		Symbol:      "AAPL",
		Side:        sim.Buy,
		Quantity:    10,
		Price:       50,
		Style:       sim.Market,
		Status:      sim.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.SaveOrder(ctx, o))

	o.Status = sim.StatusExecuted
	o.ExecutedPrice = 50
	o.ResolvedAt = time.Now().UTC()
	snap := ledger.Snapshot{
		Cash: 9500,
		Positions: []ledger.Position{
			{Symbol: "AAPL", Quantity: 10, AverageCost: 50, CurrentPrice: 50},
		},
	}
	require.NoError(t, s.SaveExecution(ctx, o, snap))

	got, err := s.GetOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, sim.StatusExecuted, got.Status)

	loaded, err := s.LoadPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 9500.0, loaded.Cash)
	require.Len(t, loaded.Positions, 1)
	assert.Equal(t, 10.0, loaded.Positions[0].Quantity)
	assert.Equal(t, 500.0, loaded.Positions[0].MarketValue)

	// Selling out deletes the position row.
	require.NoError(t, s.SavePortfolioSnapshot(ctx, p.ID, ledger.Snapshot{Cash: 10_100}))
	loaded, err = s.LoadPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10_100.0, loaded.Cash)
	assert.Empty(t, loaded.Positions)
}

func TestSaveExecutionUnknownPortfolioRollsBack(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	o := &sim.Order{
		ID:          "o1",
		PortfolioID: "ghost",
		Symbol:      "AAPL",
		Side:        sim.Buy,
		Quantity:    1,
		Price:       10,
		Style:       sim.Market,
		Status:      sim.StatusExecuted,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.SaveExecution(ctx, o, ledger.Snapshot{Cash: 100})
	assert.ErrorIs(t, err, ErrNotFound)

	// The order write inside the failed transaction must not be visible.
	_, err = s.GetOrder(ctx, "o1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrders(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, oid := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveOrder(ctx, &sim.Order{
			ID:          oid,
			PortfolioID: "p1",
			Symbol:      "AAPL",
			Side:        sim.Buy,
			Quantity:    1,
			Price:       10,
			Style:       sim.Market,
			Status:      sim.StatusPending,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.SaveOrder(ctx, &sim.Order{
		ID: "other", PortfolioID: "p2", Symbol: "MSFT", Side: sim.Sell,
		Quantity: 1, Price: 10, Style: sim.Market,
		Status: sim.StatusPending, CreatedAt: base,
	}))

	orders, err := s.ListOrders(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, "a", orders[0].ID)
	assert.Equal(t, "c", orders[2].ID)
}

func sampleJob() *backtest.Job {
	day := func(s string) time.Time {
		d, _ := time.Parse("2006-01-02", s)
		return d
	}
	return &backtest.Job{
		ID:             "bt1",
		Strategy:       "ma_cross",
		Params:         map[string]any{"short_window": 5.0, "long_window": 20.0},
		Symbols:        []string{"AAPL"},
		Start:          day("2024-01-01"),
		End:            day("2024-01-05"),
		InitialCapital: 100_000,
		Status:         backtest.StatusCompleted,
		FinalCapital:   100_100,
		ProfitLoss:     100,
		Metrics: metrics.Summary{
			SharpeRatio: 1.5,
			MaxDrawdown: 0.1,
			WinRate:     1,
			TotalTrades: 2,
		},
		EquityCurve: []metrics.Point{
			{Date: day("2024-01-01"), TotalValue: 100_000},
			{Date: day("2024-01-05"), TotalValue: 100_100},
		},
		Trades: []ledger.TradeRecord{
			{Side: ledger.Buy, Symbol: "AAPL", Quantity: 10, Price: 50, Time: day("2024-01-01")},
			{Side: ledger.Sell, Symbol: "AAPL", Quantity: 10, Price: 60, Time: day("2024-01-05"), RealizedPL: 100},
		},
		CreatedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}
}

func TestBacktestRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	job := sampleJob()

	require.NoError(t, s.SaveBacktest(ctx, job))

	got, err := s.GetBacktest(ctx, "bt1")
	require.NoError(t, err)
	assert.Equal(t, backtest.StatusCompleted, got.Status)
	assert.Equal(t, job.Symbols, got.Symbols)
	assert.InDelta(t, 5.0, got.Params["short_window"], 1e-9)
	assert.Equal(t, 2, got.Metrics.TotalTrades)
	assert.Equal(t, 1.0, got.Metrics.WinRate)
	require.Len(t, got.EquityCurve, 2)
	assert.Equal(t, 100_100.0, got.EquityCurve[1].TotalValue)
	require.Len(t, got.Trades, 2)
	assert.Equal(t, ledger.Sell, got.Trades[1].Side)
	assert.InDelta(t, 100.0, got.Trades[1].RealizedPL, 1e-9)

	_, err = s.GetBacktest(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveBacktestUpsertReplacesResults(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	job := sampleJob()
	job.Status = backtest.StatusPending
	job.EquityCurve = nil
	job.Trades = nil
	require.NoError(t, s.SaveBacktest(ctx, job))

	// Finish the run and persist again under the same id.
	done := sampleJob()
	require.NoError(t, s.SaveBacktest(ctx, done))

	got, err := s.GetBacktest(ctx, "bt1")
	require.NoError(t, err)
	assert.Equal(t, backtest.StatusCompleted, got.Status)
	assert.Len(t, got.EquityCurve, 2)
	assert.Len(t, got.Trades, 2)
}

func TestDeleteBacktestCascades(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveBacktest(ctx, sampleJob()))

	require.NoError(t, s.DeleteBacktest(ctx, "bt1"))

	_, err := s.GetBacktest(ctx, "bt1")
	assert.ErrorIs(t, err, ErrNotFound)

	// The dependent rows went with the job.
	var equity, trades int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM backtest_equity WHERE backtest_id = 'bt1'`).Scan(&equity))
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM backtest_trades WHERE backtest_id = 'bt1'`).Scan(&trades))
	assert.Zero(t, equity)
	assert.Zero(t, trades)

	assert.ErrorIs(t, s.DeleteBacktest(ctx, "bt1"), ErrNotFound)
}

func TestListBacktests(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	a := sampleJob()
	a.ID = "bt-a"
	b := sampleJob()
	b.ID = "bt-b"
	require.NoError(t, s.SaveBacktest(ctx, a))
	require.NoError(t, s.SaveBacktest(ctx, b))

	all, err := s.ListBacktests(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestExportBacktestCSV(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveBacktest(ctx, sampleJob()))

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")
	require.NoError(t, s.ExportBacktestCSV(ctx, "bt1", tradesPath, equityPath))

	trades, err := os.ReadFile(tradesPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(trades)), "\n")
	assert.Len(t, lines, 3, "header plus two trades")
	assert.Contains(t, lines[0], "realized_pl")
	assert.Contains(t, lines[2], "sell")

	equity, err := os.ReadFile(equityPath)
	require.NoError(t, err)
	assert.Contains(t, string(equity), "2024-01-05")
}
