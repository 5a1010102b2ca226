package api

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/backtest"
	"papertrader/journal"
	"papertrader/ledger"
	"papertrader/market"
	"papertrader/sim"
)

type testEnv struct {
	handler   http.Handler
	backtests *backtest.Service
	executor  *sim.Executor
	store     *journal.Store
	oracle    *sim.StaticOracle
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := journal.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	day := func(s string) time.Time {
		d, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return d
	}
	feed := market.NewStaticFeed(map[string][]market.Bar{
		"AAPL": {
			{Symbol: "AAPL", Date: day("2024-01-01"), Close: 100},
			{Symbol: "AAPL", Date: day("2024-01-02"), Close: 101},
			{Symbol: "AAPL", Date: day("2024-01-03"), Close: 102},
		},
	})

	svc := backtest.NewService(feed, store, nil)
	oracle := sim.NewStaticOracle(map[string]float64{"AAPL": 100})
	exec := sim.NewExecutor(store, oracle,
		sim.Options{
			FillProbability: 1,
			Rand:            rand.New(rand.NewSource(1)),
			Sleep:           func(time.Duration) {},
		}, nil)

	srv := NewServer(svc, exec, store, 100_000, nil, nil)
	return &testEnv{
		handler:   srv.Handler(),
		backtests: svc,
		executor:  exec,
		store:     store,
		oracle:    oracle,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), into))
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListStrategies(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/strategies", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Strategies []string `json:"strategies"`
	}
	decode(t, w, &resp)
	assert.Contains(t, resp.Strategies, "ma-cross")
	assert.Contains(t, resp.Strategies, "rsi")
}

func TestPortfolioLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/portfolios",
		PortfolioRequest{Name: "paper"})
	require.Equal(t, http.StatusCreated, w.Code)

	var p journal.Portfolio
	decode(t, w, &p)
	require.NotEmpty(t, p.ID)
	assert.Equal(t, 100_000.0, p.Snapshot.Cash, "default capital applied")

	w = env.do(t, http.MethodGet, "/api/v1/portfolios/"+p.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/portfolios", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/portfolios/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var errResp ErrorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "NOT_FOUND", errResp.Error.Code)
}

func TestBacktestLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/backtests", BacktestRequest{
		Strategy:  "noop",
		Symbols:   []string{"AAPL"},
		StartDate: "2024-01-01",
		EndDate:   "2024-01-03",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var job backtest.Job
	decode(t, w, &job)
	require.NotEmpty(t, job.ID)

	env.backtests.Wait()

	w = env.do(t, http.MethodGet, "/api/v1/backtests/"+job.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got backtest.Job
	decode(t, w, &got)
	assert.Equal(t, backtest.StatusCompleted, got.Status)
	assert.Equal(t, 100_000.0, got.FinalCapital)
	assert.Len(t, got.EquityCurve, 3)

	w = env.do(t, http.MethodGet, "/api/v1/backtests", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/backtests/"+job.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/backtests/"+job.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/backtests/"+job.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBacktestValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/backtests", BacktestRequest{
		Strategy:  "no-such-strategy",
		Symbols:   []string{"AAPL"},
		StartDate: "2024-01-01",
		EndDate:   "2024-01-03",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/backtests", BacktestRequest{
		Strategy:  "noop",
		Symbols:   []string{"AAPL"},
		StartDate: "01/01/2024",
		EndDate:   "2024-01-03",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var errResp ErrorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "INVALID_REQUEST", errResp.Error.Code)
}

func TestOrderLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/portfolios",
		PortfolioRequest{Name: "live", InitialCapital: 10_000})
	require.Equal(t, http.StatusCreated, w.Code)
	var p journal.Portfolio
	decode(t, w, &p)

	w = env.do(t, http.MethodPost, "/api/v1/orders", OrderRequest{
		PortfolioID: p.ID,
		Symbol:      "AAPL",
		Side:        "buy",
		Quantity:    10,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var o sim.Order
	decode(t, w, &o)
	assert.Equal(t, sim.StatusPending, o.Status)
	assert.Equal(t, 100.0, o.Price, "market order priced from the oracle")

	env.executor.Wait()

	w = env.do(t, http.MethodGet, "/api/v1/orders/"+o.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got sim.Order
	decode(t, w, &got)
	assert.Equal(t, sim.StatusExecuted, got.Status)

	// Cancel after execution loses.
	w = env.do(t, http.MethodPut, "/api/v1/orders/"+o.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	var errResp ErrorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "ORDER_TERMINAL", errResp.Error.Code)

	w = env.do(t, http.MethodGet, "/api/v1/portfolios/"+p.ID+"/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var orders struct {
		Orders []sim.Order `json:"orders"`
	}
	decode(t, w, &orders)
	assert.Len(t, orders.Orders, 1)
}

func TestPortfolioRefresh(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/portfolios",
		PortfolioRequest{Name: "held", InitialCapital: 10_000})
	require.Equal(t, http.StatusCreated, w.Code)
	var p journal.Portfolio
	decode(t, w, &p)

	w = env.do(t, http.MethodPost, "/api/v1/orders", OrderRequest{
		PortfolioID: p.ID,
		Symbol:      "AAPL",
		Side:        "buy",
		Quantity:    10,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	env.executor.Wait()

	// Price moves; the refresh revalues the position at the new quote.
	env.oracle.SetQuote("AAPL", 120)

	w = env.do(t, http.MethodPost, "/api/v1/portfolios/"+p.ID+"/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var snap ledger.Snapshot
	decode(t, w, &snap)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 120.0, snap.Positions[0].CurrentPrice)
	assert.Equal(t, 1200.0, snap.Positions[0].MarketValue)
	assert.InDelta(t, 200.0, snap.Positions[0].UnrealizedPL, 1e-9)

	// And the refreshed valuation is what the journal now serves.
	w = env.do(t, http.MethodGet, "/api/v1/portfolios/"+p.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got journal.Portfolio
	decode(t, w, &got)
	require.Len(t, got.Snapshot.Positions, 1)
	assert.Equal(t, 120.0, got.Snapshot.Positions[0].CurrentPrice)

	w = env.do(t, http.MethodPost, "/api/v1/portfolios/missing/refresh", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/orders", OrderRequest{
		PortfolioID: "missing",
		Symbol:      "AAPL",
		Side:        "buy",
		Quantity:    1,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"symbol": "AAPL",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
