// Package strategies defines the strategy runtime for backtests. A strategy
// is invoked once per simulated trading day and interacts with the outside
// world only through the capability Context it is handed: a read-only
// market snapshot, its parameters, and Buy/Sell bound to the job's ledger.
// No other capability exists — no filesystem, network, clock or process
// access leaks into strategy code.
package strategies

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"papertrader/ledger"
	"papertrader/market"
)

// Strategy is implemented by anything that can trade one tick.
type Strategy interface {
	// Name returns the registry identifier, e.g. "ma-cross".
	Name() string

	// OnTick runs one simulated trading day. An error (or panic) aborts the
	// owning backtest.
	OnTick(ctx context.Context, tick *Context) error
}

// Factory builds a fresh strategy instance for one job from its parameter
// map. Instances are never shared between jobs, so any state a strategy
// keeps is explicitly job-scoped rather than ambient.
type Factory func(params map[string]any) (Strategy, error)

var (
	regMu    sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds a strategy factory under name. Later registrations replace
// earlier ones.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

// New instantiates the named strategy with params.
func New(name string, params map[string]any) (Strategy, error) {
	regMu.RLock()
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	regMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have: %s)", name, strings.Join(Names(), ", "))
	}
	return f(params)
}

// Names lists registered strategies, sorted.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()

	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Context is the per-tick capability object.
type Context struct {
	// Date is the simulated trading day.
	Date time.Time

	// Params is the job's parameter map, shared across ticks.
	Params map[string]any

	bars   map[string][]market.Bar
	ledger *ledger.Ledger
}

// NewContext builds a tick context. bars must hold, per symbol, every bar
// up to and including date.
func NewContext(date time.Time, bars map[string][]market.Bar, params map[string]any, l *ledger.Ledger) *Context {
	return &Context{Date: date, Params: params, bars: bars, ledger: l}
}

// Bars returns the symbol's history up to the current day.
func (c *Context) Bars(symbol string) []market.Bar {
	return c.bars[symbol]
}

// Closes returns the symbol's close prices up to the current day.
func (c *Context) Closes(symbol string) []float64 {
	bars := c.bars[symbol]
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// Price returns the symbol's most recent close at or before the current
// day, and whether one exists.
func (c *Context) Price(symbol string) (float64, bool) {
	bars := c.bars[symbol]
	if len(bars) == 0 {
		return 0, false
	}
	return bars[len(bars)-1].Close, true
}

// Buy places qty shares at price against the job ledger. Failures
// (typically insufficient funds) are swallowed; the boolean result is
// available for strategies that want strict semantics.
func (c *Context) Buy(symbol string, qty, price float64) bool {
	return c.ledger.ApplyBuy(symbol, qty, price, c.Date) == nil
}

// Sell is the selling counterpart of Buy; failures (typically selling more
// than held) are likewise swallowed.
func (c *Context) Sell(symbol string, qty, price float64) bool {
	_, err := c.ledger.ApplySell(symbol, qty, price, c.Date)
	return err == nil
}
