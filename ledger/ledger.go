// Package ledger implements the authoritative cash and position state for a
// single portfolio. Every buy/sell in the system — backtest ticks and
// simulated live orders alike — mutates financial state through this one
// type, with weighted-average cost accounting.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrInsufficientFunds rejects a buy whose cost exceeds available cash.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientPosition rejects a sell of more shares than held.
	ErrInsufficientPosition = errors.New("insufficient position")
)

// Side labels a trade record.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Position is one holding within a portfolio.
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AverageCost  float64 `json:"average_cost"`
	CurrentPrice float64 `json:"current_price"`
	MarketValue  float64 `json:"market_value"`
	UnrealizedPL float64 `json:"unrealized_pl"`
}

// TradeRecord is an executed buy or sell, appended to the ledger's trade
// log in execution order. RealizedPL is populated on sells only.
type TradeRecord struct {
	Side       Side      `json:"side"`
	Symbol     string    `json:"symbol"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Time       time.Time `json:"time"`
	RealizedPL float64   `json:"realized_pl,omitempty"`
}

// Ledger tracks cash, positions and executed trades for one portfolio.
//
// A ledger is safe for concurrent use. Backtest jobs each own a private
// ledger, so they never contend; the order execution simulator shares one
// persisted ledger per portfolio and additionally serializes whole
// order resolutions with a per-portfolio lock (see sim.Executor).
type Ledger struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*Position
	trades    []TradeRecord
}

// New creates a ledger with the given starting cash. Negative initial cash
// is clamped to zero; the cash >= 0 invariant holds from birth.
func New(initialCash float64) *Ledger {
	if initialCash < 0 {
		initialCash = 0
	}
	return &Ledger{
		cash:      initialCash,
		positions: make(map[string]*Position),
	}
}

// ApplyBuy spends qty*price of cash on the symbol. On success the position's
// average cost becomes the weighted average of the existing lot and the new
// one. The ledger is untouched on failure.
func (l *Ledger) ApplyBuy(symbol string, qty, price float64, at time.Time) error {
	if qty <= 0 {
		return fmt.Errorf("buy %s: quantity must be positive, got %v", symbol, qty)
	}
	if price < 0 {
		return fmt.Errorf("buy %s: negative price %v", symbol, price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cost := qty * price
	if l.cash < cost {
		return fmt.Errorf("buy %.2f %s @ %.2f needs %.2f, have %.2f: %w",
			qty, symbol, price, cost, l.cash, ErrInsufficientFunds)
	}

	l.cash -= cost

	p, ok := l.positions[symbol]
	if !ok {
		p = &Position{Symbol: symbol, AverageCost: price}
		l.positions[symbol] = p
	} else {
		p.AverageCost = (p.AverageCost*p.Quantity + price*qty) / (p.Quantity + qty)
	}
	p.Quantity += qty
	p.setPrice(price)

	l.trades = append(l.trades, TradeRecord{
		Side: Buy, Symbol: symbol, Quantity: qty, Price: price, Time: at,
	})
	return nil
}

// ApplySell liquidates qty shares at price and returns the realized P/L,
// (price - average cost) * qty. Average cost never changes on a sell; a
// position sold down to exactly zero is removed. The ledger is untouched
// on failure.
func (l *Ledger) ApplySell(symbol string, qty, price float64, at time.Time) (float64, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("sell %s: quantity must be positive, got %v", symbol, qty)
	}
	if price < 0 {
		return 0, fmt.Errorf("sell %s: negative price %v", symbol, price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[symbol]
	if !ok || p.Quantity < qty {
		held := 0.0
		if ok {
			held = p.Quantity
		}
		return 0, fmt.Errorf("sell %.2f %s, hold %.2f: %w",
			qty, symbol, held, ErrInsufficientPosition)
	}

	realized := (price - p.AverageCost) * qty

	l.cash += qty * price
	p.Quantity -= qty
	if p.Quantity == 0 {
		delete(l.positions, symbol)
	} else {
		p.setPrice(price)
	}

	l.trades = append(l.trades, TradeRecord{
		Side: Sell, Symbol: symbol, Quantity: qty, Price: price, Time: at,
		RealizedPL: realized,
	})
	return realized, nil
}

// MarkToMarket refreshes a held position's valuation at price without a
// trade. Unknown symbols are a no-op.
func (l *Ledger) MarkToMarket(symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.positions[symbol]; ok {
		p.setPrice(price)
	}
}

// TotalValue is cash plus the market value of every position.
func (l *Ledger) TotalValue() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.cash
	for _, p := range l.positions {
		total += p.MarketValue
	}
	return total
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Position returns a copy of the named position, if held.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns copies of all positions, sorted by symbol.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Trades returns a copy of the trade log in execution order.
func (l *Ledger) Trades() []TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]TradeRecord, len(l.trades))
	copy(out, l.trades)
	return out
}

func (p *Position) setPrice(price float64) {
	p.CurrentPrice = price
	p.MarketValue = p.Quantity * price
	p.UnrealizedPL = (price - p.AverageCost) * p.Quantity
}
