// Package sim applies externally submitted orders to persisted portfolio
// ledgers, simulating exchange latency, probabilistic fills and slippage.
package sim

import (
	"errors"
	"time"
)

// Side is the order direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Style distinguishes market from limit orders. Both styles resolve the
// same way in the simulator; a limit order simply pins the requested price
// instead of taking the quoted one.
type Style string

const (
	Market Style = "market"
	Limit  Style = "limit"
)

// Status is an order's lifecycle state. pending is the only non-terminal
// state; executed, failed and canceled are final.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// ErrOrderTerminal rejects attempts to act on an already-resolved order,
// including cancel requests that lose the race with execution.
var ErrOrderTerminal = errors.New("order already in a terminal state")

// Order is one buy/sell request against a persisted portfolio.
type Order struct {
	ID          string  `json:"id"`
	PortfolioID string  `json:"portfolio_id"`
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"` // requested price
	Style       Style   `json:"style"`

	Status        Status  `json:"status"`
	ExecutedPrice float64 `json:"executed_price,omitempty"`
	RealizedPL    float64 `json:"realized_pl,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}

// Terminal reports whether the order can no longer change state.
func (o *Order) Terminal() bool {
	return o.Status != StatusPending
}
