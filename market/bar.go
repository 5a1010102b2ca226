// Package market defines OHLCV bars and the feeds that supply them.
package market

import (
	"context"
	"errors"
	"time"
)

// ErrDataUnavailable is returned by a Feed when no bars exist for the
// requested symbol and range.
var ErrDataUnavailable = errors.New("market data unavailable")

// Bar is one OHLCV observation for a symbol on a trading day.
// Bars are immutable once produced by a feed.
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Feed supplies ordered bars per symbol over a date range.
type Feed interface {
	// GetBars returns the symbol's bars with dates in [start, end],
	// ascending. It returns ErrDataUnavailable when the series is empty.
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// Day truncates t to midnight UTC. All calendar arithmetic in backtests
// works on Day-normalized dates so bars from different feeds line up.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
