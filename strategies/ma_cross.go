package strategies

import (
	"context"

	"papertrader/indicators"
)

// MACross trades a single symbol on a short/long moving average crossover:
// buy when the short average crosses above the long one, sell the same
// clip when it crosses back below.
//
// Parameters: symbol (default AAPL), short_window (5), long_window (20),
// shares (10).
type MACross struct {
	Symbol      string
	ShortWindow int
	LongWindow  int
	Shares      float64
}

func NewMACross(params map[string]any) (Strategy, error) {
	return &MACross{
		Symbol:      paramString(params, "symbol", "AAPL"),
		ShortWindow: paramInt(params, "short_window", 5),
		LongWindow:  paramInt(params, "long_window", 20),
		Shares:      paramFloat(params, "shares", 10),
	}, nil
}

func (s *MACross) Name() string { return "ma-cross" }

func (s *MACross) OnTick(_ context.Context, tick *Context) error {
	closes := tick.Closes(s.Symbol)
	// Need one extra close so yesterday's averages exist too.
	if len(closes) <= s.LongWindow {
		return nil
	}

	shortNow, err := indicators.SMA(closes, s.ShortWindow)
	if err != nil {
		return nil
	}
	longNow, err := indicators.SMA(closes, s.LongWindow)
	if err != nil {
		return nil
	}

	prev := closes[:len(closes)-1]
	shortPrev, err := indicators.SMA(prev, s.ShortWindow)
	if err != nil {
		return nil
	}
	longPrev, err := indicators.SMA(prev, s.LongWindow)
	if err != nil {
		return nil
	}

	price := closes[len(closes)-1]

	switch {
	case shortPrev < longPrev && shortNow > longNow:
		tick.Buy(s.Symbol, s.Shares, price)
	case shortPrev > longPrev && shortNow < longNow:
		tick.Sell(s.Symbol, s.Shares, price)
	}
	return nil
}

func init() {
	Register("ma-cross", NewMACross)
}
