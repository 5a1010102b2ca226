package strategies

import (
	"context"

	"papertrader/indicators"
)

// RSIReversion buys a symbol when its RSI drops below the oversold
// threshold and sells when it rises above the overbought threshold.
//
// Parameters: symbol (default MSFT), rsi_period (14), oversold (30),
// overbought (70), shares (10).
type RSIReversion struct {
	Symbol     string
	Period     int
	Oversold   float64
	Overbought float64
	Shares     float64
}

func NewRSIReversion(params map[string]any) (Strategy, error) {
	return &RSIReversion{
		Symbol:     paramString(params, "symbol", "MSFT"),
		Period:     paramInt(params, "rsi_period", 14),
		Oversold:   paramFloat(params, "oversold", 30),
		Overbought: paramFloat(params, "overbought", 70),
		Shares:     paramFloat(params, "shares", 10),
	}, nil
}

func (s *RSIReversion) Name() string { return "rsi" }

func (s *RSIReversion) OnTick(_ context.Context, tick *Context) error {
	closes := tick.Closes(s.Symbol)
	if len(closes) <= s.Period {
		return nil
	}

	rsi, err := indicators.RSI(closes, s.Period)
	if err != nil {
		return nil
	}

	price := closes[len(closes)-1]

	switch {
	case rsi < s.Oversold:
		tick.Buy(s.Symbol, s.Shares, price)
	case rsi > s.Overbought:
		tick.Sell(s.Symbol, s.Shares, price)
	}
	return nil
}

func init() {
	Register("rsi", NewRSIReversion)
}
