// Package metrics derives performance figures from a backtest's trade log
// and equity curve.
package metrics

import (
	"math"
	"time"

	"papertrader/ledger"
)

// annualization factor: trading days per year.
const tradingDays = 252

// Point is one observation on an equity curve.
type Point struct {
	Date       time.Time `json:"date"`
	TotalValue float64   `json:"total_value"`
}

// Summary holds the derived performance metrics for a run.
type Summary struct {
	SharpeRatio float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"`
	TotalTrades int     `json:"total_trades"`
}

// Compute evaluates all metrics over a completed run.
func Compute(trades []ledger.TradeRecord, equity []Point) Summary {
	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.TotalValue
	}
	return Summary{
		SharpeRatio: Sharpe(values),
		MaxDrawdown: MaxDrawdown(values),
		WinRate:     WinRate(trades),
		TotalTrades: len(trades),
	}
}

// Sharpe is the annualized Sharpe ratio of the curve's daily simple
// returns, with no risk-free-rate subtraction: mean(r)/stddev(r)*sqrt(252).
// Curves with fewer than two points, or with zero return variance, score 0.
func Sharpe(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if prev == 0 {
			return 0
		}
		returns = append(returns, (values[i]-prev)/prev)
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDays)
}

// MaxDrawdown is the largest peak-to-trough decline of the curve as a
// fraction of the peak, 0 for an empty curve.
func MaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	peak := values[0]
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// WinRate pairs each sell with the symbol's most recent logged buy and
// scores it as a win when the sell price beats that buy's price. The result
// is wins over the number of paired sells, 0 when there are none.
//
// Pairing tie-break: every buy overwrites the symbol's pairing slot, so
// when several buys of one symbol land on the same day all later sells are
// scored against the last of them. A sell with no logged buy (cannot happen
// in a backtest, which starts flat) is skipped entirely.
func WinRate(trades []ledger.TradeRecord) float64 {
	buys := make(map[string]ledger.TradeRecord)
	wins, sells := 0, 0
	for _, tr := range trades {
		switch tr.Side {
		case ledger.Buy:
			buys[tr.Symbol] = tr
		case ledger.Sell:
			buy, ok := buys[tr.Symbol]
			if !ok {
				continue
			}
			sells++
			if tr.Price > buy.Price {
				wins++
			}
		}
	}
	if sells == 0 {
		return 0
	}
	return float64(wins) / float64(sells)
}
