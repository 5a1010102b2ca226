// Package indicators provides the technical indicators used by the built-in
// strategies. All functions operate on a slice of close prices in ascending
// date order and evaluate at the final element.
package indicators

import "fmt"

// SMA returns the simple moving average of the last period closes.
func SMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("sma: period must be positive, got %d", period)
	}
	if len(closes) < period {
		return 0, fmt.Errorf("sma: need %d closes, got %d", period, len(closes))
	}

	sum := 0.0
	for _, c := range closes[len(closes)-period:] {
		sum += c
	}
	return sum / float64(period), nil
}

// EMA returns the exponential moving average over the full series, seeded
// with the SMA of the first period closes.
func EMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("ema: period must be positive, got %d", period)
	}
	if len(closes) < period {
		return 0, fmt.Errorf("ema: need %d closes, got %d", period, len(closes))
	}

	sma := 0.0
	for _, c := range closes[:period] {
		sma += c
	}
	ema := sma / float64(period)

	k := 2.0 / float64(period+1)
	for _, c := range closes[period:] {
		ema = (c-ema)*k + ema
	}
	return ema, nil
}

// RSI returns the Wilder relative strength index of the last period price
// changes. A series with no losses scores 100, no gains scores 0.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi: period must be positive, got %d", period)
	}
	if len(closes) < period+1 {
		return 0, fmt.Errorf("rsi: need %d closes, got %d", period+1, len(closes))
	}

	var gain, loss float64
	start := len(closes) - period
	for i := start; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}

	if loss == 0 {
		if gain == 0 {
			return 50, nil // flat window: neither overbought nor oversold
		}
		return 100, nil
	}

	rs := gain / loss
	return 100 - 100/(1+rs), nil
}
