package strategies

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrader/ledger"
	"papertrader/market"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	names := Names()
	assert.Contains(t, names, "noop")
	assert.Contains(t, names, "ma-cross")
	assert.Contains(t, names, "rsi")

	_, err := New("no-such-strategy", nil)
	assert.Error(t, err)

	s, err := New("  MA-Cross ", map[string]any{"symbol": "X", "short_window": 2})
	require.NoError(t, err)
	mc := s.(*MACross)
	assert.Equal(t, "X", mc.Symbol)
	assert.Equal(t, 2, mc.ShortWindow)
	assert.Equal(t, 20, mc.LongWindow, "default applies")
}

func TestContext_BuySellSwallowFailures(t *testing.T) {
	t.Parallel()

	l := ledger.New(100)
	tick := NewContext(time.Now(), nil, nil, l)

	assert.False(t, tick.Buy("AAPL", 10, 100), "insufficient funds")
	assert.False(t, tick.Sell("AAPL", 1, 100), "nothing held")
	assert.Equal(t, 100.0, l.Cash())

	assert.True(t, tick.Buy("AAPL", 1, 50))
	assert.Equal(t, 50.0, l.Cash())
}

func barsFromCloses(symbol string, closes []float64) []market.Bar {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{Symbol: symbol, Date: t0.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func TestMACross_BuysOnUpwardCross(t *testing.T) {
	t.Parallel()

	s, err := New("ma-cross", map[string]any{
		"symbol": "X", "short_window": 2, "long_window": 4, "shares": 10,
	})
	require.NoError(t, err)

	// Flat then a jump: short SMA crosses above long SMA on the last bar.
	closes := []float64{10, 10, 10, 10, 20}
	l := ledger.New(1000)
	tick := NewContext(time.Now(), map[string][]market.Bar{
		"X": barsFromCloses("X", closes),
	}, nil, l)

	require.NoError(t, s.OnTick(context.Background(), tick))

	p, ok := l.Position("X")
	require.True(t, ok, "cross should trigger a buy")
	assert.Equal(t, 10.0, p.Quantity)
	assert.Equal(t, 20.0, p.AverageCost)
}

func TestMACross_NoTradeDuringWarmup(t *testing.T) {
	t.Parallel()

	s, err := New("ma-cross", map[string]any{"symbol": "X", "short_window": 2, "long_window": 4})
	require.NoError(t, err)

	l := ledger.New(1000)
	tick := NewContext(time.Now(), map[string][]market.Bar{
		"X": barsFromCloses("X", []float64{10, 20}),
	}, nil, l)

	require.NoError(t, s.OnTick(context.Background(), tick))
	assert.Empty(t, l.Trades())
}

func TestRSIReversion_BuysOversold(t *testing.T) {
	t.Parallel()

	s, err := New("rsi", map[string]any{"symbol": "X", "rsi_period": 4, "shares": 5})
	require.NoError(t, err)

	// Steady decline: RSI 0, well under the 30 threshold.
	closes := []float64{50, 48, 46, 44, 42}
	l := ledger.New(1000)
	tick := NewContext(time.Now(), map[string][]market.Bar{
		"X": barsFromCloses("X", closes),
	}, nil, l)

	require.NoError(t, s.OnTick(context.Background(), tick))

	p, ok := l.Position("X")
	require.True(t, ok)
	assert.Equal(t, 5.0, p.Quantity)
	assert.Equal(t, 42.0, p.AverageCost)
}
