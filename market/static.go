package market

import (
	"context"
	"sort"
	"time"
)

// StaticFeed serves bars from memory. It is the deterministic price source
// used by tests and by the one-shot backtest CLI once a dataset is loaded;
// there is no randomness anywhere in the pipeline between a StaticFeed and
// a backtest result.
type StaticFeed struct {
	bars map[string][]Bar
}

// NewStaticFeed builds a feed from the given series. Each series is copied
// and sorted by date so callers can hand over unsorted slices.
func NewStaticFeed(series map[string][]Bar) *StaticFeed {
	f := &StaticFeed{bars: make(map[string][]Bar, len(series))}
	for sym, bars := range series {
		cp := make([]Bar, len(bars))
		copy(cp, bars)
		sort.Slice(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })
		f.bars[sym] = cp
	}
	return f
}

// Add appends bars for a symbol, keeping the series sorted.
func (f *StaticFeed) Add(symbol string, bars ...Bar) {
	s := append(f.bars[symbol], bars...)
	sort.Slice(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
	f.bars[symbol] = s
}

// GetBars implements Feed.
func (f *StaticFeed) GetBars(_ context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	start, end = Day(start), Day(end)

	var out []Bar
	for _, b := range f.bars[symbol] {
		d := Day(b.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, ErrDataUnavailable
	}
	return out, nil
}
