package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CSVFeed reads daily bars from per-symbol CSV files in a directory.
// A symbol SYM is looked up in <dir>/SYM.csv with rows of the form
//
//	date,open,high,low,close,volume
//
// where date is YYYY-MM-DD. A header row is skipped if present. Files are
// parsed once and cached for the lifetime of the feed.
//
// A CSVFeed is safe for concurrent use; parallel backtest jobs share one.
type CSVFeed struct {
	dir string

	mu    sync.Mutex
	cache map[string][]Bar
}

func NewCSVFeed(dir string) *CSVFeed {
	return &CSVFeed{dir: dir, cache: make(map[string][]Bar)}
}

// GetBars implements Feed.
func (f *CSVFeed) GetBars(_ context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	// The lock covers the load too, so a symbol is parsed exactly once no
	// matter how many jobs ask for it at the same time.
	f.mu.Lock()
	bars, ok := f.cache[symbol]
	if !ok {
		var err error
		bars, err = f.load(symbol)
		if err != nil {
			f.mu.Unlock()
			return nil, err
		}
		f.cache[symbol] = bars
	}
	f.mu.Unlock()

	start, end = Day(start), Day(end)
	var out []Bar
	for _, b := range bars {
		if b.Date.Before(start) || b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, ErrDataUnavailable
	}
	return out, nil
}

func (f *CSVFeed) load(symbol string) ([]Bar, error) {
	path := filepath.Join(f.dir, symbol+".csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrDataUnavailable
		}
		return nil, fmt.Errorf("open bars for %s: %w", symbol, err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.TrimLeadingSpace = true

	var bars []Bar
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		line++

		if len(rec) < 6 {
			return nil, fmt.Errorf("%s:%d: want 6 fields, got %d", path, line, len(rec))
		}
		if line == 1 && strings.EqualFold(rec[0], "date") {
			continue // header
		}

		date, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad date %q: %w", path, line, rec[0], err)
		}

		vals := make([]float64, 5)
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad number %q: %w", path, line, rec[i+1], err)
			}
			vals[i] = v
		}

		bars = append(bars, Bar{
			Symbol: symbol,
			Date:   Day(date),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}

	return bars, nil
}
