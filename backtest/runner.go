// Package backtest replays historical bars through a strategy, day by day,
// against a private ledger, and reduces the outcome to metrics.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"papertrader/ledger"
	"papertrader/market"
	"papertrader/metrics"
	"papertrader/strategies"
)

// Runner drives one Job through its state machine. The zero value is not
// usable; construct with NewRunner.
type Runner struct {
	feed market.Feed
	log  *zap.Logger
}

func NewRunner(feed market.Feed, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{feed: feed, log: log}
}

// Run executes the job to a terminal state. Every failure mode — missing
// data, a strategy error or panic — is captured on the job itself; Run
// never returns an error and never lets a strategy panic escape. Partial
// trades and equity points recorded before a failure stay on the job.
func (r *Runner) Run(ctx context.Context, job *Job) {
	job.Status = StatusRunning

	l := ledger.New(job.InitialCapital)
	defer func() {
		job.Trades = l.Trades()
		job.FinishedAt = time.Now().UTC()
		if rec := recover(); rec != nil {
			r.fail(job, fmt.Errorf("strategy panic: %v", rec))
		}
	}()

	strat, err := strategies.New(job.Strategy, job.Params)
	if err != nil {
		r.fail(job, err)
		return
	}

	series, calendar, err := r.loadSeries(ctx, job)
	if err != nil {
		r.fail(job, err)
		return
	}

	// lastClose carries a symbol's most recent close forward over days it
	// has no bar, so mark-to-market never rewinds to a stale price.
	lastClose := make(map[string]float64)
	cursor := make(map[string]int, len(series))

	for _, day := range calendar {
		snapshot := make(map[string][]market.Bar, len(series))
		for sym, bars := range series {
			i := cursor[sym]
			for i < len(bars) && !bars[i].Date.After(day) {
				i++
			}
			cursor[sym] = i
			snapshot[sym] = bars[:i]
			if i > 0 && bars[i-1].Date.Equal(day) {
				lastClose[sym] = bars[i-1].Close
			}
		}

		tick := strategies.NewContext(day, snapshot, job.Params, l)
		if err := strat.OnTick(ctx, tick); err != nil {
			r.fail(job, fmt.Errorf("strategy %s on %s: %w",
				job.Strategy, day.Format("2006-01-02"), err))
			return
		}

		for _, p := range l.Positions() {
			if px, ok := lastClose[p.Symbol]; ok {
				l.MarkToMarket(p.Symbol, px)
			}
		}

		job.EquityCurve = append(job.EquityCurve, metrics.Point{
			Date:       day,
			TotalValue: l.TotalValue(),
		})
	}

	job.Trades = l.Trades()
	job.Metrics = metrics.Compute(job.Trades, job.EquityCurve)
	job.FinalCapital = l.TotalValue()
	job.ProfitLoss = job.FinalCapital - job.InitialCapital
	job.Status = StatusCompleted

	r.log.Info("backtest completed",
		zap.String("job", job.ID),
		zap.String("strategy", job.Strategy),
		zap.Int("trades", job.Metrics.TotalTrades),
		zap.Float64("profit_loss", job.ProfitLoss))
}

// loadSeries fetches every symbol's bars and builds the trading calendar:
// the sorted union of all bar dates inside the job's range. Symbols with no
// data are skipped; if all are empty the job cannot run at all.
func (r *Runner) loadSeries(ctx context.Context, job *Job) (map[string][]market.Bar, []time.Time, error) {
	series := make(map[string][]market.Bar)
	dates := make(map[time.Time]struct{})

	for _, sym := range job.Symbols {
		bars, err := r.feed.GetBars(ctx, sym, job.Start, job.End)
		if errors.Is(err, market.ErrDataUnavailable) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("bars for %s: %w", sym, err)
		}
		for i := range bars {
			bars[i].Date = market.Day(bars[i].Date)
			dates[bars[i].Date] = struct{}{}
		}
		series[sym] = bars
	}

	if len(series) == 0 {
		return nil, nil, market.ErrDataUnavailable
	}

	calendar := make([]time.Time, 0, len(dates))
	for d := range dates {
		calendar = append(calendar, d)
	}
	sort.Slice(calendar, func(i, j int) bool { return calendar[i].Before(calendar[j]) })
	return series, calendar, nil
}

func (r *Runner) fail(job *Job, err error) {
	job.Status = StatusFailed
	job.Error = err.Error()
	r.log.Warn("backtest failed",
		zap.String("job", job.ID),
		zap.String("strategy", job.Strategy),
		zap.Error(err))
}
