package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"papertrader/ledger"
	"papertrader/pkg/id"
)

// Store is the persistence the executor needs. journal.Store satisfies it.
// SaveExecution must write the order and the portfolio snapshot in a single
// transaction: order status and ledger state change as one logical unit.
type Store interface {
	LoadPortfolio(ctx context.Context, portfolioID string) (ledger.Snapshot, error)
	SavePortfolioSnapshot(ctx context.Context, portfolioID string, snap ledger.Snapshot) error
	SaveOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	SaveExecution(ctx context.Context, o *Order, snap ledger.Snapshot) error
}

// Options tunes the simulated exchange. Rand and Sleep exist so tests can
// run instantly and deterministically.
type Options struct {
	MinDelay        time.Duration // lower bound of simulated latency
	MaxDelay        time.Duration // upper bound
	FillProbability float64       // chance a pending order fills at all
	Slippage        float64       // symmetric bound on price slippage, e.g. 0.001

	Rand  *rand.Rand
	Sleep func(time.Duration)
}

// DefaultOptions mirrors the long-standing simulator behavior: 1-3s
// latency, 95% fills, ±0.1% slippage.
func DefaultOptions() Options {
	return Options{
		MinDelay:        1 * time.Second,
		MaxDelay:        3 * time.Second,
		FillProbability: 0.95,
		Slippage:        0.001,
	}
}

// Executor resolves orders against persisted portfolio ledgers.
//
// Concurrency discipline: all resolution work for one portfolio happens
// under that portfolio's lock — the simulated delay does not, so callers
// are never blocked by it. Orders against different portfolios proceed
// independently. Cancellation is first-committer-wins: a cancel that takes
// the lock first sticks; one that arrives after the resolver re-read a
// still-pending order loses.
type Executor struct {
	store  Store
	oracle Oracle
	opts   Options
	log    *zap.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	ledgers map[string]*ledger.Ledger

	randMu sync.Mutex
	wg     sync.WaitGroup
}

func NewExecutor(store Store, oracle Oracle, opts Options, log *zap.Logger) *Executor {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		store:   store,
		oracle:  oracle,
		opts:    opts,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
		ledgers: make(map[string]*ledger.Ledger),
	}
}

// Submit validates the order, persists it as pending and schedules its
// resolution. It returns as soon as the pending order is durable.
func (e *Executor) Submit(ctx context.Context, portfolioID, symbol string,
	side Side, qty float64, style Style, price float64) (*Order, error) {

	if side != Buy && side != Sell {
		return nil, fmt.Errorf("side must be buy or sell, got %q", side)
	}
	if style == "" {
		style = Market
	}
	if style != Market && style != Limit {
		return nil, fmt.Errorf("style must be market or limit, got %q", style)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %v", qty)
	}

	// Market orders without an explicit price take the oracle quote.
	if price <= 0 {
		if style == Limit {
			return nil, fmt.Errorf("limit order needs a positive price")
		}
		q, err := e.oracle.Quote(symbol)
		if err != nil {
			return nil, fmt.Errorf("price %s: %w", symbol, err)
		}
		price = q
	}

	// Fail fast on unknown portfolios, and warm the ledger cache.
	if _, err := e.portfolioLedger(ctx, portfolioID); err != nil {
		return nil, err
	}

	o := &Order{
		ID:          id.New(),
		PortfolioID: portfolioID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    qty,
		Price:       price,
		Style:       style,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.store.SaveOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.resolve(context.Background(), o)
	}()

	return o, nil
}

// Cancel voids a still-pending order. Once resolution has begun (the
// resolver holds the portfolio lock), the cancel waits its turn and then
// fails with ErrOrderTerminal.
func (e *Executor) Cancel(ctx context.Context, orderID string) (*Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	lock := e.portfolioLock(o.PortfolioID)
	lock.Lock()
	defer lock.Unlock()

	o, err = e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Terminal() {
		return o, fmt.Errorf("cancel %s: %w", orderID, ErrOrderTerminal)
	}

	o.Status = StatusCanceled
	o.ResolvedAt = time.Now().UTC()
	if err := e.store.SaveOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("persist cancel: %w", err)
	}
	return o, nil
}

// MarkToMarket revalues a portfolio's positions at current oracle quotes
// and persists the refreshed snapshot. Symbols the oracle cannot quote keep
// their last known price. Runs under the portfolio lock, so it never
// interleaves with an order resolution.
func (e *Executor) MarkToMarket(ctx context.Context, portfolioID string) (ledger.Snapshot, error) {
	lock := e.portfolioLock(portfolioID)
	lock.Lock()
	defer lock.Unlock()

	l, err := e.portfolioLedger(ctx, portfolioID)
	if err != nil {
		return ledger.Snapshot{}, err
	}

	for _, p := range l.Positions() {
		if q, err := e.oracle.Quote(p.Symbol); err == nil {
			l.MarkToMarket(p.Symbol, q)
		}
	}

	snap := l.Snapshot()
	if err := e.store.SavePortfolioSnapshot(ctx, portfolioID, snap); err != nil {
		e.mu.Lock()
		delete(e.ledgers, portfolioID)
		e.mu.Unlock()
		return ledger.Snapshot{}, fmt.Errorf("persist snapshot: %w", err)
	}
	return snap, nil
}

// Get returns the persisted order by id.
func (e *Executor) Get(ctx context.Context, orderID string) (*Order, error) {
	return e.store.GetOrder(ctx, orderID)
}

// Wait blocks until every scheduled resolution has finished.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) resolve(ctx context.Context, o *Order) {
	// Simulated exchange latency, off any lock and any caller path.
	e.opts.Sleep(e.delay())

	lock := e.portfolioLock(o.PortfolioID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: the order may have been canceled while we
	// were sleeping. That cancel wins.
	cur, err := e.store.GetOrder(ctx, o.ID)
	if err != nil {
		e.log.Error("re-read order", zap.String("order", o.ID), zap.Error(err))
		return
	}
	if cur.Terminal() {
		return
	}
	o = cur

	l, err := e.portfolioLedger(ctx, o.PortfolioID)
	if err != nil {
		e.failOrder(ctx, o, err)
		return
	}

	if !e.roll(e.opts.FillProbability) {
		e.failOrder(ctx, o, fmt.Errorf("simulated non-fill"))
		return
	}

	execPrice := o.Price * (1 + e.slip())

	var realized float64
	switch o.Side {
	case Buy:
		err = l.ApplyBuy(o.Symbol, o.Quantity, execPrice, time.Now().UTC())
	case Sell:
		realized, err = l.ApplySell(o.Symbol, o.Quantity, execPrice, time.Now().UTC())
	}
	if err != nil {
		// Ledger rejection (insufficient funds/position): the ledger is
		// untouched, so only the order record changes.
		e.failOrder(ctx, o, err)
		return
	}

	o.Status = StatusExecuted
	o.ExecutedPrice = execPrice
	o.RealizedPL = realized
	o.ResolvedAt = time.Now().UTC()

	if err := e.store.SaveExecution(ctx, o, l.Snapshot()); err != nil {
		// The transaction rolled back: disk still has the pre-trade state.
		// Drop the diverged in-memory ledger so the next order reloads it.
		e.log.Error("persist execution", zap.String("order", o.ID), zap.Error(err))
		e.mu.Lock()
		delete(e.ledgers, o.PortfolioID)
		e.mu.Unlock()
		return
	}

	e.log.Info("order executed",
		zap.String("order", o.ID),
		zap.String("portfolio", o.PortfolioID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.Float64("price", execPrice))
}

func (e *Executor) failOrder(ctx context.Context, o *Order, cause error) {
	o.Status = StatusFailed
	o.ResolvedAt = time.Now().UTC()
	if err := e.store.SaveOrder(ctx, o); err != nil {
		e.log.Error("persist failed order", zap.String("order", o.ID), zap.Error(err))
		return
	}
	e.log.Info("order failed",
		zap.String("order", o.ID),
		zap.String("symbol", o.Symbol),
		zap.String("cause", cause.Error()))
}

func (e *Executor) portfolioLock(portfolioID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[portfolioID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[portfolioID] = lock
	}
	return lock
}

// portfolioLedger returns the cached live ledger for a portfolio, loading
// the persisted snapshot on first use.
func (e *Executor) portfolioLedger(ctx context.Context, portfolioID string) (*ledger.Ledger, error) {
	e.mu.Lock()
	if l, ok := e.ledgers[portfolioID]; ok {
		e.mu.Unlock()
		return l, nil
	}
	e.mu.Unlock()

	snap, err := e.store.LoadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load portfolio %s: %w", portfolioID, err)
	}
	l := ledger.FromSnapshot(snap)

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.ledgers[portfolioID]; ok {
		return existing, nil
	}
	e.ledgers[portfolioID] = l
	return l, nil
}

func (e *Executor) delay() time.Duration {
	if e.opts.MaxDelay <= e.opts.MinDelay {
		return e.opts.MinDelay
	}
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return e.opts.MinDelay + time.Duration(e.opts.Rand.Int63n(int64(e.opts.MaxDelay-e.opts.MinDelay)))
}

func (e *Executor) roll(p float64) bool {
	if p >= 1 {
		return true
	}
	if p <= 0 {
		return false
	}
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return e.opts.Rand.Float64() < p
}

func (e *Executor) slip() float64 {
	if e.opts.Slippage == 0 {
		return 0
	}
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return (e.opts.Rand.Float64()*2 - 1) * e.opts.Slippage
}
