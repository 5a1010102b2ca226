package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"papertrader/market"
	"papertrader/pkg/id"
	"papertrader/strategies"
)

// Store is the slice of persistence the service needs: jobs must be
// durably written and re-readable by id. journal.Store satisfies it.
type Store interface {
	SaveBacktest(ctx context.Context, job *Job) error
	GetBacktest(ctx context.Context, jobID string) (*Job, error)
}

// Service accepts backtest submissions and runs them as fire-and-forget
// background jobs. Each job gets its own runner goroutine and private
// ledger, so concurrent jobs never contend; there is deliberately no
// timeout or iteration cap — callers impose their own budget.
type Service struct {
	runner *Runner
	store  Store
	log    *zap.Logger
	wg     sync.WaitGroup
}

func NewService(feed market.Feed, store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		runner: NewRunner(feed, log),
		store:  store,
		log:    log,
	}
}

// Submit validates the request, persists a pending job and schedules it.
// It returns as soon as the job is durable; progress is observed by
// polling Get.
func (s *Service) Submit(ctx context.Context, strategy string, params map[string]any,
	symbols []string, start, end time.Time, initialCapital float64) (*Job, error) {

	if _, err := strategies.New(strategy, params); err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols requested")
	}
	if initialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %v", initialCapital)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	job := &Job{
		ID:             id.New(),
		Strategy:       strategy,
		Params:         params,
		Symbols:        symbols,
		Start:          market.Day(start),
		End:            market.Day(end),
		InitialCapital: initialCapital,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.SaveBacktest(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	// The runner goroutine owns job from here on. Callers get a detached
	// copy of the pending handle, so reading (or marshaling) it never races
	// with the run.
	handle := *job

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Detached from the submitter's request context: the job keeps
		// running after the submitting HTTP request ends.
		runCtx := context.Background()
		// Make the running transition observable to pollers before the
		// (possibly long) replay starts.
		job.Status = StatusRunning
		if err := s.store.SaveBacktest(runCtx, job); err != nil {
			s.log.Error("persist running transition",
				zap.String("job", job.ID), zap.Error(err))
		}
		s.runner.Run(runCtx, job)
		if err := s.store.SaveBacktest(runCtx, job); err != nil {
			s.log.Error("persist backtest result",
				zap.String("job", job.ID), zap.Error(err))
		}
	}()

	return &handle, nil
}

// Get returns the persisted job by id.
func (s *Service) Get(ctx context.Context, jobID string) (*Job, error) {
	return s.store.GetBacktest(ctx, jobID)
}

// Wait blocks until all in-flight jobs have finished. Used by tests and
// by graceful shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}
