package backtest

import (
	"time"

	"papertrader/ledger"
	"papertrader/metrics"
)

// Status is a backtest job's lifecycle state. Transitions are one-way:
// pending -> running -> completed|failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one backtest: its request, lifecycle state, and — once finished —
// its results. A job owns a private ledger while running; only the
// resulting snapshot outlives the run.
type Job struct {
	ID             string         `json:"id"`
	Strategy       string         `json:"strategy"`
	Params         map[string]any `json:"parameters,omitempty"`
	Symbols        []string       `json:"symbols"`
	Start          time.Time      `json:"start_date"`
	End            time.Time      `json:"end_date"`
	InitialCapital float64        `json:"initial_capital"`

	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`

	FinalCapital float64              `json:"final_capital"`
	ProfitLoss   float64              `json:"profit_loss"`
	Metrics      metrics.Summary      `json:"metrics"`
	EquityCurve  []metrics.Point      `json:"equity_curve,omitempty"`
	Trades       []ledger.TradeRecord `json:"trades,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
