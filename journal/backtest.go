package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"papertrader/backtest"
	"papertrader/ledger"
	"papertrader/metrics"
	"papertrader/sim"
)

// SaveBacktest writes the job row and replaces its equity curve and trade
// log, in one transaction. The service calls it once when the job is
// submitted and again each time the run changes state.
func (s *Store) SaveBacktest(ctx context.Context, job *backtest.Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	symbols, err := json.Marshal(job.Symbols)
	if err != nil {
		return fmt.Errorf("encode symbols: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtests
		(id, strategy, params, symbols, start_date, end_date, initial_capital,
		 status, error, final_capital, profit_loss,
		 sharpe_ratio, max_drawdown, win_rate, total_trades,
		 created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			final_capital = excluded.final_capital,
			profit_loss = excluded.profit_loss,
			sharpe_ratio = excluded.sharpe_ratio,
			max_drawdown = excluded.max_drawdown,
			win_rate = excluded.win_rate,
			total_trades = excluded.total_trades,
			finished_at = excluded.finished_at`,
		job.ID, job.Strategy, string(params), string(symbols),
		job.Start, job.End, job.InitialCapital,
		string(job.Status), job.Error, job.FinalCapital, job.ProfitLoss,
		job.Metrics.SharpeRatio, job.Metrics.MaxDrawdown,
		job.Metrics.WinRate, job.Metrics.TotalTrades,
		job.CreatedAt, nullTime(job.FinishedAt),
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM backtest_equity WHERE backtest_id = ?`, job.ID); err != nil {
		return err
	}
	for _, p := range job.EquityCurve {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_equity (backtest_id, date, total_value)
			VALUES (?, ?, ?)`, job.ID, p.Date, p.TotalValue); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM backtest_trades WHERE backtest_id = ?`, job.ID); err != nil {
		return err
	}
	for i, tr := range job.Trades {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO backtest_trades
			(backtest_id, seq, side, symbol, quantity, price, time, realized_pl)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, i, string(tr.Side), tr.Symbol, tr.Quantity,
			tr.Price, tr.Time, tr.RealizedPL); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetBacktest loads a job with its equity curve and trades.
func (s *Store) GetBacktest(ctx context.Context, jobID string) (*backtest.Job, error) {
	var (
		job             backtest.Job
		params, symbols string
		status          string
		finished        sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, params, symbols, start_date, end_date,
		       initial_capital, status, error, final_capital, profit_loss,
		       sharpe_ratio, max_drawdown, win_rate, total_trades,
		       created_at, finished_at
		FROM backtests WHERE id = ?`, jobID,
	).Scan(&job.ID, &job.Strategy, &params, &symbols, &job.Start, &job.End,
		&job.InitialCapital, &status, &job.Error, &job.FinalCapital,
		&job.ProfitLoss, &job.Metrics.SharpeRatio, &job.Metrics.MaxDrawdown,
		&job.Metrics.WinRate, &job.Metrics.TotalTrades,
		&job.CreatedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backtest %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	job.Status = backtest.Status(status)
	if finished.Valid {
		job.FinishedAt = finished.Time
	}
	if err := json.Unmarshal([]byte(params), &job.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if err := json.Unmarshal([]byte(symbols), &job.Symbols); err != nil {
		return nil, fmt.Errorf("decode symbols: %w", err)
	}

	if job.EquityCurve, err = s.loadEquity(ctx, jobID); err != nil {
		return nil, err
	}
	if job.Trades, err = s.loadTrades(ctx, jobID); err != nil {
		return nil, err
	}
	return &job, nil
}

// DeleteBacktest removes a job and its equity curve and trade rows.
func (s *Store) DeleteBacktest(ctx context.Context, jobID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM backtests WHERE id = ?`, jobID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("backtest %s: %w", jobID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM backtest_equity WHERE backtest_id = ?`, jobID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM backtest_trades WHERE backtest_id = ?`, jobID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListBacktests returns all jobs, newest first, without curves or trades.
func (s *Store) ListBacktests(ctx context.Context) ([]*backtest.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, status, start_date, end_date, initial_capital,
		       final_capital, profit_loss, created_at
		FROM backtests ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*backtest.Job
	for rows.Next() {
		var (
			job    backtest.Job
			status string
		)
		if err := rows.Scan(&job.ID, &job.Strategy, &status, &job.Start,
			&job.End, &job.InitialCapital, &job.FinalCapital,
			&job.ProfitLoss, &job.CreatedAt); err != nil {
			return nil, err
		}
		job.Status = backtest.Status(status)
		out = append(out, &job)
	}
	return out, rows.Err()
}

func (s *Store) loadEquity(ctx context.Context, jobID string) ([]metrics.Point, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, total_value FROM backtest_equity
		WHERE backtest_id = ? ORDER BY date`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []metrics.Point
	for rows.Next() {
		var p metrics.Point
		if err := rows.Scan(&p.Date, &p.TotalValue); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) loadTrades(ctx context.Context, jobID string) ([]ledger.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT side, symbol, quantity, price, time, realized_pl
		FROM backtest_trades WHERE backtest_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.TradeRecord
	for rows.Next() {
		var (
			tr   ledger.TradeRecord
			side string
		)
		if err := rows.Scan(&side, &tr.Symbol, &tr.Quantity, &tr.Price,
			&tr.Time, &tr.RealizedPL); err != nil {
			return nil, err
		}
		tr.Side = ledger.Side(side)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// compile-time checks that the store satisfies both consumers.
var (
	_ backtest.Store = (*Store)(nil)
	_ sim.Store      = (*Store)(nil)
)
