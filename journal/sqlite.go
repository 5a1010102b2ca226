// Package journal persists portfolios, orders and backtest runs to SQLite.
// One Store serves both the order execution simulator and the backtest
// service; everything lives in a single database file.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/ledger"
	"papertrader/pkg/id"
	"papertrader/sim"
)

// ErrNotFound is returned for lookups of ids the journal has never seen.
var ErrNotFound = errors.New("not found")

// Portfolio is a persisted trading account: identity plus its current
// ledger snapshot.
type Portfolio struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	InitialCapital float64         `json:"initial_capital"`
	CreatedAt      time.Time       `json:"created_at"`
	Snapshot       ledger.Snapshot `json:"snapshot"`
}

type Store struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the journal database at path and
// applies the schema. The busy timeout covers the executor's concurrent
// resolution goroutines writing through one file.
func NewSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreatePortfolio persists a new portfolio with all capital in cash.
func (s *Store) CreatePortfolio(ctx context.Context, name string, initialCapital float64) (*Portfolio, error) {
	if initialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %v", initialCapital)
	}

	p := &Portfolio{
		ID:             id.New(),
		Name:           name,
		InitialCapital: initialCapital,
		CreatedAt:      time.Now().UTC(),
		Snapshot:       ledger.Snapshot{Cash: initialCapital},
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolios (id, name, initial_capital, cash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.InitialCapital, p.Snapshot.Cash, p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPortfolio returns a portfolio with its positions.
func (s *Store) GetPortfolio(ctx context.Context, portfolioID string) (*Portfolio, error) {
	p := &Portfolio{ID: portfolioID}
	err := s.db.QueryRowContext(ctx, `
		SELECT name, initial_capital, cash, created_at
		FROM portfolios WHERE id = ?`, portfolioID,
	).Scan(&p.Name, &p.InitialCapital, &p.Snapshot.Cash, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("portfolio %s: %w", portfolioID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	p.Snapshot.Positions, err = s.loadPositions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPortfolios returns all portfolios without their positions, newest
// first.
func (s *Store) ListPortfolios(ctx context.Context) ([]*Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, initial_capital, cash, created_at
		FROM portfolios ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Portfolio
	for rows.Next() {
		p := &Portfolio{}
		if err := rows.Scan(&p.ID, &p.Name, &p.InitialCapital, &p.Snapshot.Cash, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LoadPortfolio returns just the ledger snapshot, for the executor.
func (s *Store) LoadPortfolio(ctx context.Context, portfolioID string) (ledger.Snapshot, error) {
	p, err := s.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return p.Snapshot, nil
}

func (s *Store) loadPositions(ctx context.Context, portfolioID string) ([]ledger.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, quantity, average_cost, current_price
		FROM positions WHERE portfolio_id = ? ORDER BY symbol`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Position
	for rows.Next() {
		var p ledger.Position
		if err := rows.Scan(&p.Symbol, &p.Quantity, &p.AverageCost, &p.CurrentPrice); err != nil {
			return nil, err
		}
		p.MarketValue = p.Quantity * p.CurrentPrice
		p.UnrealizedPL = (p.CurrentPrice - p.AverageCost) * p.Quantity
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveOrder inserts or updates a single order row.
func (s *Store) SaveOrder(ctx context.Context, o *sim.Order) error {
	_, err := s.db.ExecContext(ctx, upsertOrderSQL, orderArgs(o)...)
	return err
}

// GetOrder returns one order by id.
func (s *Store) GetOrder(ctx context.Context, orderID string) (*sim.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `
		SELECT id, portfolio_id, symbol, side, quantity, price, style,
		       status, executed_price, realized_pl, created_at, resolved_at
		FROM orders WHERE id = ?`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return o, err
}

// ListOrders returns a portfolio's orders in submission order.
func (s *Store) ListOrders(ctx context.Context, portfolioID string) ([]*sim.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, portfolio_id, symbol, side, quantity, price, style,
		       status, executed_price, realized_pl, created_at, resolved_at
		FROM orders WHERE portfolio_id = ? ORDER BY created_at, id`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*sim.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SaveExecution commits an executed order together with the portfolio
// snapshot it produced, in one transaction. Either both land or neither
// does; a crash between them cannot leave a filled order against a
// pre-trade ledger.
func (s *Store) SaveExecution(ctx context.Context, o *sim.Order, snap ledger.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, upsertOrderSQL, orderArgs(o)...); err != nil {
		return err
	}
	if err := savePositionsTx(ctx, tx, o.PortfolioID, snap); err != nil {
		return err
	}
	return tx.Commit()
}

// SavePortfolioSnapshot replaces a portfolio's cash and positions, for
// callers outside the execution path (mark-to-market refresh).
func (s *Store) SavePortfolioSnapshot(ctx context.Context, portfolioID string, snap ledger.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := savePositionsTx(ctx, tx, portfolioID, snap); err != nil {
		return err
	}
	return tx.Commit()
}

func savePositionsTx(ctx context.Context, tx *sql.Tx, portfolioID string, snap ledger.Snapshot) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE portfolios SET cash = ? WHERE id = ?`, snap.Cash, portfolioID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("portfolio %s: %w", portfolioID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM positions WHERE portfolio_id = ?`, portfolioID); err != nil {
		return err
	}
	for _, p := range snap.Positions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO positions (portfolio_id, symbol, quantity, average_cost, current_price)
			VALUES (?, ?, ?, ?, ?)`,
			portfolioID, p.Symbol, p.Quantity, p.AverageCost, p.CurrentPrice); err != nil {
			return err
		}
	}
	return nil
}

const upsertOrderSQL = `
	INSERT INTO orders
	(id, portfolio_id, symbol, side, quantity, price, style, status,
	 executed_price, realized_pl, created_at, resolved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		executed_price = excluded.executed_price,
		realized_pl = excluded.realized_pl,
		resolved_at = excluded.resolved_at`

func orderArgs(o *sim.Order) []any {
	return []any{
		o.ID, o.PortfolioID, o.Symbol, string(o.Side), o.Quantity, o.Price,
		string(o.Style), string(o.Status), o.ExecutedPrice, o.RealizedPL,
		o.CreatedAt, nullTime(o.ResolvedAt),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*sim.Order, error) {
	var (
		o           sim.Order
		side, style string
		status      string
		resolved    sql.NullTime
	)
	err := row.Scan(&o.ID, &o.PortfolioID, &o.Symbol, &side, &o.Quantity,
		&o.Price, &style, &status, &o.ExecutedPrice, &o.RealizedPL,
		&o.CreatedAt, &resolved)
	if err != nil {
		return nil, err
	}
	o.Side = sim.Side(side)
	o.Style = sim.Style(style)
	o.Status = sim.Status(status)
	if resolved.Valid {
		o.ResolvedAt = resolved.Time
	}
	return &o, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
