// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS portfolios (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	initial_capital REAL NOT NULL,
	cash REAL NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	portfolio_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	quantity REAL NOT NULL,
	average_cost REAL NOT NULL,
	current_price REAL NOT NULL,
	PRIMARY KEY (portfolio_id, symbol)
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	portfolio_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	style TEXT NOT NULL,
	status TEXT NOT NULL,
	executed_price REAL NOT NULL DEFAULT 0,
	realized_pl REAL NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	resolved_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_orders_portfolio ON orders(portfolio_id, created_at);

CREATE TABLE IF NOT EXISTS backtests (
	id TEXT PRIMARY KEY,
	strategy TEXT NOT NULL,
	params TEXT NOT NULL,
	symbols TEXT NOT NULL,
	start_date DATETIME NOT NULL,
	end_date DATETIME NOT NULL,
	initial_capital REAL NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	final_capital REAL NOT NULL DEFAULT 0,
	profit_loss REAL NOT NULL DEFAULT 0,
	sharpe_ratio REAL NOT NULL DEFAULT 0,
	max_drawdown REAL NOT NULL DEFAULT 0,
	win_rate REAL NOT NULL DEFAULT 0,
	total_trades INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS backtest_equity (
	backtest_id TEXT NOT NULL,
	date DATETIME NOT NULL,
	total_value REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backtest_equity ON backtest_equity(backtest_id, date);

CREATE TABLE IF NOT EXISTS backtest_trades (
	backtest_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	side TEXT NOT NULL,
	symbol TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	time DATETIME NOT NULL,
	realized_pl REAL NOT NULL,
	PRIMARY KEY (backtest_id, seq)
);
`
