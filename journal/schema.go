package journal

// row_idx -1 in metrics holds the run's own metrics; optimization rows use
// their combination index.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	created DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	strategy TEXT NOT NULL,
	params TEXT NOT NULL,
	backtest TEXT NOT NULL,
	start_time DATETIME,
	end_time DATETIME,
	initial_capital REAL NOT NULL,
	final_equity REAL NOT NULL,
	metric TEXT NOT NULL DEFAULT '',
	combinations INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	partial INTEGER NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS metrics (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	row_idx INTEGER NOT NULL,
	name TEXT NOT NULL,
	value REAL,
	PRIMARY KEY (run_id, row_idx, name)
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	entry_seq INTEGER NOT NULL,
	time DATETIME NOT NULL,
	side INTEGER NOT NULL,
	order_action INTEGER NOT NULL,
	order_trigger INTEGER NOT NULL,
	label TEXT NOT NULL,
	level REAL NOT NULL,
	price REAL NOT NULL,
	shares INTEGER NOT NULL,
	cost REAL NOT NULL,
	revenue REAL NOT NULL,
	commission REAL NOT NULL,
	margin REAL NOT NULL,
	pnl REAL NOT NULL,
	equity REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	idx INTEGER NOT NULL,
	time DATETIME NOT NULL,
	equity REAL NOT NULL,
	buy_hold REAL NOT NULL,
	PRIMARY KEY (run_id, idx)
);

CREATE TABLE IF NOT EXISTS optimization_rows (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	idx INTEGER NOT NULL,
	params TEXT NOT NULL,
	score REAL NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created);
CREATE INDEX IF NOT EXISTS idx_runs_strategy ON runs(strategy, symbol);
`
