package journal

// Dates are stored as YYYY-MM-DD text and timestamps as RFC 3339 text.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	policy TEXT NOT NULL,
	created_at TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	assets TEXT NOT NULL,
	benchmark TEXT NOT NULL DEFAULT '',
	total_return REAL NOT NULL,
	cagr REAL NOT NULL,
	volatility REAL NOT NULL,
	sharpe REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	final_weights TEXT NOT NULL,
	stats TEXT NOT NULL,
	config TEXT NOT NULL,
	extra TEXT,
	note TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	date TEXT NOT NULL,
	equity REAL NOT NULL,
	benchmark REAL,
	PRIMARY KEY (run_id, date)
);

CREATE TABLE IF NOT EXISTS rebalances (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	date TEXT NOT NULL,
	decided_as_of TEXT NOT NULL,
	turnover REAL NOT NULL,
	cost REAL NOT NULL,
	equity REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	asset TEXT NOT NULL,
	from_weight REAL NOT NULL,
	to_weight REAL NOT NULL,
	price REAL NOT NULL,
	shares INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, seq);
`
