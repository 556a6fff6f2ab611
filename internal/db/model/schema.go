// Package model holds the per-model database schema and repositories:
// events, pricing details, analytics, and processing/job-queue state.
package model

import "database/sql"

// Schema is the model database's DDL, applied once at startup per model.
// Every event table shares the `content_id` uniqueness invariant:
// repeated ingestion of the same event is a no-op.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	content_id TEXT PRIMARY KEY,
	tx_hash TEXT NOT NULL,
	block_number INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	taker TEXT NOT NULL,
	direction TEXT NOT NULL,
	base_token TEXT NOT NULL,
	base_amount TEXT NOT NULL,
	quote_token TEXT NOT NULL,
	quote_amount TEXT NOT NULL,
	trade_type TEXT NOT NULL,
	swap_count INTEGER NOT NULL,
	transfer_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS poolswaps (
	content_id TEXT PRIMARY KEY,
	tx_hash TEXT NOT NULL,
	block_number INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	pool TEXT NOT NULL,
	taker TEXT NOT NULL,
	direction TEXT NOT NULL,
	base_token TEXT NOT NULL,
	base_amount TEXT NOT NULL,
	quote_token TEXT NOT NULL,
	quote_amount TEXT NOT NULL,
	trade_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_poolswaps_trade_id ON poolswaps(trade_id);
CREATE INDEX IF NOT EXISTS idx_poolswaps_base_token ON poolswaps(base_token);

CREATE TABLE IF NOT EXISTS transfers (
	content_id TEXT PRIMARY KEY,
	tx_hash TEXT NOT NULL,
	block_number INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	from_address TEXT NOT NULL,
	to_address TEXT NOT NULL,
	token TEXT NOT NULL,
	amount TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS liquidity_events (
	content_id TEXT PRIMARY KEY,
	tx_hash TEXT NOT NULL,
	block_number INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	pool TEXT NOT NULL,
	provider TEXT NOT NULL,
	is_add INTEGER NOT NULL,
	token0 TEXT NOT NULL,
	amount0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	amount1 TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rewards (
	content_id TEXT PRIMARY KEY,
	tx_hash TEXT NOT NULL,
	block_number INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	recipient TEXT NOT NULL,
	token TEXT NOT NULL,
	amount TEXT NOT NULL,
	source TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	content_id TEXT PRIMARY KEY,
	tx_hash TEXT NOT NULL,
	block_number INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	holder TEXT NOT NULL,
	token TEXT NOT NULL,
	delta TEXT NOT NULL,
	parent_id TEXT,
	parent_type TEXT
);
CREATE INDEX IF NOT EXISTS idx_positions_holder ON positions(holder);

CREATE TABLE IF NOT EXISTS poolswap_details (
	content_id TEXT NOT NULL,
	denomination TEXT NOT NULL,
	value REAL NOT NULL,
	price REAL NOT NULL,
	price_method TEXT NOT NULL,
	price_config_id TEXT,
	PRIMARY KEY (content_id, denomination)
);

CREATE TABLE IF NOT EXISTS trade_details (
	content_id TEXT NOT NULL,
	denomination TEXT NOT NULL,
	value REAL NOT NULL,
	price REAL NOT NULL,
	price_method TEXT NOT NULL,
	price_config_id TEXT,
	PRIMARY KEY (content_id, denomination)
);

CREATE TABLE IF NOT EXISTS event_details (
	content_id TEXT NOT NULL,
	denomination TEXT NOT NULL,
	value REAL NOT NULL,
	pricing_method TEXT NOT NULL,
	PRIMARY KEY (content_id, denomination)
);

CREATE TABLE IF NOT EXISTS asset_prices (
	period_id TEXT NOT NULL,
	asset TEXT NOT NULL,
	denom TEXT NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	PRIMARY KEY (period_id, asset, denom)
);

CREATE TABLE IF NOT EXISTS asset_volumes (
	period_id TEXT NOT NULL,
	asset TEXT NOT NULL,
	denom TEXT NOT NULL,
	protocol TEXT NOT NULL,
	volume REAL NOT NULL,
	PRIMARY KEY (period_id, asset, denom, protocol)
);

CREATE TABLE IF NOT EXISTS transaction_processing (
	tx_hash TEXT PRIMARY KEY,
	block_number INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	tx_index INTEGER NOT NULL,
	status TEXT NOT NULL,
	logs_processed INTEGER NOT NULL DEFAULT 0,
	events_generated INTEGER NOT NULL DEFAULT 0,
	tx_success INTEGER NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_processed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS block_processing (
	block_number INTEGER PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	tx_count INTEGER NOT NULL DEFAULT 0,
	event_count INTEGER NOT NULL DEFAULT 0,
	success INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS processing_jobs (
	id TEXT PRIMARY KEY,
	job_type TEXT NOT NULL,
	block_key TEXT NOT NULL,
	job_data BLOB NOT NULL,
	priority INTEGER NOT NULL,
	status TEXT NOT NULL,
	worker_id TEXT,
	leased_until INTEGER,
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processing_jobs_lease_order ON processing_jobs(status, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_processing_jobs_block_key ON processing_jobs(job_type, block_key, status);
`

// Migrate applies Schema to db.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
