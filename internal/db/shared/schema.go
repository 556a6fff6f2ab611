// Package shared wraps the shared (infrastructure) database: models,
// contracts, tokens, sources, periods, block prices, canonical prices,
// and pricing-pool configuration. It is always opened
// read/write by the admin loader and read-mostly by the pipeline; the
// pipeline itself only ever reads from it except for period/price upkeep
// done by PricingService.
package shared

import "database/sql"

// Schema is the DDL applied by Migrate, inlined here rather than as
// versioned migration files since the indexer owns a single, additive
// schema.
const Schema = `
CREATE TABLE IF NOT EXISTS models (
	name TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	model_db_name TEXT NOT NULL,
	model_token_address TEXT NOT NULL,
	status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contracts (
	address TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	project TEXT NOT NULL,
	type TEXT NOT NULL,
	abi_dir TEXT NOT NULL,
	abi_file TEXT NOT NULL,
	transformer_name TEXT NOT NULL DEFAULT '',
	transformer_config TEXT NOT NULL DEFAULT '{}',
	base_token_address TEXT
);

CREATE TABLE IF NOT EXISTS model_contracts (
	model_name TEXT NOT NULL,
	contract_address TEXT NOT NULL,
	PRIMARY KEY (model_name, contract_address)
);

CREATE TABLE IF NOT EXISTS tokens (
	address TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	symbol TEXT NOT NULL,
	name TEXT NOT NULL,
	decimals INTEGER NOT NULL,
	project TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS model_tokens (
	model_name TEXT NOT NULL,
	token_address TEXT NOT NULL,
	PRIMARY KEY (model_name, token_address)
);

CREATE TABLE IF NOT EXISTS sources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	model_name TEXT NOT NULL,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	format TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS periods (
	period_type TEXT NOT NULL,
	time_open INTEGER NOT NULL,
	time_close INTEGER NOT NULL,
	block_open INTEGER NOT NULL,
	block_close INTEGER NOT NULL,
	is_complete INTEGER NOT NULL,
	PRIMARY KEY (period_type, time_open)
);

CREATE TABLE IF NOT EXISTS block_prices (
	block_number INTEGER PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	price_usd REAL NOT NULL,
	chainlink_round_id TEXT,
	chainlink_updated_at INTEGER
);

CREATE TABLE IF NOT EXISTS price_vwap (
	asset_address TEXT NOT NULL,
	timestamp_minute INTEGER NOT NULL,
	denomination TEXT NOT NULL,
	price_period REAL NOT NULL,
	price_vwap REAL NOT NULL,
	base_volume REAL NOT NULL,
	quote_volume REAL NOT NULL,
	pool_count INTEGER NOT NULL,
	swap_count INTEGER NOT NULL,
	PRIMARY KEY (asset_address, timestamp_minute, denomination)
);

CREATE TABLE IF NOT EXISTS pool_pricing_config (
	model_id TEXT NOT NULL,
	contract_id TEXT NOT NULL,
	pricing_pool INTEGER NOT NULL,
	valid_from INTEGER NOT NULL,
	valid_to INTEGER,
	PRIMARY KEY (model_id, contract_id, valid_from)
);
`

// Migrate applies Schema idempotently.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
