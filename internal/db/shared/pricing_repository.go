package shared

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// PricingRepository reads and writes the shared DB's period tiling,
// AVAX/USD block prices, canonical VWAP prices, and pool pricing
// configuration — the rows PricingService's phases P0-P3 own.
type PricingRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPricingRepository builds a PricingRepository over the shared DB handle.
func NewPricingRepository(db *sql.DB, log zerolog.Logger) *PricingRepository {
	return &PricingRepository{db: db, log: log.With().Str("repo", "pricing").Logger()}
}

// LastPeriod returns the most recent period of periodType by time_open,
// or ok=false if none exist yet.
func (r *PricingRepository) LastPeriod(periodType domain.PeriodType) (domain.Period, bool, error) {
	var p domain.Period
	var pt string
	var isComplete int
	row := r.db.QueryRow(`
		SELECT period_type, time_open, time_close, block_open, block_close, is_complete
		FROM periods WHERE period_type = ? ORDER BY time_open DESC LIMIT 1`, string(periodType))
	if err := row.Scan(&pt, &p.TimeOpen, &p.TimeClose, &p.BlockOpen, &p.BlockClose, &isComplete); err != nil {
		if err == sql.ErrNoRows {
			return p, false, nil
		}
		return p, false, fmt.Errorf("reading last period for %s: %w", periodType, err)
	}
	p.Type = domain.PeriodType(pt)
	p.IsComplete = isComplete != 0
	return p, true, nil
}

// InsertPeriod inserts p; if (period_type, time_open) already exists, it
// updates that row's time_close, block_close and is_complete instead.
func (r *PricingRepository) InsertPeriod(p domain.Period) error {
	isComplete := 0
	if p.IsComplete {
		isComplete = 1
	}
	_, err := r.db.Exec(`
		INSERT INTO periods (period_type, time_open, time_close, block_open, block_close, is_complete)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(period_type, time_open) DO UPDATE SET
			time_close=excluded.time_close, block_close=excluded.block_close, is_complete=excluded.is_complete`,
		string(p.Type), p.TimeOpen, p.TimeClose, p.BlockOpen, p.BlockClose, isComplete)
	if err != nil {
		return fmt.Errorf("inserting period %s@%d: %w", p.Type, p.TimeOpen, err)
	}
	return nil
}

// PeriodsInRange returns every period of periodType with time_open in
// [start,end), ordered ascending — the working set for
// CalculationService's per-period phases.
func (r *PricingRepository) PeriodsInRange(periodType domain.PeriodType, start, end int64) ([]domain.Period, error) {
	rows, err := r.db.Query(`
		SELECT period_type, time_open, time_close, block_open, block_close, is_complete
		FROM periods WHERE period_type = ? AND time_open >= ? AND time_open < ? ORDER BY time_open ASC`,
		string(periodType), start, end)
	if err != nil {
		return nil, fmt.Errorf("querying periods in range: %w", err)
	}
	defer rows.Close()

	var out []domain.Period
	for rows.Next() {
		var p domain.Period
		var pt string
		var isComplete int
		if err := rows.Scan(&pt, &p.TimeOpen, &p.TimeClose, &p.BlockOpen, &p.BlockClose, &isComplete); err != nil {
			return nil, fmt.Errorf("scanning period: %w", err)
		}
		p.Type = domain.PeriodType(pt)
		p.IsComplete = isComplete != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

// LastBlockPrice returns the highest-block BlockPrice row, or ok=false
// if none exist.
func (r *PricingRepository) LastBlockPrice() (domain.BlockPrice, bool, error) {
	var bp domain.BlockPrice
	row := r.db.QueryRow(`SELECT block_number, timestamp, price_usd, chainlink_round_id, chainlink_updated_at FROM block_prices ORDER BY block_number DESC LIMIT 1`)
	var roundID sql.NullString
	var updatedAt sql.NullInt64
	if err := row.Scan(&bp.BlockNumber, &bp.Timestamp, &bp.PriceUSD, &roundID, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return bp, false, nil
		}
		return bp, false, fmt.Errorf("reading last block price: %w", err)
	}
	if roundID.Valid {
		bp.ChainlinkRoundID = &roundID.String
	}
	if updatedAt.Valid {
		bp.ChainlinkUpdatedAt = &updatedAt.Int64
	}
	return bp, true, nil
}

// InsertBlockPrice inserts bp, skipping on a unique block_number conflict.
func (r *PricingRepository) InsertBlockPrice(bp domain.BlockPrice) error {
	_, err := r.db.Exec(`
		INSERT INTO block_prices (block_number, timestamp, price_usd, chainlink_round_id, chainlink_updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(block_number) DO NOTHING`,
		bp.BlockNumber, bp.Timestamp, bp.PriceUSD, bp.ChainlinkRoundID, bp.ChainlinkUpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting block_price for block %d: %w", bp.BlockNumber, err)
	}
	return nil
}

// CanonicalPrice returns the PriceVwap row for (asset, minute, denom), or
// ok=false if no canonical price exists yet.
func (r *PricingRepository) CanonicalPrice(asset domain.Address, minute int64, denom domain.Denomination) (domain.PriceVwap, bool, error) {
	var pv domain.PriceVwap
	var denomination string
	row := r.db.QueryRow(`
		SELECT asset_address, timestamp_minute, denomination, price_period, price_vwap, base_volume, quote_volume, pool_count, swap_count
		FROM price_vwap WHERE asset_address = ? AND timestamp_minute = ? AND denomination = ?`,
		string(asset), minute, string(denom))
	if err := row.Scan(&pv.Asset, &pv.TimestampMinute, &denomination, &pv.PricePeriod, &pv.PriceVWAP, &pv.BaseVolume, &pv.QuoteVolume, &pv.PoolCount, &pv.SwapCount); err != nil {
		if err == sql.ErrNoRows {
			return pv, false, nil
		}
		return pv, false, fmt.Errorf("reading canonical price for %s@%d/%s: %w", asset, minute, denom, err)
	}
	pv.Denomination = domain.Denomination(denomination)
	return pv, true, nil
}

// UpsertCanonicalPrice writes or replaces the PriceVwap row for
// (asset, minute, denom).
func (r *PricingRepository) UpsertCanonicalPrice(pv domain.PriceVwap) error {
	_, err := r.db.Exec(`
		INSERT INTO price_vwap (asset_address, timestamp_minute, denomination, price_period, price_vwap, base_volume, quote_volume, pool_count, swap_count)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(asset_address, timestamp_minute, denomination) DO UPDATE SET
			price_period=excluded.price_period, price_vwap=excluded.price_vwap,
			base_volume=excluded.base_volume, quote_volume=excluded.quote_volume,
			pool_count=excluded.pool_count, swap_count=excluded.swap_count`,
		string(pv.Asset), pv.TimestampMinute, string(pv.Denomination), pv.PricePeriod, pv.PriceVWAP,
		pv.BaseVolume, pv.QuoteVolume, pv.PoolCount, pv.SwapCount)
	if err != nil {
		return fmt.Errorf("upserting canonical price for %s@%d/%s: %w", pv.Asset, pv.TimestampMinute, pv.Denomination, err)
	}
	return nil
}

// PricingPoolsForAsset returns the addresses of every contract currently
// designated (pricing_pool=true, valid_from<=asOf<valid_to or
// valid_to IS NULL) as canonical for asset, intersected with pools whose
// base_token = asset.
func (r *PricingRepository) PricingPoolsForAsset(asset domain.Address, asOf int64) ([]domain.Address, error) {
	rows, err := r.db.Query(`
		SELECT c.address
		FROM pool_pricing_config ppc
		JOIN contracts c ON c.address = ppc.contract_id
		WHERE ppc.pricing_pool = 1
		AND ppc.valid_from <= ?
		AND (ppc.valid_to IS NULL OR ppc.valid_to > ?)
		AND c.base_token_address = ?`, asOf, asOf, string(asset))
	if err != nil {
		return nil, fmt.Errorf("querying pricing pools for %s: %w", asset, err)
	}
	defer rows.Close()

	var out []domain.Address
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scanning pricing pool: %w", err)
		}
		out = append(out, domain.Address(addr))
	}
	return out, rows.Err()
}

// InsertPoolPricingConfig writes a PoolPricingConfig row. Config rows are
// owned by the out-of-scope admin loader in production; this is exposed for test fixtures and one-off
// operator use.
func (r *PricingRepository) InsertPoolPricingConfig(c domain.PoolPricingConfig) error {
	pricingPool := 0
	if c.PricingPool {
		pricingPool = 1
	}
	_, err := r.db.Exec(`
		INSERT INTO pool_pricing_config (model_id, contract_id, pricing_pool, valid_from, valid_to)
		VALUES (?,?,?,?,?)
		ON CONFLICT(model_id, contract_id, valid_from) DO UPDATE SET
			pricing_pool=excluded.pricing_pool, valid_to=excluded.valid_to`,
		c.ModelID, string(c.ContractID), pricingPool, c.ValidFrom, c.ValidTo)
	if err != nil {
		return fmt.Errorf("inserting pool_pricing_config for %s/%s: %w", c.ModelID, c.ContractID, err)
	}
	return nil
}
