package model

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	dbpkg "github.com/quick-xyz/indexer-sub000/internal/db"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// AnalyticsRepository persists OHLC candles and per-protocol volume —
// the derived rows CalculationService writes.
type AnalyticsRepository struct {
	*dbpkg.BaseRepository
}

// NewAnalyticsRepository builds an AnalyticsRepository over the model DB handle.
func NewAnalyticsRepository(db *sql.DB, log zerolog.Logger) *AnalyticsRepository {
	return &AnalyticsRepository{BaseRepository: dbpkg.NewBase(db, log.With().Str("repo", "analytics").Logger())}
}

// HasAssetPrice reports whether a candle already exists for
// (periodID, asset, denom) — generate_asset_ohlc_candles skips periods
// that already have one.
func (r *AnalyticsRepository) HasAssetPrice(periodID domain.PeriodID, asset domain.Address, denom domain.Denomination) (bool, error) {
	var exists int
	err := r.DB().QueryRow(`SELECT 1 FROM asset_prices WHERE period_id = ? AND asset = ? AND denom = ?`,
		string(periodID), string(asset), string(denom)).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking asset_prices existence: %w", err)
	}
	return true, nil
}

// UpsertAssetPrice writes or replaces the OHLC candle for
// (periodID, asset, denom).
func (r *AnalyticsRepository) UpsertAssetPrice(p domain.AssetPrice) error {
	_, err := r.DB().Exec(`
		INSERT INTO asset_prices (period_id, asset, denom, open, high, low, close)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(period_id, asset, denom) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close`,
		string(p.PeriodID), string(p.Asset), string(p.Denom), p.Open, p.High, p.Low, p.Close)
	if err != nil {
		return fmt.Errorf("upserting asset_price for period %s asset %s: %w", p.PeriodID, p.Asset, err)
	}
	return nil
}

// UpsertAssetVolume writes or replaces the per-protocol volume row for
// (periodID, asset, denom, protocol).
func (r *AnalyticsRepository) UpsertAssetVolume(v domain.AssetVolume) error {
	_, err := r.DB().Exec(`
		INSERT INTO asset_volumes (period_id, asset, denom, protocol, volume)
		VALUES (?,?,?,?,?)
		ON CONFLICT(period_id, asset, denom, protocol) DO UPDATE SET volume=excluded.volume`,
		string(v.PeriodID), string(v.Asset), string(v.Denom), v.Protocol, v.Volume)
	if err != nil {
		return fmt.Errorf("upserting asset_volume for period %s asset %s protocol %s: %w", v.PeriodID, v.Asset, v.Protocol, err)
	}
	return nil
}

// TradePricesInPeriod returns the DIRECT/GLOBAL trade-detail prices for
// asset/denom within [start,end), ordered by timestamp — the OHLC input.
func (r *AnalyticsRepository) TradePricesInPeriod(asset domain.Address, denom domain.Denomination, start, end int64) ([]float64, float64, error) {
	rows, err := r.DB().Query(`
		SELECT d.price, d.value
		FROM trade_details d
		JOIN trades t ON t.content_id = d.content_id
		WHERE d.denomination = ? AND t.base_token = ? AND t.timestamp >= ? AND t.timestamp < ?
		ORDER BY t.timestamp ASC`, string(denom), string(asset), start, end)
	if err != nil {
		return nil, 0, fmt.Errorf("querying trade prices for period: %w", err)
	}
	defer rows.Close()

	var prices []float64
	var volume float64
	for rows.Next() {
		var price, value float64
		if err := rows.Scan(&price, &value); err != nil {
			return nil, 0, fmt.Errorf("scanning trade price: %w", err)
		}
		prices = append(prices, price)
		if price != 0 {
			volume += value / price
		}
	}
	return prices, volume, rows.Err()
}

// PoolSwapValuesInPeriod sums PoolSwapDetail.value for asset/denom within
// [start,end) per pool, joined through poolswaps. Grouping the pools by
// Contract.project is left to the caller, since the model DB holds swaps
// but project labels live in the shared DB's contracts table.
func (r *AnalyticsRepository) PoolSwapValuesInPeriod(asset domain.Address, denom domain.Denomination, start, end int64) (map[domain.Address]float64, error) {
	rows, err := r.DB().Query(`
		SELECT ps.pool, d.value
		FROM poolswap_details d
		JOIN poolswaps ps ON ps.content_id = d.content_id
		WHERE d.denomination = ? AND ps.base_token = ? AND ps.timestamp >= ? AND ps.timestamp < ?`,
		string(denom), string(asset), start, end)
	if err != nil {
		return nil, fmt.Errorf("querying poolswap values for period: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Address]float64)
	for rows.Next() {
		var pool string
		var value float64
		if err := rows.Scan(&pool, &value); err != nil {
			return nil, fmt.Errorf("scanning poolswap value: %w", err)
		}
		out[domain.Address(pool)] += value
	}
	return out, rows.Err()
}
