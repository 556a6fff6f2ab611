package model

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	dbpkg "github.com/quick-xyz/indexer-sub000/internal/db"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// nowMinusDays returns the unix timestamp sinceDays ago, used by the
// "?days" gap-driven query parameters PricingService/CalculationService
// expose.
func nowMinusDays(days int) int64 {
	return time.Now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
}

// UnpricedSwap is the subset of a PoolSwap row PricingService needs to
// compute direct/global pricing without re-reading the whole event.
type UnpricedSwap struct {
	ContentID   domain.ContentID
	TxHash      domain.Hash
	BlockNumber uint64
	Timestamp   int64
	Pool        domain.Address
	BaseToken   domain.Address
	BaseAmount  domain.Amount
	QuoteToken  domain.Address
	QuoteAmount domain.Amount
}

// UnpricedTrade is the subset of a Trade row PricingService needs for
// direct/global trade pricing.
type UnpricedTrade struct {
	ContentID   domain.ContentID
	Timestamp   int64
	BaseAmount  domain.Amount
	BaseToken   domain.Address
}

// DetailsRepository persists PoolSwapDetail, TradeDetail and EventDetail
// rows — the per-denomination pricing outcomes of the pricing and
// calculation services.
type DetailsRepository struct {
	*dbpkg.BaseRepository
}

// NewDetailsRepository builds a DetailsRepository over the model DB handle.
func NewDetailsRepository(db *sql.DB, log zerolog.Logger) *DetailsRepository {
	return &DetailsRepository{BaseRepository: dbpkg.NewBase(db, log.With().Str("repo", "details").Logger())}
}

// UnpricedSwapsForAsset returns PoolSwaps with base_token = asset that
// have no PoolSwapDetail row in either DIRECT_AVAX or DIRECT_USD yet
//, optionally limited to the last
// sinceDays by timestamp (0 = no limit).
func (r *DetailsRepository) UnpricedSwapsForAsset(asset domain.Address, sinceDays int) ([]UnpricedSwap, error) {
	query := `
		SELECT ps.content_id, ps.tx_hash, ps.block_number, ps.timestamp, ps.pool, ps.base_token, ps.base_amount, ps.quote_token, ps.quote_amount
		FROM poolswaps ps
		WHERE ps.base_token = ?
		AND NOT EXISTS (
			SELECT 1 FROM poolswap_details d
			WHERE d.content_id = ps.content_id AND d.price_method IN ('DIRECT_AVAX','DIRECT_USD')
		)`
	args := []any{string(asset)}
	if sinceDays > 0 {
		query += ` AND ps.timestamp >= ?`
		args = append(args, nowMinusDays(sinceDays))
	}

	rows, err := r.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unpriced swaps for %s: %w", asset, err)
	}
	defer rows.Close()

	var out []UnpricedSwap
	for rows.Next() {
		var s UnpricedSwap
		if err := rows.Scan(&s.ContentID, &s.TxHash, &s.BlockNumber, &s.Timestamp, &s.Pool, &s.BaseToken, &s.BaseAmount, &s.QuoteToken, &s.QuoteAmount); err != nil {
			return nil, fmt.Errorf("scanning unpriced swap: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UnpricedTradesForAsset returns Trades with base_token = asset lacking a
// DIRECT TradeDetail row.
func (r *DetailsRepository) UnpricedTradesForAsset(asset domain.Address, sinceDays int) ([]UnpricedTrade, error) {
	query := `
		SELECT t.content_id, t.timestamp, t.base_amount, t.base_token
		FROM trades t
		WHERE t.base_token = ?
		AND NOT EXISTS (
			SELECT 1 FROM trade_details d WHERE d.content_id = t.content_id AND d.price_method = 'DIRECT'
		)`
	args := []any{string(asset)}
	if sinceDays > 0 {
		query += ` AND t.timestamp >= ?`
		args = append(args, nowMinusDays(sinceDays))
	}

	rows, err := r.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unpriced trades for %s: %w", asset, err)
	}
	defer rows.Close()

	var out []UnpricedTrade
	for rows.Next() {
		var t UnpricedTrade
		if err := rows.Scan(&t.ContentID, &t.Timestamp, &t.BaseAmount, &t.BaseToken); err != nil {
			return nil, fmt.Errorf("scanning unpriced trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UnpricedSwapsInBlockRange returns PoolSwaps with base_token = asset in
// [startBlock,endBlock] that have no PoolSwapDetail row for denom at all —
// the input set for apply_canonical_pricing_to_global_events, which must
// not clobber an existing DIRECT_* detail with a GLOBAL one.
func (r *DetailsRepository) UnpricedSwapsInBlockRange(asset domain.Address, denom domain.Denomination, startBlock, endBlock uint64) ([]UnpricedSwap, error) {
	rows, err := r.DB().Query(`
		SELECT ps.content_id, ps.tx_hash, ps.block_number, ps.timestamp, ps.pool, ps.base_token, ps.base_amount, ps.quote_token, ps.quote_amount
		FROM poolswaps ps
		WHERE ps.base_token = ? AND ps.block_number >= ? AND ps.block_number <= ?
		AND NOT EXISTS (SELECT 1 FROM poolswap_details d WHERE d.content_id = ps.content_id AND d.denomination = ?)`,
		string(asset), startBlock, endBlock, string(denom))
	if err != nil {
		return nil, fmt.Errorf("querying unpriced swaps in block range for %s: %w", asset, err)
	}
	defer rows.Close()

	var out []UnpricedSwap
	for rows.Next() {
		var s UnpricedSwap
		if err := rows.Scan(&s.ContentID, &s.TxHash, &s.BlockNumber, &s.Timestamp, &s.Pool, &s.BaseToken, &s.BaseAmount, &s.QuoteToken, &s.QuoteAmount); err != nil {
			return nil, fmt.Errorf("scanning unpriced swap: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UnpricedTradesInBlockRange returns Trades with base_token = asset in
// [startBlock,endBlock] lacking any TradeDetail row for denom.
func (r *DetailsRepository) UnpricedTradesInBlockRange(asset domain.Address, denom domain.Denomination, startBlock, endBlock uint64) ([]UnpricedTrade, error) {
	rows, err := r.DB().Query(`
		SELECT t.content_id, t.timestamp, t.base_amount, t.base_token
		FROM trades t
		WHERE t.base_token = ? AND t.block_number >= ? AND t.block_number <= ?
		AND NOT EXISTS (SELECT 1 FROM trade_details d WHERE d.content_id = t.content_id AND d.denomination = ?)`,
		string(asset), startBlock, endBlock, string(denom))
	if err != nil {
		return nil, fmt.Errorf("querying unpriced trades in block range for %s: %w", asset, err)
	}
	defer rows.Close()

	var out []UnpricedTrade
	for rows.Next() {
		var t UnpricedTrade
		if err := rows.Scan(&t.ContentID, &t.Timestamp, &t.BaseAmount, &t.BaseToken); err != nil {
			return nil, fmt.Errorf("scanning unpriced trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SwapDetailsForTrade returns the PoolSwapDetail rows (by denomination)
// of every PoolSwap belonging to tradeID, the volume-weighted aggregation
// input for direct trade pricing.
func (r *DetailsRepository) SwapDetailsForTrade(tradeID domain.ContentID, denom domain.Denomination) ([]domain.PoolSwapDetail, error) {
	rows, err := r.DB().Query(`
		SELECT d.content_id, d.denomination, d.value, d.price, d.price_method
		FROM poolswap_details d
		JOIN poolswaps ps ON ps.content_id = d.content_id
		WHERE ps.trade_id = ? AND d.denomination = ?`, string(tradeID), string(denom))
	if err != nil {
		return nil, fmt.Errorf("querying swap details for trade %s: %w", tradeID, err)
	}
	defer rows.Close()

	var out []domain.PoolSwapDetail
	for rows.Next() {
		var d domain.PoolSwapDetail
		var denomination, method string
		if err := rows.Scan(&d.ContentID, &denomination, &d.Value, &d.Price, &method); err != nil {
			return nil, fmt.Errorf("scanning swap detail: %w", err)
		}
		d.Denomination = domain.Denomination(denomination)
		d.PriceMethod = domain.PriceMethod(method)
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertPoolSwapDetail inserts d, ignoring the row if (content_id,
// denomination) already exists — a detail is written exactly once.
func (r *DetailsRepository) InsertPoolSwapDetail(tx *sql.Tx, d domain.PoolSwapDetail) error {
	_, err := tx.Exec(`
		INSERT INTO poolswap_details (content_id, denomination, value, price, price_method, price_config_id)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(content_id, denomination) DO NOTHING`,
		string(d.ContentID), string(d.Denomination), d.Value, d.Price, string(d.PriceMethod), d.PriceConfigID)
	if err != nil {
		return fmt.Errorf("inserting poolswap_detail %s/%s: %w", d.ContentID, d.Denomination, err)
	}
	return nil
}

// InsertTradeDetail inserts d, ignoring the row if it already exists.
func (r *DetailsRepository) InsertTradeDetail(tx *sql.Tx, d domain.TradeDetail) error {
	_, err := tx.Exec(`
		INSERT INTO trade_details (content_id, denomination, value, price, price_method)
		VALUES (?,?,?,?,?)
		ON CONFLICT(content_id, denomination) DO NOTHING`,
		string(d.ContentID), string(d.Denomination), d.Value, d.Price, string(d.PriceMethod))
	if err != nil {
		return fmt.Errorf("inserting trade_detail %s/%s: %w", d.ContentID, d.Denomination, err)
	}
	return nil
}

// InsertEventDetail inserts d, ignoring the row if it already exists.
func (r *DetailsRepository) InsertEventDetail(tx *sql.Tx, d domain.EventDetail) error {
	_, err := tx.Exec(`
		INSERT INTO event_details (content_id, denomination, value, pricing_method)
		VALUES (?,?,?,?)
		ON CONFLICT(content_id, denomination) DO NOTHING`,
		string(d.ContentID), string(d.Denomination), d.Value, string(d.PricingMethod))
	if err != nil {
		return fmt.Errorf("inserting event_detail %s/%s: %w", d.ContentID, d.Denomination, err)
	}
	return nil
}

// TradeDetailPrice returns the trade detail price for tradeID/denom if
// present, whatever its price_method.
func (r *DetailsRepository) TradeDetailPrice(tradeID domain.ContentID, denom domain.Denomination) (float64, bool, error) {
	var price float64
	err := r.DB().QueryRow(`SELECT price FROM trade_details WHERE content_id = ? AND denomination = ?`, string(tradeID), string(denom)).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading trade_detail price for %s/%s: %w", tradeID, denom, err)
	}
	return price, true, nil
}

// CanonicalMinuteInputs summarises the PoolSwapDetail rows feeding one
// minute of canonical pricing for an asset.
type CanonicalMinuteInputs struct {
	TotalValue  float64 // Σ value
	TotalVolume float64 // Σ(value/price) == Σ base_amount_human
	PoolCount   int
	SwapCount   int
}

// PoolSwapDetailsInPoolsAtMinute aggregates PoolSwapDetail rows for swaps
// in pools during [minute, minute+60) at denom, the per-minute price input
// for generate_canonical_prices. Returns a zero-value
// result (SwapCount 0) if no swap in pools has a detail for that minute.
func (r *DetailsRepository) PoolSwapDetailsInPoolsAtMinute(pools []domain.Address, minute int64, denom domain.Denomination) (CanonicalMinuteInputs, error) {
	var out CanonicalMinuteInputs
	if len(pools) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(pools))
	args := make([]any, 0, len(pools)+3)
	for i, p := range pools {
		placeholders[i] = "?"
		args = append(args, string(p))
	}
	query := fmt.Sprintf(`
		SELECT ps.pool, d.value, d.price
		FROM poolswap_details d
		JOIN poolswaps ps ON ps.content_id = d.content_id
		WHERE d.denomination = ? AND ps.timestamp >= ? AND ps.timestamp < ? AND ps.pool IN (%s)`,
		joinPlaceholders(placeholders))
	args = append([]any{string(denom), minute, minute + 60}, args...)

	rows, err := r.DB().Query(query, args...)
	if err != nil {
		return out, fmt.Errorf("querying canonical minute inputs: %w", err)
	}
	defer rows.Close()

	seenPools := make(map[string]struct{})
	for rows.Next() {
		var pool string
		var value, price float64
		if err := rows.Scan(&pool, &value, &price); err != nil {
			return out, fmt.Errorf("scanning canonical minute input: %w", err)
		}
		if price == 0 {
			continue
		}
		out.TotalValue += value
		out.TotalVolume += value / price
		out.SwapCount++
		seenPools[pool] = struct{}{}
	}
	out.PoolCount = len(seenPools)
	return out, rows.Err()
}

func joinPlaceholders(ph []string) string {
	out := ph[0]
	for _, p := range ph[1:] {
		out += "," + p
	}
	return out
}

// UnpricedEvent is a Transfer/Liquidity/Reward/Position row lacking an
// EventDetail for the denomination being priced. Amount/Token identify the leg valued
// against the canonical price; kind-specific rows may value more than
// one token (Liquidity), in which case the repository returns one
// UnpricedEvent per valued leg.
type UnpricedEvent struct {
	ContentID domain.ContentID
	Timestamp int64
	Token     domain.Address
	Amount    domain.Amount
}

// eventValuationSources lists, per event kind, the table and the
// token/amount column pairs that need a canonical valuation. Liquidity
// contributes two legs (token0/amount0, token1/amount1); the rest
// contribute one.
var eventValuationSources = []struct {
	table        string
	tokenColumns []string
	amtColumns   []string
}{
	{"transfers", []string{"token"}, []string{"amount"}},
	{"liquidity_events", []string{"token0", "token1"}, []string{"amount0", "amount1"}},
	{"rewards", []string{"token"}, []string{"amount"}},
	{"positions", []string{"token"}, []string{"delta"}},
}

// UnpricedEventsForAsset returns every Transfer/Liquidity/Reward/Position
// leg valued in asset that lacks an EventDetail row for denom within
// [start,end).
func (r *DetailsRepository) UnpricedEventsForAsset(asset domain.Address, denom domain.Denomination, start, end int64) ([]UnpricedEvent, error) {
	var out []UnpricedEvent
	for _, src := range eventValuationSources {
		for i, tokenCol := range src.tokenColumns {
			amtCol := src.amtColumns[i]
			query := fmt.Sprintf(`
				SELECT e.content_id, e.timestamp, e.%s, e.%s
				FROM %s e
				WHERE e.%s = ? AND e.timestamp >= ? AND e.timestamp < ?
				AND NOT EXISTS (SELECT 1 FROM event_details d WHERE d.content_id = e.content_id AND d.denomination = ?)`,
				tokenCol, amtCol, src.table, tokenCol)
			rows, err := r.DB().Query(query, string(asset), start, end, string(denom))
			if err != nil {
				return nil, fmt.Errorf("querying unpriced %s: %w", src.table, err)
			}
			for rows.Next() {
				var e UnpricedEvent
				if err := rows.Scan(&e.ContentID, &e.Timestamp, &e.Token, &e.Amount); err != nil {
					rows.Close()
					return nil, fmt.Errorf("scanning unpriced %s: %w", src.table, err)
				}
				out = append(out, e)
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return nil, err
			}
			rows.Close()
		}
	}
	return out, nil
}
