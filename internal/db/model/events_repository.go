package model

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	dbpkg "github.com/quick-xyz/indexer-sub000/internal/db"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// existingContentIDs returns the subset of ids already present in table,
// the shared first half of every bulk_create_skip_existing.
func existingContentIDs(tx *sql.Tx, table string, ids []domain.ContentID) (map[domain.ContentID]struct{}, error) {
	existing := make(map[domain.ContentID]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = string(id)
	}
	query := fmt.Sprintf("SELECT content_id FROM %s WHERE content_id IN (%s)", table, strings.Join(placeholders, ","))
	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying existing %s content ids: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning existing %s content id: %w", table, err)
		}
		existing[domain.ContentID(id)] = struct{}{}
	}
	return existing, rows.Err()
}

// TradeRepository persists Trade events.
type TradeRepository struct {
	*dbpkg.BaseRepository
}

// NewTradeRepository builds a TradeRepository over the model DB handle.
func NewTradeRepository(db *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{BaseRepository: dbpkg.NewBase(db, log.With().Str("repo", "trade").Logger())}
}

// BulkCreateSkipExisting inserts every trade whose content_id is not
// already present, within tx, returning (written, skipped) counts (spec
// §4.11, §4.8).
func (r *TradeRepository) BulkCreateSkipExisting(tx *sql.Tx, trades []*domain.Trade) (int, int, error) {
	ids := make([]domain.ContentID, len(trades))
	for i, t := range trades {
		ids[i] = t.GetContentID()
	}
	existing, err := existingContentIDs(tx, "trades", ids)
	if err != nil {
		return 0, 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO trades
		(content_id, tx_hash, block_number, timestamp, taker, direction, base_token, base_amount, quote_token, quote_amount, trade_type, swap_count, transfer_count)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing trade insert: %w", err)
	}
	defer stmt.Close()

	written, skipped := 0, 0
	for _, t := range trades {
		if _, ok := existing[t.GetContentID()]; ok {
			skipped++
			continue
		}
		m := t.Serialize()
		if _, err := stmt.Exec(m["content_id"], m["tx_hash"], m["block_number"], m["timestamp"],
			m["taker"], m["direction"], m["base_token"], m["base_amount"], m["quote_token"], m["quote_amount"],
			m["trade_type"], m["swap_count"], m["transfer_count"]); err != nil {
			return written, skipped, fmt.Errorf("inserting trade %s: %w", t.GetContentID(), err)
		}
		written++
	}
	return written, skipped, nil
}

// PoolSwapRepository persists PoolSwap events.
type PoolSwapRepository struct {
	*dbpkg.BaseRepository
}

// NewPoolSwapRepository builds a PoolSwapRepository over the model DB handle.
func NewPoolSwapRepository(db *sql.DB, log zerolog.Logger) *PoolSwapRepository {
	return &PoolSwapRepository{BaseRepository: dbpkg.NewBase(db, log.With().Str("repo", "poolswap").Logger())}
}

// BulkCreateSkipExisting inserts every swap whose content_id is not
// already present.
func (r *PoolSwapRepository) BulkCreateSkipExisting(tx *sql.Tx, swaps []*domain.PoolSwap) (int, int, error) {
	ids := make([]domain.ContentID, len(swaps))
	for i, s := range swaps {
		ids[i] = s.GetContentID()
	}
	existing, err := existingContentIDs(tx, "poolswaps", ids)
	if err != nil {
		return 0, 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO poolswaps
		(content_id, tx_hash, block_number, timestamp, pool, taker, direction, base_token, base_amount, quote_token, quote_amount, trade_id)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing poolswap insert: %w", err)
	}
	defer stmt.Close()

	written, skipped := 0, 0
	for _, s := range swaps {
		if _, ok := existing[s.GetContentID()]; ok {
			skipped++
			continue
		}
		m := s.Serialize()
		if _, err := stmt.Exec(m["content_id"], m["tx_hash"], m["block_number"], m["timestamp"],
			m["pool"], m["taker"], m["direction"], m["base_token"], m["base_amount"], m["quote_token"], m["quote_amount"],
			m["trade_id"]); err != nil {
			return written, skipped, fmt.Errorf("inserting poolswap %s: %w", s.GetContentID(), err)
		}
		written++
	}
	return written, skipped, nil
}

// TransferRepository persists Transfer events.
type TransferRepository struct {
	*dbpkg.BaseRepository
}

// NewTransferRepository builds a TransferRepository over the model DB handle.
func NewTransferRepository(db *sql.DB, log zerolog.Logger) *TransferRepository {
	return &TransferRepository{BaseRepository: dbpkg.NewBase(db, log.With().Str("repo", "transfer").Logger())}
}

// BulkCreateSkipExisting inserts every transfer whose content_id is not
// already present.
func (r *TransferRepository) BulkCreateSkipExisting(tx *sql.Tx, transfers []*domain.Transfer) (int, int, error) {
	ids := make([]domain.ContentID, len(transfers))
	for i, t := range transfers {
		ids[i] = t.GetContentID()
	}
	existing, err := existingContentIDs(tx, "transfers", ids)
	if err != nil {
		return 0, 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO transfers
		(content_id, tx_hash, block_number, timestamp, from_address, to_address, token, amount)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing transfer insert: %w", err)
	}
	defer stmt.Close()

	written, skipped := 0, 0
	for _, t := range transfers {
		if _, ok := existing[t.GetContentID()]; ok {
			skipped++
			continue
		}
		m := t.Serialize()
		if _, err := stmt.Exec(m["content_id"], m["tx_hash"], m["block_number"], m["timestamp"],
			m["from_address"], m["to_address"], m["token"], m["amount"]); err != nil {
			return written, skipped, fmt.Errorf("inserting transfer %s: %w", t.GetContentID(), err)
		}
		written++
	}
	return written, skipped, nil
}

// LiquidityRepository persists Liquidity events.
type LiquidityRepository struct {
	*dbpkg.BaseRepository
}

// NewLiquidityRepository builds a LiquidityRepository over the model DB handle.
func NewLiquidityRepository(db *sql.DB, log zerolog.Logger) *LiquidityRepository {
	return &LiquidityRepository{BaseRepository: dbpkg.NewBase(db, log.With().Str("repo", "liquidity").Logger())}
}

// BulkCreateSkipExisting inserts every liquidity event whose content_id
// is not already present.
func (r *LiquidityRepository) BulkCreateSkipExisting(tx *sql.Tx, events []*domain.Liquidity) (int, int, error) {
	ids := make([]domain.ContentID, len(events))
	for i, e := range events {
		ids[i] = e.GetContentID()
	}
	existing, err := existingContentIDs(tx, "liquidity_events", ids)
	if err != nil {
		return 0, 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO liquidity_events
		(content_id, tx_hash, block_number, timestamp, pool, provider, is_add, token0, amount0, token1, amount1)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing liquidity insert: %w", err)
	}
	defer stmt.Close()

	written, skipped := 0, 0
	for _, e := range events {
		if _, ok := existing[e.GetContentID()]; ok {
			skipped++
			continue
		}
		m := e.Serialize()
		if _, err := stmt.Exec(m["content_id"], m["tx_hash"], m["block_number"], m["timestamp"],
			m["pool"], m["provider"], m["is_add"], m["token0"], m["amount0"], m["token1"], m["amount1"]); err != nil {
			return written, skipped, fmt.Errorf("inserting liquidity %s: %w", e.GetContentID(), err)
		}
		written++
	}
	return written, skipped, nil
}

// RewardRepository persists Reward events.
type RewardRepository struct {
	*dbpkg.BaseRepository
}

// NewRewardRepository builds a RewardRepository over the model DB handle.
func NewRewardRepository(db *sql.DB, log zerolog.Logger) *RewardRepository {
	return &RewardRepository{BaseRepository: dbpkg.NewBase(db, log.With().Str("repo", "reward").Logger())}
}

// BulkCreateSkipExisting inserts every reward whose content_id is not
// already present.
func (r *RewardRepository) BulkCreateSkipExisting(tx *sql.Tx, rewards []*domain.Reward) (int, int, error) {
	ids := make([]domain.ContentID, len(rewards))
	for i, rw := range rewards {
		ids[i] = rw.GetContentID()
	}
	existing, err := existingContentIDs(tx, "rewards", ids)
	if err != nil {
		return 0, 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO rewards
		(content_id, tx_hash, block_number, timestamp, recipient, token, amount, source)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing reward insert: %w", err)
	}
	defer stmt.Close()

	written, skipped := 0, 0
	for _, rw := range rewards {
		if _, ok := existing[rw.GetContentID()]; ok {
			skipped++
			continue
		}
		m := rw.Serialize()
		if _, err := stmt.Exec(m["content_id"], m["tx_hash"], m["block_number"], m["timestamp"],
			m["recipient"], m["token"], m["amount"], m["source"]); err != nil {
			return written, skipped, fmt.Errorf("inserting reward %s: %w", rw.GetContentID(), err)
		}
		written++
	}
	return written, skipped, nil
}

// PositionRepository persists Position balance deltas. Positions are
// never deleted.
type PositionRepository struct {
	*dbpkg.BaseRepository
}

// NewPositionRepository builds a PositionRepository over the model DB handle.
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{BaseRepository: dbpkg.NewBase(db, log.With().Str("repo", "position").Logger())}
}

// BulkCreateSkipExisting inserts every position whose content_id is not
// already present.
func (r *PositionRepository) BulkCreateSkipExisting(tx *sql.Tx, positions []*domain.Position) (int, int, error) {
	ids := make([]domain.ContentID, len(positions))
	for i, p := range positions {
		ids[i] = p.GetContentID()
	}
	existing, err := existingContentIDs(tx, "positions", ids)
	if err != nil {
		return 0, 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO positions
		(content_id, tx_hash, block_number, timestamp, holder, token, delta, parent_id, parent_type)
		VALUES (?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, 0, fmt.Errorf("preparing position insert: %w", err)
	}
	defer stmt.Close()

	written, skipped := 0, 0
	for _, p := range positions {
		if _, ok := existing[p.GetContentID()]; ok {
			skipped++
			continue
		}
		m := p.Serialize()
		if _, err := stmt.Exec(m["content_id"], m["tx_hash"], m["block_number"], m["timestamp"],
			m["holder"], m["token"], m["delta"], m["parent_id"], m["parent_type"]); err != nil {
			return written, skipped, fmt.Errorf("inserting position %s: %w", p.GetContentID(), err)
		}
		written++
	}
	return written, skipped, nil
}
