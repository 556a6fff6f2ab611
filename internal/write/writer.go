// Package write implements DomainEventWriter, the single entry point
// that persists a transaction's transformed events and positions inside
// one model-DB transaction.
package write

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quick-xyz/indexer-sub000/internal/apperr"
	modeldb "github.com/quick-xyz/indexer-sub000/internal/db/model"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// Result summarises one WriteTransactionResults call: events written,
// positions written, and how many of each were already present.
type Result struct {
	EventsWritten    int
	EventsSkipped    int
	PositionsWritten int
	PositionsSkipped int
}

// Writer is DomainEventWriter: it groups a transaction's events by kind
// and bulk-inserts each group with skip-existing semantics, all inside
// one transaction, then updates TransactionProcessing/BlockProcessing.
type Writer struct {
	db *sql.DB

	trades     *modeldb.TradeRepository
	swaps      *modeldb.PoolSwapRepository
	transfers  *modeldb.TransferRepository
	liquidity  *modeldb.LiquidityRepository
	rewards    *modeldb.RewardRepository
	positions  *modeldb.PositionRepository
	processing *modeldb.ProcessingRepository

	log zerolog.Logger
}

// NewWriter builds a Writer over the model database handle db, wiring
// one repository per event/position/processing table.
func NewWriter(db *sql.DB, log zerolog.Logger) *Writer {
	l := log.With().Str("component", "domain_event_writer").Logger()
	return &Writer{
		db:         db,
		trades:     modeldb.NewTradeRepository(db, l),
		swaps:      modeldb.NewPoolSwapRepository(db, l),
		transfers:  modeldb.NewTransferRepository(db, l),
		liquidity:  modeldb.NewLiquidityRepository(db, l),
		rewards:    modeldb.NewRewardRepository(db, l),
		positions:  modeldb.NewPositionRepository(db, l),
		processing: modeldb.NewProcessingRepository(db, l),
		log:        l,
	}
}

// WriteTransactionResults persists events and positions for one
// transaction, atomically, with at-most-once semantics on content_id.
func (w *Writer) WriteTransactionResults(
	ctx context.Context,
	txHash domain.Hash,
	blockNumber uint64,
	timestamp int64,
	txIndex int,
	events map[domain.ContentID]domain.Event,
	positions map[domain.ContentID]*domain.Position,
	txSuccess bool,
) (Result, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("beginning write transaction for %s: %w", txHash, err)
	}
	defer tx.Rollback()

	now := time.Now()
	tp := domain.TransactionProcessing{
		TxHash:          txHash,
		BlockNumber:     blockNumber,
		Timestamp:       timestamp,
		TxIndex:         txIndex,
		Status:          domain.TxStatusProcessing,
		LogsProcessed:   len(events),
		TxSuccess:       txSuccess,
		LastProcessedAt: now,
	}
	if err := w.processing.UpsertTransactionProcessing(tx, tp); err != nil {
		return Result{}, &apperr.PersistError{Op: "upsert_transaction_processing_pending", Err: err}
	}

	var trades []*domain.Trade
	var swaps []*domain.PoolSwap
	var transfers []*domain.Transfer
	var liquidityEvents []*domain.Liquidity
	var rewards []*domain.Reward

	for _, ev := range events {
		switch e := ev.(type) {
		case *domain.Trade:
			trades = append(trades, e)
			// Swaps carried only on the Trade, not also as their own entry
			// in events, are extracted here so they are persisted too.
			for _, s := range e.Swaps {
				if _, listed := events[s.GetContentID()]; !listed {
					swaps = append(swaps, s)
				}
			}
		case *domain.PoolSwap:
			swaps = append(swaps, e)
		case *domain.Transfer:
			transfers = append(transfers, e)
		case *domain.Liquidity:
			liquidityEvents = append(liquidityEvents, e)
		case *domain.Reward:
			rewards = append(rewards, e)
		default:
			w.log.Warn().Str("kind", string(ev.Kind())).Msg("unrecognised event kind, skipping write")
		}
	}

	var res Result
	groups := []func() (int, int, error){
		func() (int, int, error) { return w.trades.BulkCreateSkipExisting(tx, trades) },
		func() (int, int, error) { return w.swaps.BulkCreateSkipExisting(tx, swaps) },
		func() (int, int, error) { return w.transfers.BulkCreateSkipExisting(tx, transfers) },
		func() (int, int, error) { return w.liquidity.BulkCreateSkipExisting(tx, liquidityEvents) },
		func() (int, int, error) { return w.rewards.BulkCreateSkipExisting(tx, rewards) },
	}
	for _, group := range groups {
		written, skipped, err := group()
		if err != nil {
			return Result{}, &apperr.PersistError{Op: "bulk_create_skip_existing", Err: err}
		}
		res.EventsWritten += written
		res.EventsSkipped += skipped
	}

	posSlice := make([]*domain.Position, 0, len(positions))
	for _, p := range positions {
		posSlice = append(posSlice, p)
	}
	posWritten, posSkipped, err := w.positions.BulkCreateSkipExisting(tx, posSlice)
	if err != nil {
		return Result{}, &apperr.PersistError{Op: "bulk_create_positions", Err: err}
	}
	res.PositionsWritten = posWritten
	res.PositionsSkipped = posSkipped

	tp.Status = domain.TxStatusCompleted
	tp.EventsGenerated = res.EventsWritten + res.PositionsWritten
	tp.LastProcessedAt = time.Now()
	if err := w.processing.UpsertTransactionProcessing(tx, tp); err != nil {
		return Result{}, &apperr.PersistError{Op: "upsert_transaction_processing_completed", Err: err}
	}

	if err := w.processing.UpsertBlockProcessing(tx, blockNumber, timestamp, 1, tp.EventsGenerated, txSuccess); err != nil {
		return Result{}, &apperr.PersistError{Op: "upsert_block_processing", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, &apperr.PersistError{Op: "commit", Err: err}
	}
	return res, nil
}
