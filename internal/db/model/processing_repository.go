package model

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	dbpkg "github.com/quick-xyz/indexer-sub000/internal/db"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// ProcessingRepository tracks per-transaction and per-block pipeline
// progress.
type ProcessingRepository struct {
	*dbpkg.BaseRepository
}

// NewProcessingRepository builds a ProcessingRepository over the model DB handle.
func NewProcessingRepository(db *sql.DB, log zerolog.Logger) *ProcessingRepository {
	return &ProcessingRepository{BaseRepository: dbpkg.NewBase(db, log.With().Str("repo", "processing").Logger())}
}

// UpsertTransactionProcessing writes or updates tp within tx.
func (r *ProcessingRepository) UpsertTransactionProcessing(tx *sql.Tx, tp domain.TransactionProcessing) error {
	_, err := tx.Exec(`
		INSERT INTO transaction_processing
			(tx_hash, block_number, timestamp, tx_index, status, logs_processed, events_generated, tx_success, retry_count, last_processed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(tx_hash) DO UPDATE SET
			status=excluded.status,
			logs_processed=excluded.logs_processed,
			events_generated=excluded.events_generated,
			tx_success=excluded.tx_success,
			retry_count=excluded.retry_count,
			last_processed_at=excluded.last_processed_at`,
		string(tp.TxHash), tp.BlockNumber, tp.Timestamp, tp.TxIndex, string(tp.Status),
		tp.LogsProcessed, tp.EventsGenerated, tp.TxSuccess, tp.RetryCount, tp.LastProcessedAt.Unix())
	if err != nil {
		return fmt.Errorf("upserting transaction_processing for %s: %w", tp.TxHash, err)
	}
	return nil
}

// GetTransactionProcessing returns the row for txHash, or sql.ErrNoRows.
func (r *ProcessingRepository) GetTransactionProcessing(txHash domain.Hash) (domain.TransactionProcessing, error) {
	var tp domain.TransactionProcessing
	var status string
	var lastProcessed int64
	row := r.DB().QueryRow(`
		SELECT tx_hash, block_number, timestamp, tx_index, status, logs_processed, events_generated, tx_success, retry_count, last_processed_at
		FROM transaction_processing WHERE tx_hash = ?`, string(txHash))
	if err := row.Scan(&tp.TxHash, &tp.BlockNumber, &tp.Timestamp, &tp.TxIndex, &status,
		&tp.LogsProcessed, &tp.EventsGenerated, &tp.TxSuccess, &tp.RetryCount, &lastProcessed); err != nil {
		return tp, err
	}
	tp.Status = domain.TxStatus(status)
	return tp, nil
}

// HighestProcessedBlock returns the largest block_number recorded in
// block_processing, used by the orchestrator's auto-enqueue task to find
// where to resume from. ok is false when no block has been processed yet.
func (r *ProcessingRepository) HighestProcessedBlock() (blockNumber uint64, ok bool, err error) {
	var n sql.NullInt64
	if err := r.DB().QueryRow(`SELECT MAX(block_number) FROM block_processing`).Scan(&n); err != nil {
		return 0, false, fmt.Errorf("reading highest processed block: %w", err)
	}
	if !n.Valid {
		return 0, false, nil
	}
	return uint64(n.Int64), true, nil
}

// HasBlockProcessing reports whether blockNumber already has a
// block_processing row, the "already processed" check `blocks`/`range`
// consult unless invoked with --force.
func (r *ProcessingRepository) HasBlockProcessing(blockNumber uint64) (bool, error) {
	var exists int
	err := r.DB().QueryRow(`SELECT 1 FROM block_processing WHERE block_number = ?`, blockNumber).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking block_processing for block %d: %w", blockNumber, err)
	}
	return true, nil
}

// MissingBlocksInRange returns every block number in [start,end] with no
// block_processing row.
func (r *ProcessingRepository) MissingBlocksInRange(start, end uint64) ([]uint64, error) {
	rows, err := r.DB().Query(`SELECT block_number FROM block_processing WHERE block_number BETWEEN ? AND ?`, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying block_processing in range [%d,%d]: %w", start, end, err)
	}
	defer rows.Close()

	present := make(map[uint64]struct{})
	for rows.Next() {
		var n uint64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning block_processing row: %w", err)
		}
		present[n] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []uint64
	for b := start; b <= end; b++ {
		if _, ok := present[b]; !ok {
			missing = append(missing, b)
		}
	}
	return missing, nil
}

// UpsertBlockProcessing accumulates a block's tx/event counts within tx,
// the per-block aggregate rolled up across every transaction it contains.
func (r *ProcessingRepository) UpsertBlockProcessing(tx *sql.Tx, blockNumber uint64, timestamp int64, txDelta, eventDelta int, success bool) error {
	_, err := tx.Exec(`
		INSERT INTO block_processing (block_number, timestamp, tx_count, event_count, success)
		VALUES (?,?,?,?,?)
		ON CONFLICT(block_number) DO UPDATE SET
			tx_count = tx_count + excluded.tx_count,
			event_count = event_count + excluded.event_count,
			success = CASE WHEN block_processing.success = 0 THEN 0 ELSE excluded.success END`,
		blockNumber, timestamp, txDelta, eventDelta, success)
	if err != nil {
		return fmt.Errorf("upserting block_processing for block %d: %w", blockNumber, err)
	}
	return nil
}
