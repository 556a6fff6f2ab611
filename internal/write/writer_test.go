package write

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	modeldb "github.com/quick-xyz/indexer-sub000/internal/db/model"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, modeldb.Migrate(db))
	return db
}

func sampleResults() (map[domain.ContentID]domain.Event, map[domain.ContentID]*domain.Position) {
	meta := domain.EventMeta{ContentID: "0xtrade1", TxHash: "0xabc", BlockNumber: 100, Timestamp: 1000}
	trade := domain.NewTrade(meta, "0xtaker", domain.DirectionSell, "0xbase", "1000000000000000000", "0xquote", "2000000000000000000")
	trade.SwapCount = 1
	trade.TradeType = domain.TradeTypeUser

	swapMeta := domain.EventMeta{ContentID: "0xswap1", TxHash: "0xabc", BlockNumber: 100, Timestamp: 1000}
	tradeID := trade.GetContentID()
	swap := domain.NewPoolSwap(swapMeta, "0xpool", "0xtaker", domain.DirectionSell, "0xbase", "1000000000000000000", "0xquote", "2000000000000000000")
	swap.TradeID = &tradeID

	events := map[domain.ContentID]domain.Event{
		trade.GetContentID(): trade,
		swap.GetContentID():  swap,
	}
	positions := map[domain.ContentID]*domain.Position{}
	return events, positions
}

func TestWriteTransactionResultsIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db, zerolog.Nop())
	ctx := context.Background()

	events, positions := sampleResults()

	res1, err := w.WriteTransactionResults(ctx, "0xabc", 100, 1000, 0, events, positions, true)
	require.NoError(t, err)
	assert.Equal(t, 2, res1.EventsWritten)
	assert.Equal(t, 0, res1.EventsSkipped)

	res2, err := w.WriteTransactionResults(ctx, "0xabc", 100, 1000, 0, events, positions, true)
	require.NoError(t, err)
	assert.Equal(t, 0, res2.EventsWritten)
	assert.Equal(t, 2, res2.EventsSkipped)

	var tradeCount, swapCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&tradeCount))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM poolswaps`).Scan(&swapCount))
	assert.Equal(t, 1, tradeCount)
	assert.Equal(t, 1, swapCount)

	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM transaction_processing WHERE tx_hash = ?`, "0xabc").Scan(&status))
	assert.Equal(t, "completed", status)
}

func TestWriteTransactionResultsAggregatesBlockProcessing(t *testing.T) {
	db := newTestDB(t)
	w := NewWriter(db, zerolog.Nop())
	ctx := context.Background()

	events, positions := sampleResults()
	_, err := w.WriteTransactionResults(ctx, "0xabc", 100, 1000, 0, events, positions, true)
	require.NoError(t, err)

	var txCount, eventCount int
	require.NoError(t, db.QueryRow(`SELECT tx_count, event_count FROM block_processing WHERE block_number = 100`).Scan(&txCount, &eventCount))
	assert.Equal(t, 1, txCount)
	assert.Equal(t, 2, eventCount)
}
