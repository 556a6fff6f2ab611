package model

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func TestHighestProcessedBlockIsNotOKWhenEmpty(t *testing.T) {
	db := newTestDB(t)
	r := NewProcessingRepository(db, zerolog.Nop())

	_, ok, err := r.HighestProcessedBlock()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasBlockProcessingAndMissingBlocksInRange(t *testing.T) {
	db := newTestDB(t)
	r := NewProcessingRepository(db, zerolog.Nop())

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, r.UpsertBlockProcessing(tx, 100, 1000, 1, 2, true))
	require.NoError(t, r.UpsertBlockProcessing(tx, 102, 1010, 1, 0, true))
	require.NoError(t, tx.Commit())

	done, err := r.HasBlockProcessing(100)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = r.HasBlockProcessing(101)
	require.NoError(t, err)
	assert.False(t, done)

	missing, err := r.MissingBlocksInRange(100, 103)
	require.NoError(t, err)
	assert.Equal(t, []uint64{101, 103}, missing)

	n, ok, err := r.HighestProcessedBlock()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(102), n)
}

func TestUpsertBlockProcessingAccumulatesCounts(t *testing.T) {
	db := newTestDB(t)
	r := NewProcessingRepository(db, zerolog.Nop())

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, r.UpsertBlockProcessing(tx, 200, 2000, 1, 3, true))
	require.NoError(t, r.UpsertBlockProcessing(tx, 200, 2000, 1, 2, false))
	require.NoError(t, tx.Commit())

	var txCount, eventCount int
	var success bool
	require.NoError(t, db.QueryRow(`SELECT tx_count, event_count, success FROM block_processing WHERE block_number = 200`).
		Scan(&txCount, &eventCount, &success))
	assert.Equal(t, 2, txCount)
	assert.Equal(t, 5, eventCount)
	assert.False(t, success)
}
