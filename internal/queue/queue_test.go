package queue

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/quick-xyz/indexer-sub000/internal/db/model"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, model.Migrate(db))
	return db
}

func TestEnqueueIsIdempotentOnBlockKey(t *testing.T) {
	db := newTestDB(t)
	q := New(db, zerolog.Nop())
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, domain.JobTypeBlock, "block:100", map[string]any{"block_number": int64(100)}, domain.JobPriorityMedium)
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, domain.JobTypeBlock, "block:100", map[string]any{"block_number": int64(100)}, domain.JobPriorityMedium)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM processing_jobs`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestLeaseReturnsHighestPriorityOldestFirst(t *testing.T) {
	db := newTestDB(t)
	q := New(db, zerolog.Nop())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, domain.JobTypeBlock, "block:1", map[string]any{"block_number": int64(1)}, domain.JobPriorityLow)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	highID, err := q.Enqueue(ctx, domain.JobTypeBlock, "block:2", map[string]any{"block_number": int64(2)}, domain.JobPriorityCritical)
	require.NoError(t, err)

	job, err := q.Lease(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, highID, job.ID)
	assert.Equal(t, 1, job.RetryCount)
}

func TestLeaseThenCompleteRequiresLeaseHolder(t *testing.T) {
	db := newTestDB(t)
	q := New(db, zerolog.Nop())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, domain.JobTypeBlock, "block:1", map[string]any{}, domain.JobPriorityMedium)
	require.NoError(t, err)

	job, err := q.Lease(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)

	err = q.Complete(ctx, job.ID, "worker-2")
	require.Error(t, err)

	require.NoError(t, q.Complete(ctx, job.ID, "worker-1"))
}

func TestSweepRecoversExpiredLeases(t *testing.T) {
	db := newTestDB(t)
	q := New(db, zerolog.Nop())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, domain.JobTypeBlock, "block:1", map[string]any{}, domain.JobPriorityMedium)
	require.NoError(t, err)

	job, err := q.Lease(ctx, "worker-1", -time.Second) // already expired
	require.NoError(t, err)
	require.NotNil(t, job)

	n, err := q.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM processing_jobs WHERE id = ?`, job.ID).Scan(&status))
	assert.Equal(t, "pending", status)
}

func TestFailResetsToPendingWithinRetryBudget(t *testing.T) {
	db := newTestDB(t)
	q := New(db, zerolog.Nop())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, domain.JobTypeBlock, "block:1", map[string]any{}, domain.JobPriorityMedium)
	require.NoError(t, err)
	job, err := q.Lease(ctx, "worker-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, job.ID, true, 3))
	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM processing_jobs WHERE id = ?`, job.ID).Scan(&status))
	assert.Equal(t, "pending", status)
}

func TestFailTerminatesWhenRetryBudgetExhausted(t *testing.T) {
	db := newTestDB(t)
	q := New(db, zerolog.Nop())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, domain.JobTypeBlock, "block:1", map[string]any{}, domain.JobPriorityMedium)
	require.NoError(t, err)
	job, err := q.Lease(ctx, "worker-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, job.ID, true, 0))
	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM processing_jobs WHERE id = ?`, job.ID).Scan(&status))
	assert.Equal(t, "failed", status)
}

func TestRequeueFailedResetsToPendingWithFreshRetryBudget(t *testing.T) {
	db := newTestDB(t)
	q := New(db, zerolog.Nop())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, domain.JobTypeBlock, "block:1", map[string]any{}, domain.JobPriorityMedium)
	require.NoError(t, err)
	job, err := q.Lease(ctx, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, job.ID, true, 0))

	n, err := q.RequeueFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var status string
	var retryCount int
	require.NoError(t, db.QueryRow(`SELECT status, retry_count FROM processing_jobs WHERE id = ?`, job.ID).Scan(&status, &retryCount))
	assert.Equal(t, "pending", status)
	assert.Equal(t, 0, retryCount)
}

func TestRequeueFailedHonoursLimit(t *testing.T) {
	db := newTestDB(t)
	q := New(db, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, domain.JobTypeBlock, fmt.Sprintf("block:%d", i), map[string]any{}, domain.JobPriorityMedium)
		require.NoError(t, err)
		job, err := q.Lease(ctx, "worker-1", time.Minute)
		require.NoError(t, err)
		require.NoError(t, q.Fail(ctx, job.ID, true, 0))
	}

	n, err := q.RequeueFailed(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var pendingCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM processing_jobs WHERE status = 'pending'`).Scan(&pendingCount))
	assert.Equal(t, 2, pendingCount)
}
