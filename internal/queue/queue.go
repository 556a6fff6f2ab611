// Package queue implements a durable, polling job queue: SQL-backed,
// transactional lease/complete/fail/sweep operations over the model
// database's processing_jobs table.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quick-xyz/indexer-sub000/internal/apperr"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// Queue is a durable job queue backed by a transactional SQL store (spec
// §4.6). Job payloads are msgpack-encoded, the same wire format the
// teacher's work-distribution package uses for its own job payloads.
type Queue struct {
	db  *sql.DB
	log zerolog.Logger
}

// New builds a Queue over the model database handle.
func New(db *sql.DB, log zerolog.Logger) *Queue {
	return &Queue{db: db, log: log.With().Str("component", "job_queue").Logger()}
}

// Enqueue inserts a new job. Idempotent when jobData encodes a block
// number already present in a pending or processing job of the same
// type — the caller is expected to pass a blockKey that uniquely
// identifies the block/range being enqueued so this check can run
// without deserialising every candidate row's payload.
func (q *Queue) Enqueue(ctx context.Context, jobType domain.JobType, blockKey string, jobData map[string]any, priority domain.JobPriority) (string, error) {
	var existingID string
	err := q.db.QueryRowContext(ctx, `
		SELECT id FROM processing_jobs
		WHERE job_type = ? AND block_key = ? AND status IN ('pending','processing')
		LIMIT 1`, string(jobType), blockKey).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("checking enqueue idempotency for %s: %w", blockKey, err)
	}

	payload, err := msgpack.Marshal(jobData)
	if err != nil {
		return "", fmt.Errorf("encoding job payload: %w", err)
	}

	id := uuid.NewString()
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO processing_jobs (id, job_type, block_key, job_data, priority, status, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', 0, ?)`,
		id, string(jobType), blockKey, payload, int(priority), time.Now().Unix())
	if err != nil {
		return "", &apperr.PersistError{Op: "enqueue", Err: err}
	}
	return id, nil
}

// Job is one leased unit of work.
type Job struct {
	ID         string
	JobType    domain.JobType
	JobData    map[string]any
	Priority   domain.JobPriority
	WorkerID   string
	RetryCount int
}

// Lease atomically selects the highest-priority pending job (tie-break:
// oldest created_at), marks it processing, and returns it. Returns
// (nil, nil) when no job is available.
func (q *Queue) Lease(ctx context.Context, workerID string, leaseDuration time.Duration) (*Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning lease transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM processing_jobs
		WHERE status = 'pending'
		ORDER BY priority DESC, created_at ASC
		LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting next pending job: %w", err)
	}

	leasedUntil := time.Now().Add(leaseDuration).Unix()
	res, err := tx.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = 'processing', worker_id = ?, leased_until = ?, retry_count = retry_count + 1
		WHERE id = ? AND status = 'pending'`, workerID, leasedUntil, id)
	if err != nil {
		return nil, fmt.Errorf("leasing job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Another worker won the race between the select and the update;
		// the caller's next poll will pick up a different job.
		return nil, tx.Commit()
	}

	var jobTypeStr string
	var payload []byte
	var priority, retryCount int
	row := tx.QueryRowContext(ctx, `SELECT job_type, job_data, priority, retry_count FROM processing_jobs WHERE id = ?`, id)
	if err := row.Scan(&jobTypeStr, &payload, &priority, &retryCount); err != nil {
		return nil, fmt.Errorf("reading leased job %s: %w", id, err)
	}

	var jobData map[string]any
	if err := msgpack.Unmarshal(payload, &jobData); err != nil {
		return nil, fmt.Errorf("decoding job payload for %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing lease for job %s: %w", id, err)
	}

	return &Job{
		ID:         id,
		JobType:    domain.JobType(jobTypeStr),
		JobData:    jobData,
		Priority:   domain.JobPriority(priority),
		WorkerID:   workerID,
		RetryCount: retryCount,
	}, nil
}

// Complete marks jobID complete. Only the lease holder (workerID) may
// complete it.
func (q *Queue) Complete(ctx context.Context, jobID, workerID string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE processing_jobs SET status = 'complete'
		WHERE id = ? AND worker_id = ? AND status = 'processing'`, jobID, workerID)
	if err != nil {
		return &apperr.PersistError{Op: "complete_job", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &apperr.LeaseLost{JobID: jobID}
	}
	return nil
}

// Fail reports jobID's outcome. A retryable failure under the retry
// budget resets the job to pending; otherwise it terminates as failed.
func (q *Queue) Fail(ctx context.Context, jobID string, retryable bool, maxRetries int) error {
	var retryCount int
	if err := q.db.QueryRowContext(ctx, `SELECT retry_count FROM processing_jobs WHERE id = ?`, jobID).Scan(&retryCount); err != nil {
		return fmt.Errorf("reading retry_count for job %s: %w", jobID, err)
	}

	newStatus := "failed"
	if retryable && retryCount < maxRetries {
		newStatus = "pending"
	}

	_, err := q.db.ExecContext(ctx, `
		UPDATE processing_jobs SET status = ?, worker_id = NULL, leased_until = NULL
		WHERE id = ?`, newStatus, jobID)
	if err != nil {
		return &apperr.PersistError{Op: "fail_job", Err: err}
	}
	return nil
}

// Sweep returns expired-lease jobs to pending, recovering from a worker
// crash between Lease and Complete. Returns the number of
// jobs recovered.
func (q *Queue) Sweep(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE processing_jobs
		SET status = 'pending', worker_id = NULL, leased_until = NULL
		WHERE status = 'processing' AND leased_until < ?`, time.Now().Unix())
	if err != nil {
		return 0, &apperr.PersistError{Op: "sweep", Err: err}
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RequeueFailed resets up to limit jobs in the failed state back to
// pending with a fresh retry budget, oldest first. Returns the number of jobs requeued.
func (q *Queue) RequeueFailed(ctx context.Context, limit int) (int, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id FROM processing_jobs WHERE status = 'failed' ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return 0, fmt.Errorf("selecting failed jobs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning failed job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	requeued := 0
	for _, id := range ids {
		_, err := q.db.ExecContext(ctx, `
			UPDATE processing_jobs SET status = 'pending', worker_id = NULL, leased_until = NULL, retry_count = 0
			WHERE id = ? AND status = 'failed'`, id)
		if err != nil {
			return requeued, &apperr.PersistError{Op: "requeue_failed", Err: err}
		}
		requeued++
	}
	return requeued, nil
}

// PendingDepth returns the number of pending jobs, used by the
// orchestrator's backpressure check.
func (q *Queue) PendingDepth(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processing_jobs WHERE status = 'pending'`).Scan(&n)
	return n, err
}
