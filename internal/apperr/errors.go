// Package apperr defines the indexer's error taxonomy. Each error kind
// is a distinct type so callers can distinguish retryable failures from
// terminal ones with errors.As rather than matching on string content.
package apperr

import (
	"errors"
	"fmt"
)

// ConfigInvalid is fatal at startup: a missing model, an unresolvable
// ABI, or contradictory pricing configuration.
type ConfigInvalid struct {
	Reason string
}

func (e *ConfigInvalid) Error() string { return fmt.Sprintf("config invalid: %s", e.Reason) }

// BlockFetchError means every source and the RPC fallback failed with a
// non-404 error. Retryable up to max_retries.
type BlockFetchError struct {
	BlockNumber uint64
	Err         error
}

func (e *BlockFetchError) Error() string {
	return fmt.Sprintf("block fetch failed for block %d: %v", e.BlockNumber, e.Err)
}
func (e *BlockFetchError) Unwrap() error { return e.Err }
func (e *BlockFetchError) Retryable() bool { return true }

// DecodeError means the block payload was malformed. Non-retryable.
type DecodeError struct {
	BlockNumber uint64
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed for block %d: %v", e.BlockNumber, e.Err)
}
func (e *DecodeError) Unwrap() error   { return e.Err }
func (e *DecodeError) Retryable() bool { return false }

// TransformError means a transformer raised while processing one
// transaction; other transactions in the block still proceed.
type TransformError struct {
	TxHash string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed for tx %s: %v", e.TxHash, e.Err)
}
func (e *TransformError) Unwrap() error { return e.Err }

// PersistError wraps a DB error during bulk write; the whole transaction
// rolls back and the job retries.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("persist failed (%s): %v", e.Op, e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }
func (e *PersistError) Retryable() bool { return true }

// PricingGap is not an error in the Go sense — it is returned as a
// sentinel value by pricing lookups to signal "not yet available",
// distinct from a real failure, so callers can skip and retry on the
// next scheduled run without logging at error level.
var PricingGap = fmt.Errorf("pricing gap: canonical price not yet available")

// LeaseLost means another worker took over the job; the current worker
// must abort without committing.
type LeaseLost struct {
	JobID string
}

func (e *LeaseLost) Error() string { return fmt.Sprintf("lease lost for job %s", e.JobID) }

// Retryable reports whether err, or an error it wraps, carries retry
// semantics, defaulting to false for unrecognised error types.
func Retryable(err error) bool {
	type retryabler interface{ Retryable() bool }
	var r retryabler
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
