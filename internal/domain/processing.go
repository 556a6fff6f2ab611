package domain

import "time"

// TxStatus is the lifecycle state of a TransactionProcessing row.
type TxStatus string

const (
	TxStatusPending    TxStatus = "pending"
	TxStatusProcessing TxStatus = "processing"
	TxStatusCompleted  TxStatus = "completed"
	TxStatusFailed     TxStatus = "failed"
)

// TransactionProcessing tracks one transaction's pipeline progress.
type TransactionProcessing struct {
	TxHash          Hash
	BlockNumber     uint64
	Timestamp       int64
	TxIndex         int
	Status          TxStatus
	LogsProcessed   int
	EventsGenerated int
	TxSuccess       bool
	RetryCount      int
	LastProcessedAt time.Time
}

// BlockProcessing aggregates per-block outcomes: transaction count, event
// count, and whether every transaction in the block succeeded.
type BlockProcessing struct {
	BlockNumber uint64
	Timestamp   int64
	TxCount     int
	EventCount  int
	Success     bool
}

// JobStatus is the lifecycle state of a ProcessingJob.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
)

// JobType names the kind of durable job in the queue.
type JobType string

const (
	JobTypeBlock JobType = "block"
	JobTypeRange JobType = "range"
)

// JobPriority is the queue's tie-break ordering.
type JobPriority int

const (
	JobPriorityLow JobPriority = iota
	JobPriorityMedium
	JobPriorityHigh
	JobPriorityCritical
)

// ProcessingJob is one row of the durable job queue.
type ProcessingJob struct {
	ID         string
	JobType    JobType
	JobData    map[string]any
	Priority   JobPriority
	Status     JobStatus
	WorkerID   string
	LeasedUntil time.Time
	RetryCount int
	CreatedAt  time.Time
}
