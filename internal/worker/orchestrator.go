package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quick-xyz/indexer-sub000/internal/apperr"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
	"github.com/quick-xyz/indexer-sub000/internal/queue"
)

// JobQueue is the narrow capability the Orchestrator needs from
// internal/queue.Queue.
type JobQueue interface {
	Lease(ctx context.Context, workerID string, leaseDuration time.Duration) (*queue.Job, error)
	Complete(ctx context.Context, jobID, workerID string) error
	Fail(ctx context.Context, jobID string, retryable bool, maxRetries int) error
	Sweep(ctx context.Context) (int, error)
	PendingDepth(ctx context.Context) (int, error)
	Enqueue(ctx context.Context, jobType domain.JobType, blockKey string, jobData map[string]any, priority domain.JobPriority) (string, error)
}

var _ JobQueue = (*queue.Queue)(nil)

// ChainTip resolves the chain's latest block number, the auto-enqueue
// task's upper bound.
type ChainTip interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// BlockFrontier resolves the highest block already processed, the
// auto-enqueue task's resume point, and per-block processed status for
// the `blocks`/`range` CLI commands' default skip-if-done behaviour.
type BlockFrontier interface {
	HighestProcessedBlock() (blockNumber uint64, ok bool, err error)
	HasBlockProcessing(blockNumber uint64) (bool, error)
}

// Config tunes the Orchestrator's worker count, lease/retry/backoff
// behaviour, and backpressure thresholds.
type Config struct {
	NumWorkers    int
	LeaseDuration time.Duration
	MaxRetries    int

	MinBackoff time.Duration // initial sleep after an empty lease
	MaxBackoff time.Duration // backoff ceiling

	SweepInterval time.Duration

	AutoEnqueueInterval   time.Duration
	PendingDepthThreshold int // auto-enqueue fires when pending depth drops below this
	EnqueueWindowSize     int // blocks per auto-enqueued range job
	StartBlock            uint64

	CPUThreshold float64 // percent; 0 disables CPU-based backpressure
	MemThreshold float64 // percent; 0 disables memory-based backpressure
}

// withDefaults fills unset fields with their operational defaults.
func (c Config) withDefaults() Config {
	if c.NumWorkers <= 0 {
		c.NumWorkers = 3
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 2 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 250 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.LeaseDuration / 2
	}
	if c.AutoEnqueueInterval <= 0 {
		c.AutoEnqueueInterval = 5 * time.Second
	}
	if c.PendingDepthThreshold <= 0 {
		c.PendingDepthThreshold = c.NumWorkers * 2
	}
	if c.EnqueueWindowSize <= 0 {
		c.EnqueueWindowSize = 100
	}
	return c
}

// Orchestrator runs Config.NumWorkers worker loops against a JobQueue,
// plus a lease-sweeper and a tip-following auto-enqueue task. Each worker
// loop polls the durable SQL queue for a lease and hands the job to
// BlockProcessor, backing off exponentially while the queue is empty.
type Orchestrator struct {
	queue     JobQueue
	processor *BlockProcessor
	tip       ChainTip
	frontier  BlockFrontier
	health    *HealthSampler

	cfg Config
	log zerolog.Logger
}

// NewOrchestrator builds an Orchestrator. health may be nil to disable
// CPU/memory-based backpressure entirely.
func NewOrchestrator(q JobQueue, processor *BlockProcessor, tip ChainTip, frontier BlockFrontier, health *HealthSampler, cfg Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		queue:     q,
		processor: processor,
		tip:       tip,
		frontier:  frontier,
		health:    health,
		cfg:       cfg.withDefaults(),
		log:       log.With().Str("component", "orchestrator").Logger(),
	}
}

// Run starts the worker pool, the sweeper, and the auto-enqueue task; it
// blocks until ctx is cancelled and every goroutine has returned. On
// cancellation, workers stop accepting new leases; a block job in
// progress stops at its next transaction boundary, and the queue calls
// made with the cancelled context fail, so the job keeps its lease until
// it expires and the next Sweep returns it to pending (spec §4.7
// "honour cancellation").
func (o *Orchestrator) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for i := 0; i < o.cfg.NumWorkers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			o.workerLoop(ctx, id)
		}(workerID)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		o.sweepLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		o.autoEnqueueLoop(ctx)
	}()

	<-ctx.Done()
	o.log.Info().Msg("shutdown signal received, draining in-flight work")
	wg.Wait()
	return nil
}

// workerLoop leases and processes jobs until ctx is cancelled, backing
// off exponentially between empty leases.
func (o *Orchestrator) workerLoop(ctx context.Context, workerID string) {
	backoff := o.cfg.MinBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		if o.health != nil && o.health.Overloaded(o.cfg.CPUThreshold, o.cfg.MemThreshold) {
			if !sleepCtx(ctx, backoff) {
				return
			}
			continue
		}

		job, err := o.queue.Lease(ctx, workerID, o.cfg.LeaseDuration)
		if err != nil {
			o.log.Error().Err(err).Str("worker", workerID).Msg("lease failed")
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = growBackoff(backoff, o.cfg.MaxBackoff)
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = growBackoff(backoff, o.cfg.MaxBackoff)
			continue
		}

		backoff = o.cfg.MinBackoff
		o.handleJob(ctx, workerID, job)
	}
}

// handleJob dispatches job to its type-specific handling and reports the
// outcome back to the queue.
func (o *Orchestrator) handleJob(ctx context.Context, workerID string, job *queue.Job) {
	switch job.JobType {
	case domain.JobTypeBlock:
		o.handleBlockJob(ctx, workerID, job)
	case domain.JobTypeRange:
		o.handleRangeJob(ctx, workerID, job)
	default:
		o.log.Error().Str("job_type", string(job.JobType)).Msg("unknown job type, failing permanently")
		if err := o.queue.Fail(ctx, job.ID, false, o.cfg.MaxRetries); err != nil {
			o.log.Error().Err(err).Str("job", job.ID).Msg("failing unknown job type")
		}
	}
}

// handleBlockJob fetches, decodes, transforms, and writes one block.
func (o *Orchestrator) handleBlockJob(ctx context.Context, workerID string, job *queue.Job) {
	blockNumber, err := jobDataUint64(job.JobData, "block_number")
	if err != nil {
		o.log.Error().Err(err).Str("job", job.ID).Msg("malformed block job payload")
		if ferr := o.queue.Fail(ctx, job.ID, false, o.cfg.MaxRetries); ferr != nil {
			o.log.Error().Err(ferr).Str("job", job.ID).Msg("failing malformed block job")
		}
		return
	}

	result, err := o.processor.ProcessBlock(ctx, blockNumber)
	if err != nil {
		retryable := apperr.Retryable(err)
		o.log.Error().Err(err).Uint64("block", blockNumber).Bool("retryable", retryable).Msg("block processing failed")
		if ferr := o.queue.Fail(ctx, job.ID, retryable, o.cfg.MaxRetries); ferr != nil {
			o.log.Error().Err(ferr).Str("job", job.ID).Msg("failing block job")
		}
		return
	}

	o.log.Info().Uint64("block", result.BlockNumber).Int("txs", result.Transactions).
		Int("events_written", result.EventsWritten).Msg("block processed")
	if err := o.queue.Complete(ctx, job.ID, workerID); err != nil {
		o.log.Error().Err(err).Str("job", job.ID).Msg("completing block job")
	}
}

// handleRangeJob expands a range job into one block job per block in
// [start,end], then completes the range job itself.
func (o *Orchestrator) handleRangeJob(ctx context.Context, workerID string, job *queue.Job) {
	start, errStart := jobDataUint64(job.JobData, "start_block")
	end, errEnd := jobDataUint64(job.JobData, "end_block")
	if errStart != nil || errEnd != nil || end < start {
		o.log.Error().Str("job", job.ID).Msg("malformed range job payload")
		if ferr := o.queue.Fail(ctx, job.ID, false, o.cfg.MaxRetries); ferr != nil {
			o.log.Error().Err(ferr).Str("job", job.ID).Msg("failing malformed range job")
		}
		return
	}

	force, _ := job.JobData["force"].(bool)

	for b := start; b <= end; b++ {
		if !force && o.frontier != nil {
			if done, err := o.frontier.HasBlockProcessing(b); err == nil && done {
				continue
			}
		}
		if _, err := o.queue.Enqueue(ctx, domain.JobTypeBlock, blockKey(b), map[string]any{"block_number": b}, job.Priority); err != nil {
			o.log.Error().Err(err).Uint64("block", b).Str("job", job.ID).Msg("expanding range job")
			if ferr := o.queue.Fail(ctx, job.ID, true, o.cfg.MaxRetries); ferr != nil {
				o.log.Error().Err(ferr).Str("job", job.ID).Msg("failing range job after partial expansion")
			}
			return
		}
	}

	if err := o.queue.Complete(ctx, job.ID, workerID); err != nil {
		o.log.Error().Err(err).Str("job", job.ID).Msg("completing range job")
	}
}

// sweepLoop periodically reclaims expired leases.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := o.queue.Sweep(ctx)
			if err != nil {
				o.log.Error().Err(err).Msg("sweep failed")
				continue
			}
			if n > 0 {
				o.log.Warn().Int("recovered", n).Msg("reclaimed expired leases")
			}
		}
	}
}

// autoEnqueueLoop enqueues the next window of blocks from the chain tip
// once pending depth drops below the configured threshold.
func (o *Orchestrator) autoEnqueueLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.AutoEnqueueInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.maybeEnqueueNextWindow(ctx)
		}
	}
}

func (o *Orchestrator) maybeEnqueueNextWindow(ctx context.Context) {
	depth, err := o.queue.PendingDepth(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("reading pending depth")
		return
	}
	if depth >= o.cfg.PendingDepthThreshold {
		return
	}

	tip, err := o.tip.LatestBlockNumber(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("reading chain tip")
		return
	}

	start := o.cfg.StartBlock
	if last, ok, err := o.frontier.HighestProcessedBlock(); err != nil {
		o.log.Error().Err(err).Msg("reading processing frontier")
		return
	} else if ok {
		start = last + 1
	}
	if start > tip {
		return
	}

	end := start + uint64(o.cfg.EnqueueWindowSize) - 1
	if end > tip {
		end = tip
	}

	if _, err := o.queue.Enqueue(ctx, domain.JobTypeRange, rangeKey(start, end), map[string]any{
		"start_block": start,
		"end_block":   end,
	}, domain.JobPriorityMedium); err != nil {
		o.log.Error().Err(err).Uint64("start", start).Uint64("end", end).Msg("auto-enqueueing next window")
		return
	}
	o.log.Info().Uint64("start", start).Uint64("end", end).Msg("auto-enqueued next window")
}

func blockKey(b uint64) string { return fmt.Sprintf("block:%d", b) }
func rangeKey(start, end uint64) string { return fmt.Sprintf("range:%d-%d", start, end) }

// growBackoff doubles d, capped at max.
func growBackoff(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes
// first. Returns false when ctx was cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// jobDataUint64 extracts key from a msgpack-decoded job payload as
// uint64, tolerating the several numeric types msgpack.Unmarshal can
// produce for an integer field (int64, uint64, float64) depending on how
// it was encoded.
func jobDataUint64(data map[string]any, key string) (uint64, error) {
	v, ok := data[key]
	if !ok {
		return 0, fmt.Errorf("job data missing %q", key)
	}
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("job data %q is negative: %d", key, n)
		}
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("job data %q is negative: %d", key, n)
		}
		return uint64(n), nil
	case float64:
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("job data %q has unexpected type %T", key, v)
	}
}
