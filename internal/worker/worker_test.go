package worker

import (
	"context"
	"database/sql"
	"testing"
	"time"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/quick-xyz/indexer-sub000/internal/chain"
	"github.com/quick-xyz/indexer-sub000/internal/decode"
	modeldb "github.com/quick-xyz/indexer-sub000/internal/db/model"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
	"github.com/quick-xyz/indexer-sub000/internal/queue"
	"github.com/quick-xyz/indexer-sub000/internal/transform"
	"github.com/quick-xyz/indexer-sub000/internal/write"
)

// emptyContracts matches nothing, so every log in a test block falls
// through to the encoded/skip path — these tests exercise orchestration,
// not decoding (decode and transform have their own tests in
// internal/decode and internal/transform).
type emptyContracts struct{}

func (emptyContracts) ContractFor(domain.Address) (domain.Contract, bool) { return domain.Contract{}, false }
func (emptyContracts) ABIFor(domain.Address) (*ethabi.ABI, bool)          { return nil, false }

func newBlockProcessor(t *testing.T, fetcher BlockFetcher) *BlockProcessor {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, modeldb.Migrate(db))

	decoder := decode.NewBlockDecoder(decode.NewLogDecoder(emptyContracts{}))
	pipeline := transform.NewPipeline(emptyContracts{}, transform.NewRegistry(), zerolog.Nop())
	writer := write.NewWriter(db, zerolog.Nop())
	return NewBlockProcessor(fetcher, decoder, pipeline, writer, zerolog.Nop())
}

type fakeFetcher struct {
	block *chain.Block
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, blockNumber uint64) (*chain.Block, error) {
	return f.block, f.err
}

func sampleBlock(number uint64) *chain.Block {
	return &chain.Block{
		Header: chain.Header{Hash: "0xblockhash", Number: number, Timestamp: 1000},
		Transactions: []chain.Transaction{
			{Hash: "0xtx1", From: "0xsender", To: "0xpool", Index: 0},
		},
		Receipts: []chain.Receipt{
			{TxHash: "0xtx1", Status: "0x1", TxIndex: 0, Logs: []chain.Log{
				{Address: "0xpool", Topics: []string{"0xdeadbeef"}, Data: "0x", LogIndex: 0, TxHash: "0xtx1", BlockNumber: number},
			}},
		},
	}
}

func TestBlockProcessorProcessesBlockWithNoMatchingContracts(t *testing.T) {
	p := newBlockProcessor(t, &fakeFetcher{block: sampleBlock(100)})
	result, err := p.ProcessBlock(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), result.BlockNumber)
	assert.Equal(t, 1, result.Transactions)
	assert.Equal(t, 0, result.EventsWritten)
}

// fakeQueue is an in-memory JobQueue: it leases exactly the jobs seeded
// in pending, in order, once each.
type fakeQueue struct {
	mu        chan struct{}
	pending   []*queue.Job
	completed []string
	failed    []string
	enqueued  []map[string]any
}

func newFakeQueue(jobs ...*queue.Job) *fakeQueue {
	return &fakeQueue{mu: make(chan struct{}, 1), pending: jobs}
}

func (q *fakeQueue) Lease(ctx context.Context, workerID string, leaseDuration time.Duration) (*queue.Job, error) {
	q.mu <- struct{}{}
	defer func() { <-q.mu }()
	if len(q.pending) == 0 {
		return nil, nil
	}
	j := q.pending[0]
	q.pending = q.pending[1:]
	return j, nil
}

func (q *fakeQueue) Complete(ctx context.Context, jobID, workerID string) error {
	q.mu <- struct{}{}
	defer func() { <-q.mu }()
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *fakeQueue) Fail(ctx context.Context, jobID string, retryable bool, maxRetries int) error {
	q.mu <- struct{}{}
	defer func() { <-q.mu }()
	q.failed = append(q.failed, jobID)
	return nil
}

func (q *fakeQueue) Sweep(ctx context.Context) (int, error) { return 0, nil }

func (q *fakeQueue) PendingDepth(ctx context.Context) (int, error) {
	q.mu <- struct{}{}
	defer func() { <-q.mu }()
	return len(q.pending), nil
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobType domain.JobType, blockKey string, jobData map[string]any, priority domain.JobPriority) (string, error) {
	q.mu <- struct{}{}
	defer func() { <-q.mu }()
	q.enqueued = append(q.enqueued, jobData)
	return "enqueued", nil
}

type fixedTip struct{ n uint64 }

func (f fixedTip) LatestBlockNumber(ctx context.Context) (uint64, error) { return f.n, nil }

type fixedFrontier struct {
	n    uint64
	ok   bool
	done map[uint64]bool
}

func (f fixedFrontier) HighestProcessedBlock() (uint64, bool, error) { return f.n, f.ok, nil }

func (f fixedFrontier) HasBlockProcessing(blockNumber uint64) (bool, error) {
	return f.done[blockNumber], nil
}

func TestOrchestratorProcessesBlockJobThenIdles(t *testing.T) {
	processor := newBlockProcessor(t, &fakeFetcher{block: sampleBlock(100)})
	q := newFakeQueue(&queue.Job{ID: "job1", JobType: domain.JobTypeBlock, JobData: map[string]any{"block_number": int64(100)}})

	o := NewOrchestrator(q, processor, fixedTip{n: 100}, fixedFrontier{ok: false}, nil, Config{
		NumWorkers:            1,
		MinBackoff:            5 * time.Millisecond,
		MaxBackoff:            20 * time.Millisecond,
		SweepInterval:         time.Hour,
		AutoEnqueueInterval:   time.Hour,
		PendingDepthThreshold: 1,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, o.Run(ctx))

	assert.Equal(t, []string{"job1"}, q.completed)
	assert.Empty(t, q.failed)
}

func TestOrchestratorExpandsRangeJob(t *testing.T) {
	processor := newBlockProcessor(t, &fakeFetcher{block: sampleBlock(100)})
	q := newFakeQueue(&queue.Job{ID: "range1", JobType: domain.JobTypeRange, JobData: map[string]any{
		"start_block": int64(100), "end_block": int64(102),
	}})

	o := NewOrchestrator(q, processor, fixedTip{n: 200}, fixedFrontier{ok: false}, nil, Config{
		NumWorkers:            1,
		MinBackoff:            5 * time.Millisecond,
		MaxBackoff:            20 * time.Millisecond,
		SweepInterval:         time.Hour,
		AutoEnqueueInterval:   time.Hour,
		PendingDepthThreshold: 1,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, o.Run(ctx))

	assert.Equal(t, []string{"range1"}, q.completed)
	assert.Len(t, q.enqueued, 3)
}

func TestAutoEnqueueFiresBelowThreshold(t *testing.T) {
	processor := newBlockProcessor(t, &fakeFetcher{block: sampleBlock(100)})
	q := newFakeQueue() // no pending jobs: depth stays 0, below threshold

	o := NewOrchestrator(q, processor, fixedTip{n: 500}, fixedFrontier{n: 99, ok: true}, nil, Config{
		NumWorkers:            1,
		MinBackoff:            5 * time.Millisecond,
		MaxBackoff:            20 * time.Millisecond,
		SweepInterval:         time.Hour,
		AutoEnqueueInterval:   5 * time.Millisecond,
		PendingDepthThreshold: 5,
		EnqueueWindowSize:     50,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	require.NoError(t, o.Run(ctx))

	require.NotEmpty(t, q.enqueued)
	assert.Equal(t, uint64(100), q.enqueued[0]["start_block"])
	assert.Equal(t, uint64(149), q.enqueued[0]["end_block"])
}
