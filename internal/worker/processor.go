// Package worker implements the job-queue-driven orchestrator: a pool of
// workers leasing jobs from internal/queue, each running a block through
// fetch/decode/transform/write, plus the auto-enqueue backpressure task
// that keeps the queue fed from the chain tip. Each worker polls the
// durable SQL-backed queue for a lease, backing off exponentially while
// it is empty; failed jobs are retried through that same queue.
package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quick-xyz/indexer-sub000/internal/chain"
	"github.com/quick-xyz/indexer-sub000/internal/decode"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
	"github.com/quick-xyz/indexer-sub000/internal/transform"
	"github.com/quick-xyz/indexer-sub000/internal/write"
)

// BlockFetcher is the narrow capability BlockProcessor needs to obtain a
// block-with-receipts.
type BlockFetcher interface {
	Fetch(ctx context.Context, blockNumber uint64) (*chain.Block, error)
}

// BlockResult summarises one processed block, the figures a caller logs
// or surfaces via job completion.
type BlockResult struct {
	BlockNumber      uint64
	Transactions     int
	EventsWritten    int
	EventsSkipped    int
	PositionsWritten int
	PositionsSkipped int
}

// BlockProcessor runs a single block through the full pipeline: fetch,
// decode, per-transaction transform, and write.
type BlockProcessor struct {
	source   BlockFetcher
	decoder  *decode.BlockDecoder
	pipeline *transform.Pipeline
	writer   *write.Writer
	log      zerolog.Logger
}

// NewBlockProcessor builds a BlockProcessor.
func NewBlockProcessor(source BlockFetcher, decoder *decode.BlockDecoder, pipeline *transform.Pipeline, writer *write.Writer, log zerolog.Logger) *BlockProcessor {
	return &BlockProcessor{
		source:   source,
		decoder:  decoder,
		pipeline: pipeline,
		writer:   writer,
		log:      log.With().Str("component", "block_processor").Logger(),
	}
}

// ProcessBlock fetches, decodes, transforms, and writes one block's
// transactions. A failure in one transaction's transform step does not
// abort the rest of the block: the error is logged, nothing is written
// for that transaction, and once the other transactions are written
// ProcessBlock returns the first transform error so the caller can
// classify the job outcome.
func (p *BlockProcessor) ProcessBlock(ctx context.Context, blockNumber uint64) (BlockResult, error) {
	block, err := p.source.Fetch(ctx, blockNumber)
	if err != nil {
		return BlockResult{}, err // already a *apperr.BlockFetchError
	}

	txFrom := make(map[string]domain.Address, len(block.Transactions))
	for _, t := range block.Transactions {
		txFrom[t.Hash] = domain.NewAddress(t.From)
	}

	txLogs := p.decoder.Decode(block)
	blockHash := domain.NewHash(block.Header.Hash)

	result := BlockResult{BlockNumber: blockNumber, Transactions: len(txLogs)}
	var firstErr error

	for _, tl := range txLogs {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		out, err := p.pipeline.ProcessTransaction(blockHash, blockNumber, block.Header.Timestamp, txFrom[tl.TxHash], tl)
		if err != nil {
			p.log.Error().Err(err).Str("tx", tl.TxHash).Uint64("block", blockNumber).Msg("transform failed, skipping transaction")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		wres, err := p.writer.WriteTransactionResults(ctx, domain.NewHash(tl.TxHash), blockNumber, block.Header.Timestamp, tl.TxIndex, out.EventsByContentID, out.PositionsByContentID, tl.Success)
		if err != nil {
			return result, fmt.Errorf("writing results for tx %s: %w", tl.TxHash, err)
		}
		result.EventsWritten += wres.EventsWritten
		result.EventsSkipped += wres.EventsSkipped
		result.PositionsWritten += wres.PositionsWritten
		result.PositionsSkipped += wres.PositionsSkipped
	}

	return result, firstErr // already a *apperr.TransformError from the pipeline, if non-nil
}
