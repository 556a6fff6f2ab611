package chain

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quick-xyz/indexer-sub000/internal/apperr"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// RPCFallback is the narrow capability BlockSource needs for its RPC
// fallback path.
type RPCFallback interface {
	FetchBlock(ctx context.Context, number uint64) (*Block, error)
}

// BlockSource fetches a block-with-receipts by number: it tries each
// configured Source's object-store key in declared order, then falls
// back to RPC.
type BlockSource struct {
	store   ObjectStore
	rpc     RPCFallback
	sources []domain.Source
	log     zerolog.Logger
}

// NewBlockSource builds a BlockSource over the model's ordered sources.
func NewBlockSource(store ObjectStore, rpcFallback RPCFallback, sources []domain.Source, log zerolog.Logger) *BlockSource {
	return &BlockSource{store: store, rpc: rpcFallback, sources: sources, log: log.With().Str("component", "block_source").Logger()}
}

// windowRangeFormat matches printf-style range templates like
// "{:012d}-{:012d}" that need the containing window's start and end
// resolved, rather than the block number itself.
var windowRangeFormat = regexp.MustCompile(`\{:0?(\d+)d\}-\{:0?(\d+)d\}`)

// windowSize is the number of blocks each range-formatted source file
// covers: the object-store layout generates range sources in 1000-block
// windows.
const windowSize = 1000

// keyForSource builds the object-store key for src at blockNumber,
// resolving a "range" template to its containing window when present.
func keyForSource(src domain.Source, blockNumber uint64) (string, error) {
	if m := windowRangeFormat.FindStringSubmatch(src.Format); m != nil {
		width1, _ := strconv.Atoi(m[1])
		width2, _ := strconv.Atoi(m[2])
		windowStart := (blockNumber / windowSize) * windowSize
		windowEnd := windowStart + windowSize - 1
		key := windowRangeFormat.ReplaceAllString(src.Format,
			fmt.Sprintf("%%0%dd-%%0%dd", width1, width2))
		return joinPath(src.Path, fmt.Sprintf(key, windowStart, windowEnd)), nil
	}

	// Single block-number format, e.g. "{:012d}.json".
	single := regexp.MustCompile(`\{:0?(\d+)d\}`)
	if m := single.FindStringSubmatch(src.Format); m != nil {
		width, _ := strconv.Atoi(m[1])
		key := single.ReplaceAllString(src.Format, fmt.Sprintf("%%0%dd", width))
		return joinPath(src.Path, fmt.Sprintf(key, blockNumber)), nil
	}

	return "", fmt.Errorf("source %s: format %q has no recognised block-number template", src.Name, src.Format)
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return strings.TrimSuffix(path, "/") + "/" + key
}

// Fetch returns the block-with-receipts for blockNumber, trying each
// source in declared order before falling back to RPC. A non-404 object
// store error, or an RPC error once every source has been exhausted,
// surfaces as BlockFetchError.
func (bs *BlockSource) Fetch(ctx context.Context, blockNumber uint64) (*Block, error) {
	for _, src := range bs.sources {
		key, err := keyForSource(src, blockNumber)
		if err != nil {
			bs.log.Warn().Err(err).Str("source", src.Name).Msg("skipping source with unrecognised format")
			continue
		}

		data, ok, err := bs.store.Get(ctx, key)
		if err != nil {
			return nil, &apperr.BlockFetchError{BlockNumber: blockNumber, Err: fmt.Errorf("source %s: %w", src.Name, err)}
		}
		if !ok {
			continue
		}

		block, err := ParseBlockJSON(data)
		if err != nil {
			return nil, fmt.Errorf("parsing block %d from source %s: %w", blockNumber, src.Name, err)
		}
		return block, nil
	}

	block, err := bs.rpc.FetchBlock(ctx, blockNumber)
	if err != nil {
		return nil, &apperr.BlockFetchError{BlockNumber: blockNumber, Err: err}
	}
	return block, nil
}
