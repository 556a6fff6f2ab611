package decode

import (
	"sort"

	"github.com/quick-xyz/indexer-sub000/internal/chain"
)

// TxLogs is one transaction's ordered, decoded-or-encoded logs.
type TxLogs struct {
	TxHash  string
	TxIndex int
	Success bool
	Logs    []Log
}

// BlockDecoder decodes every log in a block, grouped by transaction and
// ordered by log_index within each transaction.
type BlockDecoder struct {
	logDecoder *LogDecoder
}

// NewBlockDecoder builds a BlockDecoder over logDecoder.
func NewBlockDecoder(logDecoder *LogDecoder) *BlockDecoder {
	return &BlockDecoder{logDecoder: logDecoder}
}

// Decode returns the block's transactions in transaction-index order,
// each carrying its logs in log_index order. Reverted transactions
// (receipt.Success() == false) are still included — with their logs —
// so transformers can account for them; they are responsible for
// skipping reverted logs if their domain requires it.
func (bd *BlockDecoder) Decode(block *chain.Block) []TxLogs {
	out := make([]TxLogs, 0, len(block.Receipts))
	for _, receipt := range block.Receipts {
		logs := make([]Log, len(receipt.Logs))
		ordered := append([]chain.Log(nil), receipt.Logs...)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].LogIndex < ordered[j].LogIndex })
		for i, l := range ordered {
			logs[i] = bd.logDecoder.Decode(l)
		}
		out = append(out, TxLogs{
			TxHash:  receipt.TxHash,
			TxIndex: receipt.TxIndex,
			Success: receipt.Success(),
			Logs:    logs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TxIndex < out[j].TxIndex })
	return out
}
