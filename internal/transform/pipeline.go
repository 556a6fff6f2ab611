package transform

import (
	"github.com/rs/zerolog"

	"github.com/quick-xyz/indexer-sub000/internal/apperr"
	"github.com/quick-xyz/indexer-sub000/internal/decode"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// ContractLookup is the narrow capability the pipeline needs to resolve a
// log's address to its bound contract.
type ContractLookup interface {
	ContractFor(addr domain.Address) (domain.Contract, bool)
}

// Output is the pipeline's result for one transaction: every event and
// position it produced, keyed by content id so repeated runs over the
// same inputs collapse to the same set. order preserves the sequence
// events were emitted in (log order) — finalise must never derive
// first/last-hop semantics from EventsByContentID directly, since Go map
// iteration order is randomised and swap order determines a synthesised
// Trade's base/quote token.
type Output struct {
	EventsByContentID    map[domain.ContentID]domain.Event
	PositionsByContentID map[domain.ContentID]*domain.Position
	order                []domain.ContentID
}

func newOutput() Output {
	return Output{
		EventsByContentID:    make(map[domain.ContentID]domain.Event),
		PositionsByContentID: make(map[domain.ContentID]*domain.Position),
	}
}

// emit records ev in both the lookup map and emission order.
func (o *Output) emit(ev domain.Event) {
	id := ev.GetContentID()
	if _, exists := o.EventsByContentID[id]; !exists {
		o.order = append(o.order, id)
	}
	o.EventsByContentID[id] = ev
}

// Pipeline dispatches decoded logs to per-contract transformers and runs
// the per-transaction finalisation pass.
type Pipeline struct {
	contracts    ContractLookup
	transformers *Registry
	log          zerolog.Logger
}

// NewPipeline builds a Pipeline over contracts and the transformer
// registry.
func NewPipeline(contracts ContractLookup, transformers *Registry, log zerolog.Logger) *Pipeline {
	return &Pipeline{contracts: contracts, transformers: transformers, log: log.With().Str("component", "transform_pipeline").Logger()}
}

// ProcessTransaction runs every decoded log in txLogs through its bound
// transformer and then the finalisation pass.
func (p *Pipeline) ProcessTransaction(block domain.Hash, blockNumber uint64, timestamp int64, txFrom domain.Address, txLogs decode.TxLogs) (Output, error) {
	out := newOutput()
	state := NewTxState()
	built := make(map[domain.Address]Transformer)

	for _, l := range txLogs.Logs {
		if l.Decoded == nil {
			continue
		}
		dl := *l.Decoded

		contract, ok := p.contracts.ContractFor(dl.Address)
		if !ok {
			continue
		}

		t, ok := built[dl.Address]
		if !ok {
			built2, exists, err := p.transformers.Build(contract)
			if err != nil {
				return out, &apperr.TransformError{TxHash: txLogs.TxHash, Err: err}
			}
			if !exists {
				continue
			}
			t = built2
			built[dl.Address] = t
		}

		tx := TxContext{
			TxHash:      domain.NewHash(txLogs.TxHash),
			BlockNumber: blockNumber,
			Timestamp:   timestamp,
			TxIndex:     txLogs.TxIndex,
			TxFrom:      txFrom,
			Contract:    contract,
		}

		result, err := t.Transform(tx, dl, state)
		if err != nil {
			return out, &apperr.TransformError{TxHash: txLogs.TxHash, Err: err}
		}
		for _, ev := range result.Events {
			out.emit(ev)
		}
		for _, pos := range result.Positions {
			out.PositionsByContentID[pos.GetContentID()] = pos
		}
	}

	finalise(out, txFrom)
	return out, nil
}

// finalise runs the per-transaction aggregation pass:
// (a) groups PoolSwaps sharing a taker into a Trade (a multi-hop chain of
// swaps by the same taker collapses to one Trade — grouping on taker
// alone, rather than taker+direction literally, is the only reading
// consistent with a multi-hop arbitrage route, since each hop can flip
// direction);
// (b) sets swap_count to the group size and transfer_count to the number
// of Transfers in the tx touching the taker;
// (c) classifies trade_type as arbitrage when the taker differs from the
// transaction sender (i.e. a contract mediated the swaps, not the EOA
// directly) and the aggregated base token equals the aggregated quote
// token (the route returns to its starting asset), else user.
func finalise(out Output, txFrom domain.Address) {
	swapsByTaker := make(map[domain.Address][]*domain.PoolSwap)
	var takerOrder []domain.Address
	for _, id := range out.order {
		ev := out.EventsByContentID[id]
		if swap, ok := ev.(*domain.PoolSwap); ok {
			if _, seen := swapsByTaker[swap.Taker]; !seen {
				takerOrder = append(takerOrder, swap.Taker)
			}
			swapsByTaker[swap.Taker] = append(swapsByTaker[swap.Taker], swap)
		}
	}
	if len(swapsByTaker) == 0 {
		return
	}

	transferCountByTaker := make(map[domain.Address]int)
	for _, id := range out.order {
		ev := out.EventsByContentID[id]
		transfer, ok := ev.(*domain.Transfer)
		if !ok {
			continue
		}
		transferCountByTaker[transfer.From]++
		if transfer.To != transfer.From {
			transferCountByTaker[transfer.To]++
		}
	}

	for _, taker := range takerOrder {
		swaps := swapsByTaker[taker]
		first, last := swaps[0], swaps[len(swaps)-1]

		trade := domain.NewTrade(
			domain.EventMeta{ContentID: tradeContentID(first.TxHash, taker), TxHash: first.TxHash, BlockNumber: first.BlockNumber, Timestamp: first.Timestamp},
			taker, first.Direction, first.BaseToken, first.BaseAmount, last.QuoteToken, last.QuoteAmount,
		)
		trade.SwapCount = len(swaps)
		trade.TransferCount = transferCountByTaker[taker]
		trade.TradeType = domain.TradeTypeUser
		if txFrom != "" && txFrom != taker && first.BaseToken == last.QuoteToken {
			trade.TradeType = domain.TradeTypeArbitrage
		}
		trade.Swaps = swaps

		for _, s := range swaps {
			tid := trade.ContentID
			s.TradeID = &tid
		}

		out.EventsByContentID[trade.GetContentID()] = trade
	}
}

// tradeContentID derives a stable content id for a synthesised Trade from
// its originating tx and taker — finalisation always runs over the same
// deterministic swap set for a given transaction, so this is stable
// across re-runs.
func tradeContentID(txHash domain.Hash, taker domain.Address) domain.ContentID {
	return domain.NewContentID(string(txHash), "trade", string(taker))
}
