// Package transform dispatches decoded logs to per-contract transformers
// and runs the per-transaction finalisation pass that groups PoolSwaps
// into Trades.
package transform

import (
	"github.com/quick-xyz/indexer-sub000/internal/decode"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// TxContext is the read-only transaction context passed to every
// transformer invocation: identifying fields plus the contract's
// transformer_config.
type TxContext struct {
	TxHash      domain.Hash
	BlockNumber uint64
	Timestamp   int64
	TxIndex     int
	TxFrom      domain.Address
	Contract    domain.Contract
}

// Result is what a transformer emits for a single decoded log. A
// transformer is pure with respect to database writes and must produce a
// stable ContentID for identical inputs.
type Result struct {
	Events    []domain.Event
	Positions []*domain.Position
}

// Transformer turns one decoded log into domain events/positions. State
// is scoped to a single transaction via TxState, reset between
// transactions by the pipeline.
type Transformer interface {
	// Transform processes one decoded log within tx, accumulating any
	// cross-log state it needs (e.g. running pool reserves) in state.
	Transform(tx TxContext, log decode.DecodedLog, state *TxState) (Result, error)
}

// TxState is free-form scratch space a transformer can use to carry
// information across logs within the same transaction (e.g. a swap
// transformer noting the pool's token0/token1 order once and reusing it
// for subsequent logs in the same tx). The pipeline allocates one TxState
// per transaction and discards it once finalisation completes.
type TxState struct {
	values map[string]any
}

// NewTxState returns an empty TxState.
func NewTxState() *TxState {
	return &TxState{values: make(map[string]any)}
}

// Get returns the value stored under key, if any.
func (s *TxState) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *TxState) Set(key string, value any) {
	s.values[key] = value
}

// Factory builds a Transformer for a contract, given its
// transformer_config.
type Factory func(config map[string]any) (Transformer, error)

// Registry maps a transformer name (Contract.TransformerName) to the
// factory that builds it.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds name to factory. Called once per known transformer kind
// during wiring (cmd/indexer). A contract whose transformer_name has no
// registered factory is not rejected: Build reports ok=false and the
// pipeline skips that contract's logs.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// Build constructs the transformer bound to contract.TransformerName, or
// reports ok=false when the contract has none registered.
func (r *Registry) Build(contract domain.Contract) (Transformer, bool, error) {
	if contract.TransformerName == "" {
		return nil, false, nil
	}
	factory, ok := r.factories[contract.TransformerName]
	if !ok {
		return nil, false, nil
	}
	t, err := factory(contract.TransformerConfig)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}
