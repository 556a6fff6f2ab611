package contracts

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// boundContract is a resolved contract plus its parsed ABI and the
// transformer name/config it is bound to.
type boundContract struct {
	contract domain.Contract
	abi      *abi.ABI
}

// Registry maps addresses to their ABI/transformer binding and resolves
// event-signature topics within a contract's ABI.
type Registry struct {
	byAddress map[domain.Address]*boundContract
}

// NewRegistry builds a Registry from a snapshot's contracts, loading each
// referenced ABI through cache. Unknown ABI load failures are returned
// immediately — ConfigService already validated ABI presence, so any
// failure here is a deeper configuration problem (bad JSON, missing
// file moved after validation).
func NewRegistry(contractsByAddr map[domain.Address]domain.Contract, cache *ABICache) (*Registry, error) {
	r := &Registry{byAddress: make(map[domain.Address]*boundContract, len(contractsByAddr))}
	for addr, c := range contractsByAddr {
		parsed, err := cache.Load(c.ABIDir, c.ABIFile)
		if err != nil {
			return nil, err
		}
		r.byAddress[addr] = &boundContract{contract: c, abi: parsed}
	}
	return r, nil
}

// ContractFor returns the contract bound to addr. ok is false for
// unknown addresses — the caller then passes the log through undecoded.
func (r *Registry) ContractFor(addr domain.Address) (domain.Contract, bool) {
	bc, ok := r.byAddress[addr]
	if !ok {
		return domain.Contract{}, false
	}
	return bc.contract, true
}

// EventForTopic returns the ABI event matching topic0 within the
// contract at addr, the way LogDecoder resolves "which event fired".
func (r *Registry) EventForTopic(addr domain.Address, topic0 common.Hash) (*abi.Event, bool) {
	bc, ok := r.byAddress[addr]
	if !ok {
		return nil, false
	}
	for _, ev := range bc.abi.Events {
		if ev.ID == topic0 {
			evCopy := ev
			return &evCopy, true
		}
	}
	return nil, false
}

// ABIFor returns the parsed ABI bound to addr, used by the decoder to
// iterate the events whose signature matches a log's topic0.
func (r *Registry) ABIFor(addr domain.Address) (*abi.ABI, bool) {
	bc, ok := r.byAddress[addr]
	if !ok {
		return nil, false
	}
	return bc.abi, true
}
