// Package decode turns raw chain.Log entries into either a DecodedLog
// (event name plus normalised attributes) or, when no contract/event
// matches, a pass-through EncodedLog.
package decode

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/quick-xyz/indexer-sub000/internal/chain"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

// DecodedLog is a successfully matched and decoded event.
type DecodedLog struct {
	TxHash       string
	LogIndex     int
	BlockNumber  uint64
	Address      domain.Address
	ContractName string
	EventName    string
	// Attributes holds the decoded parameter values, keyed by ABI
	// argument name, normalised to addresses/bytes as lowercase hex,
	// with signed ints preserved as *big.Int.
	Attributes map[string]any
	Removed    bool
}

// EncodedLog is the undecoded fallback for logs whose address is
// unknown, whose event signature matches nothing in the contract ABI,
// or that are anonymous.
type EncodedLog struct {
	TxHash      string
	LogIndex    int
	BlockNumber uint64
	Address     domain.Address
	Topics      []string
	Data        string
	Removed     bool
}

// Log is the decoder's output for a single chain.Log: exactly one of
// Decoded or Encoded is non-nil.
type Log struct {
	Decoded *DecodedLog
	Encoded *EncodedLog
}

// Registry is the narrow lookup LogDecoder needs from the contract
// registry.
type Registry interface {
	ContractFor(addr domain.Address) (domain.Contract, bool)
	ABIFor(addr domain.Address) (*ethabi.ABI, bool)
}

// LogDecoder resolves a chain.Log against a contract's ABI, returning a
// DecodedLog on a successful match or an EncodedLog otherwise.
type LogDecoder struct {
	registry Registry
}

// NewLogDecoder builds a LogDecoder over registry.
func NewLogDecoder(registry Registry) *LogDecoder {
	return &LogDecoder{registry: registry}
}

// Decode resolves log against the contract bound to log.Address. It
// tries every non-anonymous event in the ABI whose topic-0 signature
// matches, returning the first one whose non-indexed parameters unpack
// without error and whose topic count matches its indexed argument
// count. Anonymous events are never matched; such logs come back encoded.
func (d *LogDecoder) Decode(l chain.Log) Log {
	addr := domain.NewAddress(l.Address)
	encoded := func() Log {
		return Log{Encoded: &EncodedLog{
			TxHash:      l.TxHash,
			LogIndex:    l.LogIndex,
			BlockNumber: l.BlockNumber,
			Address:     addr,
			Topics:      l.Topics,
			Data:        l.Data,
			Removed:     l.Removed,
		}}
	}

	contract, ok := d.registry.ContractFor(addr)
	if !ok {
		return encoded()
	}
	contractABI, ok := d.registry.ABIFor(addr)
	if !ok {
		return encoded()
	}
	if len(l.Topics) == 0 {
		// No topic-0 at all: cannot even attempt a signature match.
		return encoded()
	}

	topic0 := common.HexToHash(l.Topics[0])
	for _, ev := range contractABI.Events {
		if ev.Anonymous {
			// Anonymous events are skipped unless the contract
			// explicitly opts in; no opt-in mechanism is modelled yet,
			// so anonymous events always fall through to encoded.
			continue
		}
		if ev.ID != topic0 {
			continue
		}

		attrs, err := unpackEvent(ev, l)
		if err != nil {
			continue
		}
		return Log{Decoded: &DecodedLog{
			TxHash:       l.TxHash,
			LogIndex:     l.LogIndex,
			BlockNumber:  l.BlockNumber,
			Address:      addr,
			ContractName: contract.Name,
			EventName:    ev.Name,
			Attributes:   attrs,
			Removed:      l.Removed,
		}}
	}

	return encoded()
}

// unpackEvent decodes l's indexed topics and non-indexed data against
// ev, requiring the topic count to match the event's indexed argument
// count and every field to decode without error.
func unpackEvent(ev ethabi.Event, l chain.Log) (map[string]any, error) {
	var indexed ethabi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if len(l.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("event %s: want %d indexed topics, log has %d", ev.Name, len(indexed), len(l.Topics)-1)
	}

	topicHashes := make([]common.Hash, 0, len(l.Topics)-1)
	for _, t := range l.Topics[1:] {
		topicHashes = append(topicHashes, common.HexToHash(t))
	}

	indexedValues := make(map[string]any, len(indexed))
	if len(indexed) > 0 {
		if err := ethabi.ParseTopicsIntoMap(indexedValues, indexed, topicHashes); err != nil {
			return nil, fmt.Errorf("event %s: parsing indexed topics: %w", ev.Name, err)
		}
	}

	data, err := hexToBytes(l.Data)
	if err != nil {
		return nil, fmt.Errorf("event %s: decoding data hex: %w", ev.Name, err)
	}

	nonIndexedValues := make(map[string]any)
	if err := ev.Inputs.UnpackIntoMap(nonIndexedValues, data); err != nil {
		return nil, fmt.Errorf("event %s: unpacking data: %w", ev.Name, err)
	}

	attrs := make(map[string]any, len(ev.Inputs))
	for k, v := range indexedValues {
		attrs[k] = normalise(v)
	}
	for k, v := range nonIndexedValues {
		if _, exists := attrs[k]; exists {
			continue
		}
		attrs[k] = normalise(v)
	}
	return attrs, nil
}

// normalise converts decoded go-ethereum ABI values into the wire
// representation: addresses and bytes become lowercase hex, arrays of
// bytes become arrays of hex, signed integers are preserved as *big.Int.
func normalise(v any) any {
	switch val := v.(type) {
	case common.Address:
		return strings.ToLower(val.Hex())
	case [32]byte:
		return "0x" + common.Bytes2Hex(val[:])
	case []byte:
		return "0x" + common.Bytes2Hex(val)
	case [][32]byte:
		out := make([]string, len(val))
		for i, b := range val {
			out[i] = "0x" + common.Bytes2Hex(b[:])
		}
		return out
	case []common.Address:
		out := make([]string, len(val))
		for i, a := range val {
			out[i] = strings.ToLower(a.Hex())
		}
		return out
	case *big.Int:
		return val
	default:
		return v
	}
}

func hexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
