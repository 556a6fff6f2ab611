package decode

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quick-xyz/indexer-sub000/internal/chain"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

const erc20ABIJSON = `[
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"value","type":"uint256","indexed":false}
	]}
]`

type fakeRegistry struct {
	contracts map[domain.Address]domain.Contract
	abis      map[domain.Address]*ethabi.ABI
}

func (f *fakeRegistry) ContractFor(addr domain.Address) (domain.Contract, bool) {
	c, ok := f.contracts[addr]
	return c, ok
}

func (f *fakeRegistry) ABIFor(addr domain.Address) (*ethabi.ABI, bool) {
	a, ok := f.abis[addr]
	return a, ok
}

func mustParseABI(t *testing.T, raw string) *ethabi.ABI {
	t.Helper()
	parsed, err := ethabi.JSON(bytes.NewReader([]byte(raw)))
	require.NoError(t, err)
	return &parsed
}

func newTestRegistry(t *testing.T, addr domain.Address) *fakeRegistry {
	parsed := mustParseABI(t, erc20ABIJSON)
	return &fakeRegistry{
		contracts: map[domain.Address]domain.Contract{addr: {Address: addr, Name: "TestToken"}},
		abis:      map[domain.Address]*ethabi.ABI{addr: parsed},
	}
}

func TestLogDecoderDecodesKnownEvent(t *testing.T) {
	addr := domain.NewAddress("0x1111111111111111111111111111111111111111")
	reg := newTestRegistry(t, addr)
	abiObj := reg.abis[addr]
	ev := abiObj.Events["Transfer"]

	from := common.HexToAddress("0x2222222222222222222222222222222222222222")
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	value := big.NewInt(1_000_000)
	packedValue, err := ev.Inputs.NonIndexed().Pack(value)
	require.NoError(t, err)

	l := chain.Log{
		Address: addr.String(),
		Topics: []string{
			ev.ID.Hex(),
			common.BytesToHash(from.Bytes()).Hex(),
			common.BytesToHash(to.Bytes()).Hex(),
		},
		Data:     "0x" + common.Bytes2Hex(packedValue),
		LogIndex: 3,
		TxHash:   "0xabc",
	}

	decoder := NewLogDecoder(reg)
	result := decoder.Decode(l)

	require.NotNil(t, result.Decoded)
	require.Nil(t, result.Encoded)
	assert.Equal(t, "Transfer", result.Decoded.EventName)
	assert.Equal(t, "TestToken", result.Decoded.ContractName)
	assert.Equal(t, strings.ToLower(from.Hex()), result.Decoded.Attributes["from"])
	assert.Equal(t, strings.ToLower(to.Hex()), result.Decoded.Attributes["to"])
	assert.Equal(t, value, result.Decoded.Attributes["value"])
}

func TestLogDecoderFallsBackOnUnknownAddress(t *testing.T) {
	addr := domain.NewAddress("0x1111111111111111111111111111111111111111")
	other := domain.NewAddress("0x9999999999999999999999999999999999999999")
	reg := newTestRegistry(t, addr)

	l := chain.Log{Address: other.String(), Topics: []string{"0xdead"}, Data: "0x"}
	decoder := NewLogDecoder(reg)
	result := decoder.Decode(l)

	require.Nil(t, result.Decoded)
	require.NotNil(t, result.Encoded)
	assert.Equal(t, other, result.Encoded.Address)
}

func TestLogDecoderFallsBackOnTopicMismatch(t *testing.T) {
	addr := domain.NewAddress("0x1111111111111111111111111111111111111111")
	reg := newTestRegistry(t, addr)

	l := chain.Log{Address: addr.String(), Topics: []string{"0x" + common.Bytes2Hex(make([]byte, 32))}, Data: "0x"}
	decoder := NewLogDecoder(reg)
	result := decoder.Decode(l)

	require.Nil(t, result.Decoded)
	require.NotNil(t, result.Encoded)
}

func TestLogDecoderRejectsWrongIndexedCount(t *testing.T) {
	addr := domain.NewAddress("0x1111111111111111111111111111111111111111")
	reg := newTestRegistry(t, addr)
	ev := reg.abis[addr].Events["Transfer"]

	l := chain.Log{
		Address:  addr.String(),
		Topics:   []string{ev.ID.Hex()}, // missing both indexed topics
		Data:     "0x",
		LogIndex: 0,
	}
	decoder := NewLogDecoder(reg)
	result := decoder.Decode(l)

	require.Nil(t, result.Decoded)
	require.NotNil(t, result.Encoded)
}
