package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quick-xyz/indexer-sub000/internal/chain"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
)

func TestBlockDecoderOrdersTransactionsAndLogs(t *testing.T) {
	addr := domain.NewAddress("0x1111111111111111111111111111111111111111")
	reg := newTestRegistry(t, addr)
	bd := NewBlockDecoder(NewLogDecoder(reg))

	block := &chain.Block{
		Receipts: []chain.Receipt{
			{
				TxHash:  "0xtx2",
				TxIndex: 1,
				Status:  "0x1",
				Logs: []chain.Log{
					{Address: addr.String(), Topics: []string{"0xdead"}, Data: "0x", LogIndex: 5},
					{Address: addr.String(), Topics: []string{"0xdead"}, Data: "0x", LogIndex: 4},
				},
			},
			{
				TxHash:  "0xtx1",
				TxIndex: 0,
				Status:  "0x0",
				Logs: []chain.Log{
					{Address: addr.String(), Topics: []string{"0xdead"}, Data: "0x", LogIndex: 1},
				},
			},
		},
	}

	out := bd.Decode(block)
	require.Len(t, out, 2)

	assert.Equal(t, "0xtx1", out[0].TxHash)
	assert.False(t, out[0].Success)
	assert.Equal(t, "0xtx2", out[1].TxHash)
	assert.True(t, out[1].Success)

	require.Len(t, out[1].Logs, 2)
	assert.Equal(t, 4, out[1].Logs[0].Encoded.LogIndex)
	assert.Equal(t, 5, out[1].Logs[1].Encoded.LogIndex)
}

func TestBlockDecoderPreservesRemovedFlag(t *testing.T) {
	addr := domain.NewAddress("0x1111111111111111111111111111111111111111")
	reg := newTestRegistry(t, addr)
	bd := NewBlockDecoder(NewLogDecoder(reg))

	block := &chain.Block{
		Receipts: []chain.Receipt{
			{
				TxHash: "0xtx1",
				Status: "0x1",
				Logs: []chain.Log{
					{Address: addr.String(), Topics: []string{"0xdead"}, Data: "0x", LogIndex: 0, Removed: true},
				},
			},
		},
	}

	out := bd.Decode(block)
	require.Len(t, out, 1)
	require.Len(t, out[0].Logs, 1)
	assert.True(t, out[0].Logs[0].Encoded.Removed)
}
