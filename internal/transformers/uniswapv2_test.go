package transformers

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quick-xyz/indexer-sub000/internal/decode"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
	"github.com/quick-xyz/indexer-sub000/internal/transform"
)

func testConfig() map[string]any {
	return map[string]any{
		"token0":     "0xaaaa000000000000000000000000000000000a",
		"token1":     "0xbbbb000000000000000000000000000000000b",
		"base_token": "0xaaaa000000000000000000000000000000000a",
	}
}

func TestUniswapV2SwapBuyDirection(t *testing.T) {
	tr, err := NewUniswapV2SwapTransformer(testConfig())
	require.NoError(t, err)

	log := decode.DecodedLog{
		EventName: "Swap",
		Address:   domain.NewAddress("0xpool0000000000000000000000000000000000"),
		LogIndex:  2,
		Attributes: map[string]any{
			"sender":     "0xsender00000000000000000000000000000000",
			"amount0In":  big.NewInt(0),
			"amount1In":  big.NewInt(1000),
			"amount0Out": big.NewInt(500),
			"amount1Out": big.NewInt(0),
		},
	}
	tx := transform.TxContext{TxHash: domain.NewHash("0xabc"), BlockNumber: 1, Timestamp: 100}

	result, err := tr.Transform(tx, log, transform.NewTxState())
	require.NoError(t, err)
	require.Len(t, result.Events, 1)

	swap := result.Events[0].(*domain.PoolSwap)
	assert.Equal(t, domain.DirectionBuy, swap.Direction)
	assert.Equal(t, domain.Amount("500"), swap.BaseAmount)
	assert.Equal(t, domain.Amount("1000"), swap.QuoteAmount)
}

func TestUniswapV2SwapSellDirection(t *testing.T) {
	tr, err := NewUniswapV2SwapTransformer(testConfig())
	require.NoError(t, err)

	log := decode.DecodedLog{
		EventName: "Swap",
		Address:   domain.NewAddress("0xpool0000000000000000000000000000000000"),
		LogIndex:  1,
		Attributes: map[string]any{
			"sender":     "0xsender00000000000000000000000000000000",
			"amount0In":  big.NewInt(200),
			"amount1In":  big.NewInt(0),
			"amount0Out": big.NewInt(0),
			"amount1Out": big.NewInt(900),
		},
	}
	tx := transform.TxContext{TxHash: domain.NewHash("0xabc"), BlockNumber: 1, Timestamp: 100}

	result, err := tr.Transform(tx, log, transform.NewTxState())
	require.NoError(t, err)
	swap := result.Events[0].(*domain.PoolSwap)
	assert.Equal(t, domain.DirectionSell, swap.Direction)
	assert.Equal(t, domain.Amount("200"), swap.BaseAmount)
	assert.Equal(t, domain.Amount("900"), swap.QuoteAmount)
}

func TestUniswapV2ConfigRejectsBaseTokenMismatch(t *testing.T) {
	cfg := testConfig()
	cfg["base_token"] = "0xcccc000000000000000000000000000000000c"
	_, err := NewUniswapV2SwapTransformer(cfg)
	require.Error(t, err)
}

func TestERC20TransferProducesTransferAndPositions(t *testing.T) {
	tr, err := NewERC20TransferTransformer(nil)
	require.NoError(t, err)

	log := decode.DecodedLog{
		EventName: "Transfer",
		Address:   domain.NewAddress("0xtoken000000000000000000000000000000000"),
		LogIndex:  0,
		Attributes: map[string]any{
			"from":  "0xfrom0000000000000000000000000000000000",
			"to":    "0xto000000000000000000000000000000000000",
			"value": big.NewInt(42),
		},
	}
	tx := transform.TxContext{TxHash: domain.NewHash("0xabc"), BlockNumber: 1, Timestamp: 100}

	result, err := tr.Transform(tx, log, transform.NewTxState())
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	require.Len(t, result.Positions, 2)

	transfer := result.Events[0].(*domain.Transfer)
	assert.Equal(t, domain.Amount("42"), transfer.Amount)
	assert.Equal(t, domain.Amount("-42"), result.Positions[0].Delta)
	assert.Equal(t, domain.Amount("42"), result.Positions[1].Delta)
}

func TestERC20TransferFromZeroAddressSkipsSenderPosition(t *testing.T) {
	tr, err := NewERC20TransferTransformer(nil)
	require.NoError(t, err)

	log := decode.DecodedLog{
		EventName: "Transfer",
		Address:   domain.NewAddress("0xtoken000000000000000000000000000000000"),
		Attributes: map[string]any{
			"from":  "0x0000000000000000000000000000000000000000",
			"to":    "0xto000000000000000000000000000000000000",
			"value": big.NewInt(10),
		},
	}
	tx := transform.TxContext{TxHash: domain.NewHash("0xabc")}

	result, err := tr.Transform(tx, log, transform.NewTxState())
	require.NoError(t, err)
	require.Len(t, result.Positions, 1)
	assert.Equal(t, domain.Amount("10"), result.Positions[0].Delta)
}
