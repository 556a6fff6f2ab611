package transform_test

import (
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quick-xyz/indexer-sub000/internal/decode"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
	"github.com/quick-xyz/indexer-sub000/internal/transform"
	"github.com/quick-xyz/indexer-sub000/internal/transformers"
)

type fakeContracts struct {
	byAddr map[domain.Address]domain.Contract
}

func (f *fakeContracts) ContractFor(addr domain.Address) (domain.Contract, bool) {
	c, ok := f.byAddr[addr]
	return c, ok
}

func poolContract(token0, token1, base string) domain.Contract {
	return domain.Contract{
		TransformerName: transformers.UniswapV2SwapTransformerName,
		TransformerConfig: map[string]any{
			"token0":     token0,
			"token1":     token1,
			"base_token": base,
		},
	}
}

func swapLog(poolAddr domain.Address, sender string, idx int, amount0In, amount1In, amount0Out, amount1Out int64) decode.Log {
	return decode.Log{Decoded: &decode.DecodedLog{
		Address:   poolAddr,
		EventName: "Swap",
		LogIndex:  idx,
		Attributes: map[string]any{
			"sender":     sender,
			"amount0In":  big.NewInt(amount0In),
			"amount1In":  big.NewInt(amount1In),
			"amount0Out": big.NewInt(amount0Out),
			"amount1Out": big.NewInt(amount1Out),
		},
	}}
}

func TestPipelineGroupsMultiHopArbitrageIntoOneTrade(t *testing.T) {
	tokenX := "0x1111111111111111111111111111111111111a"
	tokenY := "0x2222222222222222222222222222222222222b"
	tokenZ := "0x3333333333333333333333333333333333333c"
	poolA := domain.NewAddress("0xaaaa111111111111111111111111111111111a")
	poolB := domain.NewAddress("0xbbbb111111111111111111111111111111111b")
	poolC := domain.NewAddress("0xcccc111111111111111111111111111111111c")
	bot := "0xbadbadbadbadbadbadbadbadbadbadbadbadbad"
	router := domain.NewAddress("0xf00df00df00df00df00df00df00df00df00df00")

	contracts := &fakeContracts{byAddr: map[domain.Address]domain.Contract{
		poolA: poolContract(tokenX, tokenY, tokenX),
		poolB: poolContract(tokenY, tokenZ, tokenY),
		poolC: poolContract(tokenZ, tokenX, tokenZ),
	}}
	registry := transform.NewRegistry()
	transformers.Register(registry)

	pipeline := transform.NewPipeline(contracts, registry, zerolog.Nop())

	txLogs := decode.TxLogs{
		TxHash:  "0xdeadbeef",
		TxIndex: 0,
		Success: true,
		Logs: []decode.Log{
			swapLog(poolA, bot, 0, 1000, 0, 0, 900),
			swapLog(poolB, bot, 1, 0, 900, 0, 800),
			swapLog(poolC, bot, 2, 0, 800, 1050, 0),
		},
	}

	out, err := pipeline.ProcessTransaction(domain.NewHash("0xblockhash"), 42, 1700000000, router, txLogs)
	require.NoError(t, err)

	var trades []*domain.Trade
	var swaps []*domain.PoolSwap
	for _, ev := range out.EventsByContentID {
		switch e := ev.(type) {
		case *domain.Trade:
			trades = append(trades, e)
		case *domain.PoolSwap:
			swaps = append(swaps, e)
		}
	}

	require.Len(t, trades, 1)
	require.Len(t, swaps, 3)

	trade := trades[0]
	assert.Equal(t, 3, trade.SwapCount)
	assert.Equal(t, domain.TradeTypeArbitrage, trade.TradeType)
	assert.Equal(t, domain.NewAddress(tokenX), trade.BaseToken)
	assert.Equal(t, domain.NewAddress(tokenX), trade.QuoteToken)

	for _, s := range swaps {
		require.NotNil(t, s.TradeID)
		assert.Equal(t, trade.GetContentID(), *s.TradeID)
	}
}

func TestPipelineClassifiesDirectUserSwapAsUser(t *testing.T) {
	tokenX := "0x1111111111111111111111111111111111111a"
	tokenY := "0x2222222222222222222222222222222222222b"
	pool := domain.NewAddress("0xaaaa111111111111111111111111111111111a")
	user := "0x5555555555555555555555555555555555555d"

	contracts := &fakeContracts{byAddr: map[domain.Address]domain.Contract{
		pool: poolContract(tokenX, tokenY, tokenX),
	}}
	registry := transform.NewRegistry()
	transformers.Register(registry)
	pipeline := transform.NewPipeline(contracts, registry, zerolog.Nop())

	txLogs := decode.TxLogs{
		TxHash: "0xdeadbeef",
		Logs:   []decode.Log{swapLog(pool, user, 0, 1000, 0, 0, 900)},
	}

	out, err := pipeline.ProcessTransaction(domain.NewHash("0xblockhash"), 1, 1, domain.NewAddress(user), txLogs)
	require.NoError(t, err)

	var trade *domain.Trade
	for _, ev := range out.EventsByContentID {
		if tr, ok := ev.(*domain.Trade); ok {
			trade = tr
		}
	}
	require.NotNil(t, trade)
	assert.Equal(t, domain.TradeTypeUser, trade.TradeType)
}
