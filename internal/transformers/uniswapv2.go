// Package transformers holds the concrete per-contract Transformer
// implementations the pipeline dispatches decoded logs to.
// Each is grounded on a well-known event signature from the reference
// DEX ABI set and registered under a fixed name that a Contract's
// transformer_name binds to.
package transformers

import (
	"fmt"
	"math/big"

	"github.com/quick-xyz/indexer-sub000/internal/decode"
	"github.com/quick-xyz/indexer-sub000/internal/domain"
	"github.com/quick-xyz/indexer-sub000/internal/transform"
)

// UniswapV2SwapTransformerName is the transformer_name a Contract row
// uses to bind a Uniswap-V2-shaped pair to this transformer.
const UniswapV2SwapTransformerName = "uniswap_v2_swap"

// uniswapV2Config is transformer_config for a Uniswap-V2-style pair:
// which of its two tokens is priced as "base" for Trade/PoolSwap
// purposes (the other is "quote").
type uniswapV2Config struct {
	token0     domain.Address
	token1     domain.Address
	baseToken  domain.Address
	quoteToken domain.Address
}

func parseUniswapV2Config(raw map[string]any) (uniswapV2Config, error) {
	token0, ok := raw["token0"].(string)
	if !ok || token0 == "" {
		return uniswapV2Config{}, fmt.Errorf("uniswap_v2_swap: transformer_config missing token0")
	}
	token1, ok := raw["token1"].(string)
	if !ok || token1 == "" {
		return uniswapV2Config{}, fmt.Errorf("uniswap_v2_swap: transformer_config missing token1")
	}
	base, ok := raw["base_token"].(string)
	if !ok || base == "" {
		return uniswapV2Config{}, fmt.Errorf("uniswap_v2_swap: transformer_config missing base_token")
	}

	t0, t1, baseAddr := domain.NewAddress(token0), domain.NewAddress(token1), domain.NewAddress(base)
	var quote domain.Address
	switch baseAddr {
	case t0:
		quote = t1
	case t1:
		quote = t0
	default:
		return uniswapV2Config{}, fmt.Errorf("uniswap_v2_swap: base_token %s is neither token0 nor token1", base)
	}
	return uniswapV2Config{token0: t0, token1: t1, baseToken: baseAddr, quoteToken: quote}, nil
}

// uniswapV2SwapTransformer decodes the universal Uniswap-V2 Swap event
// (works for Uniswap, PancakeSwap, SushiSwap, TraderJoe and their forks —
// see the Swap(address,uint256,uint256,uint256,uint256,address)
// signature in the DEX reference ABI set) into one PoolSwap per log. The
// taker is the event's "sender" — the address that invoked the pair
// directly — so a contract that calls several pools in sequence within
// one tx produces PoolSwaps sharing one taker, which is what the
// finalisation pass groups into a single Trade.
type uniswapV2SwapTransformer struct {
	cfg uniswapV2Config
}

// NewUniswapV2SwapTransformer is the Factory for UniswapV2SwapTransformerName.
func NewUniswapV2SwapTransformer(config map[string]any) (transform.Transformer, error) {
	cfg, err := parseUniswapV2Config(config)
	if err != nil {
		return nil, err
	}
	return &uniswapV2SwapTransformer{cfg: cfg}, nil
}

func (t *uniswapV2SwapTransformer) Transform(tx transform.TxContext, log decode.DecodedLog, _ *transform.TxState) (transform.Result, error) {
	if log.EventName != "Swap" {
		return transform.Result{}, nil
	}

	sender, ok := log.Attributes["sender"].(string)
	if !ok {
		return transform.Result{}, fmt.Errorf("uniswap_v2_swap: missing sender attribute")
	}
	amount0In := bigIntAttr(log.Attributes["amount0In"])
	amount1In := bigIntAttr(log.Attributes["amount1In"])
	amount0Out := bigIntAttr(log.Attributes["amount0Out"])
	amount1Out := bigIntAttr(log.Attributes["amount1Out"])

	var baseIn, baseOut, quoteIn, quoteOut *big.Int
	if t.cfg.baseToken == t.cfg.token0 {
		baseIn, baseOut, quoteIn, quoteOut = amount0In, amount0Out, amount1In, amount1Out
	} else {
		baseIn, baseOut, quoteIn, quoteOut = amount1In, amount1Out, amount0In, amount0Out
	}

	direction := domain.DirectionSell
	baseAmount, quoteAmount := baseIn, quoteOut
	if baseOut.Sign() > 0 {
		direction = domain.DirectionBuy
		baseAmount, quoteAmount = baseOut, quoteIn
	}

	contentID := domain.NewContentID(string(tx.TxHash), fmt.Sprintf("%d", log.LogIndex), "poolswap")
	swap := domain.NewPoolSwap(
		domain.EventMeta{ContentID: contentID, TxHash: tx.TxHash, BlockNumber: tx.BlockNumber, Timestamp: tx.Timestamp},
		log.Address, domain.NewAddress(sender), direction,
		t.cfg.baseToken, domain.Amount(baseAmount.String()),
		t.cfg.quoteToken, domain.Amount(quoteAmount.String()),
	)

	return transform.Result{Events: []domain.Event{swap}}, nil
}

func bigIntAttr(v any) *big.Int {
	if bi, ok := v.(*big.Int); ok {
		return bi
	}
	return big.NewInt(0)
}
