package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
)

// chainlinkLatestRoundDataSelector is the 4-byte selector for
// latestRoundData() on an AggregatorV3Interface-compatible Chainlink
// price feed: returns (uint80 roundId, int256 answer, uint256 startedAt,
// uint256 updatedAt, uint80 answeredInRound).
const chainlinkLatestRoundDataSelector = "0xfeaf968c"

// chainlinkPriceDecimals is the AVAX/USD feed's fixed-point scale; every
// production Chainlink USD feed uses 8 decimals.
const chainlinkPriceDecimals = 8

// ChainlinkOracle reads AVAX/USD round data from a Chainlink-compatible
// aggregator contract via eth_call, the reference price BlockPrice rows
// are built from.
type ChainlinkOracle struct {
	rpc        *RPCClient
	aggregator string
}

// NewChainlinkOracle builds a ChainlinkOracle reading aggregatorAddress
// through rpc.
func NewChainlinkOracle(rpc *RPCClient, aggregatorAddress string) *ChainlinkOracle {
	return &ChainlinkOracle{rpc: rpc, aggregator: aggregatorAddress}
}

// RoundDataAt reads latestRoundData() at blockNumber. A Chainlink feed
// only retains a bounded round history, so this is the nearest round
// visible at that height — adequate for indexer-level reference pricing,
// not a settlement-grade historical oracle.
func (o *ChainlinkOracle) RoundDataAt(ctx context.Context, blockNumber uint64) (priceUSD float64, roundID string, updatedAt int64, err error) {
	blockTag := fmt.Sprintf("0x%x", blockNumber)
	raw, err := o.rpc.CallAt(ctx, o.aggregator, chainlinkLatestRoundDataSelector, blockTag)
	if err != nil {
		return 0, "", 0, fmt.Errorf("latestRoundData at block %d: %w", blockNumber, err)
	}

	words, err := decodeABIWords(raw, 5)
	if err != nil {
		return 0, "", 0, fmt.Errorf("decoding latestRoundData response: %w", err)
	}

	round := words[0]
	answer := words[1]
	updated := words[3]

	price := new(big.Float).SetInt(answer)
	scale := new(big.Float).SetFloat64(1)
	for i := 0; i < chainlinkPriceDecimals; i++ {
		scale.Mul(scale, big.NewFloat(10))
	}
	price.Quo(price, scale)
	priceFloat, _ := price.Float64()

	return priceFloat, round.String(), updated.Int64(), nil
}

// decodeABIWords splits a 0x-prefixed eth_call result into n 32-byte
// big-endian words, the minimal ABI decoding latestRoundData's
// fixed-size tuple return needs without pulling in a full ABI-by-name
// decode for one function.
func decodeABIWords(hexData string, n int) ([]*big.Int, error) {
	s := strings.TrimPrefix(hexData, "0x")
	if len(s) < n*64 {
		return nil, fmt.Errorf("response too short: want %d words, got %d hex chars", n, len(s))
	}
	out := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		word := s[i*64 : (i+1)*64]
		v, ok := new(big.Int).SetString(word, 16)
		if !ok {
			return nil, fmt.Errorf("word %d is not valid hex: %q", i, word)
		}
		out[i] = v
	}
	return out, nil
}
