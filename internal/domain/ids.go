// Package domain defines the chain-neutral types shared by every pipeline
// stage: addresses, hashes, content-derived event ids, and the event,
// detail, analytics and processing records persisted by the indexer.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is a 20-byte EVM address, always normalised to lowercase hex
// with a leading "0x".
type Address string

// NewAddress normalises raw hex (with or without 0x, any case) into an Address.
func NewAddress(raw string) Address {
	s := strings.ToLower(strings.TrimPrefix(raw, "0x"))
	return Address("0x" + s)
}

func (a Address) String() string { return string(a) }

// Hash is a 32-byte hex value (tx hash, block hash, topic), lowercased.
type Hash string

// NewHash normalises raw hex into a Hash.
func NewHash(raw string) Hash {
	s := strings.ToLower(strings.TrimPrefix(raw, "0x"))
	return Hash("0x" + s)
}

func (h Hash) String() string { return string(h) }

// ContentID is the deterministic 32-byte content hash used as the
// idempotency key for every domain event.
type ContentID string

// NewContentID builds a ContentID from the ordered, canonical fields that
// identify an event: tx hash, log index, event kind, and the kind's key
// attributes. Callers must pass fields in a stable order — this function
// does no reordering or normalisation of its own beyond joining with a
// separator byte that cannot appear in a hex string or small integer.
func NewContentID(fields ...string) ContentID {
	h := sha256.New()
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte{0x1f}) // unit separator
		}
		h.Write([]byte(f))
	}
	return ContentID("0x" + hex.EncodeToString(h.Sum(nil)))
}

func (c ContentID) String() string { return string(c) }

// EventKind identifies the kind of domain event for grouping during bulk
// writes.
type EventKind string

const (
	KindTrade    EventKind = "trade"
	KindPoolSwap EventKind = "poolswap"
	KindTransfer EventKind = "transfer"
	KindLiquidity EventKind = "liquidity"
	KindReward   EventKind = "reward"
	KindPosition EventKind = "position"
)

// Direction is the taker's side of a swap or trade.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// TradeType classifies a Trade as arbitrage or ordinary user activity.
type TradeType string

const (
	TradeTypeUser       TradeType = "user"
	TradeTypeArbitrage  TradeType = "arbitrage"
)

// Denomination is the pricing currency used by details and analytics.
type Denomination string

const (
	DenomUSD  Denomination = "USD"
	DenomAVAX Denomination = "AVAX"
)

// PriceMethod records how a PoolSwapDetail/TradeDetail value was derived.
type PriceMethod string

const (
	PriceMethodDirectAVAX PriceMethod = "DIRECT_AVAX"
	PriceMethodDirectUSD  PriceMethod = "DIRECT_USD"
	PriceMethodDirect     PriceMethod = "DIRECT"
	PriceMethodGlobal     PriceMethod = "GLOBAL"
	PriceMethodError      PriceMethod = "ERROR"
)

// PricingMethod is EventDetail.pricing_method: a closed enum, not free
// text.
type PricingMethod string

const (
	PricingMethodCanonical PricingMethod = "CANONICAL"
	PricingMethodDirect    PricingMethod = "DIRECT"
	PricingMethodGlobal    PricingMethod = "GLOBAL"
)

// PeriodType is one of the five tiled time-bucket resolutions periods
// are generated at.
type PeriodType string

const (
	Period1Min PeriodType = "1min"
	Period5Min PeriodType = "5min"
	Period1Hr  PeriodType = "1hr"
	Period4Hr  PeriodType = "4hr"
	Period1Day PeriodType = "1day"
)

// Amount is an unbounded raw-token-unit integer, represented as a decimal
// string to avoid precision loss; arithmetic goes through math/big at the
// call site. Kept as a string at rest so sqlite TEXT storage round-trips
// exactly.
type Amount string

func (a Amount) String() string { return string(a) }

// ValidateAddressHash reports whether addr has exactly 40 characters after
// an optional 0x prefix; it does not check that they are hex digits.
func ValidateAddressHash(addr Address) error {
	s := strings.TrimPrefix(string(addr), "0x")
	if len(s) != 40 {
		return fmt.Errorf("address %q: want 40 hex chars, got %d", addr, len(s))
	}
	return nil
}
