package domain

// PoolSwapDetail is the per-denomination pricing outcome of a PoolSwap.
// Unique on (content_id, denomination).
type PoolSwapDetail struct {
	ContentID     ContentID
	Denomination  Denomination
	Value         float64
	Price         float64
	PriceMethod   PriceMethod
	PriceConfigID *int64
}

// TradeDetail is the per-denomination pricing outcome of a Trade.
type TradeDetail struct {
	ContentID    ContentID
	Denomination Denomination
	Value        float64
	Price        float64
	PriceMethod  PriceMethod
}

// EventDetail prices non-swap events (Transfer/Liquidity/Reward/Position).
type EventDetail struct {
	ContentID     ContentID
	Denomination  Denomination
	Value         float64
	PricingMethod PricingMethod
}
