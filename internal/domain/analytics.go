package domain

import "fmt"

// PeriodID identifies one tiled Period as "<period_type>:<time_open>", the
// composite key asset_prices/asset_volumes store it under.
type PeriodID string

// NewPeriodID builds the PeriodID for a period's type and opening timestamp.
func NewPeriodID(periodType PeriodType, timeOpen int64) PeriodID {
	return PeriodID(fmt.Sprintf("%s:%d", periodType, timeOpen))
}

// AssetPrice is one OHLC candle for (period, asset, denom).
type AssetPrice struct {
	PeriodID PeriodID
	Asset    Address
	Denom    Denomination
	Open     float64
	High     float64
	Low      float64
	Close    float64
}

// AssetVolume is the per-protocol traded volume for (period, asset, denom).
type AssetVolume struct {
	PeriodID PeriodID
	Asset    Address
	Denom    Denomination
	Protocol string
	Volume   float64
}
