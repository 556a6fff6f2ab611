package pricing

import "gonum.org/v1/gonum/stat"

// minutePoint is one minute's canonical price and the volume it traded on,
// the input to trailingVWAP's 5-minute window.
type minutePoint struct {
	price  float64
	volume float64
}

// trailingVWAP combines up to five consecutive minutePoints (oldest first,
// current minute last) into one volume-weighted price. A minute with zero
// volume contributes nothing. Returns 0 if every point is empty.
func trailingVWAP(points []minutePoint) float64 {
	var prices, weights []float64
	for _, p := range points {
		if p.volume <= 0 {
			continue
		}
		prices = append(prices, p.price)
		weights = append(weights, p.volume)
	}
	if len(prices) == 0 {
		return 0
	}
	return stat.Mean(prices, weights)
}

// volumeWeightedAverage computes price = Σ(value)/Σ(value/price) for a set
// of (value, price) pairs — the aggregation trade pricing and the
// per-minute canonical price both share. Returns (0, false) if
// totalVolume is zero.
func volumeWeightedAverage(totalValue, totalVolume float64) (float64, bool) {
	if totalVolume == 0 {
		return 0, false
	}
	return totalValue / totalVolume, true
}
