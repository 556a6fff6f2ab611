package calc

import "math/big"

// humanAmount converts a raw-token-unit Amount (a decimal integer string)
// into its human-readable float value for a token with the given decimals
// (mirrors pricing.humanAmount; kept package-local to avoid a cross-package
// dependency for one helper).
func humanAmount(raw string, decimals int) float64 {
	i, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f := new(big.Float).Quo(new(big.Float).SetInt(i), scale)
	v, _ := f.Float64()
	return v
}
