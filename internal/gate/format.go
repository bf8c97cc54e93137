package gate

import "math/big"

// FormatUnits renders value divided by 10^decimals with that many fractional digits.
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return FormatRat(new(big.Rat).SetInt(value), decimals)
}

// FormatRat renders value divided by 10^decimals, rounded to decimals fractional digits.
func FormatRat(value *big.Rat, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.FloatString(0)
	}
	scaled := new(big.Rat).Quo(value, new(big.Rat).SetInt(pow10(decimals)))
	return scaled.FloatString(int(decimals))
}
