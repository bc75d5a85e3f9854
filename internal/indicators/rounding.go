package indicators

import "strconv"

// RoundSize rounds a quantity to the venue's size precision (a fixed
// number of decimal places). Every quantity must pass through this before
// order submission.
func RoundSize(value float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	s := strconv.FormatFloat(value, 'f', decimals, 64)
	out, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return value
	}
	return out
}

// RoundPrice rounds a price to five significant digits, the venue's price
// precision. Every price must pass through this before order submission.
func RoundPrice(value float64) float64 {
	return RoundPriceSig(value, 5)
}

// RoundPriceSig rounds a price to the given number of significant digits.
func RoundPriceSig(value float64, digits int) float64 {
	if value == 0 || digits <= 0 {
		return 0
	}
	s := strconv.FormatFloat(value, 'g', digits, 64)
	out, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return value
	}
	return out
}
