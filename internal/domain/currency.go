package domain

// zeroDecimal and threeDecimal list currencies whose minor unit differs from
// the usual two digits.
var (
	zeroDecimal = map[string]bool{
		"JPY": true, "KRW": true, "CLP": true, "ISK": true, "VND": true,
		"XAF": true, "XOF": true, "UGX": true, "PYG": true,
	}
	threeDecimal = map[string]bool{
		"BHD": true, "KWD": true, "OMR": true, "JOD": true, "TND": true,
		"IQD": true, "LYD": true,
	}
)

// MinorUnits returns the number of fraction digits amounts in currency
// carry. Unknown or absent currencies use two.
func MinorUnits(currency *string) int32 {
	if currency == nil {
		return 2
	}
	switch {
	case zeroDecimal[*currency]:
		return 0
	case threeDecimal[*currency]:
		return 3
	default:
		return 2
	}
}
