package normalize

import (
	"regexp"
	"strings"
)

// symbolCurrencies maps amount symbols to ISO codes. Multi-rune symbols come
// first so "R$" is not read as "$".
var symbolCurrencies = []struct {
	symbol string
	code   string
}{
	{"R$", "BRL"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"₹", "INR"},
	{"¥", "JPY"},
	{"$", "USD"},
}

// knownCodes are ISO 4217 codes recognized when embedded in amount text.
var knownCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true, "CAD": true,
	"AUD": true, "NZD": true, "BRL": true, "INR": true, "CNY": true, "SEK": true,
	"NOK": true, "DKK": true, "PLN": true, "CZK": true, "HUF": true, "MXN": true,
	"ZAR": true, "SGD": true, "HKD": true, "KRW": true, "TRY": true, "ILS": true,
	"AED": true, "SAR": true, "RON": true, "KWD": true, "BHD": true, "ARS": true,
}

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// NormalizeCurrency upper-cases and trims raw and accepts it when it is a
// three-letter code.
func NormalizeCurrency(raw string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !currencyCode.MatchString(code) {
		return "", false
	}
	return code, true
}

var embeddedCode = regexp.MustCompile(`[A-Za-z]{3}`)

// stripCurrency removes one currency symbol or known ISO code from s and
// returns the code it implies, or "".
func stripCurrency(s string) (string, string) {
	for _, sc := range symbolCurrencies {
		if i := strings.Index(s, sc.symbol); i >= 0 {
			return s[:i] + s[i+len(sc.symbol):], sc.code
		}
	}
	for _, loc := range embeddedCode.FindAllStringIndex(s, -1) {
		code := strings.ToUpper(s[loc[0]:loc[1]])
		if knownCodes[code] && isWordBoundary(s, loc[0], loc[1]) {
			return s[:loc[0]] + s[loc[1]:], code
		}
	}
	return s, ""
}

func isWordBoundary(s string, start, end int) bool {
	isLetter := func(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
	if start > 0 && isLetter(s[start-1]) {
		return false
	}
	if end < len(s) && isLetter(s[end]) {
		return false
	}
	return true
}
