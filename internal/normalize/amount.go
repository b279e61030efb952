package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountFormat is the document-wide amount convention.
type AmountFormat struct {
	// DecimalSep is '.' or ','; the other one is a thousands separator.
	DecimalSep rune
	// Parentheses records that the document writes negatives as "(12.00)".
	// Parenthesized values are negative either way.
	Parentheses bool
}

var (
	errEmptyAmount = errors.New("empty amount")

	crdrMarker = regexp.MustCompile(`(?i)^(.*?[\d)\s])(CR|DR)\.?$`)

	dotGrouped   = regexp.MustCompile(`^(\d{1,3}(,\d{3})+|\d+)(\.\d+)?$|^\.\d+$`)
	commaGrouped = regexp.MustCompile(`^(\d{1,3}(\.\d{3})+|\d+)(,\d+)?$|^,\d+$`)
)

// DecideAmountFormat votes on the decimal separator over sampled amounts.
// A value votes when its separators are unambiguous; the first separator
// consistent with every vote wins, else the majority, else fallback.
func DecideAmountFormat(samples []string, fallback rune) AmountFormat {
	if fallback != ',' {
		fallback = '.'
	}
	f := AmountFormat{DecimalSep: fallback}
	dot, comma := 0, 0
	for _, s := range samples {
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			f.Parentheses = true
		}
		switch separatorVote(digitsAndSeparators(s)) {
		case '.':
			dot++
		case ',':
			comma++
		}
	}
	switch {
	case dot > 0 && comma == 0:
		f.DecimalSep = '.'
	case comma > 0 && dot == 0:
		f.DecimalSep = ','
	case dot > comma:
		f.DecimalSep = '.'
	case comma > dot:
		f.DecimalSep = ','
	case dot > 0:
		f.DecimalSep = '.'
	}
	return f
}

func digitsAndSeparators(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// separatorVote returns the decimal separator implied by core, or 0 when
// core cannot tell.
func separatorVote(core string) rune {
	lastDot := strings.LastIndex(core, ".")
	lastComma := strings.LastIndex(core, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			return '.'
		}
		return ','
	case lastComma >= 0:
		return voteSingle(core, ",", lastComma, ',', '.')
	case lastDot >= 0:
		return voteSingle(core, ".", lastDot, '.', ',')
	}
	return 0
}

func voteSingle(core, sep string, last int, asDecimal, asThousands rune) rune {
	if strings.Count(core, sep) > 1 {
		return asThousands
	}
	if len(core)-last-1 == 3 {
		return 0
	}
	return asDecimal
}

// ParseAmount converts raw amount text to a signed decimal under f. It also
// returns the currency implied by a symbol or code in the text, if any.
func ParseAmount(raw string, f AmountFormat) (decimal.Decimal, string, error) {
	s := strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u2212", "-").Replace(strings.TrimSpace(raw))
	if s == "" {
		return decimal.Zero, "", errEmptyAmount
	}

	var debit, credit bool
	if m := crdrMarker.FindStringSubmatch(s); m != nil {
		s = m[1]
		if strings.EqualFold(m[2], "DR") {
			debit = true
		} else {
			credit = true
		}
	}

	s, currency := stripCurrency(s)
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	// Symbols can sit between sign and digits ("-$4.50", "$-4.50").
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSpace(s[1:])
	} else if strings.HasPrefix(s, "+") {
		s = strings.TrimSpace(s[1:])
	} else if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSpace(s[:len(s)-1])
	}

	s = strings.NewReplacer(" ", "", "'", "").Replace(s)

	var canonical string
	switch f.DecimalSep {
	case ',':
		if !commaGrouped.MatchString(s) {
			return decimal.Zero, currency, fmt.Errorf("not a comma-decimal number")
		}
		canonical = strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
	default:
		if !dotGrouped.MatchString(s) {
			return decimal.Zero, currency, fmt.Errorf("not a dot-decimal number")
		}
		canonical = strings.ReplaceAll(s, ",", "")
	}

	if strings.HasPrefix(canonical, ".") {
		canonical = "0" + canonical
	}
	d, err := decimal.NewFromString(canonical)
	if err != nil {
		return decimal.Zero, currency, err
	}
	switch {
	case debit:
		d = d.Abs().Neg()
	case credit:
		d = d.Abs()
	case negative:
		d = d.Neg()
	}
	return d, currency, nil
}
