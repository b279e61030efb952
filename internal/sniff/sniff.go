// Package sniff holds cheap shape predicates over raw cell text. They guide
// structural decisions (header detection, PDF row segmentation, positional
// column inference) and never decide a final value.
package sniff

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	numericDate = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}[-/.]\d{1,2}[-/.]\d{1,2}$`),
		regexp.MustCompile(`^\d{1,2}[-/.]\d{1,2}[-/.]\d{2}(\d{2})?$`),
	}
	dayMonthName = regexp.MustCompile(`^\d{1,2}\s+([A-Za-z]{3,9})\.?,?\s+\d{2}(\d{2})?$`)
	monthNameDay = regexp.MustCompile(`^([A-Za-z]{3,9})\.?\s+\d{1,2},?\s+\d{2}(\d{2})?$`)

	amountPattern = regexp.MustCompile(
		`^[-+(]?\s*(?:[A-Z]{3}\s*)?(?:R\$|[$€£¥₹])?\s*[-+]?` +
			`(?:\d{1,3}(?:[.,' ]\d{3})+|\d+)(?:[.,]\d{1,3})?` +
			`\s*\)?\s*(?:[A-Z]{3})?\s*(?:-|CR|DR|cr|dr|Cr|Dr)?$`)
)

var months = map[string]bool{
	"jan": true, "feb": true, "mar": true, "apr": true, "may": true, "jun": true,
	"jul": true, "aug": true, "sep": true, "oct": true, "nov": true, "dec": true,
}

// LooksLikeDate reports whether s has the shape of a calendar date in one of
// the numeric or month-name forms statements use.
func LooksLikeDate(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, re := range numericDate {
		if re.MatchString(s) {
			return true
		}
	}
	if m := dayMonthName.FindStringSubmatch(s); m != nil {
		return isMonth(m[1])
	}
	if m := monthNameDay.FindStringSubmatch(s); m != nil {
		return isMonth(m[1])
	}
	return false
}

func isMonth(word string) bool {
	if len(word) < 3 {
		return false
	}
	return months[strings.ToLower(word[:3])]
}

// LooksLikeAmount reports whether s has the shape of a money amount:
// optional sign, symbol or ISO code, grouped digits, optional fraction and
// CR/DR marker.
func LooksLikeAmount(s string) bool {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	if s == "" || LooksLikeDate(s) {
		return false
	}
	return amountPattern.MatchString(s)
}

// LooksLikeLabel reports whether s reads as a short column label: it has a
// letter, at most four words, and is neither a date nor an amount.
func LooksLikeLabel(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || LooksLikeDate(s) || LooksLikeAmount(s) {
		return false
	}
	if len(strings.Fields(s)) > 4 {
		return false
	}
	letters, digits := 0, 0
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		}
	}
	return letters > 0 && digits <= letters/2
}

// IsBlank reports whether every value is empty after trimming.
func IsBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
