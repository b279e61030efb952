package normalize

import (
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DateLayout pairs a human-readable pattern name with its Go layout.
type DateLayout struct {
	Name   string
	Layout string
}

// DateLayouts are tried in order. Earlier layouts win when several fit a
// document equally well.
var DateLayouts = []DateLayout{
	{Name: "YYYY-MM-DD", Layout: "2006-1-2"},
	{Name: "MM/DD/YYYY", Layout: "1/2/2006"},
	{Name: "DD/MM/YYYY", Layout: "2/1/2006"},
	{Name: "DD.MM.YYYY", Layout: "2.1.2006"},
	{Name: "DD-MM-YYYY", Layout: "2-1-2006"},
	{Name: "MM-DD-YYYY", Layout: "1-2-2006"},
	{Name: "YYYY/MM/DD", Layout: "2006/1/2"},
	{Name: "MM/DD/YY", Layout: "1/2/06"},
	{Name: "DD/MM/YY", Layout: "2/1/06"},
	{Name: "DD MMM YYYY", Layout: "2 Jan 2006"},
	{Name: "DD-MMM-YYYY", Layout: "2-Jan-2006"},
	{Name: "MMM DD, YYYY", Layout: "Jan 2, 2006"},
	{Name: "MMM DD YYYY", Layout: "Jan 2 2006"},
	{Name: "DD MMMM YYYY", Layout: "2 January 2006"},
	{Name: "MMMM DD, YYYY", Layout: "January 2, 2006"},
}

// LookupDateLayout finds a layout by name.
func LookupDateLayout(name string) (DateLayout, bool) {
	for _, l := range DateLayouts {
		if l.Name == name {
			return l, true
		}
	}
	return DateLayout{}, false
}

var timeSuffix = regexp.MustCompile(`^(.+?)[T ]\d{1,2}:\d{2}(:\d{2})?(\.\d+)?(Z|[+-]\d{2}:?\d{2})?$`)

func cleanDate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if m := timeSuffix.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	return s
}

// ParseDate parses s with layout, ignoring a trailing time of day.
func ParseDate(s string, layout DateLayout) (civil.Date, error) {
	t, err := time.Parse(layout.Layout, cleanDate(s))
	if err != nil {
		return civil.Date{}, err
	}
	return civil.DateOf(t), nil
}

// DateDecision is the document-wide date format.
type DateDecision struct {
	Layout DateLayout
	// Ambiguous is set when several layouts parse every sample but disagree
	// on at least one of them; Candidates then lists those layouts in order.
	Ambiguous  bool
	Candidates []DateLayout
}

// DecideDateLayout picks the first layout that parses every non-empty
// sample. When none does, the layout parsing the most samples wins.
func DecideDateLayout(samples []string) DateDecision {
	var values []string
	for _, s := range samples {
		if v := cleanDate(s); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return DateDecision{Layout: DateLayouts[0]}
	}

	var full []DateLayout
	best, bestCount := DateLayouts[0], -1
	for _, l := range DateLayouts {
		n := 0
		for _, v := range values {
			if _, err := time.Parse(l.Layout, v); err == nil {
				n++
			}
		}
		if n == len(values) {
			full = append(full, l)
		}
		if n > bestCount {
			best, bestCount = l, n
		}
	}
	if len(full) == 0 {
		return DateDecision{Layout: best}
	}

	d := DateDecision{Layout: full[0], Candidates: []DateLayout{full[0]}}
	for _, l := range full[1:] {
		if disagree(values, full[0], l) {
			d.Ambiguous = true
			d.Candidates = append(d.Candidates, l)
		}
	}
	if !d.Ambiguous {
		d.Candidates = nil
	}
	return d
}

func disagree(values []string, a, b DateLayout) bool {
	for _, v := range values {
		ta, errA := time.Parse(a.Layout, v)
		tb, errB := time.Parse(b.Layout, v)
		if errA == nil && errB == nil && !ta.Equal(tb) {
			return true
		}
	}
	return false
}
