// Package mapping resolves which source column feeds each canonical slot.
package mapping

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-parser/internal/domain"
	"github.com/dvloznov/statement-parser/internal/logger"
	"github.com/dvloznov/statement-parser/internal/sniff"
)

// Column identifies a source column by position and label.
type Column struct {
	Index int
	Label string
}

// FieldSlotMap is the per-document column assignment. A column fills at most
// one slot.
type FieldSlotMap struct {
	slots  map[Slot]Column
	Method string
}

func newFieldSlotMap(method string) FieldSlotMap {
	return FieldSlotMap{slots: make(map[Slot]Column), Method: method}
}

// Get returns the column assigned to s.
func (m FieldSlotMap) Get(s Slot) (Column, bool) {
	c, ok := m.slots[s]
	return c, ok
}

// Has reports whether s is assigned.
func (m FieldSlotMap) Has(s Slot) bool {
	_, ok := m.slots[s]
	return ok
}

// SplitAmount reports whether signs come from a debit/credit column pair.
// A single amount column takes precedence.
func (m FieldSlotMap) SplitAmount() bool {
	return !m.Has(SlotAmount) && m.Has(SlotDebit) && m.Has(SlotCredit)
}

// Missing lists the required slots that are unresolved.
func (m FieldSlotMap) Missing() []Slot {
	var missing []Slot
	if !m.Has(SlotDate) {
		missing = append(missing, SlotDate)
	}
	if !m.Has(SlotDescription) {
		missing = append(missing, SlotDescription)
	}
	if !m.Has(SlotAmount) && !(m.Has(SlotDebit) && m.Has(SlotCredit)) {
		missing = append(missing, SlotAmount)
	}
	return missing
}

func (m FieldSlotMap) claimed(i int) bool {
	for _, c := range m.slots {
		if c.Index == i {
			return true
		}
	}
	return false
}

// Fields renders the assignment for structured logs.
func (m FieldSlotMap) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(m.slots))
	for s, c := range m.slots {
		out[string(s)] = c.Index
	}
	return out
}

// Advisor proposes slot → column index assignments. Slot keys are the
// string forms of Slot. Suggestions are untrusted.
type Advisor interface {
	SuggestMapping(ctx context.Context, columns []string, sample [][]string) (map[string]int, error)
}

// Mapper builds FieldSlotMaps from header labels or, for headerless
// documents, from the shape of sampled values.
type Mapper struct {
	synonyms SynonymTable
	advisor  Advisor
}

// NewMapper creates a mapper over DefaultSynonyms. advisor may be nil.
func NewMapper(advisor Advisor) *Mapper {
	return &Mapper{synonyms: DefaultSynonyms, advisor: advisor}
}

// WithSynonyms returns a copy of the mapper using table.
func (m *Mapper) WithSynonyms(table SynonymTable) *Mapper {
	cp := *m
	cp.synonyms = table
	return &cp
}

// Map resolves the slot map for one document. It fails with
// RequiredFieldUnmappable when date, description, or an amount source stay
// unresolved after every strategy.
func (m *Mapper) Map(ctx context.Context, columns []string, hasHeader bool, sample [][]string) (FieldSlotMap, error) {
	log := logger.FromContext(ctx)

	var fm FieldSlotMap
	if hasHeader {
		fm = m.byHeader(columns)
	} else {
		fm = inferByContent(newFieldSlotMap("content"), columns, sample)
	}

	if len(fm.Missing()) > 0 && m.advisor != nil {
		fm = m.applyHint(ctx, log, fm, columns, sample)
	}

	// Labels nobody recognised still leave the value shapes to go on.
	if hasHeader && len(fm.Missing()) > 0 {
		fm = inferByContent(fm, columns, sample)
	}

	if missing := fm.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, s := range missing {
			names[i] = string(s)
		}
		return FieldSlotMap{}, domain.Errorf(domain.StageMap, domain.KindRequiredFieldUnmappable,
			"no column for %s among %d columns", strings.Join(names, ", "), len(columns))
	}

	log.Debug().Str("method", fm.Method).Fields(fm.Fields()).Msg("Resolved field slots")
	return fm, nil
}

func (m *Mapper) byHeader(columns []string) FieldSlotMap {
	norm := make([]string, len(columns))
	for i, c := range columns {
		norm[i] = NormalizeHeader(c)
	}

	fm := newFieldSlotMap("synonyms")
	set := func(slot Slot, idx int) { fm.slots[slot] = Column{Index: idx, Label: columns[idx]} }

	// Exact labels for every slot go first, so a prefix match never takes a
	// column another slot names outright ("transaction type" vs
	// "transaction description").
	for _, slot := range slotOrder {
		if idx, ok := m.exactMatch(slot, norm, fm); ok {
			set(slot, idx)
		}
	}
	for _, slot := range slotOrder {
		if fm.Has(slot) {
			continue
		}
		if idx, ok := m.prefixMatch(slot, norm, fm); ok {
			set(slot, idx)
		}
	}
	return fm
}

// exactMatch walks synonyms in order; the first unclaimed exact hit wins.
func (m *Mapper) exactMatch(slot Slot, headers []string, fm FieldSlotMap) (int, bool) {
	for _, syn := range m.synonyms[slot] {
		for i, h := range headers {
			if h == syn && !fm.claimed(i) {
				return i, true
			}
		}
	}
	return 0, false
}

// prefixMatch accepts a word-boundary prefix ("amount (usd)") unless the
// rest of the label is itself a synonym of another slot ("value date").
func (m *Mapper) prefixMatch(slot Slot, headers []string, fm FieldSlotMap) (int, bool) {
	for _, syn := range m.synonyms[slot] {
		for i, h := range headers {
			if fm.claimed(i) || !hasWordPrefix(h, syn) {
				continue
			}
			if m.namesOtherSlot(slot, h[len(syn):]) {
				continue
			}
			return i, true
		}
	}
	return 0, false
}

func (m *Mapper) namesOtherSlot(slot Slot, rest string) bool {
	rest = strings.TrimFunc(rest, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if rest == "" {
		return false
	}
	for other, synonyms := range m.synonyms {
		if other == slot {
			continue
		}
		for _, syn := range synonyms {
			if syn == rest {
				return true
			}
		}
	}
	return false
}

func hasWordPrefix(h, prefix string) bool {
	if len(h) <= len(prefix) || !strings.HasPrefix(h, prefix) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(h[len(prefix):])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// NormalizeHeader lower-cases a label, collapses whitespace and drops
// surrounding quotes and a trailing colon.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.Join(strings.Fields(h), " "))
	h = strings.Trim(h, `"'`)
	h = strings.TrimSuffix(h, ":")
	return strings.TrimSpace(h)
}

type columnStats struct {
	nonEmpty int
	dates    int
	amounts  int
	length   int
}

func (s columnStats) mostly(n int) bool {
	return s.nonEmpty > 0 && float64(n) >= 0.8*float64(s.nonEmpty)
}

func (s columnStats) meanLength() float64 {
	if s.nonEmpty == 0 {
		return 0
	}
	return float64(s.length) / float64(s.nonEmpty)
}

// inferByContent fills the unresolved slots of fm from value shapes, using
// only unclaimed columns: the first date-like column is the date, numeric
// columns filled mutually exclusively form a debit/credit pair, otherwise the
// first numeric column is the amount, and the longest remaining text column
// is the description.
func inferByContent(fm FieldSlotMap, columns []string, sample [][]string) FieldSlotMap {
	out := newFieldSlotMap(fm.Method)
	for s, c := range fm.slots {
		out.slots[s] = c
	}
	stats := make([]columnStats, len(columns))
	for _, row := range sample {
		for i := range columns {
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			if v == "" {
				continue
			}
			st := &stats[i]
			st.nonEmpty++
			st.length += utf8.RuneCountInString(v)
			if sniff.LooksLikeDate(v) {
				st.dates++
			} else if sniff.LooksLikeAmount(v) {
				st.amounts++
			}
		}
	}

	set := func(s Slot, i int) { out.slots[s] = Column{Index: i, Label: columns[i]} }

	if !out.Has(SlotDate) {
		for i, st := range stats {
			if !out.claimed(i) && st.mostly(st.dates) {
				set(SlotDate, i)
				break
			}
		}
	}

	if !out.Has(SlotAmount) && !(out.Has(SlotDebit) && out.Has(SlotCredit)) {
		var numeric []int
		for i, st := range stats {
			if !out.claimed(i) && st.mostly(st.amounts) {
				numeric = append(numeric, i)
			}
		}
		debit, hasDebit := out.Get(SlotDebit)
		credit, hasCredit := out.Get(SlotCredit)
		switch {
		case hasDebit && len(numeric) >= 1 && exclusive(sample, debit.Index, numeric[0]):
			set(SlotCredit, numeric[0])
		case hasCredit && len(numeric) >= 1 && exclusive(sample, numeric[0], credit.Index):
			set(SlotDebit, numeric[0])
		case !hasDebit && !hasCredit && len(numeric) >= 2 && exclusive(sample, numeric[0], numeric[1]):
			set(SlotDebit, numeric[0])
			set(SlotCredit, numeric[1])
		case len(numeric) >= 1:
			set(SlotAmount, numeric[0])
		}
	}

	if !out.Has(SlotDescription) {
		var text []int
		for i, st := range stats {
			if !out.claimed(i) && st.nonEmpty > 0 && !st.mostly(st.amounts) && !st.mostly(st.dates) {
				text = append(text, i)
			}
		}
		sort.SliceStable(text, func(a, b int) bool {
			return stats[text[a]].meanLength() > stats[text[b]].meanLength()
		})
		if len(text) > 0 {
			set(SlotDescription, text[0])
		}
	}

	if out.Method != "content" && len(out.slots) > len(fm.slots) {
		out.Method += "+content"
	}
	return out
}

func exclusive(sample [][]string, a, b int) bool {
	for _, row := range sample {
		va, vb := cellAt(row, a) != "", cellAt(row, b) != ""
		if va == vb {
			return false
		}
	}
	return len(sample) > 0
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// applyHint fills only unresolved slots, and only with unclaimed, in-range
// columns whose sampled values have the expected shape.
func (m *Mapper) applyHint(ctx context.Context, log zerolog.Logger, fm FieldSlotMap, columns []string, sample [][]string) FieldSlotMap {
	hint, err := m.advisor.SuggestMapping(ctx, columns, sample)
	if err != nil {
		log.Warn().Err(err).Msg("Mapping hint unavailable")
		return fm
	}

	out := newFieldSlotMap(fm.Method)
	for s, c := range fm.slots {
		out.slots[s] = c
	}
	applied := false

	for _, slot := range slotOrder {
		idx, ok := hint[string(slot)]
		if !ok || out.Has(slot) {
			continue
		}
		if idx < 0 || idx >= len(columns) || out.claimed(idx) || !shapeFits(slot, sample, idx) {
			log.Debug().Str("slot", string(slot)).Int("column", idx).Msg("Rejected mapping hint")
			continue
		}
		out.slots[slot] = Column{Index: idx, Label: columns[idx]}
		applied = true
	}
	if applied {
		out.Method += "+hint"
	}
	return out
}

func shapeFits(slot Slot, sample [][]string, idx int) bool {
	var check func(string) bool
	switch slot {
	case SlotDate:
		check = sniff.LooksLikeDate
	case SlotAmount, SlotDebit, SlotCredit:
		check = sniff.LooksLikeAmount
	default:
		return true
	}
	nonEmpty, fit := 0, 0
	for _, row := range sample {
		v := cellAt(row, idx)
		if v == "" {
			continue
		}
		nonEmpty++
		if check(v) {
			fit++
		}
	}
	return nonEmpty > 0 && fit*2 > nonEmpty
}
