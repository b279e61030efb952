// Package normalize coerces mapped raw values into candidate transactions.
// Formats are decided once per document from a sample, then applied to
// every row.
package normalize

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/statement-parser/internal/domain"
	"github.com/dvloznov/statement-parser/internal/extract"
	"github.com/dvloznov/statement-parser/internal/logger"
	"github.com/dvloznov/statement-parser/internal/mapping"
)

// Longest description and merchant text kept, in runes.
const (
	MaxDescriptionLength = 200
	MaxMerchantLength    = 100
)

// DateAdvisor picks one of the candidate layout names for an ambiguous date
// column. The answer is untrusted.
type DateAdvisor interface {
	SuggestDateLayout(ctx context.Context, samples []string, candidates []string) (string, error)
}

// Format is the document-wide decision applied to every row.
type Format struct {
	Date       DateDecision
	DateSource string // "sample" or "hint"
	Amount     AmountFormat
}

// Normalizer converts RawRows of one document into candidate transactions.
// It is immutable after Decide.
type Normalizer struct {
	fields mapping.FieldSlotMap
	format Format
}

// Decide runs the first pass over the sample rows.
func Decide(ctx context.Context, fields mapping.FieldSlotMap, sample []extract.RawRow, advisor DateAdvisor) *Normalizer {
	log := logger.FromContext(ctx)

	dates := columnValues(fields, mapping.SlotDate, sample)
	format := Format{Date: DecideDateLayout(dates), DateSource: "sample"}

	if format.Date.Ambiguous && advisor != nil {
		names := make([]string, len(format.Date.Candidates))
		for i, c := range format.Date.Candidates {
			names[i] = c.Name
		}
		choice, err := advisor.SuggestDateLayout(ctx, dates, names)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("Date layout hint unavailable")
		case containsLayout(format.Date.Candidates, choice):
			format.Date.Layout, _ = LookupDateLayout(choice)
			format.DateSource = "hint"
		default:
			log.Debug().Str("hint", choice).Msg("Rejected date layout hint")
		}
	}

	var amounts []string
	if fields.SplitAmount() {
		amounts = append(columnValues(fields, mapping.SlotDebit, sample), columnValues(fields, mapping.SlotCredit, sample)...)
	} else {
		amounts = columnValues(fields, mapping.SlotAmount, sample)
	}
	fallback := '.'
	if format.Date.Layout.Name == "DD.MM.YYYY" {
		fallback = ','
	}
	format.Amount = DecideAmountFormat(amounts, fallback)

	log.Debug().
		Str("date_layout", format.Date.Layout.Name).
		Bool("date_ambiguous", format.Date.Ambiguous).
		Str("date_source", format.DateSource).
		Str("decimal_separator", string(format.Amount.DecimalSep)).
		Bool("parentheses_negative", format.Amount.Parentheses).
		Msg("Decided document format")

	return &Normalizer{fields: fields, format: format}
}

// Format returns the decided document format.
func (n *Normalizer) Format() Format { return n.format }

func containsLayout(layouts []DateLayout, name string) bool {
	for _, l := range layouts {
		if l.Name == name {
			return true
		}
	}
	return false
}

func columnValues(fields mapping.FieldSlotMap, slot mapping.Slot, rows []extract.RawRow) []string {
	col, ok := fields.Get(slot)
	if !ok {
		return nil
	}
	var out []string
	for _, r := range rows {
		if v := strings.TrimSpace(r.Value(col.Index)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (n *Normalizer) value(row extract.RawRow, slot mapping.Slot) string {
	col, ok := n.fields.Get(slot)
	if !ok {
		return ""
	}
	return strings.TrimSpace(row.Value(col.Index))
}

// Row converts one RawRow into a candidate transaction. Source is left for
// the validator to stamp. Failures are row-level ParseErrors.
func (n *Normalizer) Row(row extract.RawRow) (domain.Transaction, error) {
	var tx domain.Transaction

	rawDate := n.value(row, mapping.SlotDate)
	if rawDate == "" {
		return tx, domain.RowErrorf(row.Index, domain.KindRequiredFieldEmpty, "date is empty")
	}
	date, err := ParseDate(rawDate, n.format.Date.Layout)
	if err != nil {
		return tx, domain.RowErrorf(row.Index, domain.KindDateParse, "date does not match %s", n.format.Date.Layout.Name)
	}
	tx.Date = date

	tx.Description = truncate(strings.Join(strings.Fields(n.value(row, mapping.SlotDescription)), " "), MaxDescriptionLength)
	if tx.Description == "" {
		return tx, domain.RowErrorf(row.Index, domain.KindRequiredFieldEmpty, "description is empty")
	}

	amount, implied, err := n.amount(row)
	if err != nil {
		return tx, err
	}

	if code, ok := NormalizeCurrency(n.value(row, mapping.SlotCurrency)); ok {
		tx.Currency = &code
	} else if implied != "" {
		tx.Currency = &implied
	}
	tx.Amount = amount.Round(domain.MinorUnits(tx.Currency))

	if m := truncate(n.value(row, mapping.SlotMerchant), MaxMerchantLength); m != "" {
		tx.MerchantRaw = &m
	}
	return tx, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit]))
}

func (n *Normalizer) amount(row extract.RawRow) (decimal.Decimal, string, error) {
	if !n.fields.SplitAmount() {
		raw := n.value(row, mapping.SlotAmount)
		if raw == "" {
			return decimal.Zero, "", domain.RowErrorf(row.Index, domain.KindRequiredFieldEmpty, "amount is empty")
		}
		d, cur, err := ParseAmount(raw, n.format.Amount)
		if err != nil {
			return decimal.Zero, "", domain.RowErrorf(row.Index, domain.KindAmountParse, "amount is not a number")
		}
		return d, cur, nil
	}

	debit, credit := n.value(row, mapping.SlotDebit), n.value(row, mapping.SlotCredit)
	switch {
	case debit == "" && credit == "":
		return decimal.Zero, "", domain.RowErrorf(row.Index, domain.KindRequiredFieldEmpty, "debit and credit are both empty")
	case debit != "" && credit != "":
		return decimal.Zero, "", domain.RowErrorf(row.Index, domain.KindAmountParse, "debit and credit are both filled")
	}

	raw, sign := credit, 1
	if debit != "" {
		raw, sign = debit, -1
	}
	d, cur, err := ParseAmount(raw, n.format.Amount)
	if err != nil {
		return decimal.Zero, "", domain.RowErrorf(row.Index, domain.KindAmountParse, "amount is not a number")
	}
	d = d.Abs()
	if sign < 0 {
		d = d.Neg()
	}
	return d, cur, nil
}
