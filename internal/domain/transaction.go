package domain

import (
	"encoding/json"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Source identifies which extractor produced a transaction. It is stamped
// from dispatch and never inferred from content.
type Source string

const (
	SourceCSV Source = "csv"
	SourcePDF Source = "pdf"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	return s == SourceCSV || s == SourcePDF
}

// Transaction is one normalized, schema-valid statement entry.
// Debits are negative, credits positive.
type Transaction struct {
	Date        civil.Date
	Description string
	Amount      decimal.Decimal // rounded to MinorUnits(Currency)
	Currency    *string         // ISO 4217, nil when undeterminable
	MerchantRaw *string         // original payee text, nil when absent
	Source      Source
}

type transactionJSON struct {
	Date        string      `json:"date"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
	Currency    *string     `json:"currency"`
	MerchantRaw *string     `json:"merchant_raw"`
	Source      Source      `json:"source"`
}

// MarshalJSON writes the canonical wire shape. The amount is a JSON number
// carrying exactly the currency's minor-unit digits.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		Date:        t.Date.String(),
		Description: t.Description,
		Amount:      json.Number(t.Amount.StringFixed(MinorUnits(t.Currency))),
		Currency:    t.Currency,
		MerchantRaw: t.MerchantRaw,
		Source:      t.Source,
	})
}

// CurrencyCode returns the currency or "" when absent.
func (t Transaction) CurrencyCode() string {
	if t.Currency == nil {
		return ""
	}
	return *t.Currency
}
