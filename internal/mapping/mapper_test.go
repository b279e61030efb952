package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/statement-parser/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdvisor struct {
	hint  map[string]int
	err   error
	calls int
}

func (s *stubAdvisor) SuggestMapping(ctx context.Context, columns []string, sample [][]string) (map[string]int, error) {
	s.calls++
	return s.hint, s.err
}

func indexes(fm FieldSlotMap) map[Slot]int {
	out := make(map[Slot]int)
	for _, s := range slotOrder {
		if c, ok := fm.Get(s); ok {
			out[s] = c.Index
		}
	}
	return out
}

func TestMapper_ByHeader(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    map[Slot]int
		split   bool
	}{
		{
			name:    "plain english",
			columns: []string{"Date", "Description", "Amount"},
			want:    map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotAmount: 2},
		},
		{
			name:    "case and whitespace",
			columns: []string{"  TRANSACTION   DATE ", "Memo:", "Amt"},
			want:    map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotAmount: 2},
		},
		{
			name:    "prefix match with unit suffix",
			columns: []string{"Posting Date", "Details", "Amount (GBP)", "Currency", "Payee"},
			want: map[Slot]int{
				SlotDate: 0, SlotDescription: 1, SlotAmount: 2, SlotCurrency: 3, SlotMerchant: 4,
			},
		},
		{
			name:    "debit and credit pair",
			columns: []string{"Date", "Narrative", "Paid out", "Paid in", "Balance"},
			want:    map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotDebit: 2, SlotCredit: 3},
			split:   true,
		},
		{
			name:    "amount beats debit credit",
			columns: []string{"Date", "Description", "Debit", "Credit", "Amount"},
			want:    map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotAmount: 4, SlotDebit: 2, SlotCredit: 3},
			split:   false,
		},
		{
			name:    "value date does not steal value column",
			columns: []string{"Value Date", "Descrição", "Value"},
			want:    map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotAmount: 2},
		},
		{
			name:    "earlier synonym wins over earlier column",
			columns: []string{"Reference", "Description", "Date", "Amount"},
			want:    map[Slot]int{SlotDate: 2, SlotDescription: 1, SlotAmount: 3},
		},
		{
			name:    "value date beside a debit credit pair",
			columns: []string{"Date", "Value Date", "Description", "Debit", "Credit"},
			want:    map[Slot]int{SlotDate: 0, SlotDescription: 2, SlotDebit: 3, SlotCredit: 4},
			split:   true,
		},
		{
			name: "exact labels beat an earlier prefix",
			columns: []string{
				"Transaction Date", "Transaction Type", "Sort Code", "Account Number",
				"Transaction Description", "Debit Amount", "Credit Amount", "Balance",
			},
			want:  map[Slot]int{SlotDate: 0, SlotDescription: 4, SlotDebit: 5, SlotCredit: 6},
			split: true,
		},
		{
			name:    "prefix still applies when no exact label exists",
			columns: []string{"Date", "Transaction Type", "Amount"},
			want:    map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotAmount: 2},
		},
		{
			name:    "word prefix does not match inside a word",
			columns: []string{"Date", "Description", "Amount", "Outstanding", "Interest"},
			want:    map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotAmount: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm, err := NewMapper(nil).Map(context.Background(), tt.columns, true, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, indexes(fm))
			assert.Equal(t, tt.split, fm.SplitAmount())
			assert.Equal(t, "synonyms", fm.Method)
		})
	}
}

func TestMapper_Deterministic(t *testing.T) {
	columns := []string{"Date", "Details", "Memo", "Amount", "Merchant", "Payee"}
	first, err := NewMapper(nil).Map(context.Background(), columns, true, nil)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := NewMapper(nil).Map(context.Background(), columns, true, nil)
		require.NoError(t, err)
		assert.Equal(t, indexes(first), indexes(again))
	}
}

func TestMapper_Unmappable(t *testing.T) {
	_, err := NewMapper(nil).Map(context.Background(), []string{"Foo", "Bar", "Baz"}, true, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.KindRequiredFieldUnmappable))

	var pe *domain.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.StageMap, pe.Stage)
	assert.Contains(t, pe.Message, "date, description, amount")
}

func TestMapper_DebitWithoutCreditIsUnmappable(t *testing.T) {
	_, err := NewMapper(nil).Map(context.Background(), []string{"Date", "Description", "Debit"}, true, nil)
	assert.ErrorIs(t, err, domain.KindRequiredFieldUnmappable)
}

func TestMapper_InferByContent(t *testing.T) {
	t.Run("single amount with balance", func(t *testing.T) {
		columns := []string{"col_1", "col_2", "col_3", "col_4"}
		sample := [][]string{
			{"2024-01-15", "Coffee at the corner shop", "-4.50", "995.50"},
			{"2024-01-16", "Salary ACME Ltd", "2500.00", "3495.50"},
		}
		fm, err := NewMapper(nil).Map(context.Background(), columns, false, sample)
		require.NoError(t, err)
		assert.Equal(t, map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotAmount: 2}, indexes(fm))
		assert.Equal(t, "content", fm.Method)
	})

	t.Run("mutually exclusive numeric columns", func(t *testing.T) {
		columns := []string{"col_1", "col_2", "col_3", "col_4", "col_5"}
		sample := [][]string{
			{"15/01/2024", "CARD", "Coffee at the corner shop", "4.50", ""},
			{"16/01/2024", "BGC", "Salary ACME Ltd", "", "2500.00"},
		}
		fm, err := NewMapper(nil).Map(context.Background(), columns, false, sample)
		require.NoError(t, err)
		assert.Equal(t, map[Slot]int{SlotDate: 0, SlotDescription: 2, SlotDebit: 3, SlotCredit: 4}, indexes(fm))
		assert.True(t, fm.SplitAmount())
	})
}

func TestMapper_HeaderFallsBackToContent(t *testing.T) {
	t.Run("unrecognised labels", func(t *testing.T) {
		columns := []string{"When", "What", "How much"}
		sample := [][]string{{"2024-01-15", "Coffee", "-4.50"}, {"2024-01-16", "Tea", "-3.00"}}
		fm, err := NewMapper(nil).Map(context.Background(), columns, true, sample)
		require.NoError(t, err)
		assert.Equal(t, map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotAmount: 2}, indexes(fm))
		assert.Equal(t, "synonyms+content", fm.Method)
	})

	t.Run("only the missing slot is inferred", func(t *testing.T) {
		columns := []string{"Date", "Kind", "Notes", "Amount"}
		sample := [][]string{
			{"2024-01-15", "CARD", "Coffee at the corner shop", "-4.50"},
			{"2024-01-16", "BGC", "Salary ACME Ltd", "2500.00"},
		}
		fm, err := NewMapper(nil).Map(context.Background(), columns, true, sample)
		require.NoError(t, err)
		assert.Equal(t, map[Slot]int{SlotDate: 0, SlotDescription: 2, SlotAmount: 3}, indexes(fm))
	})

	t.Run("debit partner found by exclusivity", func(t *testing.T) {
		columns := []string{"Date", "Description", "Debit", "Other"}
		sample := [][]string{
			{"2024-01-15", "Coffee", "4.50", ""},
			{"2024-01-16", "Salary", "", "2500.00"},
		}
		fm, err := NewMapper(nil).Map(context.Background(), columns, true, sample)
		require.NoError(t, err)
		assert.Equal(t, map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotDebit: 2, SlotCredit: 3}, indexes(fm))
		assert.True(t, fm.SplitAmount())
	})
}

func TestMapper_AdvisorHint(t *testing.T) {
	columns := []string{"When", "What", "How much"}
	sample := [][]string{{"2024-01-15", "Coffee", "-4.50"}, {"2024-01-16", "Tea", "-3.00"}}

	t.Run("valid hint fills missing slots", func(t *testing.T) {
		adv := &stubAdvisor{hint: map[string]int{"date": 0, "description": 1, "amount": 2}}
		fm, err := NewMapper(adv).Map(context.Background(), columns, true, sample)
		require.NoError(t, err)
		assert.Equal(t, map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotAmount: 2}, indexes(fm))
		assert.Equal(t, "synonyms+hint", fm.Method)
	})

	t.Run("hint with wrong shapes is rejected", func(t *testing.T) {
		adv := &stubAdvisor{hint: map[string]int{"date": 1, "amount": 7}}
		fm, err := NewMapper(adv).Map(context.Background(), columns, true, sample)
		require.NoError(t, err)
		assert.Equal(t, map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotAmount: 2}, indexes(fm))
		assert.Equal(t, "synonyms+content", fm.Method)
	})

	t.Run("advisor failure falls back", func(t *testing.T) {
		adv := &stubAdvisor{err: errors.New("timeout")}
		fm, err := NewMapper(adv).Map(context.Background(), columns, true, sample)
		require.NoError(t, err)
		assert.Equal(t, "synonyms+content", fm.Method)
		assert.Equal(t, 1, adv.calls)
	})

	t.Run("rejected hint without usable values", func(t *testing.T) {
		adv := &stubAdvisor{hint: map[string]int{"date": 1, "description": 0, "amount": 7}}
		_, err := NewMapper(adv).Map(context.Background(), columns, true, nil)
		assert.ErrorIs(t, err, domain.KindRequiredFieldUnmappable)
	})

	t.Run("advisor not consulted when mapping resolves", func(t *testing.T) {
		adv := &stubAdvisor{}
		_, err := NewMapper(adv).Map(context.Background(), []string{"Date", "Memo", "Amount"}, true, sample)
		require.NoError(t, err)
		assert.Zero(t, adv.calls)
	})
}

func TestSynonymTable_Extend(t *testing.T) {
	table := DefaultSynonyms.Extend(map[Slot][]string{
		SlotDate:        {" Buchungstag ", "DATE"},
		SlotDescription: {"Verwendungszweck"},
	})

	assert.Equal(t, append(append([]string(nil), DefaultSynonyms[SlotDate]...), "buchungstag"), table[SlotDate])
	assert.NotContains(t, DefaultSynonyms[SlotDate], "buchungstag")

	fm, err := NewMapper(nil).WithSynonyms(table).Map(context.Background(),
		[]string{"Buchungstag", "Verwendungszweck", "Betrag", "Amount"}, true, nil)
	require.NoError(t, err)
	assert.Equal(t, map[Slot]int{SlotDate: 0, SlotDescription: 1, SlotAmount: 3}, indexes(fm))
}

func TestParseSlot(t *testing.T) {
	slot, ok := ParseSlot("merchant_raw")
	assert.True(t, ok)
	assert.Equal(t, SlotMerchant, slot)

	_, ok = ParseSlot("balance")
	assert.False(t, ok)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "transaction date", NormalizeHeader("  Transaction\tDate: "))
	assert.Equal(t, "amount", NormalizeHeader(`"Amount"`))
}
