package mapping

// Slot is a canonical transaction field a source column can fill.
type Slot string

const (
	SlotDate        Slot = "date"
	SlotDescription Slot = "description"
	SlotAmount      Slot = "amount"
	SlotDebit       Slot = "debit"
	SlotCredit      Slot = "credit"
	SlotCurrency    Slot = "currency"
	SlotMerchant    Slot = "merchant_raw"
)

// slotOrder fixes resolution order. Numeric slots go before description so
// that descriptive synonyms never steal an amount column.
var slotOrder = []Slot{
	SlotDate,
	SlotAmount,
	SlotDebit,
	SlotCredit,
	SlotCurrency,
	SlotDescription,
	SlotMerchant,
}

// ParseSlot returns the slot named s.
func ParseSlot(s string) (Slot, bool) {
	for _, slot := range slotOrder {
		if string(slot) == s {
			return slot, true
		}
	}
	return "", false
}

// SynonymTable lists, per slot, normalized header labels in priority order.
type SynonymTable map[Slot][]string

// Extend returns a copy of t with extra labels appended after each slot's
// own, so built-in synonyms keep their priority. Labels are normalized like
// headers and duplicates are dropped.
func (t SynonymTable) Extend(extra map[Slot][]string) SynonymTable {
	out := make(SynonymTable, len(t))
	for slot, labels := range t {
		out[slot] = append([]string(nil), labels...)
	}
	for _, slot := range slotOrder {
		for _, label := range extra[slot] {
			label = NormalizeHeader(label)
			if label == "" || contains(out[slot], label) {
				continue
			}
			out[slot] = append(out[slot], label)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// DefaultSynonyms covers English and Portuguese bank exports.
var DefaultSynonyms = SynonymTable{
	SlotDate: {
		"date", "transaction date", "txn date", "trans date", "posting date",
		"posted", "booking date", "value date", "data",
	},
	SlotDescription: {
		"description", "desc", "details", "memo", "narrative", "particulars",
		"transaction description", "historico", "histórico", "descrição",
		"transaction", "reference",
	},
	SlotAmount: {"amount", "amt", "value", "valor", "total", "sum"},
	SlotDebit: {
		"debit", "debit amount", "debito", "débito", "withdrawal", "withdrawals",
		"paid out", "money out", "out",
	},
	SlotCredit: {
		"credit", "credit amount", "credito", "crédito", "deposit", "deposits",
		"paid in", "money in", "in",
	},
	SlotCurrency: {"currency", "ccy", "moeda", "curr"},
	SlotMerchant: {"merchant", "payee", "vendor", "recipient", "counterparty"},
}
