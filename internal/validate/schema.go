package validate

// transactionSchema is the canonical output contract for one transaction.
var transactionSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"date", "description", "amount", "currency", "merchant_raw", "source"},
	"properties": map[string]any{
		"date": map[string]any{
			"type":    "string",
			"pattern": `^\d{4}-\d{2}-\d{2}$`,
		},
		"description": map[string]any{
			"type":      "string",
			"minLength": 1,
			"maxLength": 200,
		},
		"amount": map[string]any{
			"type": "number",
		},
		"currency": map[string]any{
			"type":    []string{"string", "null"},
			"pattern": `^[A-Z]{3}$`,
		},
		"merchant_raw": map[string]any{
			"type":      []string{"string", "null"},
			"maxLength": 100,
		},
		"source": map[string]any{
			"enum": []string{"csv", "pdf"},
		},
	},
}
