package assist

import (
	"strconv"
	"strings"
)

// maxPromptRows caps how many sample rows leave the process.
const maxPromptRows = 10

// maxPromptCell truncates long cells so a single row cannot dominate the prompt.
const maxPromptCell = 60

func buildMappingPrompt(columns []string, sample [][]string) string {
	var b strings.Builder
	b.WriteString("You are helping map the columns of a bank statement table.\n\n")
	b.WriteString("Columns (index: label):\n")
	for i, c := range columns {
		b.WriteString("  " + strconv.Itoa(i) + ": " + clip(c) + "\n")
	}

	b.WriteString("\nSample rows:\n")
	for i, row := range sample {
		if i == maxPromptRows {
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = clip(v)
		}
		b.WriteString("  " + strings.Join(cells, " | ") + "\n")
	}

	b.WriteString("\nRules:\n")
	b.WriteString("- Return one JSON object whose keys are: date, description, amount, debit, credit, currency, merchant_raw.\n")
	b.WriteString("- Each value is the zero-based column index, or null when no column fits.\n")
	b.WriteString("- Use either amount or debit/credit, never both.\n")
	b.WriteString("- Never assign the same column to two keys.\n\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	return b.String()
}

func buildDateLayoutPrompt(samples []string, candidates []string) string {
	var b strings.Builder
	b.WriteString("These dates come from one column of a bank statement:\n")
	for i, s := range samples {
		if i == maxPromptRows {
			break
		}
		b.WriteString("  " + clip(s) + "\n")
	}

	b.WriteString("\nPick the layout that reads ALL of them correctly. Allowed layouts:\n")
	for _, c := range candidates {
		b.WriteString("  - " + c + "\n")
	}
	b.WriteString("\nReturn ONLY raw JSON of the form {\"layout\": \"<one of the allowed layouts>\"}.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	return b.String()
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > maxPromptCell {
		return string(r[:maxPromptCell])
	}
	return s
}
