package assist

import (
	"encoding/json"
	"fmt"
	"strings"
)

// cleanModelJSON strips Markdown fences and surrounding chatter from a model
// reply, keeping the outermost JSON object or array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	open := strings.IndexAny(s, "{[")
	if open == -1 {
		return s
	}
	closer := "}"
	if s[open] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(s, closer); end > open {
		s = s[open : end+1]
	}
	return strings.TrimSpace(s)
}

// parseMappingReply decodes {"date": 0, "amount": 3, "currency": null, ...}.
// Null and negative indices are dropped.
func parseMappingReply(raw string) (map[string]int, error) {
	var decoded map[string]*int
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &decoded); err != nil {
		return nil, fmt.Errorf("parseMappingReply: unmarshal JSON: %w", err)
	}
	out := make(map[string]int, len(decoded))
	for slot, idx := range decoded {
		if idx == nil || *idx < 0 {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(slot))] = *idx
	}
	return out, nil
}

// parseLayoutReply decodes {"layout": "DD/MM/YYYY"}.
func parseLayoutReply(raw string) (string, error) {
	var decoded struct {
		Layout string `json:"layout"`
	}
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &decoded); err != nil {
		return "", fmt.Errorf("parseLayoutReply: unmarshal JSON: %w", err)
	}
	layout := strings.TrimSpace(decoded.Layout)
	if layout == "" {
		return "", fmt.Errorf("parseLayoutReply: empty layout")
	}
	return layout, nil
}
