package assist

import (
	"fmt"
	"strings"
)

// DefaultModel is used when assistance is enabled without an explicit model.
const DefaultModel = "google:gemini-2.5-flash"

// ModelID identifies a hint provider and one of its models, written
// "provider:model". Everything after the first colon is the model name.
type ModelID struct {
	Provider string
	Model    string
}

// ParseModelID splits s at the first colon. Both halves must be non-empty.
func ParseModelID(s string) (ModelID, error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(s), ":")
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if !ok || provider == "" || model == "" {
		return ModelID{}, fmt.Errorf("ParseModelID: %q is not provider:model", s)
	}
	return ModelID{Provider: provider, Model: model}, nil
}

func (m ModelID) String() string {
	return m.Provider + ":" + m.Model
}

// Supported reports whether hints can be requested from this provider.
func (m ModelID) Supported() bool {
	switch m.Provider {
	case "google", "gemini":
		return true
	}
	return false
}
