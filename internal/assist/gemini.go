package assist

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiAdvisor asks a Gemini model for mapping and date-layout hints.
// It is safe for concurrent use.
type GeminiAdvisor struct {
	client *genai.Client
	model  string
}

// NewGeminiAdvisor creates a client for model. An empty apiKey lets the
// genai SDK fall back to GOOGLE_API_KEY / GEMINI_API_KEY or Vertex settings.
func NewGeminiAdvisor(ctx context.Context, apiKey, model string) (*GeminiAdvisor, error) {
	cfg := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
		cfg.Backend = genai.BackendGeminiAPI
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiAdvisor: create genai client: %w", err)
	}
	return &GeminiAdvisor{client: client, model: model}, nil
}

// SuggestMapping implements mapping.Advisor.
func (g *GeminiAdvisor) SuggestMapping(ctx context.Context, columns []string, sample [][]string) (map[string]int, error) {
	raw, err := g.generate(ctx, buildMappingPrompt(columns, sample))
	if err != nil {
		return nil, fmt.Errorf("SuggestMapping: %w", err)
	}
	return parseMappingReply(raw)
}

// SuggestDateLayout implements normalize.DateAdvisor.
func (g *GeminiAdvisor) SuggestDateLayout(ctx context.Context, samples []string, candidates []string) (string, error) {
	raw, err := g.generate(ctx, buildDateLayoutPrompt(samples, candidates))
	if err != nil {
		return "", fmt.Errorf("SuggestDateLayout: %w", err)
	}
	return parseLayoutReply(raw)
}

func (g *GeminiAdvisor) generate(ctx context.Context, prompt string) (string, error) {
	temperature := float32(0)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return rawText, nil
}
