// Package assist supplies optional hints from a language model to the
// column mapper and the date normalizer. Hints are untrusted: callers
// validate every answer and treat any error as "no hint".
package assist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/statement-parser/internal/logger"
)

// DefaultTimeout bounds a single hint request.
const DefaultTimeout = 10 * time.Second

// Advisor answers both kinds of hint request.
type Advisor interface {
	SuggestMapping(ctx context.Context, columns []string, sample [][]string) (map[string]int, error)
	SuggestDateLayout(ctx context.Context, samples []string, candidates []string) (string, error)
}

// Bounded applies a per-call timeout to another Advisor and logs failures.
type Bounded struct {
	next    Advisor
	timeout time.Duration
}

// NewBounded wraps next. A non-positive timeout means DefaultTimeout.
func NewBounded(next Advisor, timeout time.Duration) *Bounded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Bounded{next: next, timeout: timeout}
}

func (b *Bounded) SuggestMapping(ctx context.Context, columns []string, sample [][]string) (map[string]int, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	hint, err := b.next.SuggestMapping(callCtx, columns, sample)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("mapping hint unavailable")
		return nil, err
	}
	return hint, nil
}

func (b *Bounded) SuggestDateLayout(ctx context.Context, samples []string, candidates []string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	layout, err := b.next.SuggestDateLayout(callCtx, samples, candidates)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("date layout hint unavailable")
		return "", err
	}
	return layout, nil
}

// Config selects and bounds the hint provider.
type Config struct {
	Enabled bool
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Factory builds advisors for a model id, caching one client per model.
// It is safe for concurrent use.
type Factory struct {
	cfg     Config
	mu      sync.Mutex
	clients map[string]Advisor
	dial    func(ctx context.Context, apiKey, model string) (Advisor, error)
}

// NewFactory creates a factory that dials Gemini on demand.
func NewFactory(cfg Config) *Factory {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Factory{
		cfg:     cfg,
		clients: make(map[string]Advisor),
		dial: func(ctx context.Context, apiKey, model string) (Advisor, error) {
			return NewGeminiAdvisor(ctx, apiKey, model)
		},
	}
}

// Warm dials the default model so later requests do not pay for client setup.
func (f *Factory) Warm(ctx context.Context) error {
	if !f.cfg.Enabled {
		return nil
	}
	_, err := f.For(ctx, "")
	return err
}

// For returns the advisor for modelID, or the configured default when modelID
// is empty. It returns (nil, nil) when assistance is disabled. An invalid or
// unsupported id is an error; callers decide whether to proceed without hints.
func (f *Factory) For(ctx context.Context, modelID string) (Advisor, error) {
	if !f.cfg.Enabled {
		return nil, nil
	}
	if modelID == "" {
		modelID = f.cfg.Model
	}
	id, err := ParseModelID(modelID)
	if err != nil {
		return nil, err
	}
	if !id.Supported() {
		return nil, fmt.Errorf("Factory.For: unsupported provider %q", id.Provider)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.clients[id.Model]; ok {
		return a, nil
	}
	client, err := f.dial(ctx, f.cfg.APIKey, id.Model)
	if err != nil {
		return nil, err
	}
	a := NewBounded(client, f.cfg.Timeout)
	f.clients[id.Model] = a
	return a, nil
}
