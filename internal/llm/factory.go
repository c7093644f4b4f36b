package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

// ProviderConfig holds the settings of a single provider. An empty APIKey
// leaves the provider unconfigured.
type ProviderConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	Temperature float64
	HTTPClient  *http.Client
}

func (c ProviderConfig) temperature() float64 {
	if c.Temperature <= 0 {
		return defaultTemperature
	}
	return c.Temperature
}

type Config struct {
	Gemini    ProviderConfig
	OpenAI    ProviderConfig
	Anthropic ProviderConfig
	Gateway   ProviderConfig
	// Timeout applies to any provider without its own.
	Timeout time.Duration
}

// NewProvider builds the named provider.
func NewProvider(name analysis.Source, cfg ProviderConfig) (Provider, error) {
	switch analysis.Source(strings.ToLower(string(name))) {
	case analysis.SourceGemini:
		return NewGeminiCaller(cfg)
	case analysis.SourceOpenAI:
		return NewOpenAICaller(cfg)
	case analysis.SourceAnthropic, "claude":
		return NewAnthropicCaller(cfg)
	case analysis.SourceGateway:
		return NewGatewayCaller(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: gemini, openai, anthropic, gateway)", name)
	}
}

// Registry holds the configured providers.
type Registry struct {
	providers map[analysis.Source]Provider
}

// NewRegistry builds every provider that has credentials. Providers without
// a key are skipped, not reported as errors.
func NewRegistry(cfg Config, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{providers: map[analysis.Source]Provider{}}
	entries := []struct {
		name analysis.Source
		cfg  ProviderConfig
	}{
		{analysis.SourceGemini, cfg.Gemini},
		{analysis.SourceOpenAI, cfg.OpenAI},
		{analysis.SourceAnthropic, cfg.Anthropic},
		{analysis.SourceGateway, cfg.Gateway},
	}
	for _, e := range entries {
		pc := e.cfg
		if pc.Timeout <= 0 {
			pc.Timeout = cfg.Timeout
		}
		p, err := NewProvider(e.name, pc)
		if errors.Is(err, ErrNotConfigured) {
			continue
		}
		if err != nil {
			return nil, err
		}
		r.providers[e.name] = p
		logger.Info("llm provider_configured", zap.String("provider", string(e.name)))
	}
	return r, nil
}

// NewRegistryWith wraps already-built providers.
func NewRegistryWith(providers ...Provider) *Registry {
	r := &Registry{providers: map[analysis.Source]Provider{}}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Get(name analysis.Source) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[name]
	return p, ok
}

// First returns the first configured provider in the given order.
func (r *Registry) First(order ...analysis.Source) (Provider, bool) {
	for _, name := range order {
		if p, ok := r.Get(name); ok {
			return p, true
		}
	}
	return nil, false
}

// Configured lists configured provider names in a stable order.
func (r *Registry) Configured() []analysis.Source {
	out := []analysis.Source{}
	for _, name := range []analysis.Source{analysis.SourceGemini, analysis.SourceOpenAI, analysis.SourceAnthropic, analysis.SourceGateway} {
		if _, ok := r.Get(name); ok {
			out = append(out, name)
		}
	}
	return out
}
