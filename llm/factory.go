package llm

import (
	"fmt"

	"github.com/convo-dev/convo/config"
)

// NewProvider builds a provider from config, wrapped with the configured
// retry policy.
func NewProvider(cfg config.ProviderConfig, retry config.RetryConfig) (Provider, error) {
	var inner Provider
	switch cfg.Kind {
	case config.KindOpenAICompat:
		inner = NewOpenAICompatProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Name)
	case config.KindAnthropic:
		p, err := NewAnthropicProvider(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		inner = p
	default:
		return nil, fmt.Errorf("unknown provider kind: %q", cfg.Kind)
	}
	return NewRetryProvider(inner, RetryPolicy{
		MaxAttempts: retry.MaxAttempts,
		Delay:       retry.Delay,
	}), nil
}

// NewEngineFromConfig builds a fully wired engine: provider, retry policy,
// and engine limits all come from config.
func NewEngineFromConfig(cfg *config.Config, tools *ToolRegistry, opts ...Option) (*Engine, error) {
	provider, err := NewProvider(cfg.Provider, cfg.Retry)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithModel(cfg.Provider.Model),
		WithMaxToolCalls(cfg.Engine.MaxToolCalls),
		WithMaxOutputTokens(cfg.Engine.MaxOutputTokens),
		WithTemperature(float32(cfg.Engine.Temperature)),
	}
	return NewEngine(provider, tools, append(base, opts...)...), nil
}
