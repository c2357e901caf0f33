package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/intentra/internal/model"
)

// NewProvider creates a slot provider from configuration. An empty provider
// name disables the LLM fallback and returns nil, nil.
func NewProvider(config Config) (SlotProvider, error) {
	var (
		p   SlotProvider
		err error
	)

	switch strings.ToLower(config.Provider) {
	case "openai":
		p, err = NewOpenAIProvider(config)
	case "anthropic", "claude":
		p, err = NewAnthropicProvider(config)
	case "ollama":
		p, err = NewOllamaProvider(config)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
	if err != nil {
		return nil, err
	}

	if config.RatePerSecond > 0 {
		return NewRateLimited(p, config.RatePerSecond, config.Burst), nil
	}
	return p, nil
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(c model.LLMConfig) Config {
	return Config{
		Provider:      c.Provider,
		Model:         c.Model,
		APIKey:        c.APIKey,
		BaseURL:       c.BaseURL,
		Timeout:       c.Timeout,
		MaxTokens:     c.MaxTokens,
		RatePerSecond: c.RatePerSecond,
		Burst:         c.Burst,
		HTTPProxy:     c.HTTPProxy,
		HTTPSProxy:    c.HTTPSProxy,
		NoProxy:       c.NoProxy,
	}
}
