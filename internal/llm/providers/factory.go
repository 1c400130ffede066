package providers

import (
	"github.com/zenovak/2100-AAA/internal/llm"
)

// NewProvider creates an LLM provider based on the configuration. The type
// "claude" is accepted as an alias for "anthropic" since workflow definitions
// use the service name.
func NewProvider(cfg llm.ProviderConfig) (llm.LLMProvider, error) {
	switch cfg.Type {
	case llm.ProviderAnthropic, "claude":
		return NewAnthropicProvider(cfg)

	case llm.ProviderOpenAI:
		return NewOpenAIProvider(cfg)

	case llm.ProviderMock:
		return NewMockProvider(nil), nil

	default:
		return nil, llm.NewUnknownProviderError(cfg.Type)
	}
}
