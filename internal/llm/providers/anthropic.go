package providers

import (
	"context"
	"os"

	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/zenovak/2100-AAA/internal/llm"
)

// AnthropicProvider implements LLMProvider for Anthropic's Claude models.
// Workflow definitions address it by the service name "claude".
type AnthropicProvider struct {
	client *anthropic.LLM
	config llm.ProviderConfig
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg llm.ProviderConfig) (*AnthropicProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	if apiKey == "" {
		return nil, llm.NewAuthError("anthropic", nil)
	}

	opts := []anthropic.Option{
		anthropic.WithToken(apiKey),
	}

	if cfg.DefaultModel != "" {
		opts = append(opts, anthropic.WithModel(cfg.DefaultModel))
	}

	client, err := anthropic.New(opts...)
	if err != nil {
		return nil, llm.TranslateError("anthropic", err)
	}

	return &AnthropicProvider{
		client: client,
		config: cfg,
	}, nil
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Models returns information about available models.
func (p *AnthropicProvider) Models(ctx context.Context) ([]llm.ModelInfo, error) {
	return []llm.ModelInfo{
		{Name: "claude-sonnet-4-5-20250929", ContextWindow: 200000, MaxOutput: 8192},
		{Name: "claude-opus-4-20250514", ContextWindow: 200000, MaxOutput: 4096},
		{Name: "claude-3-5-haiku-20241022", ContextWindow: 200000, MaxOutput: 8192},
	}, nil
}

// Health reports whether the provider is configured with a usable client.
func (p *AnthropicProvider) Health(ctx context.Context) error {
	if p.client == nil {
		return llm.NewAuthError("anthropic", nil)
	}
	return nil
}

// Complete performs a single chat completion.
func (p *AnthropicProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	messages := toSchemaMessages(req.Messages)
	callOpts := buildCallOptions(req)

	resp, err := p.client.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return nil, llm.TranslateError("anthropic", err)
	}

	return fromLangchainResponse(resp, req.Model), nil
}
