package llm

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat message sent to or returned by a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// FinishReason explains why a completion stopped.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// CompletionRequest carries one chat completion call to a provider.
type CompletionRequest struct {
	Model         string    `json:"model"`
	Messages      []Message `json:"messages"`
	Temperature   float64   `json:"temperature,omitempty"`
	MaxTokens     int       `json:"max_tokens,omitempty"`
	TopP          float64   `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

// CompletionTokenUsage reports token counts for a completion.
type CompletionTokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the provider's answer to a CompletionRequest.
type CompletionResponse struct {
	ID           string               `json:"id"`
	Model        string               `json:"model"`
	Message      Message              `json:"message"`
	FinishReason FinishReason         `json:"finish_reason"`
	Usage        CompletionTokenUsage `json:"usage"`
}

// ModelInfo describes a model a provider can serve.
type ModelInfo struct {
	Name          string `json:"name"`
	ContextWindow int    `json:"context_window"`
	MaxOutput     int    `json:"max_output"`
}

// ProviderConfig holds the settings needed to construct a provider.
type ProviderConfig struct {
	Type         string `json:"type" yaml:"type"`
	APIKey       string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL      string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	DefaultModel string `json:"default_model,omitempty" yaml:"default_model,omitempty"`
}

// Provider type names accepted by the factory.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderMock      = "mock"
)
