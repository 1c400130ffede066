package llm

import "context"

// LLMProvider is the interface every model backend implements.
type LLMProvider interface {
	// Name returns the canonical provider name.
	Name() string

	// Models lists the models this provider can serve.
	Models(ctx context.Context) ([]ModelInfo, error)

	// Complete performs a single chat completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Health reports whether the provider is usable. It must be cheap; it
	// verifies credentials and configuration, not connectivity.
	Health(ctx context.Context) error
}
