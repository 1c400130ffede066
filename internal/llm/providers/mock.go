package providers

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/zenovak/2100-AAA/internal/llm"
)

// MockProvider is a deterministic in-memory provider for tests. It replays a
// fixed list of responses in order and records every request it receives.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	index     int
	err       error

	Requests []llm.CompletionRequest
}

// NewMockProvider creates a mock provider that cycles through responses.
func NewMockProvider(responses []string) *MockProvider {
	if len(responses) == 0 {
		responses = []string{"mock response"}
	}
	return &MockProvider{responses: responses}
}

// FailWith makes every subsequent Complete call return err.
func (p *MockProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Name returns the provider name.
func (p *MockProvider) Name() string {
	return "mock"
}

// Models returns a single synthetic model.
func (p *MockProvider) Models(ctx context.Context) ([]llm.ModelInfo, error) {
	return []llm.ModelInfo{
		{Name: "mock-model", ContextWindow: 8192, MaxOutput: 4096},
	}, nil
}

// Health always reports healthy.
func (p *MockProvider) Health(ctx context.Context) error {
	return nil
}

// Complete returns the next canned response.
func (p *MockProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)

	if p.err != nil {
		return nil, p.err
	}

	content := p.responses[p.index%len(p.responses)]
	p.index++

	return &llm.CompletionResponse{
		ID:    uuid.New().String(),
		Model: req.Model,
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: content,
		},
		FinishReason: llm.FinishReasonStop,
	}, nil
}
