package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zenovak/2100-AAA/internal/types"
)

// Registry is a thread-safe collection of named LLM providers. Providers may
// be registered under aliases so workflow definitions can use service names
// like "claude" while the backing provider is "anthropic".
type Registry struct {
	mu        sync.RWMutex
	providers map[string]LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]LLMProvider),
	}
}

// Register adds a provider under its canonical name plus any aliases.
// Registering the same name twice replaces the earlier provider.
func (r *Registry) Register(provider LLMProvider, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers[provider.Name()] = provider
	for _, alias := range aliases {
		r.providers[alias] = provider
	}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[name]
	if !ok {
		return nil, types.NewError(ErrCodeUnknownProvider,
			fmt.Sprintf("no provider registered under %q", name))
	}
	return provider, nil
}

// Has reports whether a provider is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.providers[name]
	return ok
}

// Names returns the sorted list of registered names including aliases.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
