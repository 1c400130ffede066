// Package urfn implements the registry of user-registered functions (URFNs),
// the named callables that Function and Agent nodes dispatch to. A URFN takes
// a resolved input map and returns a result value that the executor stores in
// the variable registry.
package urfn

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zenovak/2100-AAA/internal/types"
)

const (
	ErrCodeUnknownFunction types.ErrorCode = "URFN_UNKNOWN_FUNCTION"
	ErrCodeInvalidInput    types.ErrorCode = "URFN_INVALID_INPUT"
)

// Prefix is the naming convention for registered functions. Names without it
// are rejected at registration time so that workflow definitions stay
// unambiguous about what they invoke.
const Prefix = "urfn_"

// Func is a user-registered function. Input is the node's resolved input map.
type Func func(ctx context.Context, input map[string]any) (any, error)

// Registry is a thread-safe collection of named functions.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates a registry preloaded with the builtin functions.
func NewRegistry() *Registry {
	r := &Registry{
		funcs: make(map[string]Func),
	}
	registerBuiltins(r)
	return r
}

// Register adds a function under name. The name must carry the urfn_ prefix.
func (r *Registry) Register(name string, fn Func) error {
	if !strings.HasPrefix(name, Prefix) {
		return types.NewError(ErrCodeInvalidInput,
			fmt.Sprintf("function name %q must start with %q", name, Prefix))
	}
	if fn == nil {
		return types.NewError(ErrCodeInvalidInput,
			fmt.Sprintf("function %q is nil", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	return nil
}

// Get returns the function registered under name.
func (r *Registry) Get(name string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[name]
	if !ok {
		return nil, types.NewError(ErrCodeUnknownFunction,
			fmt.Sprintf("no function registered under %q", name))
	}
	return fn, nil
}

// Call looks up name and invokes it with input.
func (r *Registry) Call(ctx context.Context, name string, input map[string]any) (any, error) {
	fn, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return fn(ctx, input)
}

// Names returns the sorted list of registered function names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
