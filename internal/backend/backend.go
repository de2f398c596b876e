// Package backend invokes the completion service behind the gateway and
// collects its full reply as text.
package backend

import (
	"context"
	"fmt"

	"completions-gateway/internal/adapter"
	"completions-gateway/internal/chat"
	"completions-gateway/internal/config"
)

// Call is one backend invocation.
type Call struct {
	Route       config.ModelRoute
	Instruction chat.Instruction
	Options     adapter.CallOptions
}

// Backend returns the complete reply text for a call. Implementations
// assemble any streamed fragments themselves.
type Backend interface {
	Complete(ctx context.Context, call Call) (string, error)
}

// Error is a backend fault. Status is the upstream HTTP status when there
// was one.
type Error struct {
	Backend string
	Status  int
	Message string
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s backend returned %d: %s", e.Backend, e.Status, e.Message)
	}
	return fmt.Sprintf("%s backend failed: %s", e.Backend, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind is a short label for metrics.
func (e *Error) Kind() string {
	switch {
	case e.Timeout:
		return "timeout"
	case e.Status >= 500:
		return "server_error"
	case e.Status >= 400:
		return "client_error"
	default:
		return "transport"
	}
}

type Registry struct {
	backends map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

func (r *Registry) Register(kind string, b Backend) {
	r.backends[kind] = b
}

// For returns the backend serving route.
func (r *Registry) For(route config.ModelRoute) (Backend, error) {
	b, ok := r.backends[route.Params.Backend]
	if !ok {
		return nil, fmt.Errorf("no backend registered for %q", route.Params.Backend)
	}
	return b, nil
}

// NewDefaultRegistry registers the HTTP Messages and command backends.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(config.BackendMessages, NewMessagesBackend(adapter.NewAnthropicMessagesAdapter(), nil))
	r.Register(config.BackendCommand, NewCommandBackend())
	return r
}
