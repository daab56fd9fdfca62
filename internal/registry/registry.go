// Package registry holds the tool catalogue: every tool's schema and the
// handler that serves it.
package registry

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mnemo/internal/apperr"
)

// Handler serves one tool call. The result is serialized as JSON.
type Handler func(ctx context.Context, args Args) (any, error)

// Descriptor pairs a tool's wire description with its handler.
type Descriptor struct {
	Tool    mcp.Tool
	Handler Handler
}

// Provider contributes a set of tools.
type Provider interface {
	Name() string
	Tools() []Descriptor
}

type entry struct {
	Descriptor
	provider string
}

// Registry is built once at startup and is read-only afterwards.
type Registry struct {
	order    []string
	tools    map[string]entry
	validate bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithValidation makes Dispatch check arguments against the declared
// schema before calling the handler.
func WithValidation(enabled bool) Option {
	return func(r *Registry) { r.validate = enabled }
}

// New builds a registry from providers in order. A tool name declared
// twice is an error.
func New(providers []Provider, opts ...Option) (*Registry, error) {
	r := &Registry{tools: make(map[string]entry)}
	for _, opt := range opts {
		opt(r)
	}
	for _, p := range providers {
		for _, d := range p.Tools() {
			name := d.Tool.Name
			if name == "" {
				return nil, fmt.Errorf("registry: provider %s: tool without a name", p.Name())
			}
			if d.Handler == nil {
				return nil, fmt.Errorf("registry: provider %s: tool %s has no handler", p.Name(), name)
			}
			if prev, ok := r.tools[name]; ok {
				return nil, fmt.Errorf("registry: tool %s declared by both %s and %s", name, prev.provider, p.Name())
			}
			r.tools[name] = entry{Descriptor: d, provider: p.Name()}
			r.order = append(r.order, name)
		}
	}
	return r, nil
}

// List returns every tool description in registration order.
func (r *Registry) List() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Tool)
	}
	return out
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	e, ok := r.tools[name]
	return e.Descriptor, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Dispatch invokes the handler registered under name.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]any) (any, error) {
	e, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if r.validate {
		if err := Validate(e.Tool, args); err != nil {
			return nil, err
		}
	}
	return e.Handler(ctx, Args(args))
}
