// Package dispatch maps protocol method names to registered handlers. Three
// handler classes exist — prompt, tool, resource — each with a declared input
// shape reflected at registration time, so malformed registrations fail at
// startup rather than on first call.
//
// Duplicate policy: registering a second handler under the same (class, name)
// pair silently replaces the first (last-registration-wins) and keeps the
// original position in discovery listings. The override is logged at warn
// level.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcputil/go-mcp-sse/mcp"
)

var (
	// ErrMethodNotFound is returned by Lookup for an unregistered
	// (class, name) pair.
	ErrMethodNotFound = errors.New("dispatch: method not found")

	// ErrInvalidParams wraps argument-decoding failures so the dispatcher
	// can map them to the invalid-params protocol error code.
	ErrInvalidParams = errors.New("dispatch: invalid params")
)

// Class is a handler class. Each class has its own namespace.
type Class string

const (
	ClassPrompt   Class = "prompt"
	ClassTool     Class = "tool"
	ClassResource Class = "resource"
)

// HandlerFunc is the uniform callable shape all handler classes reduce to.
// args carries the raw params fragment relevant to the class (tool arguments,
// prompt arguments, or the resources/read params).
type HandlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

// CompleteFunc suggests values for a prompt argument given a partial value.
type CompleteFunc func(ctx context.Context, value string) (mcp.CompletionValues, error)

// Registration binds a method name to a handler and its declared shapes.
// Build registrations with NewTool, NewPrompt, or NewResource.
type Registration struct {
	Class   Class
	Name    string
	Handler HandlerFunc

	// Exactly one descriptor is set, matching Class.
	Tool     *mcp.Tool
	Prompt   *mcp.Prompt
	Resource *mcp.Resource

	completions map[string]CompleteFunc
	err         error
}

type classSet struct {
	order  []string
	byName map[string]Registration
}

func newClassSet() *classSet {
	return &classSet{byName: make(map[string]Registration)}
}

// Registry routes (class, method) pairs to handlers.
type Registry struct {
	log *slog.Logger

	mu      sync.RWMutex
	classes map[Class]*classSet
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the slog logger used for override warnings.
func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		log: slog.Default(),
		classes: map[Class]*classSet{
			ClassPrompt:   newClassSet(),
			ClassTool:     newClassSet(),
			ClassResource: newClassSet(),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterTool adds a tool registration. See the package documentation for
// the duplicate policy.
func (r *Registry) RegisterTool(reg Registration) error {
	return r.register(ClassTool, reg)
}

// RegisterPrompt adds a prompt registration.
func (r *Registry) RegisterPrompt(reg Registration) error {
	return r.register(ClassPrompt, reg)
}

// RegisterResource adds a resource registration, keyed by its URI.
func (r *Registry) RegisterResource(reg Registration) error {
	return r.register(ClassResource, reg)
}

func (r *Registry) register(class Class, reg Registration) error {
	if reg.err != nil {
		return fmt.Errorf("register %s %q: %w", class, reg.Name, reg.err)
	}
	if reg.Class != class {
		return fmt.Errorf("register %s %q: registration is of class %s", class, reg.Name, reg.Class)
	}
	if reg.Name == "" {
		return fmt.Errorf("register %s: missing name", class)
	}
	if reg.Handler == nil {
		return fmt.Errorf("register %s %q: missing handler", class, reg.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cs := r.classes[class]
	if _, exists := cs.byName[reg.Name]; exists {
		// Last registration wins; the listing slot stays put.
		r.log.Warn("handler overridden",
			slog.String("class", string(class)),
			slog.String("name", reg.Name))
	} else {
		cs.order = append(cs.order, reg.Name)
	}
	cs.byName[reg.Name] = reg
	return nil
}

// Lookup resolves a handler registration or returns ErrMethodNotFound.
func (r *Registry) Lookup(class Class, name string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs, ok := r.classes[class]
	if !ok {
		return Registration{}, fmt.Errorf("%w: unknown class %q", ErrMethodNotFound, class)
	}
	reg, ok := cs.byName[name]
	if !ok {
		return Registration{}, fmt.Errorf("%w: %s %q", ErrMethodNotFound, class, name)
	}
	return reg, nil
}

// Tools lists registered tool descriptors in registration order.
func (r *Registry) Tools() []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs := r.classes[ClassTool]
	out := make([]mcp.Tool, 0, len(cs.order))
	for _, name := range cs.order {
		out = append(out, *cs.byName[name].Tool)
	}
	return out
}

// Prompts lists registered prompt descriptors in registration order.
func (r *Registry) Prompts() []mcp.Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs := r.classes[ClassPrompt]
	out := make([]mcp.Prompt, 0, len(cs.order))
	for _, name := range cs.order {
		out = append(out, *cs.byName[name].Prompt)
	}
	return out
}

// Resources lists registered resource descriptors in registration order.
func (r *Registry) Resources() []mcp.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs := r.classes[ClassResource]
	out := make([]mcp.Resource, 0, len(cs.order))
	for _, name := range cs.order {
		out = append(out, *cs.byName[name].Resource)
	}
	return out
}

// Complete runs the completion callback registered for (class, name, arg).
// A registration without a callback for arg yields an empty suggestion list.
func (r *Registry) Complete(ctx context.Context, class Class, name, arg, value string) (mcp.CompletionValues, error) {
	reg, err := r.Lookup(class, name)
	if err != nil {
		return nil, err
	}
	fn, ok := reg.completions[arg]
	if !ok {
		return mcp.CompletionValues{}, nil
	}
	return fn(ctx, value)
}
