// ABOUTME: Thread-safe registry of invocable tools keyed by name.
// ABOUTME: Registration happens at startup; afterwards the registry is only read.

package tools

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrToolCollision indicates a tool name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrInvalidTool indicates a tool is missing its name or schema.
var ErrInvalidTool = errors.New("invalid tool")

// Registry maintains the set of registered tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool.
// Returns ErrToolCollision if the name is taken and ErrInvalidTool if the
// tool has no name or no input schema.
func (r *Registry) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("%w: tool has no name", ErrInvalidTool)
	}
	if t.InputSchema() == nil {
		return fmt.Errorf("%w: tool '%s' has no input schema", ErrInvalidTool, t.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("%w: tool '%s' already registered", ErrToolCollision, t.Name())
	}

	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())

	r.logger.Info("=== TOOL REGISTERED ===", "tool_name", t.Name())
	return nil
}

// MustRegister registers every tool and panics on the first failure.
// Intended for startup wiring where a collision is a programming error.
func (r *Registry) MustRegister(ts ...Tool) {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Resolve returns the tool with the given name or ErrToolNotFound.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// List returns tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Descriptors returns the client-facing view of every tool in registration order.
func (r *Registry) Descriptors() []Descriptor {
	list := r.List()
	out := make([]Descriptor, 0, len(list))
	for _, t := range list {
		out = append(out, Describe(t))
	}
	return out
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
