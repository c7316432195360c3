package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
)

// Handler executes one tool call. Handlers are pure request/response
// functions over external collaborators; they must not touch session state.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Definition describes a tool to the backend at session-configure time.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// ParametersFor reflects a parameter struct into the JSON schema embedded in
// the tool definition.
func ParametersFor(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	return reflector.Reflect(v)
}

type Registry struct {
	mu       sync.RWMutex
	order    []string
	defs     map[string]Definition
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		defs:     make(map[string]Definition),
		handlers: make(map[string]Handler),
	}
}

func (r *Registry) Register(def Definition, handler Handler) error {
	if def.Name == "" {
		return fmt.Errorf("tool definition needs a name")
	}
	if handler == nil {
		return fmt.Errorf("tool %q needs a handler", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}
	r.order = append(r.order, def.Name)
	r.defs[def.Name] = def
	r.handlers[def.Name] = handler
	return nil
}

// Definitions returns tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

func (r *Registry) handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}
