package steps

import (
	"sort"
	"sync"

	"github.com/rendis/flowpilot/pkg/schema"
)

// Registry maps step types to handlers. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[schema.StepType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[schema.StepType]Handler),
	}
}

// Register adds a handler. Returns error on nil handlers and duplicate types.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	t := h.Type()
	if t == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler step type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[t]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "handler for %q already registered", t)
	}
	r.handlers[t] = h
	return nil
}

// Get retrieves the handler for a step type.
func (r *Registry) Get(t schema.StepType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[t]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidStep, "no handler registered for step type %q", t)
	}
	return h, nil
}

// Has checks if a step type has a handler.
func (r *Registry) Has(t schema.StepType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[t]
	return ok
}

// Info describes a registered step type.
type Info struct {
	Type        schema.StepType `json:"type"`
	Description string          `json:"description"`
}

// List returns the registered step types, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.handlers))
	for t, h := range r.handlers {
		infos = append(infos, Info{Type: t, Description: h.Description()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })
	return infos
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
