package tool

import (
	"fmt"
	"sync"

	"github.com/hupe1980/kbagent/core"
)

// Registry maps tool names to tools and preserves registration order so the
// catalog presented to the model is stable.
//
// Registration normally happens once at startup; lookups are safe for
// concurrent use by many requests.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry pre-populated with tools. It fails on the
// first duplicate name.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds t. It returns *core.DuplicateToolError when the name is taken.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("register: nil tool")
	}

	name := t.Name()
	if name == "" {
		return fmt.Errorf("register: tool name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tools == nil {
		r.tools = make(map[string]Tool)
	}

	if _, exists := r.tools[name]; exists {
		return &core.DuplicateToolError{Name: name}
	}

	r.tools[name] = t
	r.order = append(r.order, name)

	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Resolve looks up a tool by name. It returns *core.UnknownToolError when absent.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, &core.UnknownToolError{Name: name}
	}

	return t, nil
}

// DescribeAll returns the catalog in registration order.
func (r *Registry) DescribeAll() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Describe(r.tools[name]))
	}

	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}
