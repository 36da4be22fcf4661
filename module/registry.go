package module

import (
	"fmt"
	"sync"

	"github.com/oneshot2001/axion/errors"
)

// Factory creates a fresh, uninitialized module instance.
type Factory func() Module

// Registry maps module names to factories. Registration order is
// preserved so that equal-priority modules run in a stable order.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Registering the same name twice is
// an error.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Registry", "Register", "factory validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("module %q already registered", name),
			"Registry", "Register", "duplicate check")
	}

	r.factories[name] = factory
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register that panics on error, for use in package
// wiring that runs once at startup.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Create instantiates the named module.
func (r *Registry) Create(name string) (Module, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("module %q not registered", name),
			"Registry", "Create", "factory lookup")
	}
	return factory(), nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}
