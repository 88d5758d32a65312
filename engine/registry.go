package engine

import (
	"errors"
	"fmt"
	"sort"
)

// Factory builds one Node instance.
type Factory func(env Env) (Node, error)

// Registry maps node kinds to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for the given node kind.
func (r *Registry) Register(kind string, factory Factory) error {
	if kind == "" {
		return errors.New("empty node kind")
	}

	if factory == nil {
		return errors.New("nil factory")
	}

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("%w: %s", NodeTypeAlreadyExists, kind)
	}

	r.factories[kind] = factory

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(kind string, factory Factory) {
	err := r.Register(kind, factory)
	if err != nil {
		panic("engine registry: " + err.Error())
	}
}

// Lookup returns the factory for the given node kind, or nil.
func (r *Registry) Lookup(kind string) Factory {
	return r.factories[kind]
}

// Kinds returns the registered node kinds in sorted order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}

	sort.Strings(kinds)

	return kinds
}

// Clone returns an independent copy of r.
func (r *Registry) Clone() *Registry {
	out := &Registry{factories: make(map[string]Factory, len(r.factories))}
	for k, f := range r.factories {
		out.factories[k] = f
	}

	return out
}
