package node

import (
	"fmt"

	"github.com/randalmurphal/chatflow/pkg/chatflow/registry"
)

// Factory builds a node from its declaration.
type Factory func(spec Spec) (Node, error)

// UnknownNodeTypeError reports a declaration whose type has no factory.
type UnknownNodeTypeError struct {
	NodeID string
	Type   string
}

// Error implements the error interface.
func (e *UnknownNodeTypeError) Error() string {
	return fmt.Sprintf("node %q: unknown node type %q", e.NodeID, e.Type)
}

// Registry maps node type names to factories.
//
// Build it once at startup, Freeze it, and share it between executors.
type Registry struct {
	factories *registry.Registry[string, Factory]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: registry.New[string, Factory]()}
}

// Register adds a factory. Registering the same type twice is an error.
func (r *Registry) Register(typ string, f Factory) error {
	if typ == "" {
		return fmt.Errorf("register node type: empty type name")
	}
	if f == nil {
		return fmt.Errorf("register node type %q: nil factory", typ)
	}
	return r.factories.Add(typ, f)
}

// MustRegister is Register that panics on error, for init-time tables.
func (r *Registry) MustRegister(typ string, f Factory) {
	if err := r.Register(typ, f); err != nil {
		panic(err)
	}
}

// Create builds the node declared by spec.
func (r *Registry) Create(spec Spec) (Node, error) {
	f, ok := r.factories.Get(spec.Type)
	if !ok {
		return nil, &UnknownNodeTypeError{NodeID: spec.ID, Type: spec.Type}
	}
	n, err := f(spec)
	if err != nil {
		return nil, fmt.Errorf("create node %q (%s): %w", spec.ID, spec.Type, err)
	}
	return n, nil
}

// Has reports whether a type is registered.
func (r *Registry) Has(typ string) bool {
	return r.factories.Has(typ)
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	return r.factories.Keys()
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.factories.Freeze()
}

// Clone returns an unfrozen copy, for extending a shared registry.
func (r *Registry) Clone() *Registry {
	return &Registry{factories: r.factories.Clone()}
}
