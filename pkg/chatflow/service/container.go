// Package service is the per-run dependency container. Nodes look up the
// capabilities they need (model generation, retrieval, streaming) by name
// instead of constructing them.
package service

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/chatflow/pkg/chatflow/registry"
)

// Logical service names used by the built-in nodes.
const (
	LLM       = "llm"
	Retrieval = "retrieval"
	Session   = "session"
	DB        = "db"
	Stream    = "stream"
	Workflows = "workflows"
)

// ErrNotFound indicates a required service is not registered.
var ErrNotFound = errors.New("service not found")

// Factory builds a service instance.
type Factory func() (any, error)

type kind int

const (
	kindInstance kind = iota
	kindFactory
	kindSingleton
)

type entry struct {
	kind     kind
	instance any
	factory  Factory
}

// Container maps service names to instances, factories and lazily built
// singletons. It is safe for concurrent use.
type Container struct {
	entries    *registry.Registry[string, entry]
	singletons *registry.Registry[string, any]
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{
		entries:    registry.New[string, entry](),
		singletons: registry.New[string, any](),
	}
}

// Register binds name to a ready instance, replacing any previous binding.
func (c *Container) Register(name string, svc any) error {
	if name == "" {
		return errors.New("service name cannot be empty")
	}
	if svc == nil {
		return fmt.Errorf("service %q: nil instance", name)
	}
	return c.entries.Set(name, entry{kind: kindInstance, instance: svc})
}

// RegisterFactory binds name to a factory invoked on every lookup.
func (c *Container) RegisterFactory(name string, f Factory) error {
	if f == nil {
		return fmt.Errorf("service %q: nil factory", name)
	}
	return c.entries.Set(name, entry{kind: kindFactory, factory: f})
}

// RegisterSingleton binds name to a factory invoked once, on first lookup.
func (c *Container) RegisterSingleton(name string, f Factory) error {
	if f == nil {
		return fmt.Errorf("service %q: nil factory", name)
	}
	return c.entries.Set(name, entry{kind: kindSingleton, factory: f})
}

// Has reports whether name is bound.
func (c *Container) Has(name string) bool {
	return c.entries.Has(name)
}

// Names returns every bound name in ascending order.
func (c *Container) Names() []string {
	return c.entries.Keys()
}

// Get returns the service bound to name. Missing services and failing
// factories both report false.
func (c *Container) Get(name string) (any, bool) {
	svc, err := c.Required(name)
	if err != nil {
		return nil, false
	}
	return svc, true
}

// Required returns the service bound to name or an error wrapping
// ErrNotFound.
func (c *Container) Required(name string) (any, error) {
	e, ok := c.entries.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	switch e.kind {
	case kindFactory:
		svc, err := e.factory()
		if err != nil {
			return nil, fmt.Errorf("build service %s: %w", name, err)
		}
		return svc, nil
	case kindSingleton:
		svc, err := c.singletons.GetOrCreate(name, e.factory)
		if err != nil {
			return nil, fmt.Errorf("build service %s: %w", name, err)
		}
		return svc, nil
	default:
		return e.instance, nil
	}
}

// Lookup returns the service bound to name as a T.
func Lookup[T any](c *Container, name string) (T, error) {
	var zero T
	if c == nil {
		return zero, fmt.Errorf("%w: %s (no container)", ErrNotFound, name)
	}
	svc, err := c.Required(name)
	if err != nil {
		return zero, err
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("service %s has type %T, want %T", name, svc, zero)
	}
	return typed, nil
}

// Optional returns the service bound to name as a T, or false if it is
// missing or of another type.
func Optional[T any](c *Container, name string) (T, bool) {
	svc, err := Lookup[T](c, name)
	if err != nil {
		var zero T
		return zero, false
	}
	return svc, true
}
