// Package registry provides a thread-safe keyed table that can be frozen once
// it has been populated.
//
// The node-type table and the service container are both built on it: they
// are filled during process or run setup and then only read.
package registry

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Sentinel errors for registry mutation.
var (
	// ErrFrozen indicates a write to a frozen registry.
	ErrFrozen = errors.New("registry is frozen")

	// ErrDuplicate indicates Add was called for an existing key.
	ErrDuplicate = errors.New("key already registered")
)

// Registry maps keys to values.
type Registry[K cmp.Ordered, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
	frozen  bool
}

// New creates an empty registry.
func New[K cmp.Ordered, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Add registers a value and fails if the key exists or the registry is frozen.
func (r *Registry[K, V]) Add(key K, value V) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: add %v", ErrFrozen, key)
	}
	if _, ok := r.entries[key]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicate, key)
	}
	r.entries[key] = value
	return nil
}

// Set adds or replaces a value. It fails only if the registry is frozen.
func (r *Registry[K, V]) Set(key K, value V) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: set %v", ErrFrozen, key)
	}
	r.entries[key] = value
	return nil
}

// Get returns the value for a key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Has reports whether the key exists.
func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Delete removes a key. It fails only if the registry is frozen.
func (r *Registry[K, V]) Delete(key K) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("%w: delete %v", ErrFrozen, key)
	}
	delete(r.entries, key)
	return nil
}

// Keys returns all keys in ascending order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	keys := make([]K, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// Len returns the number of entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Freeze makes the registry read-only. Freezing twice is a no-op.
func (r *Registry[K, V]) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry[K, V]) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// GetOrCreate returns the value for key, creating it with factory if absent.
// The factory runs at most once per key. It fails if the key is absent and
// the registry is frozen.
func (r *Registry[K, V]) GetOrCreate(key K, factory func() (V, error)) (V, error) {
	r.mu.RLock()
	v, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return v, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.entries[key]; ok {
		return v, nil
	}
	if r.frozen {
		var zero V
		return zero, fmt.Errorf("%w: create %v", ErrFrozen, key)
	}
	v, err := factory()
	if err != nil {
		var zero V
		return zero, err
	}
	r.entries[key] = v
	return v, nil
}

// Clone returns an unfrozen copy.
func (r *Registry[K, V]) Clone() *Registry[K, V] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := New[K, V]()
	for k, v := range r.entries {
		c.entries[k] = v
	}
	return c
}
