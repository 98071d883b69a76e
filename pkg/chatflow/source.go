package chatflow

import (
	"context"
	"fmt"
	"sync"
)

// GraphSource looks up reusable workflows by id. Nested workflow nodes find
// it in the service container under service.Workflows.
type GraphSource interface {
	Graph(ctx context.Context, id string) (*Graph, error)
}

// MapSource is an in-memory GraphSource. It is safe for concurrent use.
type MapSource struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
}

var _ GraphSource = (*MapSource)(nil)

// NewMapSource creates a source holding graphs.
func NewMapSource(graphs map[string]*Graph) *MapSource {
	s := &MapSource{graphs: make(map[string]*Graph, len(graphs))}
	for id, g := range graphs {
		s.graphs[id] = g
	}
	return s
}

// Put adds or replaces a workflow.
func (s *MapSource) Put(id string, g *Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphs[id] = g
}

// Graph implements GraphSource.
func (s *MapSource) Graph(_ context.Context, id string) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, id)
	}
	return g, nil
}
