package node

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/randalmurphal/chatflow/pkg/chatflow/pool"
	"github.com/randalmurphal/chatflow/pkg/chatflow/service"
)

// DefaultMaxDepth bounds nested sub-graph execution.
const DefaultMaxDepth = 8

// Context is what a node sees while it executes. It extends context.Context
// with the run's pool, services and metadata.
type Context interface {
	context.Context

	// Logger returns a logger enriched with run_id, node_id and node_type.
	// Never nil.
	Logger() *slog.Logger

	RunID() string
	NodeID() string
	NodeType() string

	// Pool is the run's variable pool.
	Pool() *pool.Pool

	// Services is the run's service container. Never nil.
	Services() *service.Container

	// Registry is the node type registry the run was built with.
	Registry() *Registry

	// Metadata is scratch space shared by every node of the run.
	Metadata() map[string]any

	// Executed lists the node ids that completed before this one, in order.
	Executed() []string

	// Depth is the sub-graph nesting depth; top-level runs are 0.
	Depth() int
	MaxDepth() int

	// DeclareNextEdges marks the outgoing edges the scheduler should follow.
	// Handles match an edge's source port or its id. A node that never
	// calls it keeps every outgoing edge live.
	DeclareNextEdges(handles ...string)
}

// runState is shared by every per-node context of one run.
type runState struct {
	executed []string
	metadata map[string]any
}

// RunContext is the scheduler-side implementation of Context.
//
// The scheduler creates one per run with NewRunContext and derives a
// per-node context with ForNode before invoking each node.
type RunContext struct {
	context.Context

	logger   *slog.Logger
	pool     *pool.Pool
	services *service.Container
	registry *Registry
	runID    string
	nodeID   string
	nodeType string
	depth    int
	maxDepth int
	state    *runState

	handles  []string
	declared bool
}

// ContextOption configures a RunContext.
type ContextOption func(*RunContext)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *RunContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPool sets the variable pool.
func WithPool(p *pool.Pool) ContextOption {
	return func(c *RunContext) {
		c.pool = p
	}
}

// WithServices sets the service container.
func WithServices(s *service.Container) ContextOption {
	return func(c *RunContext) {
		if s != nil {
			c.services = s
		}
	}
}

// WithRegistry sets the node registry.
func WithRegistry(r *Registry) ContextOption {
	return func(c *RunContext) {
		c.registry = r
	}
}

// WithRunID sets the run identifier. A UUID is generated if not set.
func WithRunID(id string) ContextOption {
	return func(c *RunContext) {
		if id != "" {
			c.runID = id
		}
	}
}

// WithDepth sets the nesting depth and the maximum allowed depth.
func WithDepth(depth, maxDepth int) ContextOption {
	return func(c *RunContext) {
		c.depth = depth
		if maxDepth > 0 {
			c.maxDepth = maxDepth
		}
	}
}

// NewRunContext creates the run-level context.
func NewRunContext(ctx context.Context, opts ...ContextOption) *RunContext {
	c := &RunContext{
		Context:  ctx,
		logger:   slog.Default(),
		services: service.NewContainer(),
		runID:    uuid.New().String(),
		maxDepth: DefaultMaxDepth,
		state:    &runState{metadata: make(map[string]any)},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pool == nil {
		c.pool = pool.New(pool.WithLogger(c.logger))
	}
	return c
}

// ForNode derives the context for one node invocation.
func (c *RunContext) ForNode(nodeID, nodeType string) *RunContext {
	return &RunContext{
		Context:  c.Context,
		logger:   c.logger.With("run_id", c.runID, "node_id", nodeID, "node_type", nodeType),
		pool:     c.pool,
		services: c.services,
		registry: c.registry,
		runID:    c.runID,
		nodeID:   nodeID,
		nodeType: nodeType,
		depth:    c.depth,
		maxDepth: c.maxDepth,
		state:    c.state,
	}
}

// WithContext returns a copy of c bound to ctx, typically a context that
// carries the node's trace span.
func (c *RunContext) WithContext(ctx context.Context) *RunContext {
	cp := *c
	cp.Context = ctx
	return &cp
}

// MarkExecuted appends a node to the executed list.
func (c *RunContext) MarkExecuted(nodeID string) {
	c.state.executed = append(c.state.executed, nodeID)
}

// NextEdges returns the handles declared by the node and whether it declared
// any at all.
func (c *RunContext) NextEdges() ([]string, bool) {
	return c.handles, c.declared
}

// Logger returns the enriched logger.
func (c *RunContext) Logger() *slog.Logger { return c.logger }

// RunID returns the run identifier.
func (c *RunContext) RunID() string { return c.runID }

// NodeID returns the executing node's id.
func (c *RunContext) NodeID() string { return c.nodeID }

// NodeType returns the executing node's type.
func (c *RunContext) NodeType() string { return c.nodeType }

// Pool returns the variable pool.
func (c *RunContext) Pool() *pool.Pool { return c.pool }

// Services returns the service container.
func (c *RunContext) Services() *service.Container { return c.services }

// Registry returns the node registry.
func (c *RunContext) Registry() *Registry { return c.registry }

// Metadata returns the run's scratch map.
func (c *RunContext) Metadata() map[string]any { return c.state.metadata }

// Executed returns a copy of the executed node ids.
func (c *RunContext) Executed() []string { return slices.Clone(c.state.executed) }

// Depth returns the nesting depth.
func (c *RunContext) Depth() int { return c.depth }

// MaxDepth returns the deepest nesting allowed.
func (c *RunContext) MaxDepth() int { return c.maxDepth }

// DeclareNextEdges records live edge handles. Repeated calls accumulate.
func (c *RunContext) DeclareNextEdges(handles ...string) {
	c.declared = true
	c.handles = append(c.handles, handles...)
}
