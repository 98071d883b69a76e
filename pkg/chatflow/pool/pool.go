// Package pool implements the run-scoped variable pool.
//
// A Pool owns four namespaces: node outputs, environment variables,
// conversation variables and system variables. Conversation writes are
// tracked in a dirty set so only changed entries are persisted after a run.
//
// A Pool belongs to exactly one run and is not safe for concurrent use.
package pool

import (
	"log/slog"

	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
)

// Well-known system variable keys.
const (
	SysSessionID   = "session_id"
	SysUserMessage = "user_message"
	SysBotID       = "bot_id"
	SysRunID       = "run_id"
)

// Pool is the variable store for one run.
type Pool struct {
	outputs      map[string]map[string]any
	environment  map[string]any
	conversation map[string]any
	system       map[string]any
	dirty        map[string]struct{}
	logger       *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for resolution warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithEnvironment seeds environment variables.
func WithEnvironment(env map[string]any) Option {
	return func(p *Pool) {
		for k, v := range env {
			p.environment[k] = v
		}
	}
}

// WithConversation seeds conversation variables loaded from storage. Seeded
// values are not dirty.
func WithConversation(conv map[string]any) Option {
	return func(p *Pool) {
		for k, v := range conv {
			p.conversation[k] = v
		}
	}
}

// WithSystem seeds system variables.
func WithSystem(sys map[string]any) Option {
	return func(p *Pool) {
		for k, v := range sys {
			p.system[k] = v
		}
	}
}

// New creates an empty pool.
func New(opts ...Option) *Pool {
	p := &Pool{
		outputs:      make(map[string]map[string]any),
		environment:  make(map[string]any),
		conversation: make(map[string]any),
		system:       make(map[string]any),
		dirty:        make(map[string]struct{}),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetOutput stores one output port value for a node.
func (p *Pool) SetOutput(nodeID, port string, value any) {
	ports, ok := p.outputs[nodeID]
	if !ok {
		ports = make(map[string]any)
		p.outputs[nodeID] = ports
	}
	ports[port] = value
}

// SetOutputs stores every port in outputs for a node.
func (p *Pool) SetOutputs(nodeID string, outputs map[string]any) {
	for port, v := range outputs {
		p.SetOutput(nodeID, port, v)
	}
}

// Output returns one output port value for a node.
func (p *Pool) Output(nodeID, port string) (any, bool) {
	ports, ok := p.outputs[nodeID]
	if !ok {
		return nil, false
	}
	v, ok := ports[port]
	return v, ok
}

// Outputs returns a copy of every output port of a node, or nil if the node
// produced nothing.
func (p *Pool) Outputs(nodeID string) map[string]any {
	ports, ok := p.outputs[nodeID]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(ports))
	for k, v := range ports {
		out[k] = v
	}
	return out
}

// HasOutput reports whether a node has written any output (port == "") or a
// specific port.
func (p *Pool) HasOutput(nodeID, port string) bool {
	ports, ok := p.outputs[nodeID]
	if !ok {
		return false
	}
	if port == "" {
		return true
	}
	_, ok = ports[port]
	return ok
}

// SetEnvironment sets an environment variable.
func (p *Pool) SetEnvironment(key string, value any) {
	p.environment[key] = value
}

// Environment returns an environment variable.
func (p *Pool) Environment(key string) (any, bool) {
	v, ok := p.environment[key]
	return v, ok
}

// SetSystem sets a system variable.
func (p *Pool) SetSystem(key string, value any) {
	p.system[key] = value
}

// System returns a system variable.
func (p *Pool) System(key string) (any, bool) {
	v, ok := p.system[key]
	return v, ok
}

// SetConversation sets a conversation variable and marks it dirty.
func (p *Pool) SetConversation(key string, value any) {
	p.conversation[key] = value
	p.dirty[key] = struct{}{}
}

// Conversation returns a conversation variable by exact key.
func (p *Pool) Conversation(key string) (any, bool) {
	v, ok := p.conversation[key]
	return v, ok
}

// DrainDirtyConversation returns the modified conversation entries. The dirty
// set is left intact; call ClearDirty once the entries are persisted.
func (p *Pool) DrainDirtyConversation() map[string]any {
	out := make(map[string]any, len(p.dirty))
	for key := range p.dirty {
		out[key] = p.conversation[key]
	}
	return out
}

// ClearDirty resets the dirty set.
func (p *Pool) ClearDirty() {
	p.dirty = make(map[string]struct{})
}

// Set writes value to the location a selector addresses. Only the top-level
// key of each namespace is writable; nested paths are rejected.
func (p *Pool) Set(sel selector.Selector, value any) bool {
	if len(sel.Path()) != 1 {
		return false
	}
	key := sel.Key()
	switch sel.Namespace() {
	case selector.NamespaceEnvironment:
		p.SetEnvironment(key, value)
	case selector.NamespaceConversation:
		p.SetConversation(key, value)
	case selector.NamespaceSystem:
		p.SetSystem(key, value)
	default:
		p.SetOutput(sel.Prefix(), key, value)
	}
	return true
}

// Snapshot returns a shallow copy of every namespace, for audit records.
func (p *Pool) Snapshot() map[string]any {
	nodes := make(map[string]any, len(p.outputs))
	for id := range p.outputs {
		nodes[id] = p.Outputs(id)
	}
	return map[string]any{
		"nodes":        nodes,
		"environment":  copyMap(p.environment),
		"conversation": copyMap(p.conversation),
		"system":       copyMap(p.system),
	}
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
