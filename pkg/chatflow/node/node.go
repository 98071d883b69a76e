// Package node defines the contract every workflow node implements, the
// execution context the scheduler hands to a node, and the type registry used
// to construct nodes from graph declarations.
package node

import (
	"github.com/randalmurphal/chatflow/pkg/chatflow/config"
	"github.com/randalmurphal/chatflow/pkg/chatflow/expr"
	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
)

// Inputs are the values gathered for a node's input ports.
type Inputs map[string]any

// Outputs are the values a node produces, keyed by output port.
type Outputs map[string]any

// Spec is the declaration a node is built from.
type Spec struct {
	ID       string
	Type     string
	Data     map[string]any
	Mappings map[string]selector.Mapping
}

// Node is one executable step of a workflow graph.
//
// Execute receives the gathered inputs and returns the outputs to store in
// the pool. Returning an error fails the node and aborts the run.
type Node interface {
	ID() string
	Type() string

	// Ports describes the node's inputs and outputs. Schemas may depend on
	// the node's configuration.
	Ports() PortSchema

	// Mappings binds input ports to selectors or constants.
	Mappings() map[string]selector.Mapping

	Execute(ctx Context, in Inputs) (Outputs, error)

	// Validate checks configuration before any node of the graph runs.
	Validate() error
}

// Terminal is implemented by nodes that end a run.
type Terminal interface {
	IsTerminal() bool
}

// Entry is implemented by nodes that seed a run from the request. Nested
// runs pre-seed the outputs of entry nodes.
type Entry interface {
	IsEntry() bool
}

// ResponseProducer is implemented by nodes whose output can stand in as the
// run's response when no terminal node supplied one.
type ResponseProducer interface {
	ResponsePort() string
}

// TokenReporter is implemented by nodes that consume model tokens.
type TokenReporter interface {
	TokensUsed(out Outputs) int
}

// IsTerminal reports whether n declares itself terminal.
func IsTerminal(n Node) bool {
	t, ok := n.(Terminal)
	return ok && t.IsTerminal()
}

// IsEntry reports whether n declares itself an entry node.
func IsEntry(n Node) bool {
	e, ok := n.(Entry)
	return ok && e.IsEntry()
}

// Base carries the identity, configuration and mappings shared by the
// built-in nodes. Embed it and implement Ports and Execute.
type Base struct {
	spec Spec
	cfg  config.Config
}

// NewBase wraps a spec.
func NewBase(spec Spec) Base {
	if spec.Mappings == nil {
		spec.Mappings = map[string]selector.Mapping{}
	}
	return Base{spec: spec, cfg: config.New(spec.Data)}
}

// ID returns the node id.
func (b Base) ID() string { return b.spec.ID }

// Type returns the node type.
func (b Base) Type() string { return b.spec.Type }

// Mappings returns the input port bindings.
func (b Base) Mappings() map[string]selector.Mapping { return b.spec.Mappings }

// Config returns typed access to the node's data.
func (b Base) Config() config.Config { return b.cfg }

// Spec returns the declaration the node was built from.
func (b Base) Spec() Spec { return b.spec }

// Validate accepts any configuration.
func (b Base) Validate() error { return nil }

// String returns the input as text, or "" when absent.
func (in Inputs) String(name string) string {
	v, ok := in[name]
	if !ok {
		return ""
	}
	return expr.ToString(v)
}

// Has reports whether a value was gathered for name.
func (in Inputs) Has(name string) bool {
	_, ok := in[name]
	return ok
}
