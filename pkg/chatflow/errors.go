package chatflow

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
)

// Sentinel errors for graph validation.
var (
	// ErrEmptyGraph indicates a graph without nodes.
	ErrEmptyGraph = errors.New("graph has no nodes")

	// ErrInvalidNode indicates a node without id or type.
	ErrInvalidNode = errors.New("invalid node")

	// ErrDuplicateNode indicates two nodes share an id.
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrNodeNotFound indicates an edge or mapping references an undeclared node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidEdge indicates an edge without source or target.
	ErrInvalidEdge = errors.New("invalid edge")

	// ErrSelfLoop indicates an edge from a node to itself.
	ErrSelfLoop = errors.New("edge loops back to its source")

	// ErrCycle indicates the graph is not acyclic.
	ErrCycle = errors.New("graph contains a cycle")

	// ErrNoTerminal indicates no node declares itself terminal.
	ErrNoTerminal = errors.New("graph has no terminal node")
)

// Sentinel errors for execution.
var (
	// ErrMissingInput indicates a required input port had no value.
	ErrMissingInput = errors.New("missing required input")

	// ErrNoResponse indicates the run finished without any node producing a
	// response.
	ErrNoResponse = errors.New("run produced no response")

	// ErrMaxDepthExceeded indicates nested workflows went deeper than allowed.
	ErrMaxDepthExceeded = errors.New("maximum workflow nesting depth exceeded")

	// ErrNilGraph indicates Execute was called without a graph.
	ErrNilGraph = errors.New("graph cannot be nil")

	// ErrNilContext indicates Execute was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrGraphNotFound indicates a GraphSource does not know a workflow id.
	ErrGraphNotFound = errors.New("workflow not found")
)

// UnknownNodeTypeError is returned when a graph names a node type the
// registry does not know.
type UnknownNodeTypeError = node.UnknownNodeTypeError

// GraphValidationError reports every problem found while validating a graph.
// Err joins the individual causes, so errors.Is matches any of them.
type GraphValidationError struct {
	Err error
}

// Error implements the error interface.
func (e *GraphValidationError) Error() string {
	return fmt.Sprintf("invalid graph: %v", e.Err)
}

// Unwrap returns the joined causes for errors.Is/As support.
func (e *GraphValidationError) Unwrap() error {
	return e.Err
}

// NodeExecutionError wraps a node failure with the node's identity.
type NodeExecutionError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// NodeType is the registered type of the node.
	NodeType string
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.NodeID, e.NodeType, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from node execution.
// It includes the stack trace for debugging.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancelledError reports a run stopped through its context.
type CancelledError struct {
	// NodeID is the node that was running or about to run.
	NodeID string
	// Executed lists the nodes that completed before cancellation.
	Executed []string
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
	// WasExecuting is true if cancellation interrupted NodeID.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("run cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("run cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}
