package nodes

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
)

// Sentinel errors for built-in nodes.
var (
	// ErrInvalidConfig indicates a node whose data fails validation.
	ErrInvalidConfig = errors.New("invalid node configuration")

	// ErrNoUserMessage indicates a top-level run started without a message.
	ErrNoUserMessage = errors.New("user message is required")

	// ErrNoClasses indicates a classifier without any usable class.
	ErrNoClasses = errors.New("classifier needs at least one class")

	// ErrDivideByZero is returned by the assigner's divide mode.
	ErrDivideByZero = errors.New("division by zero")

	// ErrNoWorkflow indicates a workflow node with neither an inline graph
	// nor a workflow id.
	ErrNoWorkflow = errors.New("workflow node needs data.graph or data.workflow_id")
)

// AssignTypeError reports an assigner operation whose target or value has
// the wrong kind for its mode.
type AssignTypeError struct {
	Operation int
	Mode      string
	// Operand is "target" or "value".
	Operand string
	Want    node.Kind
	Got     node.Kind
}

// Error implements the error interface.
func (e *AssignTypeError) Error() string {
	return fmt.Sprintf("operation %d (%s): %s must be %s, got %s", e.Operation, e.Mode, e.Operand, e.Want, e.Got)
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
