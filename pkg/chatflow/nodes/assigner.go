package nodes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/randalmurphal/chatflow/pkg/chatflow/expr"
	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
)

// Assigner write modes.
const (
	ModeOverWrite   = "over-write"
	ModeClear       = "clear"
	ModeSet         = "set"
	ModeAppend      = "append"
	ModeExtend      = "extend"
	ModeRemoveFirst = "remove-first"
	ModeRemoveLast  = "remove-last"
	ModeIncrement   = "increment"
	ModeDecrement   = "decrement"
	ModeMultiply    = "multiply"
	ModeDivide      = "divide"
)

// Assigner input types.
const (
	InputVariable = "variable"
	InputConstant = "constant"
)

var writeModes = []string{
	ModeOverWrite, ModeClear, ModeSet, ModeAppend, ModeExtend, ModeRemoveFirst,
	ModeRemoveLast, ModeIncrement, ModeDecrement, ModeMultiply, ModeDivide,
}

// Operation is one step of an assigner.
type Operation struct {
	Mode      string
	InputType string
	Constant  any
	// HasConstant distinguishes a nil constant from a missing one.
	HasConstant bool
}

func (op Operation) needsValue() bool {
	switch op.Mode {
	case ModeClear, ModeRemoveFirst, ModeRemoveLast:
		return false
	}
	return true
}

func (op Operation) arithmetic() bool {
	switch op.Mode {
	case ModeIncrement, ModeDecrement, ModeMultiply, ModeDivide:
		return true
	}
	return false
}

// Assigner applies its operations in order. Operation i reads
// operation_<i>_target and, for modes that need one, operation_<i>_value,
// and writes operation_<i>_result.
//
// When the target port is mapped from a conversation variable the result is
// also written back to it, so later nodes and later turns see the update.
type Assigner struct {
	node.Base
	ops []Operation
}

var _ node.Node = (*Assigner)(nil)

// NewAssigner is the assigner node factory.
func NewAssigner(spec node.Spec) (node.Node, error) {
	a := &Assigner{Base: node.NewBase(spec)}
	for _, c := range a.Config().Objects("operations") {
		a.ops = append(a.ops, Operation{
			Mode:        strings.ToLower(c.String("write_mode", ModeOverWrite)),
			InputType:   strings.ToLower(c.String("input_type", InputVariable)),
			Constant:    c.Any("constant_value", nil),
			HasConstant: c.Has("constant_value"),
		})
	}
	return a, nil
}

func targetPort(i int) string { return fmt.Sprintf("operation_%d_target", i) }
func valuePort(i int) string  { return fmt.Sprintf("operation_%d_value", i) }
func resultPort(i int) string { return fmt.Sprintf("operation_%d_result", i) }

// Ports implements node.Node.
func (a *Assigner) Ports() node.PortSchema {
	var s node.PortSchema
	for i, op := range a.ops {
		s.Inputs = append(s.Inputs, node.Port{Name: targetPort(i), Kind: node.KindAny, Required: true})
		if op.needsValue() {
			kind := node.KindAny
			if op.arithmetic() {
				kind = node.KindNumber
			}
			s.Inputs = append(s.Inputs, node.Port{
				Name:     valuePort(i),
				Kind:     kind,
				Required: op.InputType == InputVariable,
			})
		}
		s.Outputs = append(s.Outputs, node.Port{Name: resultPort(i), Kind: node.KindAny})
	}
	return s
}

// Validate checks every operation's mode, input type and wiring.
func (a *Assigner) Validate() error {
	if len(a.ops) == 0 {
		return invalidConfig("assigner needs at least one operation")
	}
	for i, op := range a.ops {
		if !slices.Contains(writeModes, op.Mode) {
			return invalidConfig("operation %d: unknown write mode %q", i, op.Mode)
		}
		if _, ok := a.Mappings()[targetPort(i)]; !ok {
			return invalidConfig("operation %d: %s is not mapped", i, targetPort(i))
		}
		if !op.needsValue() {
			continue
		}
		switch op.InputType {
		case InputConstant:
			if !op.HasConstant {
				return invalidConfig("operation %d: constant input needs constant_value", i)
			}
		case InputVariable:
			if _, ok := a.Mappings()[valuePort(i)]; !ok {
				return invalidConfig("operation %d: %s is not mapped", i, valuePort(i))
			}
		default:
			return invalidConfig("operation %d: unknown input type %q", i, op.InputType)
		}
	}
	return nil
}

// Execute implements node.Node.
func (a *Assigner) Execute(ctx node.Context, in node.Inputs) (node.Outputs, error) {
	out := make(node.Outputs, len(a.ops))
	for i, op := range a.ops {
		target, ok := in[targetPort(i)]
		if !ok {
			return nil, fmt.Errorf("operation %d: missing %s", i, targetPort(i))
		}

		var value any
		if op.needsValue() {
			if op.InputType == InputConstant {
				value = op.Constant
			} else if value, ok = in[valuePort(i)]; !ok {
				return nil, fmt.Errorf("operation %d: missing %s", i, valuePort(i))
			}
		}

		result, err := Apply(i, op.Mode, target, value)
		if err != nil {
			return nil, err
		}
		out[resultPort(i)] = result

		if m, ok := a.Mappings()[targetPort(i)]; ok && !m.IsConstant() &&
			m.Selector().Namespace() == selector.NamespaceConversation {
			if !ctx.Pool().Set(m.Selector(), result) {
				ctx.Logger().Warn("cannot write back nested conversation path", "selector", m.Selector().String())
				continue
			}
			ctx.Logger().Debug("conversation variable updated", "key", m.Selector().Key(), "mode", op.Mode)
		}
	}
	return out, nil
}

// Apply performs one write mode on target. op is the operation index used in
// errors. Lists are copied, never modified in place.
func Apply(op int, mode string, target, value any) (any, error) {
	typeErr := func(operand string, want node.Kind, v any) error {
		return &AssignTypeError{Operation: op, Mode: mode, Operand: operand, Want: want, Got: node.KindOf(v)}
	}

	switch mode {
	case ModeSet:
		return value, nil

	case ModeOverWrite:
		tk, vk := node.KindOf(target), node.KindOf(value)
		if target != nil && tk != node.KindAny && value != nil && tk != vk {
			return nil, typeErr("value", tk, value)
		}
		return value, nil

	case ModeClear:
		return node.ZeroValue(node.KindOf(target)), nil

	case ModeAppend, ModeExtend, ModeRemoveFirst, ModeRemoveLast:
		list, ok := toList(target)
		if !ok {
			return nil, typeErr("target", node.KindArray, target)
		}
		switch mode {
		case ModeAppend:
			return append(list, value), nil
		case ModeExtend:
			more, ok := toList(value)
			if !ok {
				return nil, typeErr("value", node.KindArray, value)
			}
			return append(list, more...), nil
		case ModeRemoveFirst:
			if len(list) == 0 {
				return list, nil
			}
			return list[1:], nil
		default:
			if len(list) == 0 {
				return list, nil
			}
			return list[:len(list)-1], nil
		}

	case ModeIncrement, ModeDecrement, ModeMultiply, ModeDivide:
		if node.KindOf(target) != node.KindNumber {
			return nil, typeErr("target", node.KindNumber, target)
		}
		if node.KindOf(value) != node.KindNumber {
			return nil, typeErr("value", node.KindNumber, value)
		}
		t, _ := expr.ToFloat64(target)
		v, _ := expr.ToFloat64(value)
		switch mode {
		case ModeIncrement:
			return t + v, nil
		case ModeDecrement:
			return t - v, nil
		case ModeMultiply:
			return t * v, nil
		default:
			if v == 0 {
				return nil, fmt.Errorf("operation %d (%s): %w", op, mode, ErrDivideByZero)
			}
			return t / v, nil
		}
	}
	return nil, fmt.Errorf("operation %d: %w: unknown write mode %q", op, ErrInvalidConfig, mode)
}

// toList copies the supported list shapes into a fresh []any.
func toList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return slices.Clone(l), true
	case []string:
		return anySlice(l), true
	case []int:
		return anySlice(l), true
	case []float64:
		return anySlice(l), true
	case []map[string]any:
		return anySlice(l), true
	}
	return nil, false
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
