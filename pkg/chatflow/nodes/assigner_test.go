package nodes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/nodes"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		target any
		value  any
		want   any
	}{
		{"append", nodes.ModeAppend, []any{1, 2}, 3, []any{1, 2, 3}},
		{"append to typed list", nodes.ModeAppend, []string{"a"}, "b", []any{"a", "b"}},
		{"extend", nodes.ModeExtend, []any{1}, []any{2, 3}, []any{1, 2, 3}},
		{"remove first", nodes.ModeRemoveFirst, []any{1, 2, 3}, nil, []any{2, 3}},
		{"remove last", nodes.ModeRemoveLast, []any{1, 2, 3}, nil, []any{1, 2}},
		{"remove from empty", nodes.ModeRemoveLast, []any{}, nil, []any{}},
		{"over-write", nodes.ModeOverWrite, "old", "new", "new"},
		{"over-write empty target", nodes.ModeOverWrite, nil, 5, 5},
		{"set ignores kind", nodes.ModeSet, "text", 5, 5},
		{"clear string", nodes.ModeClear, "text", nil, ""},
		{"clear number", nodes.ModeClear, 4.5, nil, float64(0)},
		{"clear list", nodes.ModeClear, []any{1}, nil, []any{}},
		{"clear object", nodes.ModeClear, map[string]any{"a": 1}, nil, map[string]any{}},
		{"increment", nodes.ModeIncrement, 2, 3, float64(5)},
		{"decrement", nodes.ModeDecrement, 2.5, 1, 1.5},
		{"multiply", nodes.ModeMultiply, 4, 2.5, float64(10)},
		{"divide", nodes.ModeDivide, 9, 2, 4.5},
		{"divide small ints", nodes.ModeDivide, uint8(9), int16(2), 4.5},
		{"increment uint32", nodes.ModeIncrement, uint32(1), int8(2), float64(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nodes.Apply(0, tt.mode, tt.target, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply_DoesNotMutateTarget(t *testing.T) {
	target := []any{1, 2}
	_, err := nodes.Apply(0, nodes.ModeAppend, target, 3)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, target)
}

func TestApply_TypeErrors(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		target  any
		value   any
		operand string
		want    node.Kind
	}{
		{"append to string", nodes.ModeAppend, "abc", 3, "target", node.KindArray},
		{"extend with scalar", nodes.ModeExtend, []any{1}, 2, "value", node.KindArray},
		{"increment string", nodes.ModeIncrement, "1", 1, "target", node.KindNumber},
		{"multiply by string", nodes.ModeMultiply, 2, "x", "value", node.KindNumber},
		{"over-write changes kind", nodes.ModeOverWrite, "text", 5, "value", node.KindString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := nodes.Apply(2, tt.mode, tt.target, tt.value)

			var typeErr *nodes.AssignTypeError
			require.ErrorAs(t, err, &typeErr)
			assert.Equal(t, 2, typeErr.Operation)
			assert.Equal(t, tt.mode, typeErr.Mode)
			assert.Equal(t, tt.operand, typeErr.Operand)
			assert.Equal(t, tt.want, typeErr.Want)
		})
	}
}

func TestApply_DivideByZero(t *testing.T) {
	_, err := nodes.Apply(0, nodes.ModeDivide, 10, 0)
	assert.ErrorIs(t, err, nodes.ErrDivideByZero)
}

func TestAssigner_Validate(t *testing.T) {
	tests := []struct {
		name     string
		data     map[string]any
		mappings map[string]any
	}{
		{"no operations", map[string]any{}, nil},
		{
			"unknown mode",
			map[string]any{"operations": []any{map[string]any{"write_mode": "explode"}}},
			map[string]any{"operation_0_target": "conv.x"},
		},
		{
			"unmapped target",
			map[string]any{"operations": []any{map[string]any{"write_mode": "clear"}}},
			nil,
		},
		{
			"constant without value",
			map[string]any{"operations": []any{map[string]any{"write_mode": "set", "input_type": "constant"}}},
			map[string]any{"operation_0_target": "conv.x"},
		},
		{
			"variable without value mapping",
			map[string]any{"operations": []any{map[string]any{"write_mode": "append"}}},
			map[string]any{"operation_0_target": "conv.x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := nodes.NewAssigner(spec(t, "assign", nodes.TypeAssigner, tt.data, tt.mappings))
			require.NoError(t, err)
			assert.ErrorIs(t, n.Validate(), nodes.ErrInvalidConfig)
		})
	}
}

func TestAssigner_Ports(t *testing.T) {
	n, err := nodes.NewAssigner(spec(t, "assign", nodes.TypeAssigner, map[string]any{
		"operations": []any{
			map[string]any{"write_mode": "increment", "input_type": "constant", "constant_value": 1},
			map[string]any{"write_mode": "remove-first"},
		},
	}, nil))
	require.NoError(t, err)

	ports := n.Ports()
	names := make([]string, 0, len(ports.Inputs))
	for _, p := range ports.Inputs {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"operation_0_target", "operation_0_value", "operation_1_target"}, names)

	value, ok := ports.Input("operation_0_value")
	require.True(t, ok)
	assert.Equal(t, node.KindNumber, value.Kind)
	assert.False(t, value.Required)
	assert.Len(t, ports.Outputs, 2)
}
