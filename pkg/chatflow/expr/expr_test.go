package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name      string
		actual    any
		expected  any
		op        string
		valueType string
		want      bool
	}{
		{"number greater", 10, "5", ">", TypeNumber, true},
		{"number greater false", 3, 5, ">", TypeNumber, false},
		{"number from string", "7.5", 7.5, "=", TypeNumber, true},
		{"number not equal", 1, 2, "≠", TypeNumber, true},
		{"number gte unicode", 5, 5, "≥", TypeNumber, true},
		{"number lte ascii", 4, 5, "<=", TypeNumber, true},
		{"number cast failure", "abc", 5, ">", TypeNumber, false},
		{"number nil", nil, 5, "<", TypeNumber, false},
		{"boolean yes", "yes", true, "=", TypeBoolean, true},
		{"boolean zero", 0, "false", "=", TypeBoolean, true},
		{"boolean nonzero", 3.2, "TRUE", "is", TypeBoolean, true},
		{"boolean unparsable", "maybe", true, "=", TypeBoolean, false},
		{"string equal", "refund", "refund", "=", TypeString, true},
		{"string is not", "refund", "order", "is not", "", true},
		{"string nil equals empty", nil, "", "=", TypeString, true},
		{"contains case-insensitive", "Hello World", "WORLD", "contains", TypeString, true},
		{"contains on number", 12345, 234, "contains", TypeNumber, true},
		{"not contains", "abc", "x", "not contains", TypeString, true},
		{"contains nil", nil, "x", "contains", TypeString, false},
		{"start with", "order-12", "order", "start with", TypeString, true},
		{"end with", "order-12", "12", "end with", TypeString, true},
		{"string ordering", "b", "a", ">", TypeString, true},
		{"empty nil", nil, nil, "empty", TypeString, true},
		{"empty string", "", nil, "empty", TypeNumber, true},
		{"empty list", []any{}, nil, "empty", "", true},
		{"not empty map", map[string]any{"a": 1}, nil, "not empty", "", true},
		{"not empty zero", 0, nil, "not empty", TypeNumber, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.actual, tt.expected, tt.op, tt.valueType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompare_UnknownOperator(t *testing.T) {
	_, err := Compare(1, 2, "~=", TypeNumber)
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestNormalizeOperator(t *testing.T) {
	for alias, want := range map[string]string{
		"==": OpEqual, " IS ": OpEqual, "!=": OpNotEqual, ">=": OpGreaterOrEqual,
		"<=": OpLessOrEqual, "Not Empty": OpNotEmpty, "starts with": OpStartsWith,
	} {
		got, ok := NormalizeOperator(alias)
		assert.True(t, ok, alias)
		assert.Equal(t, want, got, alias)
	}
	_, ok := NormalizeOperator("between")
	assert.False(t, ok)
}

func TestToFloat64(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float64", 2.5, 2.5, true},
		{"float32", float32(1.5), 1.5, true},
		{"int", 3, 3, true},
		{"int8", int8(-4), -4, true},
		{"int16", int16(300), 300, true},
		{"int32", int32(7), 7, true},
		{"int64", int64(9), 9, true},
		{"uint", uint(5), 5, true},
		{"uint8", uint8(255), 255, true},
		{"uint16", uint16(65535), 65535, true},
		{"uint32", uint32(10), 10, true},
		{"uint64", uint64(11), 11, true},
		{"numeric string", " 42 ", 42, true},
		{"text", "abc", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToFloat64(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in     any
		want   bool
		wantOK bool
	}{
		{true, true, true},
		{"Yes", true, true},
		{" 1 ", true, true},
		{"no", false, true},
		{"0", false, true},
		{2, true, true},
		{0.0, false, true},
		{"maybe", false, false},
		{nil, false, false},
	}
	for _, tt := range tests {
		got, ok := ParseBool(tt.in)
		assert.Equal(t, tt.wantOK, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "3", ToString(float64(3)))
	assert.Equal(t, "2.5", ToString(2.5))
	assert.Equal(t, "true", ToString(true))
	assert.Equal(t, `{"a":1}`, ToString(map[string]any{"a": 1}))
	assert.Equal(t, "7", ToString(7))
}

func lookupFrom(vals map[string]any) Lookup {
	return func(sel string) (any, bool) {
		v, ok := vals[sel]
		return v, ok
	}
}

func TestCase_Matches(t *testing.T) {
	lookup := lookupFrom(map[string]any{"start.x": 10, "start.name": "bob"})

	and := Case{Conditions: []Condition{
		{Selector: "start.x", Operator: ">", Value: 5, ValueType: TypeNumber},
		{Selector: "start.name", Operator: "=", Value: "alice"},
	}}
	ok, err := and.Matches(lookup)
	require.NoError(t, err)
	assert.False(t, ok)

	or := and
	or.LogicalOperator = "OR"
	ok, err = or.Matches(lookup)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Case{}.Matches(lookup)
	require.NoError(t, err)
	assert.True(t, ok, "a case without conditions matches")
}

func TestCase_ConditionErrorsAreFalse(t *testing.T) {
	c := Case{LogicalOperator: "or", Conditions: []Condition{
		{Selector: "", Operator: "="},
		{Selector: "a.b", Operator: "between"},
	}}
	ok, err := c.Matches(lookupFrom(nil))
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNoSelector)
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestFirstMatch(t *testing.T) {
	lookup := lookupFrom(map[string]any{"n.score": 80})
	cases := []Case{
		{ID: "high", Conditions: []Condition{{Selector: "n.score", Operator: "≥", Value: 90, ValueType: TypeNumber}}},
		{ID: "mid", Conditions: []Condition{{Selector: "n.score", Operator: "≥", Value: 50, ValueType: TypeNumber}}},
		{ID: "any", Conditions: []Condition{{Selector: "n.score", Operator: "not empty"}}},
	}

	idx, err := FirstMatch(cases, lookup)
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "first match wins, not best match")

	idx, err = FirstMatch(cases[:1], lookup)
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
}
