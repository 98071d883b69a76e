package expr

import (
	"errors"
	"fmt"
	"strings"
)

// Canonical comparison operators.
const (
	OpEqual          = "="
	OpNotEqual       = "≠"
	OpGreater        = ">"
	OpLess           = "<"
	OpGreaterOrEqual = "≥"
	OpLessOrEqual    = "≤"
	OpContains       = "contains"
	OpNotContains    = "not contains"
	OpStartsWith     = "start with"
	OpEndsWith       = "end with"
	OpEmpty          = "empty"
	OpNotEmpty       = "not empty"
)

// ErrUnknownOperator indicates an operator outside the supported set.
var ErrUnknownOperator = errors.New("unknown comparison operator")

var operatorAliases = map[string]string{
	"=":            OpEqual,
	"==":           OpEqual,
	"is":           OpEqual,
	"≠":            OpNotEqual,
	"!=":           OpNotEqual,
	"is not":       OpNotEqual,
	">":            OpGreater,
	"<":            OpLess,
	"≥":            OpGreaterOrEqual,
	">=":           OpGreaterOrEqual,
	"≤":            OpLessOrEqual,
	"<=":           OpLessOrEqual,
	"contains":     OpContains,
	"not contains": OpNotContains,
	"start with":   OpStartsWith,
	"starts with":  OpStartsWith,
	"end with":     OpEndsWith,
	"ends with":    OpEndsWith,
	"empty":        OpEmpty,
	"is empty":     OpEmpty,
	"not empty":    OpNotEmpty,
	"is not empty": OpNotEmpty,
}

// NormalizeOperator maps an operator or one of its aliases to the canonical
// form.
func NormalizeOperator(op string) (string, bool) {
	canon, ok := operatorAliases[strings.ToLower(strings.TrimSpace(op))]
	return canon, ok
}

// Compare evaluates "actual op expected" after casting both sides to
// valueType. A failed cast makes the comparison false, not an error; only an
// unknown operator is an error.
func Compare(actual, expected any, op, valueType string) (bool, error) {
	canon, ok := NormalizeOperator(op)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}

	switch canon {
	case OpEmpty:
		return IsEmpty(actual), nil
	case OpNotEmpty:
		return !IsEmpty(actual), nil
	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		if actual == nil {
			return canon == OpNotContains, nil
		}
		return compareStrings(ToString(actual), ToString(expected), canon), nil
	}

	left, ok := Cast(actual, valueType)
	if !ok {
		return false, nil
	}
	right, ok := Cast(expected, valueType)
	if !ok {
		return false, nil
	}

	switch l := left.(type) {
	case float64:
		return compareOrdered(l, right.(float64), canon), nil
	case bool:
		return compareOrdered(boolRank(l), boolRank(right.(bool)), canon), nil
	default:
		return compareStrings(left.(string), right.(string), canon), nil
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

type ordered interface {
	~int | ~float64 | ~string
}

func compareOrdered[T ordered](l, r T, op string) bool {
	switch op {
	case OpEqual:
		return l == r
	case OpNotEqual:
		return l != r
	case OpGreater:
		return l > r
	case OpLess:
		return l < r
	case OpGreaterOrEqual:
		return l >= r
	case OpLessOrEqual:
		return l <= r
	}
	return false
}

func compareStrings(l, r, op string) bool {
	switch op {
	case OpContains:
		return strings.Contains(strings.ToLower(l), strings.ToLower(r))
	case OpNotContains:
		return !strings.Contains(strings.ToLower(l), strings.ToLower(r))
	case OpStartsWith:
		return strings.HasPrefix(l, r)
	case OpEndsWith:
		return strings.HasSuffix(l, r)
	}
	return compareOrdered(l, r, op)
}
