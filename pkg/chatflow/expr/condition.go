package expr

import (
	"errors"
	"fmt"
	"strings"
)

// Logical operators joining a case's conditions.
const (
	LogicalAnd = "and"
	LogicalOr  = "or"
)

// ErrNoSelector indicates a condition without a variable selector.
var ErrNoSelector = errors.New("condition has no variable selector")

// Lookup resolves a selector to a value.
type Lookup func(selector string) (any, bool)

// Condition compares the value at Selector against Value.
type Condition struct {
	Selector  string
	Operator  string
	Value     any
	ValueType string
}

// Evaluate resolves the condition's selector and compares it. A missing
// selector or unknown operator yields false together with an error the caller
// may log; an absent value is compared as nil.
func (c Condition) Evaluate(lookup Lookup) (bool, error) {
	if strings.TrimSpace(c.Selector) == "" {
		return false, ErrNoSelector
	}
	actual, _ := lookup(c.Selector)
	ok, err := Compare(actual, c.Value, c.Operator, c.ValueType)
	if err != nil {
		return false, fmt.Errorf("condition on %s: %w", c.Selector, err)
	}
	return ok, nil
}

// Case is one branch: conditions joined by a logical operator.
type Case struct {
	ID              string
	LogicalOperator string
	Conditions      []Condition
}

// Matches reports whether the case holds. A case without conditions always
// matches. Errors from individual conditions are joined and returned
// alongside the result; the failing conditions count as false.
func (c Case) Matches(lookup Lookup) (bool, error) {
	if len(c.Conditions) == 0 {
		return true, nil
	}

	or := strings.EqualFold(strings.TrimSpace(c.LogicalOperator), LogicalOr)
	var errs []error
	for _, cond := range c.Conditions {
		ok, err := cond.Evaluate(lookup)
		if err != nil {
			errs = append(errs, err)
		}
		if or && ok {
			return true, errors.Join(errs...)
		}
		if !or && !ok {
			return false, errors.Join(errs...)
		}
	}
	return !or, errors.Join(errs...)
}

// FirstMatch returns the index of the first matching case, or -1 when none
// match. Evaluation stops at the first match.
func FirstMatch(cases []Case, lookup Lookup) (int, error) {
	var errs []error
	for i, c := range cases {
		ok, err := c.Matches(lookup)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			return i, errors.Join(errs...)
		}
	}
	return -1, errors.Join(errs...)
}
