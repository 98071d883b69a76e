package template

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by RenderError.
var (
	ErrEmptyTemplate      = errors.New("template is empty")
	ErrTemplateTooLong    = errors.New("template exceeds maximum length")
	ErrTooManyVariables   = errors.New("template references too many variables")
	ErrInvalidSelector    = errors.New("invalid selector")
	ErrSelectorNotAllowed = errors.New("selector is not connected to this node")
	ErrVariableNotFound   = errors.New("variable not found")
)

// RenderError reports why a template could not be rendered.
type RenderError struct {
	// Selector is the offending reference, if any.
	Selector string
	// Detail adds context such as limits that were exceeded.
	Detail string
	// Err is one of the sentinel causes.
	Err error
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	msg := "render template: " + e.Err.Error()
	if e.Selector != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Selector)
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap returns the sentinel cause for errors.Is support.
func (e *RenderError) Unwrap() error {
	return e.Err
}
