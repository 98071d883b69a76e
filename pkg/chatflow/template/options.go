package template

import (
	"log/slog"

	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
)

// Option configures a Renderer.
type Option func(*Renderer)

// WithAllowedSelectors restricts rendering to the given selectors (and paths
// nested below them). Any reference outside the list fails the whole render,
// even when the value could be resolved. Unparsable entries are ignored.
//
// Passing the option with an empty list allows nothing.
//
// Example:
//
//	r := NewRenderer(WithAllowedSelectors("llm.response", "conv.topic"))
func WithAllowedSelectors(selectors ...string) Option {
	return func(r *Renderer) {
		r.restricted = true
		for _, raw := range selectors {
			sel, err := selector.Parse(raw)
			if err != nil {
				continue
			}
			r.allowed = append(r.allowed, sel.Canonical())
		}
	}
}

// WithMaxLength sets the maximum template length in bytes.
//
// Default: 20 KiB
func WithMaxLength(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.maxLength = n
		}
	}
}

// WithMaxVariables sets the maximum number of distinct selectors.
//
// Default: 100
func WithMaxVariables(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.maxVariables = n
		}
	}
}

// WithLogger sets the logger for render diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}
