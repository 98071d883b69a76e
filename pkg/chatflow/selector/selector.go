// Package selector defines the dotted-path addressing language used to read
// values out of a variable pool.
//
// A selector is "prefix.key[.subkey...]". The prefix is either a node id or one
// of the namespace aliases env/environment, conv/conversation and sys/system.
// Remaining segments walk nested maps and lists. Bracket indices are accepted
// and normalized, so "a.items[2].name" and "a.items.2.name" are the same
// selector.
package selector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Namespace identifies which pool segment a selector addresses.
type Namespace int

const (
	// NamespaceNode addresses a node's output ports.
	NamespaceNode Namespace = iota
	// NamespaceEnvironment addresses environment variables.
	NamespaceEnvironment
	// NamespaceConversation addresses persisted conversation variables.
	NamespaceConversation
	// NamespaceSystem addresses system variables.
	NamespaceSystem
)

// String returns the canonical short alias for the namespace.
func (n Namespace) String() string {
	switch n {
	case NamespaceEnvironment:
		return "env"
	case NamespaceConversation:
		return "conv"
	case NamespaceSystem:
		return "sys"
	default:
		return "node"
	}
}

// Sentinel errors for selector parsing.
var (
	// ErrEmpty indicates an empty selector string.
	ErrEmpty = errors.New("empty selector")

	// ErrMalformed indicates a selector that is not prefix.key[.subkey...].
	ErrMalformed = errors.New("malformed selector")
)

// namespaceAliases maps every accepted prefix alias to its namespace.
var namespaceAliases = map[string]Namespace{
	"env":          NamespaceEnvironment,
	"environment":  NamespaceEnvironment,
	"conv":         NamespaceConversation,
	"conversation": NamespaceConversation,
	"sys":          NamespaceSystem,
	"system":       NamespaceSystem,
}

// IsVirtualNode reports whether id is one of the namespace aliases. Graphs may
// use these as pseudo-nodes in edges; they never execute.
func IsVirtualNode(id string) bool {
	_, ok := namespaceAliases[id]
	return ok
}

// Selector is a parsed, canonical selector. The zero value is invalid.
type Selector struct {
	prefix string
	path   []string
}

// Parse parses a raw selector string.
func Parse(raw string) (Selector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Selector{}, ErrEmpty
	}

	var segments []string
	for _, part := range strings.Split(raw, ".") {
		expanded, err := expandBrackets(part)
		if err != nil {
			return Selector{}, fmt.Errorf("%w: %q: %v", ErrMalformed, raw, err)
		}
		segments = append(segments, expanded...)
	}

	for _, seg := range segments {
		if seg == "" {
			return Selector{}, fmt.Errorf("%w: %q has an empty segment", ErrMalformed, raw)
		}
	}
	if len(segments) < 2 {
		return Selector{}, fmt.Errorf("%w: %q needs a prefix and a key", ErrMalformed, raw)
	}

	return Selector{prefix: segments[0], path: segments[1:]}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level literals.
func MustParse(raw string) Selector {
	s, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// New builds a selector from already split segments.
func New(prefix string, path ...string) Selector {
	return Selector{prefix: prefix, path: append([]string(nil), path...)}
}

// expandBrackets splits "items[2][0]" into "items", "2", "0".
func expandBrackets(part string) ([]string, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		if strings.ContainsRune(part, ']') {
			return nil, errors.New("unbalanced ']'")
		}
		return []string{strings.TrimSpace(part)}, nil
	}

	out := []string{strings.TrimSpace(part[:open])}
	if out[0] == "" {
		out = out[:0]
	}
	rest := part[open:]
	for rest != "" {
		if rest[0] != '[' {
			return nil, fmt.Errorf("unexpected %q after index", rest)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, errors.New("unbalanced '['")
		}
		idx := strings.TrimSpace(rest[1:end])
		if n, err := strconv.Atoi(idx); err != nil || n < 0 {
			return nil, fmt.Errorf("index %q is not a non-negative integer", idx)
		}
		out = append(out, idx)
		rest = rest[end+1:]
	}
	return out, nil
}

// IsZero reports whether s is the zero Selector.
func (s Selector) IsZero() bool {
	return s.prefix == ""
}

// Prefix returns the first segment (node id or namespace alias).
func (s Selector) Prefix() string {
	return s.prefix
}

// Path returns the segments after the prefix. The slice must not be modified.
func (s Selector) Path() []string {
	return s.path
}

// Key returns the first segment after the prefix.
func (s Selector) Key() string {
	if len(s.path) == 0 {
		return ""
	}
	return s.path[0]
}

// Rest returns the segments after the key.
func (s Selector) Rest() []string {
	if len(s.path) < 2 {
		return nil
	}
	return s.path[1:]
}

// Namespace returns the namespace the prefix selects.
func (s Selector) Namespace() Namespace {
	if ns, ok := namespaceAliases[s.prefix]; ok {
		return ns
	}
	return NamespaceNode
}

// NodeID returns the node id for node-namespace selectors, or "" otherwise.
func (s Selector) NodeID() string {
	if s.Namespace() != NamespaceNode {
		return ""
	}
	return s.prefix
}

// String returns the canonical dotted form.
func (s Selector) String() string {
	if s.IsZero() {
		return ""
	}
	return s.prefix + "." + strings.Join(s.path, ".")
}

// Equal reports whether two selectors address the same value.
func (s Selector) Equal(other Selector) bool {
	return s.String() == other.String()
}

// Canonical rewrites namespace aliases to their short form, so that
// "conversation.topic" and "conv.topic" compare equal.
func (s Selector) Canonical() Selector {
	if ns := s.Namespace(); ns != NamespaceNode {
		return Selector{prefix: ns.String(), path: s.path}
	}
	return s
}
