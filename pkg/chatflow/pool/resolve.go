package pool

import (
	"log/slog"
	"reflect"
	"strconv"

	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
)

// Resolve looks up the value a selector addresses. Missing keys, out-of-range
// indices and non-traversable values yield (nil, false) and a warning log;
// Resolve never fails.
func (p *Pool) Resolve(sel selector.Selector) (any, bool) {
	if sel.IsZero() {
		p.logger.Warn("selector resolution failed", slog.String("reason", "empty selector"))
		return nil, false
	}

	var root any
	var ok bool
	key := sel.Key()
	switch sel.Namespace() {
	case selector.NamespaceEnvironment:
		root, ok = p.environment[key]
	case selector.NamespaceConversation:
		root, ok = p.conversation[key]
	case selector.NamespaceSystem:
		root, ok = p.system[key]
	default:
		root, ok = p.Output(sel.Prefix(), key)
	}
	if !ok {
		p.warnAbsent(sel, key, "key not found")
		return nil, false
	}

	current := root
	for _, seg := range sel.Rest() {
		next, ok := step(current, seg)
		if !ok {
			p.warnAbsent(sel, seg, "segment not traversable")
			return nil, false
		}
		current = next
	}
	return current, true
}

// ResolveString parses raw and resolves it. Parse failures are treated as
// absent.
func (p *Pool) ResolveString(raw string) (any, bool) {
	sel, err := selector.Parse(raw)
	if err != nil {
		p.logger.Warn("selector resolution failed",
			slog.String("selector", raw),
			slog.String("reason", err.Error()),
		)
		return nil, false
	}
	return p.Resolve(sel)
}

// Resolves reports whether a selector addresses a present value without
// logging a warning when it does not.
func (p *Pool) Resolves(sel selector.Selector) bool {
	quiet := &Pool{
		outputs:      p.outputs,
		environment:  p.environment,
		conversation: p.conversation,
		system:       p.system,
		logger:       slog.New(slog.DiscardHandler),
	}
	_, ok := quiet.Resolve(sel)
	return ok
}

func (p *Pool) warnAbsent(sel selector.Selector, segment, reason string) {
	p.logger.Warn("selector resolution failed",
		slog.String("selector", sel.String()),
		slog.String("segment", segment),
		slog.String("reason", reason),
	)
}

// step walks one path segment into a map or list.
func step(v any, seg string) (any, bool) {
	switch c := v.(type) {
	case map[string]any:
		next, ok := c[seg]
		return next, ok
	case map[string]string:
		next, ok := c[seg]
		return next, ok
	case []any:
		return index(c, seg)
	case []string:
		return index(c, seg)
	case []map[string]any:
		return index(c, seg)
	case []float64:
		return index(c, seg)
	case []int:
		return index(c, seg)
	}
	return reflectStep(v, seg)
}

func index[T any](list []T, seg string) (any, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= len(list) {
		return nil, false
	}
	return list[i], true
}

// reflectStep handles typed maps, slices and exported struct fields that
// nodes may store without converting to generic containers.
func reflectStep(v any, seg string) (any, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := rv.MapIndex(reflect.ValueOf(seg).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	case reflect.Struct:
		field := rv.FieldByName(seg)
		if !field.IsValid() || !field.CanInterface() {
			return nil, false
		}
		return field.Interface(), true
	}
	return nil, false
}
