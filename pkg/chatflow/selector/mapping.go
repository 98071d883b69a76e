package selector

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Mapping is the canonical wiring of one input port: either a selector into
// the pool or a constant value.
type Mapping struct {
	selector Selector
	constant any
	isConst  bool
}

// FromSelector wires a port to a pool value.
func FromSelector(s Selector) Mapping {
	return Mapping{selector: s}
}

// Constant wires a port to a fixed value.
func Constant(v any) Mapping {
	return Mapping{constant: v, isConst: true}
}

// IsConstant reports whether the mapping is a constant.
func (m Mapping) IsConstant() bool {
	return m.isConst
}

// Selector returns the wired selector. It is the zero Selector for constants.
func (m Mapping) Selector() Selector {
	return m.selector
}

// Value returns the constant value. It is nil for selector mappings.
func (m Mapping) Value() any {
	return m.constant
}

// String renders the mapping for logs.
func (m Mapping) String() string {
	if m.isConst {
		return fmt.Sprintf("const(%v)", m.constant)
	}
	return m.selector.String()
}

// MarshalJSON encodes selectors as their dotted string and constants as
// {"value": ...}.
func (m Mapping) MarshalJSON() ([]byte, error) {
	if m.isConst {
		return json.Marshal(map[string]any{"value": m.constant})
	}
	return json.Marshal(m.selector.String())
}

// UnmarshalJSON accepts every raw shape ParseMapping accepts.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseMapping(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMapping normalizes one raw port wiring as found in a graph document.
//
// Accepted shapes:
//
//	"node.port"                               selector
//	{"variable": "node.port"}                 selector
//	{"source": {"variable": "node.port"}}     selector
//	{"value_selector": ["node", "port"]}      selector
//	["node", "port"]                          selector
//	{"value": x} or {"constant": x}           constant
//	42, true, nil                             constant
func ParseMapping(raw any) (Mapping, error) {
	switch v := raw.(type) {
	case Mapping:
		return v, nil
	case Selector:
		return FromSelector(v), nil
	case string:
		s, err := Parse(v)
		if err != nil {
			return Mapping{}, err
		}
		return FromSelector(s), nil
	case []any:
		return mappingFromSegments(v)
	case []string:
		segs := make([]any, len(v))
		for i, s := range v {
			segs[i] = s
		}
		return mappingFromSegments(segs)
	case map[string]any:
		return mappingFromObject(v)
	default:
		return Constant(v), nil
	}
}

func mappingFromObject(obj map[string]any) (Mapping, error) {
	if variable, ok := obj["variable"]; ok {
		return ParseMapping(variable)
	}
	if source, ok := obj["source"].(map[string]any); ok {
		if variable, ok := source["variable"]; ok {
			return ParseMapping(variable)
		}
		return Mapping{}, fmt.Errorf("%w: source without variable", ErrMalformed)
	}
	if segs, ok := obj["value_selector"]; ok {
		return ParseMapping(segs)
	}
	if v, ok := obj["value"]; ok {
		return Constant(v), nil
	}
	if v, ok := obj["constant"]; ok {
		return Constant(v), nil
	}
	return Mapping{}, fmt.Errorf("%w: unrecognized mapping object with keys %v", ErrMalformed, keysOf(obj))
}

func mappingFromSegments(segs []any) (Mapping, error) {
	parts := make([]string, 0, len(segs))
	for _, seg := range segs {
		switch s := seg.(type) {
		case string:
			parts = append(parts, s)
		case int:
			parts = append(parts, fmt.Sprint(s))
		case float64:
			parts = append(parts, fmt.Sprint(int(s)))
		default:
			return Mapping{}, fmt.Errorf("%w: segment %v is not a string", ErrMalformed, seg)
		}
	}
	s, err := Parse(strings.Join(parts, "."))
	if err != nil {
		return Mapping{}, err
	}
	return FromSelector(s), nil
}

// ParseMappings normalizes a whole port-wiring table. Every failing port is
// reported.
func ParseMappings(raw map[string]any) (map[string]Mapping, error) {
	out := make(map[string]Mapping, len(raw))
	var bad []string
	for port, v := range raw {
		m, err := ParseMapping(v)
		if err != nil {
			bad = append(bad, fmt.Sprintf("%s: %v", port, err))
			continue
		}
		out[port] = m
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, fmt.Errorf("invalid variable mappings: %s", strings.Join(bad, "; "))
	}
	return out, nil
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
