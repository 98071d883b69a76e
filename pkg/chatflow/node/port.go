package node

// Kind is the declared value kind of a port.
type Kind string

// Port kinds.
const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindFile    Kind = "file"
	KindAny     Kind = "any"
)

// Port describes one input or output of a node.
type Port struct {
	Name        string
	Kind        Kind
	Required    bool
	Description string
	// Default is used when an input is not mapped. Nil means no default.
	Default any
}

// PortSchema lists a node's ports.
type PortSchema struct {
	Inputs  []Port
	Outputs []Port
}

// Input returns the input port with the given name.
func (s PortSchema) Input(name string) (Port, bool) {
	for _, p := range s.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// Output returns the output port with the given name.
func (s PortSchema) Output(name string) (Port, bool) {
	for _, p := range s.Outputs {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// ZeroValue returns the empty value for a kind, as produced by clearing a
// variable.
func ZeroValue(k Kind) any {
	switch k {
	case KindString:
		return ""
	case KindNumber:
		return float64(0)
	case KindBoolean:
		return false
	case KindArray:
		return []any{}
	case KindObject:
		return map[string]any{}
	}
	return nil
}

// KindOf infers the kind of a runtime value.
func KindOf(v any) Kind {
	switch v.(type) {
	case string:
		return KindString
	case bool:
		return KindBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return KindNumber
	case []any, []string, []float64, []int, []map[string]any:
		return KindArray
	case map[string]any, map[string]string:
		return KindObject
	}
	return KindAny
}
