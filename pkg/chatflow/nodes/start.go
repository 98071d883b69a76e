package nodes

import (
	"fmt"
	"maps"
	"slices"

	"github.com/randalmurphal/chatflow/pkg/chatflow/config"
	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/pool"
)

// Port binding sources for the start node.
const (
	BindUserMessage = "user_message"
	BindSessionID   = "session_id"
	BindLiteral     = "literal"
)

type binding struct {
	source string
	value  any
}

// Start seeds a run from the request. Its default outputs are query (the
// user message) and session_id.
//
// Data:
//
//	ports.outputs / output_schema  output port declarations
//	port_bindings                  {port: {type, value}} or [{port, source, value}]
//
// When a parent run pre-seeded this node's outputs they are returned as
// they are, with session_id filled in if missing.
type Start struct {
	node.Base
	ports    []node.Port
	bindings map[string]binding
}

var (
	_ node.Node  = (*Start)(nil)
	_ node.Entry = (*Start)(nil)
)

// NewStart is the start node factory.
func NewStart(spec node.Spec) (node.Node, error) {
	s := &Start{Base: node.NewBase(spec), bindings: parseBindings(spec.Data["port_bindings"])}
	s.ports = declaredPorts(s.Config(), "outputs", "output_schema")
	if len(s.ports) == 0 {
		s.ports = []node.Port{
			{Name: "query", Kind: node.KindString, Description: "the user message"},
			{Name: "session_id", Kind: node.KindString},
		}
	}
	for _, name := range slices.Sorted(maps.Keys(s.bindings)) {
		if !slices.ContainsFunc(s.ports, func(p node.Port) bool { return p.Name == name }) {
			s.ports = append(s.ports, node.Port{Name: name, Kind: node.KindAny})
		}
	}
	return s, nil
}

func parseBindings(raw any) map[string]binding {
	out := make(map[string]binding)
	switch v := raw.(type) {
	case map[string]any:
		for port, b := range v {
			c, ok := b.(map[string]any)
			if !ok {
				continue
			}
			cfg := config.New(c)
			out[port] = binding{source: cfg.String("type", cfg.String("source", "")), value: cfg.Any("value", nil)}
		}
	case []any:
		for _, item := range v {
			c, ok := item.(map[string]any)
			if !ok {
				continue
			}
			cfg := config.New(c)
			if port := cfg.String("port", ""); port != "" {
				out[port] = binding{source: cfg.String("source", cfg.String("type", "")), value: cfg.Any("value", nil)}
			}
		}
	}
	return out
}

// IsEntry implements node.Entry.
func (s *Start) IsEntry() bool { return true }

// Ports implements node.Node.
func (s *Start) Ports() node.PortSchema {
	return node.PortSchema{Outputs: s.ports}
}

// Validate rejects input mappings.
func (s *Start) Validate() error {
	if len(s.Mappings()) > 0 {
		return invalidConfig("start node cannot have input mappings")
	}
	return nil
}

// Execute implements node.Node.
func (s *Start) Execute(ctx node.Context, _ node.Inputs) (node.Outputs, error) {
	sessionID := systemString(ctx.Pool(), pool.SysSessionID)

	if seeded := ctx.Pool().Outputs(s.ID()); seeded != nil {
		out := node.Outputs(seeded)
		if _, ok := out["session_id"]; !ok {
			out["session_id"] = sessionID
		}
		ctx.Logger().Debug("start node using pre-seeded outputs", "ports", len(out))
		return out, nil
	}

	message := systemString(ctx.Pool(), pool.SysUserMessage)
	if message == "" {
		return nil, ErrNoUserMessage
	}

	out := make(node.Outputs, len(s.ports))
	for _, p := range s.ports {
		var v any
		if b, ok := s.bindings[p.Name]; ok {
			v = b.resolve(message, sessionID)
		}
		if v == nil {
			switch p.Name {
			case "query":
				v = message
			case "session_id":
				v = sessionID
			}
		}
		out[p.Name] = v
	}
	return out, nil
}

func (b binding) resolve(message, sessionID string) any {
	switch b.source {
	case BindUserMessage:
		return message
	case BindSessionID:
		return sessionID
	}
	return b.value
}

func systemString(p *pool.Pool, key string) string {
	v, ok := p.System(key)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
