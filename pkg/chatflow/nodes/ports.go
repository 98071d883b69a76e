package nodes

import (
	"strings"

	"github.com/randalmurphal/chatflow/pkg/chatflow/config"
	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
)

// parsePorts reads port declarations of the form
// {name, type, required, description, default_value}. Entries without a
// name are skipped; unknown types become KindAny.
func parsePorts(defs []config.Config) []node.Port {
	var ports []node.Port
	for _, d := range defs {
		name := strings.TrimSpace(d.String("name", ""))
		if name == "" {
			continue
		}
		ports = append(ports, node.Port{
			Name:        name,
			Kind:        parseKind(d.String("type", "")),
			Required:    d.Bool("required", false),
			Description: d.String("description", ""),
			Default:     d.Any("default_value", nil),
		})
	}
	return ports
}

func parseKind(s string) node.Kind {
	switch k := node.Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case node.KindString, node.KindNumber, node.KindBoolean, node.KindArray, node.KindObject, node.KindFile:
		return k
	case "integer", "float":
		return node.KindNumber
	case "bool":
		return node.KindBoolean
	case "list":
		return node.KindArray
	}
	return node.KindAny
}

// declaredPorts reads ports.<side> and falls back to <fallback>.
func declaredPorts(cfg config.Config, side, fallback string) []node.Port {
	if ports := parsePorts(cfg.Map("ports").Objects(side)); len(ports) > 0 {
		return ports
	}
	return parsePorts(cfg.Objects(fallback))
}
