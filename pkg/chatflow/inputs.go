package chatflow

import (
	"fmt"
	"slices"

	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/pool"
)

// gatherInputs resolves a node's mapped ports through the pool.
//
// Constants are used as is. A mapped selector that resolves to nothing falls
// back to the port's default; without one the port is omitted, or the node
// fails with ErrMissingInput if the port is required. Required ports that
// are not mapped at all must have a default.
func gatherInputs(n node.Node, p *pool.Pool) (node.Inputs, error) {
	ports := n.Ports()
	mappings := n.Mappings()
	in := make(node.Inputs, len(mappings))

	names := make([]string, 0, len(mappings))
	for name := range mappings {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		m := mappings[name]
		if m.IsConstant() {
			in[name] = m.Value()
			continue
		}
		if v, ok := p.Resolve(m.Selector()); ok {
			in[name] = v
			continue
		}
		port, declared := ports.Input(name)
		switch {
		case declared && port.Default != nil:
			in[name] = port.Default
		case declared && port.Required:
			return in, fmt.Errorf("%w: %s (mapped from %s)", ErrMissingInput, name, m.Selector())
		}
	}

	for _, port := range ports.Inputs {
		if in.Has(port.Name) {
			continue
		}
		if _, mapped := mappings[port.Name]; mapped {
			continue
		}
		switch {
		case port.Default != nil:
			in[port.Name] = port.Default
		case port.Required:
			return in, fmt.Errorf("%w: %s is not mapped", ErrMissingInput, port.Name)
		}
	}
	return in, nil
}
