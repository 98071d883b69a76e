package chatflow

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
)

// plan is a validated graph with its nodes built and its schedule computed.
type plan struct {
	graph *Graph
	nodes map[string]node.Node
	// declared holds node ids in declaration order.
	declared []string
	index    map[string]int
	// order is a topological order, ties broken by declaration order.
	order []string
	// incoming counts real (non-virtual) inbound edges per node.
	incoming map[string]int
	// outgoing lists real outbound edges per node, in declaration order.
	outgoing map[string][]EdgeSpec
}

// Validate checks a graph against a registry without running it.
//
// Validation checks:
//  1. The graph has at least one node
//  2. Node ids are present, unique and not namespace aliases
//  3. Every node type is registered and every node's own Validate passes
//  4. Edges reference declared nodes (or namespace pseudo-nodes) and do not
//     loop back to their source
//  5. Mappings only reference declared nodes
//  6. The graph is acyclic
//  7. At least one node is terminal
//
// Every problem found is reported in one *GraphValidationError.
func Validate(g *Graph, reg *node.Registry) error {
	_, err := compile(g, reg, nil, slog.New(slog.DiscardHandler))
	return err
}

// compile validates g and builds its nodes. known lists extra ids mappings
// may reference, such as pre-seeded outputs of a parent run.
func compile(g *Graph, reg *node.Registry, known map[string]bool, logger *slog.Logger) (*plan, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if len(g.Nodes) == 0 {
		return nil, &GraphValidationError{Err: ErrEmptyGraph}
	}

	p := &plan{
		graph:    g,
		nodes:    make(map[string]node.Node, len(g.Nodes)),
		index:    make(map[string]int, len(g.Nodes)),
		incoming: make(map[string]int, len(g.Nodes)),
		outgoing: make(map[string][]EdgeSpec, len(g.Nodes)),
	}
	var errs []error

	// Nodes
	for i, spec := range g.Nodes {
		switch {
		case spec.ID == "":
			errs = append(errs, fmt.Errorf("%w: node at position %d has no id", ErrInvalidNode, i))
			continue
		case spec.Type == "":
			errs = append(errs, fmt.Errorf("%w: node %s has no type", ErrInvalidNode, spec.ID))
			continue
		case selector.IsVirtualNode(spec.ID):
			errs = append(errs, fmt.Errorf("%w: node id %q is a reserved namespace", ErrInvalidNode, spec.ID))
			continue
		}
		if _, dup := p.index[spec.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateNode, spec.ID))
			continue
		}
		p.index[spec.ID] = len(p.declared)
		p.declared = append(p.declared, spec.ID)
		p.incoming[spec.ID] = 0

		if reg == nil {
			errs = append(errs, &UnknownNodeTypeError{NodeID: spec.ID, Type: spec.Type})
			continue
		}
		n, err := reg.Create(spec.Spec())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := n.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", spec.ID, err))
		}
		errs = append(errs, unwiredInputs(n)...)
		p.nodes[spec.ID] = n
	}

	// Edges
	for _, e := range g.Edges {
		if e.Source == "" || e.Target == "" {
			errs = append(errs, fmt.Errorf("%w: %s needs a source and a target", ErrInvalidEdge, e.ID))
			continue
		}
		if e.Source == e.Target {
			errs = append(errs, fmt.Errorf("%w: %s on %s", ErrSelfLoop, e.ID, e.Source))
			continue
		}
		bad := false
		for _, end := range []string{e.Source, e.Target} {
			if _, ok := p.index[end]; !ok && !selector.IsVirtualNode(end) {
				errs = append(errs, fmt.Errorf("%w: edge %s references %s", ErrNodeNotFound, e.ID, end))
				bad = true
			}
		}
		if bad || e.virtual() {
			continue
		}
		p.incoming[e.Target]++
		p.outgoing[e.Source] = append(p.outgoing[e.Source], e)
	}

	// Mappings
	for _, spec := range g.Nodes {
		ports := make([]string, 0, len(spec.Mappings))
		for port := range spec.Mappings {
			ports = append(ports, port)
		}
		slices.Sort(ports)
		for _, port := range ports {
			m := spec.Mappings[port]
			if m.IsConstant() {
				continue
			}
			ref := m.Selector().NodeID()
			if ref == "" || known[ref] {
				continue
			}
			if _, ok := p.index[ref]; !ok {
				errs = append(errs, fmt.Errorf("%w: node %s maps %s from %s", ErrNodeNotFound, spec.ID, port, m.Selector()))
			}
		}
	}

	if len(errs) > 0 {
		return nil, &GraphValidationError{Err: errors.Join(errs...)}
	}

	order, rest := p.topological()
	if len(rest) > 0 {
		errs = append(errs, fmt.Errorf("%w: %v", ErrCycle, rest))
	}
	p.order = order

	terminal := false
	entries := 0
	for _, id := range p.declared {
		n := p.nodes[id]
		terminal = terminal || node.IsTerminal(n)
		if node.IsEntry(n) {
			entries++
		}
	}
	if !terminal {
		errs = append(errs, ErrNoTerminal)
	}

	if len(errs) > 0 {
		return nil, &GraphValidationError{Err: errors.Join(errs...)}
	}

	if entries != 1 {
		logger.Warn("graph should have exactly one entry node", slog.Int("entry_nodes", entries))
	}
	if isolated := p.isolated(); len(isolated) > 0 {
		logger.Warn("graph has isolated nodes", slog.Any("node_ids", isolated))
	}
	return p, nil
}

// unwiredInputs reports required input ports of n that are neither mapped
// nor defaulted.
func unwiredInputs(n node.Node) []error {
	var errs []error
	mappings := n.Mappings()
	for _, port := range n.Ports().Inputs {
		if !port.Required || port.Default != nil {
			continue
		}
		if _, ok := mappings[port.Name]; !ok {
			errs = append(errs, fmt.Errorf("%w: node %s does not map %s", ErrMissingInput, n.ID(), port.Name))
		}
	}
	return errs
}

// topological runs Kahn's algorithm. Among ready nodes the earliest declared
// goes first. Nodes left over sit on a cycle.
func (p *plan) topological() (order, rest []string) {
	remaining := make(map[string]int, len(p.incoming))
	for id, n := range p.incoming {
		remaining[id] = n
	}

	byIndex := func(a, b string) int { return p.index[a] - p.index[b] }
	var ready []string
	for _, id := range p.declared {
		if remaining[id] == 0 {
			ready = append(ready, id)
		}
	}

	order = make([]string, 0, len(p.declared))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, e := range p.outgoing[id] {
			remaining[e.Target]--
			if remaining[e.Target] == 0 {
				pos, _ := slices.BinarySearchFunc(ready, e.Target, byIndex)
				ready = slices.Insert(ready, pos, e.Target)
			}
		}
	}

	for _, id := range p.declared {
		if remaining[id] > 0 {
			rest = append(rest, id)
		}
	}
	return order, rest
}

// isolated returns nodes without any edge, when the graph has more than one
// node.
func (p *plan) isolated() []string {
	if len(p.declared) < 2 {
		return nil
	}
	touched := make(map[string]bool)
	for _, e := range p.graph.Edges {
		touched[e.Source] = true
		touched[e.Target] = true
	}
	var out []string
	for _, id := range p.declared {
		if !touched[id] {
			out = append(out, id)
		}
	}
	return out
}
