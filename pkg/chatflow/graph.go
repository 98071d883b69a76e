package chatflow

import (
	"maps"

	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
)

// Graph is an immutable workflow definition. Node order is significant:
// nodes that become ready together run in declaration order.
//
// Build graphs with ParseGraphJSON, ParseGraphYAML or LoadGraphFile, or as
// literals in code:
//
//	g := &chatflow.Graph{
//	    Nodes: []chatflow.NodeSpec{
//	        {ID: "start", Type: "start"},
//	        {ID: "end", Type: "end", Mappings: map[string]selector.Mapping{
//	            "response": selector.FromSelector(selector.MustParse("start.query")),
//	        }},
//	    },
//	    Edges: []chatflow.EdgeSpec{{ID: "e1", Source: "start", Target: "end"}},
//	}
type Graph struct {
	Nodes []NodeSpec
	Edges []EdgeSpec
	// Environment seeds env.* variables.
	Environment map[string]any
	// Conversation holds default conv.* variables. Stored values for the
	// session override them.
	Conversation map[string]any
}

// NodeSpec declares one node.
type NodeSpec struct {
	ID   string
	Type string
	// Data is the node's configuration.
	Data map[string]any
	// Mappings wire input ports to selectors or constants.
	Mappings map[string]selector.Mapping
}

// EdgeSpec connects two nodes. Source or Target may be a namespace alias
// (env, conv, sys); such edges document data flow but never gate execution.
type EdgeSpec struct {
	ID         string
	Source     string
	Target     string
	SourcePort string
	TargetPort string
}

// Node returns the declaration with the given id.
func (g *Graph) Node(id string) (NodeSpec, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSpec{}, false
}

// Spec converts the declaration into the form node factories receive.
func (n NodeSpec) Spec() node.Spec {
	return node.Spec{
		ID:       n.ID,
		Type:     n.Type,
		Data:     n.Data,
		Mappings: maps.Clone(n.Mappings),
	}
}

// virtual reports whether the edge touches a namespace pseudo-node.
func (e EdgeSpec) virtual() bool {
	return selector.IsVirtualNode(e.Source) || selector.IsVirtualNode(e.Target)
}
