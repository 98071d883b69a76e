package chatflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
)

// Document shapes of a graph definition.
type rawGraph struct {
	Nodes        []rawNode      `json:"nodes" yaml:"nodes"`
	Edges        []rawEdge      `json:"edges" yaml:"edges"`
	Environment  map[string]any `json:"environment_variables,omitempty" yaml:"environment_variables,omitempty"`
	Conversation map[string]any `json:"conversation_variables,omitempty" yaml:"conversation_variables,omitempty"`
}

type rawNode struct {
	ID       string         `json:"id" yaml:"id"`
	Type     string         `json:"type" yaml:"type"`
	Data     map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
	Mappings map[string]any `json:"variable_mappings,omitempty" yaml:"variable_mappings,omitempty"`
}

type rawEdge struct {
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourcePort   string `json:"source_port,omitempty" yaml:"source_port,omitempty"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	TargetPort   string `json:"target_port,omitempty" yaml:"target_port,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty" yaml:"targetHandle,omitempty"`
}

// ParseGraphJSON decodes a graph document.
//
// Edges accept source_port or sourceHandle and target_port or targetHandle.
// Node mappings are read from variable_mappings, falling back to
// data.variable_mappings, and are normalized once here.
func ParseGraphJSON(data []byte) (*Graph, error) {
	var raw rawGraph
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse graph json: %w", err)
	}
	return raw.build()
}

// ParseGraphYAML decodes a graph document written in YAML.
func ParseGraphYAML(data []byte) (*Graph, error) {
	var raw rawGraph
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse graph yaml: %w", err)
	}
	return raw.build()
}

// LoadGraphFile reads a graph, choosing the format by extension.
// Supported extensions: .json, .yaml, .yml
func LoadGraphFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return ParseGraphJSON(data)
	case ".yaml", ".yml":
		return ParseGraphYAML(data)
	default:
		return nil, fmt.Errorf("unsupported graph file extension: %s", ext)
	}
}

// GraphFromMap converts an already decoded document, such as a graph nested
// in another node's configuration.
func GraphFromMap(m map[string]any) (*Graph, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode graph: %w", err)
	}
	return ParseGraphJSON(data)
}

func (r rawGraph) build() (*Graph, error) {
	g := &Graph{
		Nodes:        make([]NodeSpec, 0, len(r.Nodes)),
		Edges:        make([]EdgeSpec, 0, len(r.Edges)),
		Environment:  r.Environment,
		Conversation: r.Conversation,
	}

	for _, n := range r.Nodes {
		rawMappings := n.Mappings
		if rawMappings == nil {
			if nested, ok := n.Data["variable_mappings"].(map[string]any); ok {
				rawMappings = nested
			}
		}
		mappings, err := selector.ParseMappings(rawMappings)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		g.Nodes = append(g.Nodes, NodeSpec{
			ID:       n.ID,
			Type:     n.Type,
			Data:     n.Data,
			Mappings: mappings,
		})
	}

	for i, e := range r.Edges {
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("edge-%d", i)
		}
		g.Edges = append(g.Edges, EdgeSpec{
			ID:         id,
			Source:     e.Source,
			Target:     e.Target,
			SourcePort: firstNonEmpty(e.SourcePort, e.SourceHandle),
			TargetPort: firstNonEmpty(e.TargetPort, e.TargetHandle),
		})
	}
	return g, nil
}

// Document returns the graph in its document form, for audit snapshots.
func (g *Graph) Document() map[string]any {
	nodes := make([]any, len(g.Nodes))
	for i, n := range g.Nodes {
		mappings := make(map[string]any, len(n.Mappings))
		for port, m := range n.Mappings {
			if m.IsConstant() {
				mappings[port] = map[string]any{"value": m.Value()}
			} else {
				mappings[port] = m.Selector().String()
			}
		}
		nodes[i] = map[string]any{
			"id":                n.ID,
			"type":              n.Type,
			"data":              n.Data,
			"variable_mappings": mappings,
		}
	}

	edges := make([]any, len(g.Edges))
	for i, e := range g.Edges {
		edges[i] = map[string]any{
			"id":          e.ID,
			"source":      e.Source,
			"target":      e.Target,
			"source_port": e.SourcePort,
			"target_port": e.TargetPort,
		}
	}

	return map[string]any{
		"nodes":                  nodes,
		"edges":                  edges,
		"environment_variables":  g.Environment,
		"conversation_variables": g.Conversation,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
