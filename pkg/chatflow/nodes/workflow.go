package nodes

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/randalmurphal/chatflow/pkg/chatflow"
	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/pool"
	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
	"github.com/randalmurphal/chatflow/pkg/chatflow/service"
)

// TemplateInput is the pseudo-node id under which a nested run sees the
// workflow node's inputs, as in {{template_input.topic}}.
const TemplateInput = "template_input"

// Workflow runs another graph to completion as a single step.
//
// Data:
//
//	graph            inline graph document
//	workflow_id      id looked up in the chatflow.GraphSource registered
//	                 under service.Workflows (template_id is accepted too)
//	input_schema     input port declarations with optional default_value
//	output_schema    extra output port declarations
//	output_mappings  {port: selector into the child run}
//
// The child run shares the node registry and service container, runs one
// level deeper and gets its own pool. The child's entry node is pre-seeded
// with this node's inputs plus session_id, and every input is also readable
// as template_input.<port>. Outputs are status, output (the child response)
// and one port per output mapping.
type Workflow struct {
	node.Base
	inputs   []node.Port
	outputs  []node.Port
	mappings map[string]selector.Selector
}

var _ node.Node = (*Workflow)(nil)

// NewWorkflow is the workflow node factory.
func NewWorkflow(spec node.Spec) (node.Node, error) {
	w := &Workflow{Base: node.NewBase(spec), mappings: make(map[string]selector.Selector)}
	cfg := w.Config()

	w.inputs = declaredPorts(cfg, "inputs", "input_schema")
	if len(w.inputs) == 0 {
		w.inputs = []node.Port{{Name: "input", Kind: node.KindAny}}
	}

	w.outputs = []node.Port{
		{Name: "status", Kind: node.KindString},
		{Name: "output", Kind: node.KindString},
	}
	for _, p := range declaredPorts(cfg, "outputs", "output_schema") {
		if !slices.ContainsFunc(w.outputs, func(o node.Port) bool { return o.Name == p.Name }) {
			w.outputs = append(w.outputs, p)
		}
	}

	raw := cfg.Map("output_mappings").Raw()
	for _, port := range slices.Sorted(maps.Keys(raw)) {
		s, ok := raw[port].(string)
		if !ok {
			return nil, invalidConfig("output mapping %s must be a selector string", port)
		}
		sel, err := selector.Parse(s)
		if err != nil {
			return nil, invalidConfig("output mapping %s: %v", port, err)
		}
		w.mappings[port] = sel
		if !slices.ContainsFunc(w.outputs, func(o node.Port) bool { return o.Name == port }) {
			w.outputs = append(w.outputs, node.Port{Name: port, Kind: node.KindAny})
		}
	}
	return w, nil
}

func (w *Workflow) workflowID() string {
	return strings.TrimSpace(w.Config().String("workflow_id", w.Config().String("template_id", "")))
}

// Ports implements node.Node.
func (w *Workflow) Ports() node.PortSchema {
	return node.PortSchema{Inputs: w.inputs, Outputs: w.outputs}
}

// Validate requires a graph source and parses an inline graph.
func (w *Workflow) Validate() error {
	if g, ok := w.Config().Raw()["graph"].(map[string]any); ok {
		if _, err := chatflow.GraphFromMap(g); err != nil {
			return invalidConfig("inline graph: %v", err)
		}
		return nil
	}
	if w.workflowID() == "" {
		return ErrNoWorkflow
	}
	return nil
}

func (w *Workflow) graph(ctx node.Context) (*chatflow.Graph, error) {
	if g, ok := w.Config().Raw()["graph"].(map[string]any); ok {
		return chatflow.GraphFromMap(g)
	}
	id := w.workflowID()
	if id == "" {
		return nil, ErrNoWorkflow
	}
	src, err := service.Lookup[chatflow.GraphSource](ctx.Services(), service.Workflows)
	if err != nil {
		return nil, err
	}
	return src.Graph(ctx, id)
}

// Execute implements node.Node.
func (w *Workflow) Execute(ctx node.Context, in node.Inputs) (node.Outputs, error) {
	g, err := w.graph(ctx)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}

	sessionID := systemString(ctx.Pool(), pool.SysSessionID)
	if sessionID == "" {
		sessionID = "nested_" + w.ID()
	}

	inputs := map[string]any(maps.Clone(in))
	if inputs == nil {
		inputs = map[string]any{}
	}
	seeded := map[string]map[string]any{TemplateInput: inputs}
	if entry := entryNode(g, ctx.Registry()); entry != "" {
		seed := maps.Clone(inputs)
		if _, ok := seed["session_id"]; !ok {
			seed["session_id"] = sessionID
		}
		seeded[entry] = seed
	}

	child := chatflow.NewExecutor(ctx.Registry(),
		chatflow.WithServices(ctx.Services()),
		chatflow.WithLogger(ctx.Logger()),
		chatflow.WithDepth(ctx.Depth()+1),
		chatflow.WithMaxDepth(ctx.MaxDepth()),
	)
	defer child.Close()

	ctx.Logger().Info("nested workflow starting", "depth", ctx.Depth()+1, "nodes", len(g.Nodes))
	res, err := child.Execute(ctx, g, chatflow.Request{
		SessionID:      sessionID,
		UserMessage:    systemString(ctx.Pool(), pool.SysUserMessage),
		BotID:          systemString(ctx.Pool(), pool.SysBotID),
		InitialOutputs: seeded,
	})
	if err != nil {
		return nil, fmt.Errorf("nested workflow: %w", err)
	}

	out := node.Outputs{
		"status": string(res.Status),
		"output": res.Response,
	}
	for port, sel := range w.mappings {
		v, ok := res.Resolve(sel)
		if !ok {
			ctx.Logger().Warn("nested workflow output not found", "port", port, "selector", sel.String())
			continue
		}
		out[port] = v
	}
	return out, nil
}

// entryNode returns the first node of g that declares itself an entry.
func entryNode(g *chatflow.Graph, reg *node.Registry) string {
	if reg == nil {
		return ""
	}
	for _, spec := range g.Nodes {
		n, err := reg.Create(spec.Spec())
		if err == nil && node.IsEntry(n) {
			return spec.ID
		}
	}
	return ""
}
