package nodes

import (
	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/pool"
)

// End finishes a run. Its final_output.response becomes the run's response.
type End struct {
	node.Base
}

var (
	_ node.Node     = (*End)(nil)
	_ node.Terminal = (*End)(nil)
)

// NewEnd is the end node factory.
func NewEnd(spec node.Spec) (node.Node, error) {
	return &End{Base: node.NewBase(spec)}, nil
}

// IsTerminal implements node.Terminal.
func (e *End) IsTerminal() bool { return true }

// Ports implements node.Node.
func (e *End) Ports() node.PortSchema {
	return node.PortSchema{
		Inputs:  []node.Port{{Name: "response", Kind: node.KindString, Required: true}},
		Outputs: []node.Port{{Name: "final_output", Kind: node.KindObject}},
	}
}

// Validate requires the response port to be mapped.
func (e *End) Validate() error {
	if _, ok := e.Mappings()["response"]; !ok {
		return invalidConfig("end node must map response")
	}
	return nil
}

// Execute implements node.Node.
func (e *End) Execute(ctx node.Context, in node.Inputs) (node.Outputs, error) {
	return node.Outputs{
		"final_output": map[string]any{
			"response":   in.String("response"),
			"session_id": systemString(ctx.Pool(), pool.SysSessionID),
			"metadata": map[string]any{
				"node_count":         len(ctx.Executed()),
				"execution_complete": true,
			},
		},
	}, nil
}
