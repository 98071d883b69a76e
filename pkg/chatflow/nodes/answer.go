package nodes

import (
	"strings"

	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
)

// Answer renders a reply template. Mapped ports are available to the
// template as {{self.<port>}}.
type Answer struct {
	node.Base
}

var (
	_ node.Node             = (*Answer)(nil)
	_ node.ResponseProducer = (*Answer)(nil)
)

// NewAnswer is the answer node factory.
func NewAnswer(spec node.Spec) (node.Node, error) {
	return &Answer{Base: node.NewBase(spec)}, nil
}

// ResponsePort implements node.ResponseProducer.
func (a *Answer) ResponsePort() string { return "response" }

// Ports implements node.Node.
func (a *Answer) Ports() node.PortSchema {
	return node.PortSchema{
		Outputs: []node.Port{
			{Name: "answer", Kind: node.KindString},
			{Name: "response", Kind: node.KindString},
		},
	}
}

// Validate requires a template.
func (a *Answer) Validate() error {
	if strings.TrimSpace(a.template()) == "" {
		return invalidConfig("answer node needs a template")
	}
	return nil
}

func (a *Answer) template() string {
	return a.Config().String("template", a.Config().String("answer", ""))
}

// Execute implements node.Node.
func (a *Answer) Execute(ctx node.Context, in node.Inputs) (node.Outputs, error) {
	res, err := renderFor(ctx, a, in, a.template(), "answer")
	if err != nil {
		return nil, err
	}
	return node.Outputs{"answer": res.Text, "response": res.Text}, nil
}
