package nodes

import (
	"maps"
	"strings"

	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
)

// TemplateTransform renders a template taken from data.template or from its
// template input. Extra values from data.variables, or else the variables
// input, are readable as {{self.variables.<key>}}. Render failures do not
// fail the node: they are reported through success=false and error.
type TemplateTransform struct {
	node.Base
}

var _ node.Node = (*TemplateTransform)(nil)

// NewTemplateTransform is the template-transform node factory.
func NewTemplateTransform(spec node.Spec) (node.Node, error) {
	return &TemplateTransform{Base: node.NewBase(spec)}, nil
}

// Ports implements node.Node.
func (t *TemplateTransform) Ports() node.PortSchema {
	return node.PortSchema{
		Inputs: []node.Port{
			{Name: "template", Kind: node.KindString},
			{Name: "variables", Kind: node.KindObject},
		},
		Outputs: []node.Port{
			{Name: "output", Kind: node.KindString},
			{Name: "length", Kind: node.KindNumber},
			{Name: "success", Kind: node.KindBoolean},
			{Name: "error", Kind: node.KindString},
			{Name: "metadata", Kind: node.KindObject},
		},
	}
}

// Validate requires a template in data or a mapped template input.
func (t *TemplateTransform) Validate() error {
	if strings.TrimSpace(t.Config().String("template", "")) != "" {
		return nil
	}
	if _, ok := t.Mappings()["template"]; ok {
		return nil
	}
	return invalidConfig("template-transform needs data.template or a template mapping")
}

// Execute implements node.Node.
func (t *TemplateTransform) Execute(ctx node.Context, in node.Inputs) (node.Outputs, error) {
	tmpl := t.Config().String("template", "")
	if strings.TrimSpace(tmpl) == "" {
		tmpl = in.String("template")
	}

	if vars, ok := t.Config().Any("variables", nil).(map[string]any); ok && len(vars) > 0 {
		merged := make(node.Inputs, len(in)+1)
		maps.Copy(merged, in)
		merged["variables"] = vars
		in = merged
	}

	res, err := renderFor(ctx, t, in, tmpl, "template_transform")
	if err != nil {
		ctx.Logger().Warn("template transform failed", "error", err)
		return node.Outputs{
			"output":   "",
			"length":   0,
			"success":  false,
			"error":    err.Error(),
			"metadata": map[string]any{},
		}, nil
	}
	return node.Outputs{
		"output":   res.Text,
		"length":   len(res.Text),
		"success":  true,
		"error":    "",
		"metadata": res.Metadata.Map(),
	}, nil
}
