package nodes

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/chatflow/pkg/chatflow/config"
	"github.com/randalmurphal/chatflow/pkg/chatflow/expr"
	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
)

// HandleElse is the branch taken when no case matches.
const HandleElse = "else"

// IfElse evaluates cases in order and follows the first that matches.
//
// Data:
//
//	cases: [{case_id, logical_operator, conditions: [{variable_selector,
//	         comparison_operator, value, varType}]}]
//
// Output ports are if, elif_1..elif_N and else; exactly one is true.
// The matched port name and the case id are declared as live edge handles.
type IfElse struct {
	node.Base
	cases []expr.Case
}

var _ node.Node = (*IfElse)(nil)

// NewIfElse is the if-else node factory.
func NewIfElse(spec node.Spec) (node.Node, error) {
	n := &IfElse{Base: node.NewBase(spec)}
	for _, c := range n.Config().Objects("cases") {
		ec := expr.Case{
			ID:              c.String("case_id", c.String("id", "")),
			LogicalOperator: c.String("logical_operator", expr.LogicalAnd),
		}
		for _, cond := range c.Objects("conditions") {
			ec.Conditions = append(ec.Conditions, expr.Condition{
				Selector:  conditionSelector(cond),
				Operator:  cond.String("comparison_operator", ""),
				Value:     cond.Any("value", nil),
				ValueType: strings.ToLower(cond.String("varType", expr.TypeString)),
			})
		}
		n.cases = append(n.cases, ec)
	}
	return n, nil
}

// conditionSelector accepts "node.port" or ["node", "port"].
func conditionSelector(c config.Config) string {
	if s := c.StringSlice("variable_selector", nil); s != nil {
		return strings.Join(s, ".")
	}
	return c.String("variable_selector", "")
}

// Ports implements node.Node.
func (n *IfElse) Ports() node.PortSchema {
	outputs := make([]node.Port, 0, len(n.cases)+2)
	for i := range n.cases {
		outputs = append(outputs, node.Port{Name: casePort(i), Kind: node.KindBoolean})
	}
	outputs = append(outputs,
		node.Port{Name: HandleElse, Kind: node.KindBoolean},
		node.Port{Name: "selected_case", Kind: node.KindString},
	)
	return node.PortSchema{Outputs: outputs}
}

// Validate checks operators up front so typos surface before the run.
func (n *IfElse) Validate() error {
	for i, c := range n.cases {
		for j, cond := range c.Conditions {
			if _, ok := expr.NormalizeOperator(cond.Operator); !ok {
				return invalidConfig("case %d condition %d: unknown operator %q", i, j, cond.Operator)
			}
		}
	}
	return nil
}

func casePort(i int) string {
	if i == 0 {
		return "if"
	}
	return fmt.Sprintf("elif_%d", i)
}

// Execute implements node.Node.
func (n *IfElse) Execute(ctx node.Context, in node.Inputs) (node.Outputs, error) {
	lookup := func(sel string) (any, bool) {
		if v, ok := in[sel]; ok {
			return v, true
		}
		return ctx.Pool().ResolveString(sel)
	}

	matched, err := expr.FirstMatch(n.cases, lookup)
	if err != nil {
		ctx.Logger().Warn("if-else conditions evaluated as false", "error", err)
	}

	out := make(node.Outputs, len(n.cases)+2)
	for i := range n.cases {
		out[casePort(i)] = i == matched
	}
	out[HandleElse] = matched < 0

	if matched < 0 {
		out["selected_case"] = HandleElse
		ctx.DeclareNextEdges(HandleElse)
		return out, nil
	}

	handles := []string{casePort(matched)}
	selected := casePort(matched)
	if id := n.cases[matched].ID; id != "" {
		handles = append(handles, id)
		selected = id
	}
	out["selected_case"] = selected
	ctx.DeclareNextEdges(handles...)
	ctx.Logger().Debug("if-else branch selected", "case", selected)
	return out, nil
}
