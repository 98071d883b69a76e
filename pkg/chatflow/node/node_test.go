package node_test

import (
	"context"
	"errors"
	"testing"

	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/registry"
	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoNode struct {
	node.Base
}

func (n *echoNode) Ports() node.PortSchema {
	return node.PortSchema{
		Inputs:  []node.Port{{Name: "text", Kind: node.KindString, Required: true}},
		Outputs: []node.Port{{Name: "text", Kind: node.KindString}},
	}
}

func (n *echoNode) Execute(ctx node.Context, in node.Inputs) (node.Outputs, error) {
	return node.Outputs{"text": in.String("text")}, nil
}

type endNode struct{ echoNode }

func (endNode) IsTerminal() bool { return true }

type startNode struct{ echoNode }

func (startNode) IsEntry() bool { return true }

func newEcho(spec node.Spec) (node.Node, error) {
	return &echoNode{Base: node.NewBase(spec)}, nil
}

func TestRegistry_Create(t *testing.T) {
	r := node.NewRegistry()
	require.NoError(t, r.Register("echo", newEcho))

	n, err := r.Create(node.Spec{
		ID:       "e1",
		Type:     "echo",
		Mappings: map[string]selector.Mapping{"text": selector.Constant("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "e1", n.ID())
	assert.Equal(t, "echo", n.Type())
	assert.True(t, n.Mappings()["text"].IsConstant())
	assert.NoError(t, n.Validate())
}

func TestRegistry_UnknownType(t *testing.T) {
	r := node.NewRegistry()
	_, err := r.Create(node.Spec{ID: "x", Type: "mystery"})

	var unknown *node.UnknownNodeTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "x", unknown.NodeID)
	assert.Equal(t, "mystery", unknown.Type)
	assert.Contains(t, err.Error(), "mystery")
}

func TestRegistry_FactoryError(t *testing.T) {
	r := node.NewRegistry()
	boom := errors.New("bad config")
	r.MustRegister("broken", func(node.Spec) (node.Node, error) { return nil, boom })

	_, err := r.Create(node.Spec{ID: "b", Type: "broken"})
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_DuplicateAndFreeze(t *testing.T) {
	r := node.NewRegistry()
	require.NoError(t, r.Register("echo", newEcho))
	assert.ErrorIs(t, r.Register("echo", newEcho), registry.ErrDuplicate)

	r.Freeze()
	assert.ErrorIs(t, r.Register("other", newEcho), registry.ErrFrozen)
	assert.True(t, r.Has("echo"))

	c := r.Clone()
	require.NoError(t, c.Register("other", newEcho))
	assert.Equal(t, []string{"echo", "other"}, c.Types())
	assert.False(t, r.Has("other"))
}

func TestRegistry_RejectsEmpty(t *testing.T) {
	r := node.NewRegistry()
	assert.Error(t, r.Register("", newEcho))
	assert.Error(t, r.Register("x", nil))
	assert.Panics(t, func() { r.MustRegister("", newEcho) })
}

func TestIsTerminal(t *testing.T) {
	e, _ := newEcho(node.Spec{ID: "e", Type: "echo"})
	assert.False(t, node.IsTerminal(e))
	assert.True(t, node.IsTerminal(&endNode{}))
	assert.False(t, node.IsEntry(e))
	assert.True(t, node.IsEntry(&startNode{}))
}

func TestRunContext_WithContext(t *testing.T) {
	type key struct{}
	rc := node.NewRunContext(context.Background(), node.WithRunID("run-1"))
	nc := rc.ForNode("n1", "echo").WithContext(context.WithValue(context.Background(), key{}, "span"))

	assert.Equal(t, "span", nc.Value(key{}))
	assert.Equal(t, "n1", nc.NodeID())
	assert.Same(t, rc.Pool(), nc.Pool())

	nc.DeclareNextEdges("if")
	handles, declared := nc.NextEdges()
	assert.True(t, declared)
	assert.Equal(t, []string{"if"}, handles)
}

func TestRunContext_ForNode(t *testing.T) {
	rc := node.NewRunContext(context.Background(), node.WithRunID("run-1"), node.WithDepth(2, 5))
	assert.Equal(t, "run-1", rc.RunID())
	assert.NotNil(t, rc.Pool())
	assert.NotNil(t, rc.Services())

	nc := rc.ForNode("n1", "echo")
	assert.Equal(t, "n1", nc.NodeID())
	assert.Equal(t, "echo", nc.NodeType())
	assert.Equal(t, 2, nc.Depth())
	assert.Equal(t, 5, nc.MaxDepth())
	assert.Same(t, rc.Pool(), nc.Pool())

	nc.Metadata()["k"] = "v"
	assert.Equal(t, "v", rc.Metadata()["k"])

	rc.MarkExecuted("start")
	assert.Equal(t, []string{"start"}, nc.Executed())
}

func TestRunContext_DefaultsAndUUID(t *testing.T) {
	rc := node.NewRunContext(context.Background())
	assert.Len(t, rc.RunID(), 36)
	assert.Equal(t, node.DefaultMaxDepth, rc.MaxDepth())
	assert.Equal(t, 0, rc.Depth())
}

func TestRunContext_DeclareNextEdges(t *testing.T) {
	nc := node.NewRunContext(context.Background()).ForNode("branch", "if-else")
	handles, declared := nc.NextEdges()
	assert.False(t, declared)
	assert.Empty(t, handles)

	nc.DeclareNextEdges("if", "case-a")
	nc.DeclareNextEdges()
	handles, declared = nc.NextEdges()
	assert.True(t, declared)
	assert.Equal(t, []string{"if", "case-a"}, handles)

	// Fresh per-node contexts start undeclared.
	_, declared = nc.ForNode("next", "end").NextEdges()
	assert.False(t, declared)
}

func TestPortSchema(t *testing.T) {
	e, _ := newEcho(node.Spec{ID: "e", Type: "echo"})
	p, ok := e.Ports().Input("text")
	require.True(t, ok)
	assert.True(t, p.Required)
	_, ok = e.Ports().Input("missing")
	assert.False(t, ok)
	_, ok = e.Ports().Output("text")
	assert.True(t, ok)
}

func TestZeroValueAndKindOf(t *testing.T) {
	assert.Equal(t, "", node.ZeroValue(node.KindString))
	assert.Equal(t, float64(0), node.ZeroValue(node.KindNumber))
	assert.Equal(t, false, node.ZeroValue(node.KindBoolean))
	assert.Equal(t, []any{}, node.ZeroValue(node.KindArray))
	assert.Equal(t, map[string]any{}, node.ZeroValue(node.KindObject))
	assert.Nil(t, node.ZeroValue(node.KindAny))

	assert.Equal(t, node.KindNumber, node.KindOf(3))
	assert.Equal(t, node.KindArray, node.KindOf([]any{1}))
	assert.Equal(t, node.KindObject, node.KindOf(map[string]any{}))
	assert.Equal(t, node.KindAny, node.KindOf(nil))
}

func TestInputs(t *testing.T) {
	in := node.Inputs{"a": 1.5, "b": nil}
	assert.Equal(t, "1.5", in.String("a"))
	assert.Equal(t, "", in.String("b"))
	assert.Equal(t, "", in.String("c"))
	assert.True(t, in.Has("b"))
	assert.False(t, in.Has("c"))
}
