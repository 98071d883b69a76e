package chatflow_test

import (
	"context"
	"errors"
	"sync"

	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/pool"
	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
	"github.com/randalmurphal/chatflow/pkg/chatflow/store"
)

var errBoom = errors.New("boom")

// fakeNode is a configurable node used across executor tests.
type fakeNode struct {
	node.Base
	ports    node.PortSchema
	exec     func(ctx node.Context, in node.Inputs) (node.Outputs, error)
	terminal bool
	entry    bool
}

func (n *fakeNode) Ports() node.PortSchema { return n.ports }
func (n *fakeNode) IsTerminal() bool       { return n.terminal }
func (n *fakeNode) IsEntry() bool          { return n.entry }

func (n *fakeNode) Execute(ctx node.Context, in node.Inputs) (node.Outputs, error) {
	if n.exec == nil {
		return node.Outputs{}, nil
	}
	return n.exec(ctx, in)
}

// producerNode stands in for a model-backed node.
type producerNode struct {
	*fakeNode
}

func (producerNode) ResponsePort() string { return "text" }

func (producerNode) TokensUsed(out node.Outputs) int {
	n, _ := out["tokens"].(int)
	return n
}

// testRegistry registers the fake node types:
//
//	start   entry; outputs query from sys.user_message
//	pass    copies input value to output value
//	branch  declares data.take as live handles
//	end     terminal; required response, outputs final_output
//	sink    terminal without outputs
//	fail    returns errBoom
//	panic   panics
//	produce response producer reporting 7 tokens
//	remember writes input value to conv.<data.key>
//
// extra factories override or extend the table.
func testRegistry(extra map[string]node.Factory) *node.Registry {
	reg := node.NewRegistry()
	factories := map[string]node.Factory{
		"start": func(spec node.Spec) (node.Node, error) {
			return &fakeNode{
				Base:  node.NewBase(spec),
				entry: true,
				ports: node.PortSchema{Outputs: []node.Port{{Name: "query", Kind: node.KindString}}},
				exec: func(ctx node.Context, _ node.Inputs) (node.Outputs, error) {
					msg, _ := ctx.Pool().System(pool.SysUserMessage)
					return node.Outputs{"query": msg}, nil
				},
			}, nil
		},
		"pass": func(spec node.Spec) (node.Node, error) {
			return &fakeNode{
				Base: node.NewBase(spec),
				ports: node.PortSchema{
					Inputs:  []node.Port{{Name: "value", Kind: node.KindAny}},
					Outputs: []node.Port{{Name: "value", Kind: node.KindAny}},
				},
				exec: func(_ node.Context, in node.Inputs) (node.Outputs, error) {
					return node.Outputs{"value": in["value"]}, nil
				},
			}, nil
		},
		"branch": func(spec node.Spec) (node.Node, error) {
			n := &fakeNode{Base: node.NewBase(spec)}
			n.exec = func(ctx node.Context, _ node.Inputs) (node.Outputs, error) {
				take := n.Config().StringSlice("take", nil)
				ctx.DeclareNextEdges(take...)
				return node.Outputs{"taken": take}, nil
			}
			return n, nil
		},
		"end": func(spec node.Spec) (node.Node, error) {
			return &fakeNode{
				Base:     node.NewBase(spec),
				terminal: true,
				ports: node.PortSchema{
					Inputs:  []node.Port{{Name: "response", Kind: node.KindString, Required: true}},
					Outputs: []node.Port{{Name: "final_output", Kind: node.KindObject}},
				},
				exec: func(_ node.Context, in node.Inputs) (node.Outputs, error) {
					return node.Outputs{"final_output": map[string]any{"response": in.String("response")}}, nil
				},
			}, nil
		},
		"sink": func(spec node.Spec) (node.Node, error) {
			return &fakeNode{Base: node.NewBase(spec), terminal: true}, nil
		},
		"fail": func(spec node.Spec) (node.Node, error) {
			return &fakeNode{
				Base: node.NewBase(spec),
				exec: func(node.Context, node.Inputs) (node.Outputs, error) { return nil, errBoom },
			}, nil
		},
		"panic": func(spec node.Spec) (node.Node, error) {
			return &fakeNode{
				Base: node.NewBase(spec),
				exec: func(node.Context, node.Inputs) (node.Outputs, error) { panic("kaboom") },
			}, nil
		},
		"produce": func(spec node.Spec) (node.Node, error) {
			return producerNode{&fakeNode{
				Base: node.NewBase(spec),
				exec: func(node.Context, node.Inputs) (node.Outputs, error) {
					return node.Outputs{"text": "generated", "tokens": 7}, nil
				},
			}}, nil
		},
		"remember": func(spec node.Spec) (node.Node, error) {
			n := &fakeNode{
				Base:  node.NewBase(spec),
				ports: node.PortSchema{Inputs: []node.Port{{Name: "value", Kind: node.KindAny}}},
			}
			n.exec = func(ctx node.Context, in node.Inputs) (node.Outputs, error) {
				ctx.Pool().SetConversation(n.Config().String("key", ""), in["value"])
				return node.Outputs{"value": in["value"]}, nil
			}
			return n, nil
		},
	}
	for typ, f := range extra {
		factories[typ] = f
	}
	for typ, f := range factories {
		reg.MustRegister(typ, f)
	}
	return reg
}

func ref(raw string) selector.Mapping {
	return selector.FromSelector(selector.MustParse(raw))
}

// failingStore is a recorder and conversation store whose writes all fail.
type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (f *failingStore) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("database unavailable")
}

func (f *failingStore) CreateRun(context.Context, *store.RunRecord) error { return f.fail() }

func (f *failingStore) RecordNodeExecution(context.Context, *store.NodeExecution) error {
	return f.fail()
}

func (f *failingStore) FinalizeRun(context.Context, string, store.RunResult) error { return f.fail() }

func (f *failingStore) LoadConversation(context.Context, string, string) (map[string]any, error) {
	return nil, f.fail()
}

func (f *failingStore) SaveConversation(context.Context, string, string, map[string]any) error {
	return f.fail()
}
