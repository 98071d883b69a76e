package nodes_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/chatflow/pkg/chatflow"
	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/nodes"
	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
	"github.com/randalmurphal/chatflow/pkg/chatflow/service"
)

func parseGraph(t *testing.T, doc string) *chatflow.Graph {
	t.Helper()
	g, err := chatflow.ParseGraphJSON([]byte(doc))
	require.NoError(t, err)
	return g
}

func execute(t *testing.T, g *chatflow.Graph, req chatflow.Request, opts ...chatflow.ExecutorOption) (*chatflow.Result, error) {
	t.Helper()
	opts = append([]chatflow.ExecutorOption{chatflow.WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	exec := chatflow.NewExecutor(nodes.NewRegistry(), opts...)
	t.Cleanup(func() { _ = exec.Close() })
	return exec.Execute(context.Background(), g, req)
}

// servicesWith registers each name/value pair in a fresh container.
func servicesWith(t *testing.T, kv map[string]any) *service.Container {
	t.Helper()
	c := service.NewContainer()
	for name, svc := range kv {
		require.NoError(t, c.Register(name, svc))
	}
	return c
}

func spec(t *testing.T, id, typ string, data, mappings map[string]any) node.Spec {
	t.Helper()
	m, err := selector.ParseMappings(mappings)
	require.NoError(t, err)
	return node.Spec{ID: id, Type: typ, Data: data, Mappings: m}
}
