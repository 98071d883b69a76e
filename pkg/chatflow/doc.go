// Package chatflow executes conversational workflow graphs.
//
// A Graph is an ordered list of typed nodes and the edges between them. The
// Executor validates the graph, builds every node through a node.Registry and
// runs them one at a time in dependency order, once per conversational turn.
// Nodes read each other's outputs through selectors resolved by a per-run
// variable pool; branching nodes declare which outgoing edges are live and
// the executor prunes the rest.
//
// # Basic Usage
//
//	graph, err := chatflow.LoadGraphFile("support.json")
//	if err != nil {
//	    return err
//	}
//
//	exec := chatflow.NewExecutor(nodes.NewRegistry(),
//	    chatflow.WithServices(services),
//	    chatflow.WithRecorder(db),
//	)
//	result, err := exec.Execute(ctx, graph, chatflow.Request{
//	    SessionID:   "s-1",
//	    BotID:       "bot-1",
//	    UserMessage: "where is my order?",
//	})
//
// # Error Handling
//
// Validation problems are reported before any node runs as a
// *GraphValidationError joining every problem found. A failing node aborts
// the run with a *NodeExecutionError naming the node; panics are recovered
// into a *PanicError inside it. Cancelling ctx stops the run before the next
// node with a *CancelledError.
//
// Audit and conversation writes never fail a run. Their failures are logged,
// counted and published as event.PersistenceFailed.
package chatflow
