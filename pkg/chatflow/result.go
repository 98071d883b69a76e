package chatflow

import (
	"time"

	"github.com/randalmurphal/chatflow/pkg/chatflow/pool"
	"github.com/randalmurphal/chatflow/pkg/chatflow/selector"
	"github.com/randalmurphal/chatflow/pkg/chatflow/store"
)

// Request is one conversational turn.
type Request struct {
	SessionID   string
	UserMessage string
	BotID       string
	// RunID overrides the generated run identifier.
	RunID string
	// InitialOutputs pre-seeds node outputs before the first node runs,
	// keyed by node id and then port. Nested runs use it to hand inputs to
	// the child graph's entry node.
	InitialOutputs map[string]map[string]any
}

// Result describes a finished run.
//
// Execute returns a Result for runs that started, including failed and
// cancelled ones; it is nil only when the graph was rejected.
type Result struct {
	RunID    string
	Response string
	Status   store.Status
	// NodeOrder lists executed nodes in execution order.
	NodeOrder []string
	// Pruned lists nodes skipped because their branch was not taken.
	Pruned []string
	// Outputs holds the outputs of every executed node.
	Outputs     map[string]map[string]any
	TotalTokens int
	Duration    time.Duration

	pool *pool.Pool
}

// Resolve looks a selector up in the run's final variable pool.
func (r *Result) Resolve(sel selector.Selector) (any, bool) {
	if r == nil || r.pool == nil {
		return nil, false
	}
	return r.pool.Resolve(sel)
}

// Conversation returns the run's conversation variables after execution.
func (r *Result) Conversation(key string) (any, bool) {
	if r == nil || r.pool == nil {
		return nil, false
	}
	return r.pool.Conversation(key)
}
