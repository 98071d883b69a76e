package chatflow

import (
	"log/slog"

	"github.com/randalmurphal/chatflow/pkg/chatflow/event"
	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/observability"
	"github.com/randalmurphal/chatflow/pkg/chatflow/service"
	"github.com/randalmurphal/chatflow/pkg/chatflow/store"
)

// executorConfig holds configuration for an Executor.
type executorConfig struct {
	logger        *slog.Logger
	services      *service.Container
	recorder      store.Recorder
	conversations store.ConversationStore
	events        event.Publisher
	metrics       observability.MetricsRecorder
	spans         observability.SpanManager
	maxDepth      int
	depth         int
	asyncWorkers  int
}

// defaultExecutorConfig returns the default executor configuration.
func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
		maxDepth: node.DefaultMaxDepth,
	}
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorConfig)

// WithLogger sets the base logger. Node loggers are derived from it with
// run_id, node_id and node_type attributes.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(c *executorConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithServices sets the service container nodes resolve dependencies from.
// Default: an empty container per run.
func WithServices(s *service.Container) ExecutorOption {
	return func(c *executorConfig) {
		c.services = s
	}
}

// WithRecorder enables the audit trail: one run record per Execute and one
// node-execution record per node invocation. Recorder failures never fail a
// run.
func WithRecorder(r store.Recorder) ExecutorOption {
	return func(c *executorConfig) {
		c.recorder = r
	}
}

// WithAsyncPersistence hands recorder writes to a pool of workers so they
// never delay scheduling. Execute still waits for its own writes before
// returning. Has no effect without WithRecorder.
//
// Example:
//
//	exec := chatflow.NewExecutor(reg,
//	    chatflow.WithRecorder(db),
//	    chatflow.WithAsyncPersistence(4),
//	)
//	defer exec.Close()
func WithAsyncPersistence(workers int) ExecutorOption {
	return func(c *executorConfig) {
		if workers <= 0 {
			workers = store.DefaultAsyncWorkers
		}
		c.asyncWorkers = workers
	}
}

// WithConversationStore loads conversation variables before a run and saves
// the ones the run changed after it succeeds.
func WithConversationStore(s store.ConversationStore) ExecutorOption {
	return func(c *executorConfig) {
		c.conversations = s
	}
}

// WithEvents publishes run and node lifecycle events.
func WithEvents(p event.Publisher) ExecutorOption {
	return func(c *executorConfig) {
		c.events = p
	}
}

// WithMetrics records OpenTelemetry metrics.
// Default: no metrics.
func WithMetrics(m observability.MetricsRecorder) ExecutorOption {
	return func(c *executorConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing starts a span per run and a child span per node.
// Default: no spans.
func WithTracing(s observability.SpanManager) ExecutorOption {
	return func(c *executorConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithMaxDepth bounds nested workflow execution.
// Default: 8
func WithMaxDepth(n int) ExecutorOption {
	return func(c *executorConfig) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithDepth sets the nesting depth of runs started by this executor. Nested
// workflow nodes set it to their own depth plus one.
func WithDepth(depth int) ExecutorOption {
	return func(c *executorConfig) {
		if depth >= 0 {
			c.depth = depth
		}
	}
}
