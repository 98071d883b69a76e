// Package observability provides the logging helpers, OpenTelemetry metrics
// and tracing used by the chatflow executor.
//
// Metrics and tracing use the global OTel providers unless a provider is
// passed explicitly. Both have no-op implementations for when they are
// disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run and node fields to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "classify", "question-classifier")
//	enriched.Info("calling model") // includes run_id, node_id, node_type
func EnrichLogger(logger *slog.Logger, runID, nodeID, nodeType string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, runID string, nodeCount, depth int) {
	if logger == nil {
		return
	}
	logger.Info("workflow run starting",
		slog.String("run_id", runID),
		slog.Int("node_count", nodeCount),
		slog.Int("depth", depth),
	)
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, nodeCount, tokens int) {
	if logger == nil {
		return
	}
	logger.Info("workflow run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", nodeCount),
		slog.Int("total_tokens", tokens),
	)
}

// LogRunError logs run failure.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("workflow run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID, nodeType string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogPersistenceError logs a failed audit write. These never fail a run.
func LogPersistenceError(logger *slog.Logger, runID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("persistence failed",
		slog.String("run_id", runID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogSkippedNodes warns about nodes that neither executed nor were pruned,
// which usually means a mis-wired graph.
func LogSkippedNodes(logger *slog.Logger, runID string, nodeIDs []string) {
	if logger == nil || len(nodeIDs) == 0 {
		return
	}
	logger.Warn("nodes never became ready",
		slog.String("run_id", runID),
		slog.Any("node_ids", nodeIDs),
		slog.Int("count", len(nodeIDs)),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
