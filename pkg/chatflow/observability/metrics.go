package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrumentation scope name.
const scopeName = "chatflow"

// MetricsRecorder records chatflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records a node execution with its duration and error status.
	RecordNodeExecution(ctx context.Context, nodeType string, duration time.Duration, err error)

	// RecordRun records a finished run.
	RecordRun(ctx context.Context, status string, duration time.Duration, tokens int)

	// RecordPersistenceFailure counts a swallowed audit write failure.
	RecordPersistenceFailure(ctx context.Context, op string)

	// RecordPrunedNodes counts nodes removed by branch pruning.
	RecordPrunedNodes(ctx context.Context, n int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions      metric.Int64Counter
	nodeLatency         metric.Float64Histogram
	nodeErrors          metric.Int64Counter
	runs                metric.Int64Counter
	runLatency          metric.Float64Histogram
	runTokens           metric.Int64Counter
	persistenceFailures metric.Int64Counter
	prunedNodes         metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily builds instruments on the global provider.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics(mp metric.MeterProvider) (*otelMetrics, error) {
	meter := mp.Meter(scopeName)
	m := &otelMetrics{}
	var err error

	if m.nodeExecutions, err = meter.Int64Counter("chatflow.node.executions",
		metric.WithDescription("Number of node executions"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("chatflow.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("chatflow.node.errors",
		metric.WithDescription("Number of node execution errors"),
	); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter("chatflow.runs",
		metric.WithDescription("Number of workflow runs"),
	); err != nil {
		return nil, err
	}
	if m.runLatency, err = meter.Float64Histogram("chatflow.run.latency_ms",
		metric.WithDescription("Workflow run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.runTokens, err = meter.Int64Counter("chatflow.run.tokens",
		metric.WithDescription("Model tokens consumed by workflow runs"),
	); err != nil {
		return nil, err
	}
	if m.persistenceFailures, err = meter.Int64Counter("chatflow.persistence.failures",
		metric.WithDescription("Audit writes that failed and were swallowed"),
	); err != nil {
		return nil, err
	}
	if m.prunedNodes, err = meter.Int64Counter("chatflow.nodes.pruned",
		metric.WithDescription("Nodes skipped because their branch was not taken"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses the global OTel
// meter provider. If initialization fails, it returns a no-op recorder.
//
// Configure the provider before the first call:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// NewMetricsRecorderWithProvider builds a recorder on an explicit provider.
func NewMetricsRecorderWithProvider(mp metric.MeterProvider) (MetricsRecorder, error) {
	return newOtelMetrics(mp)
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeType string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_type", nodeType))

	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

// RecordRun records a finished run.
func (m *otelMetrics) RecordRun(ctx context.Context, status string, duration time.Duration, tokens int) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if tokens > 0 {
		m.runTokens.Add(ctx, int64(tokens), attrs)
	}
}

// RecordPersistenceFailure counts a swallowed audit write failure.
func (m *otelMetrics) RecordPersistenceFailure(ctx context.Context, op string) {
	m.persistenceFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

// RecordPrunedNodes counts pruned nodes.
func (m *otelMetrics) RecordPrunedNodes(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	m.prunedNodes.Add(ctx, int64(n))
}
