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

// Outcome classifies how one invocation of a node body ended.
type Outcome string

const (
	// OutcomeOK means the body returned without error.
	OutcomeOK Outcome = "ok"
	// OutcomeCancelled means the body was abandoned for a higher priority event.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeError means the body returned an error.
	OutcomeError Outcome = "error"
	// OutcomePanic means the body panicked.
	OutcomePanic Outcome = "panic"
)

// ReconcileStats counts what one reconciliation pass did.
type ReconcileStats struct {
	Spawned     int
	Retired     int
	Connects    int
	Disconnects int
	Syncs       int
	Dropped     int
}

// MetricsRecorder records livegraph metrics.
// Use NewMetricsRecorder() for OTel metrics, NewPrometheusRecorder() for
// Prometheus, or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordRun records one invocation of a node body.
	RecordRun(ctx context.Context, kind string, duration time.Duration, outcome Outcome)

	// RecordReconcile records one reconciliation pass.
	RecordReconcile(ctx context.Context, executor string, duration time.Duration, stats ReconcileStats)

	// RecordInvalidation records an invalidation delivered to a node.
	RecordInvalidation(ctx context.Context, kind, cause string)

	// RecordRunners adjusts the number of live runners by delta.
	RecordRunners(ctx context.Context, executor string, delta int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	runs          metric.Int64Counter
	runLatency    metric.Float64Histogram
	reconciles    metric.Int64Counter
	reconcileTime metric.Float64Histogram
	messages      metric.Int64Counter
	invalidations metric.Int64Counter
	runners       metric.Int64UpDownCounter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("livegraph")

	runs, err := meter.Int64Counter("livegraph.task.runs",
		metric.WithDescription("Number of node body invocations"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("livegraph.task.latency_ms",
		metric.WithDescription("Node body invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	reconciles, err := meter.Int64Counter("livegraph.reconcile.passes",
		metric.WithDescription("Number of reconciliation passes"),
	)
	if err != nil {
		return nil, err
	}

	reconcileTime, err := meter.Float64Histogram("livegraph.reconcile.latency_ms",
		metric.WithDescription("Reconciliation pass latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	messages, err := meter.Int64Counter("livegraph.reconcile.messages",
		metric.WithDescription("Control and sync messages sent by reconciliation"),
	)
	if err != nil {
		return nil, err
	}

	invalidations, err := meter.Int64Counter("livegraph.task.invalidations",
		metric.WithDescription("Number of invalidations delivered to node tasks"),
	)
	if err != nil {
		return nil, err
	}

	runners, err := meter.Int64UpDownCounter("livegraph.runners",
		metric.WithDescription("Number of live node runners"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		runs:          runs,
		runLatency:    runLatency,
		reconciles:    reconciles,
		reconcileTime: reconcileTime,
		messages:      messages,
		invalidations: invalidations,
		runners:       runners,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
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

// RecordRun records a node body invocation.
func (m *otelMetrics) RecordRun(ctx context.Context, kind string, duration time.Duration, outcome Outcome) {
	attrs := metric.WithAttributes(
		attribute.String("node_kind", kind),
		attribute.String("outcome", string(outcome)),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordReconcile records a reconciliation pass.
func (m *otelMetrics) RecordReconcile(ctx context.Context, executor string, duration time.Duration, stats ReconcileStats) {
	attrs := metric.WithAttributes(attribute.String("executor", executor))
	m.reconciles.Add(ctx, 1, attrs)
	m.reconcileTime.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	for kind, n := range map[string]int{
		"connect":    stats.Connects,
		"disconnect": stats.Disconnects,
		"sync":       stats.Syncs,
		"dropped":    stats.Dropped,
	} {
		if n == 0 {
			continue
		}
		m.messages.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("executor", executor),
			attribute.String("kind", kind),
		))
	}
}

// RecordInvalidation records an invalidation.
func (m *otelMetrics) RecordInvalidation(ctx context.Context, kind, cause string) {
	m.invalidations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node_kind", kind),
		attribute.String("cause", cause),
	))
}

// RecordRunners adjusts the live runner count.
func (m *otelMetrics) RecordRunners(ctx context.Context, executor string, delta int64) {
	m.runners.Add(ctx, delta, metric.WithAttributes(attribute.String("executor", executor)))
}
