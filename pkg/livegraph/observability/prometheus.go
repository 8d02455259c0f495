package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	promRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livegraph_task_runs_total",
			Help: "Total number of node body invocations.",
		},
		[]string{"node_kind", "outcome"},
	)

	promRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livegraph_task_run_duration_seconds",
			Help:    "Node body invocation duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node_kind"},
	)

	promReconciles = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livegraph_reconcile_duration_seconds",
			Help:    "Reconciliation pass duration in seconds.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"executor"},
	)

	promMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livegraph_reconcile_messages_total",
			Help: "Control and sync messages sent by reconciliation.",
		},
		[]string{"executor", "kind"},
	)

	promInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livegraph_task_invalidations_total",
			Help: "Total number of invalidations delivered to node tasks.",
		},
		[]string{"node_kind", "cause"},
	)

	promRunners = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livegraph_runners",
			Help: "Number of live node runners.",
		},
		[]string{"executor"},
	)
)

func init() {
	prometheus.MustRegister(promRuns)
	prometheus.MustRegister(promRunDuration)
	prometheus.MustRegister(promReconciles)
	prometheus.MustRegister(promMessages)
	prometheus.MustRegister(promInvalidations)
	prometheus.MustRegister(promRunners)
}

// promMetrics implements MetricsRecorder on the default Prometheus registry.
type promMetrics struct{}

// NewPrometheusRecorder returns a MetricsRecorder that updates collectors
// registered with the default Prometheus registry. Serve them with
// promhttp.Handler().
func NewPrometheusRecorder() MetricsRecorder {
	return promMetrics{}
}

// RecordRun records a node body invocation.
func (promMetrics) RecordRun(_ context.Context, kind string, duration time.Duration, outcome Outcome) {
	promRuns.WithLabelValues(kind, string(outcome)).Inc()
	promRunDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordReconcile records a reconciliation pass.
func (promMetrics) RecordReconcile(_ context.Context, executor string, duration time.Duration, stats ReconcileStats) {
	promReconciles.WithLabelValues(executor).Observe(duration.Seconds())
	promMessages.WithLabelValues(executor, "connect").Add(float64(stats.Connects))
	promMessages.WithLabelValues(executor, "disconnect").Add(float64(stats.Disconnects))
	promMessages.WithLabelValues(executor, "sync").Add(float64(stats.Syncs))
	promMessages.WithLabelValues(executor, "dropped").Add(float64(stats.Dropped))
}

// RecordInvalidation records an invalidation.
func (promMetrics) RecordInvalidation(_ context.Context, kind, cause string) {
	promInvalidations.WithLabelValues(kind, cause).Inc()
}

// RecordRunners adjusts the live runner count.
func (promMetrics) RecordRunners(_ context.Context, executor string, delta int64) {
	promRunners.WithLabelValues(executor).Add(float64(delta))
}
