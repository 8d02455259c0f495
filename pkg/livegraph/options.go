package livegraph

import (
	"log/slog"

	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
	"github.com/randalmurphal/livegraph/pkg/livegraph/event"
	"github.com/randalmurphal/livegraph/pkg/livegraph/observability"
	"github.com/randalmurphal/livegraph/pkg/livegraph/workpool"
)

// executorConfig holds Executor configuration.
type executorConfig struct {
	name     string
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	bus      event.Bus
	upstream OutputSource
	queueCap int
	pool     *workpool.Pool
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		name:     "pipeline",
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
		queueCap: connection.DefaultQueueCapacity,
	}
}

// Option configures an Executor.
type Option func(*executorConfig)

// WithName names the executor in logs, metrics and events.
// Default: "pipeline"
func WithName(name string) Option {
	return func(c *executorConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithLogger sets the logger. Runner loggers are derived from it.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *executorConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
// Default: observability.NoopMetrics{}
//
// Example:
//
//	exec := livegraph.NewExecutor(livegraph.WithMetrics(observability.NewPrometheusRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *executorConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpans sets the span manager used to trace reconciliation passes and
// task runs.
// Default: observability.NoopSpanManager{}
func WithSpans(s observability.SpanManager) Option {
	return func(c *executorConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithEventBus publishes runner lifecycle events to bus.
// Default: no events.
func WithEventBus(bus event.Bus) Option {
	return func(c *executorConfig) {
		c.bus = bus
	}
}

// WithUpstream resolves wires against another executor's outputs instead of
// this executor's own nodes. Use it for a views executor whose nodes only
// consume outputs of a pipeline executor.
func WithUpstream(src OutputSource) Option {
	return func(c *executorConfig) {
		c.upstream = src
	}
}

// WithRequestQueueCapacity sets how many requests can be queued on each
// output before consumers block.
// Default: connection.DefaultQueueCapacity
func WithRequestQueueCapacity(n int) Option {
	return func(c *executorConfig) {
		if n > 0 {
			c.queueCap = n
		}
	}
}

// WithWorkPool shares a worker pool with the executor's tasks.
// Default: a pool sized to GOMAXPROCS.
func WithWorkPool(p *workpool.Pool) Option {
	return func(c *executorConfig) {
		c.pool = p
	}
}
