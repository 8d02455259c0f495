package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the livegraph tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("livegraph")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartReconcileSpan starts a span for one reconciliation pass.
	StartReconcileSpan(ctx context.Context, executor, executorID string) (context.Context, trace.Span)

	// StartRunSpan starts a span for one invocation of a node body.
	StartRunSpan(ctx context.Context, nodeID uint32, kind string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartReconcileSpan starts a span for a reconciliation pass.
func (m *otelSpanManager) StartReconcileSpan(ctx context.Context, executor, executorID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "livegraph.reconcile",
		trace.WithAttributes(
			attribute.String("executor.name", executor),
			attribute.String("executor.id", executorID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartRunSpan starts a span for a node body invocation.
func (m *otelSpanManager) StartRunSpan(ctx context.Context, nodeID uint32, kind string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "livegraph.run."+kind,
		trace.WithAttributes(
			attribute.Int64("node.id", int64(nodeID)),
			attribute.String("node.kind", kind),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
