package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the process-wide tracer. Until it is called, StartSpan
// is a no-op, so instrumented code paths cost nothing when tracing is off.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan opens a span named after the operation. Callers always get a
// usable span back; when no tracer is installed it is the span already on
// the context (a no-op span if there is none).
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name)
}

// GetTraceID returns the active trace id, or "" when the context carries
// no recording span. Error responses include it so a 500 can be matched to
// its trace.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
