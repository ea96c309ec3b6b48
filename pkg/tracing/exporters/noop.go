package exporters

import (
	"context"

	"go.opentelemetry.io/otel/sdk/trace"
)

// NoopExporter discards spans. Used when tracing is enabled without a
// collector endpoint, so span creation still exercises the instrumented
// paths locally.
type NoopExporter struct{}

func (e *NoopExporter) ExportSpans(ctx context.Context, spans []trace.ReadOnlySpan) error {
	return nil
}

func (e *NoopExporter) Shutdown(ctx context.Context) error {
	return nil
}
