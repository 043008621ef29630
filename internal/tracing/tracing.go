// Package tracing wraps a process-wide OpenTelemetry tracer. With no tracer
// installed every span is a no-op.
package tracing

import (
	"context"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer sets the tracer to be used for tracing.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a new span with the given name and returns the context and span.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if tracer == nil || !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// Setup installs an SDK tracer provider that reports finished spans to the
// logger. The returned function flushes and stops it.
func Setup(serviceName string, logger ectologger.Logger) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&LogExporter{logger: logger}),
	)
	otel.SetTracerProvider(tp)
	SetTracer(tp.Tracer(serviceName))
	return tp.Shutdown
}

// LogExporter writes span summaries at debug level.
type LogExporter struct {
	logger ectologger.Logger
}

func (l *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		l.logger.WithContext(ctx).WithFields(map[string]any{
			"span":        s.Name(),
			"trace_id":    s.SpanContext().TraceID().String(),
			"duration_ms": s.EndTime().Sub(s.StartTime()).Milliseconds(),
			"status":      s.Status().Code.String(),
		}).Debug("span finished")
	}
	return nil
}

func (l *LogExporter) Shutdown(ctx context.Context) error {
	return nil
}
