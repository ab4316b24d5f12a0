package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "loopdesk"

// StartLifecycleSpan creates a span for an orchestrator transition.
func StartLifecycleSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, "lifecycle."+operation, trace.WithAttributes(attrs...))
}

// StartUpdateSpan creates a span for an update transaction step.
func StartUpdateSpan(ctx context.Context, operation, artifactPath string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	attrs = append(attrs, attribute.String("update.artifact", artifactPath))
	return tracer.Start(ctx, "update."+operation, trace.WithAttributes(attrs...))
}

// RecordError records an error on the span and marks it failed.
func RecordError(span trace.Span, err error, description string) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err, trace.WithAttributes(
		attribute.String("error.description", description),
	))
	span.SetStatus(codes.Error, description)
}
