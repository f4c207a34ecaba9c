package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "depositrelay"

// StartPublishSpan starts a span for routing one status event to subscribers.
func StartPublishSpan(ctx context.Context, depositID, status string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "deposit.publish",
		trace.WithAttributes(
			attribute.String("deposit.id", depositID),
			attribute.String("deposit.status", status),
		),
	)
}

// StartUpstreamSpan starts a span for a payment provider call.
func StartUpstreamSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "provider."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
