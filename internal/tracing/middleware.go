package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span runs fn inside a span named name and records its outcome. Errors that
// match any of quiet (typically cancellation) end the span with an event
// instead of an error status.
func Span(ctx context.Context, tracer trace.Tracer, name string, attrs []attribute.KeyValue, fn func(ctx context.Context) error, quiet ...error) error {
	if tracer == nil {
		return fn(ctx)
	}

	ctx, span := tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	err := fn(ctx)
	End(span, err, quiet...)
	return err
}

// End sets the status of span from err without ending it.
func End(span trace.Span, err error, quiet ...error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	for _, q := range quiet {
		if errors.Is(err, q) {
			span.AddEvent(EventCancelled, trace.WithAttributes(attribute.String(AttrErrorMessage, err.Error())))
			return
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
