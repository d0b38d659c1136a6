package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recorderTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec, tp
}

func TestSpan_Success(t *testing.T) {
	rec, tp := recorderTracer(t)

	err := Span(context.Background(), tp.Tracer("test"), SpanSend,
		[]attribute.KeyValue{attribute.String(AttrThreadID, "t1")},
		func(ctx context.Context) error {
			require.NotEmpty(t, TraceIDFromContext(ctx))
			return nil
		})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, SpanSend, spans[0].Name())
	require.Equal(t, codes.Ok, spans[0].Status().Code)
	require.Contains(t, spans[0].Attributes(), attribute.String(AttrThreadID, "t1"))
}

func TestSpan_Error(t *testing.T) {
	rec, tp := recorderTracer(t)
	boom := errors.New("boom")

	err := Span(context.Background(), tp.Tracer("test"), SpanGenerate, nil,
		func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, "boom", spans[0].Status().Description)
}

func TestSpan_QuietError(t *testing.T) {
	rec, tp := recorderTracer(t)

	err := Span(context.Background(), tp.Tracer("test"), SpanGenerate, nil,
		func(context.Context) error { return context.Canceled }, context.Canceled)
	require.ErrorIs(t, err, context.Canceled)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Len(t, spans[0].Events(), 1)
	require.Equal(t, EventCancelled, spans[0].Events()[0].Name)
}

func TestSpan_NilTracer(t *testing.T) {
	called := false
	err := Span(context.Background(), nil, SpanSend, nil, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
}
