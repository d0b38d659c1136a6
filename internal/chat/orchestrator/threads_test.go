package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/metrics"
	"github.com/zjrosen/forkchat/internal/pubsub"
	"github.com/zjrosen/forkchat/internal/testutil"
	"github.com/zjrosen/forkchat/internal/tracing"
)

func TestSettings_ThreadOverrides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).WithLinearConversation("t1", 4).Build()

	// Populate the cache with "no overrides" first.
	s, err := h.orch.ThreadSettings(ctx, tr.Thread)
	require.NoError(t, err)
	require.Nil(t, s)

	require.NoError(t, h.orch.SaveSettings(ctx, tr.Thread, &domain.ThreadSettings{
		ModelID:       domain.Ptr("big-model"),
		SystemPrompt:  domain.Ptr("be brief"),
		ContextWindow: domain.Ptr(2),
		MaxTokens:     domain.Ptr(64),
		ExtraParams:   map[string]any{"temperature": 0.3},
	}))

	resolved, err := h.orch.ResolvedSettings(ctx, tr.Thread)
	require.NoError(t, err)
	require.Equal(t, "mock", resolved.ProviderID)
	require.Equal(t, "big-model", resolved.ModelID)

	_, err = h.orch.Send(ctx, SendRequest{ThreadID: tr.Thread, Text: "next"})
	require.NoError(t, err)

	req, _ := h.inv.LastRequest()
	require.Equal(t, "big-model", req.Model)
	require.Equal(t, "be brief", req.System)
	require.Equal(t, 64, req.MaxTokens)
	require.Equal(t, 0.3, req.Params["temperature"])
	require.Equal(t, []string{"answer 1", "next"}, transcriptContents(req))

	// A per-call override does not touch the stored settings.
	_, err = h.orch.Send(ctx, SendRequest{ThreadID: tr.Thread, Text: "again", Model: "small-model"})
	require.NoError(t, err)
	req, _ = h.inv.LastRequest()
	require.Equal(t, "small-model", req.Model)

	s, err = h.orch.ThreadSettings(ctx, tr.Thread)
	require.NoError(t, err)
	require.Equal(t, "big-model", *s.ModelID)

	// Returned settings are copies.
	*s.ModelID = "mutated"
	s, err = h.orch.ThreadSettings(ctx, tr.Thread)
	require.NoError(t, err)
	require.Equal(t, "big-model", *s.ModelID)
}

func TestSettings_DraftAppliedToNewThread(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.Error(t, h.orch.SetDraftSettings(&domain.ThreadSettings{MaxTokens: domain.Ptr(-1)}))
	require.NoError(t, h.orch.SetDraftSettings(&domain.ThreadSettings{ModelID: domain.Ptr("draft-model")}))

	resolved, err := h.orch.ResolvedSettings(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "draft-model", resolved.ModelID)

	res, err := h.orch.Send(ctx, SendRequest{Text: "hi"})
	require.NoError(t, err)
	req, _ := h.inv.LastRequest()
	require.Equal(t, "draft-model", req.Model)

	s, err := h.orch.ThreadSettings(ctx, res.ThreadID)
	require.NoError(t, err)
	require.Equal(t, "draft-model", *s.ModelID)
	require.Nil(t, h.orch.DraftSettings())

	_, err = h.orch.ResolvedSettings(ctx, "missing")
	require.True(t, domain.IsNotFound(err))
}

func TestThreads_RenameAndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).WithBranchedConversation("t1").Build()

	require.True(t, domain.IsValidation(h.orch.RenameThread(ctx, tr.Thread, "   ")))
	require.NoError(t, h.orch.RenameThread(ctx, tr.Thread, " Greetings "))
	thread, err := h.orch.Thread(ctx, tr.Thread)
	require.NoError(t, err)
	require.Equal(t, "Greetings", thread.Title())

	n, err := h.orch.DeleteMessage(ctx, tr.Thread, tr.ID("a1"))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	n, err = h.orch.DeleteMessage(ctx, tr.Thread, tr.ID("a1"))
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, []string{"Hi", "Hey there"}, contents(h.path(tr.Thread)))

	require.NoError(t, h.orch.DeleteThread(ctx, tr.Thread))
	_, err = h.orch.Thread(ctx, tr.Thread)
	require.True(t, domain.IsNotFound(err))
	_, err = h.orch.ActivePath(ctx, tr.Thread)
	require.True(t, domain.IsNotFound(err))
}

func TestThreads_DeleteStopsGeneration(t *testing.T) {
	h := newHarness(t)
	testutil.NewBuilder(t, h.db).WithThread("t1").Build()
	gates := h.gateStreams()

	done := h.sendAsync(SendRequest{ThreadID: "t1", Text: "hi"})
	g := recvGate(t, gates)

	require.NoError(t, h.orch.DeleteThread(context.Background(), "t1"))
	g.Send("too late")
	g.Finish()

	out := recvOutcome(t, done)
	require.NoError(t, out.err)
	require.Equal(t, StateAborted, out.res.State)
	require.False(t, h.orch.Generating("t1"))
}

func TestThreads_StepBranch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).WithBranchedConversation("t1").Build()

	target, err := h.orch.StepBranch(ctx, tr.Thread, tr.ID("a1b"), -1)
	require.NoError(t, err)
	require.Equal(t, tr.ID("a1"), target.ID())
	require.Equal(t, []string{"Hi", "Hello", "How are you?", "Fine, thanks"}, contents(h.path(tr.Thread)))
}

func TestSubscribe_TurnEvents(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	testutil.NewBuilder(t, h.db).WithThread("t1").WithThread("t2").Build()

	events := h.orch.Subscribe(ctx, "t1")
	_, err := h.orch.Send(ctx, SendRequest{ThreadID: "t2", Text: "ignored"})
	require.NoError(t, err)
	_, err = h.orch.Send(ctx, SendRequest{ThreadID: "t1", Text: "two words"})
	require.NoError(t, err)

	var kinds []EventKind
	var deltas string
	for len(kinds) == 0 || kinds[len(kinds)-1] != KindAssistantMessage {
		select {
		case ev := <-events:
			require.Equal(t, domain.ThreadID("t1"), ev.Payload.ThreadID)
			kinds = append(kinds, ev.Payload.Kind)
			if ev.Payload.Kind == KindDelta {
				require.Equal(t, pubsub.StreamEvent, ev.Type)
				deltas += ev.Payload.Delta
			}
		case <-time.After(waitTimeout):
			t.Fatalf("missing events, got %v", kinds)
		}
	}
	require.Equal(t, []EventKind{KindUserMessage, KindDelta, KindDelta, KindDelta, KindAssistantMessage}, kinds)
	require.Equal(t, "Echo: two words", deltas)
}

func TestMetricsAndSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	m := metrics.New(nil)

	h := newHarness(t, func(d *Deps, _ *Config) {
		d.Tracer = tp.Tracer("test")
		d.Metrics = m
	})
	testutil.NewBuilder(t, h.db).WithThread("t1").Build()

	_, err := h.orch.Send(context.Background(), SendRequest{ThreadID: "t1", Text: "hi there"})
	require.NoError(t, err)

	require.Equal(t, 1.0, counterValue(t, m, "forkchat_generations_total", "outcome", metrics.OutcomeFinalized))
	require.Equal(t, 3.0, counterValue(t, m, "forkchat_stream_chunks_total", "", ""))

	var send, generate sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		switch s.Name() {
		case tracing.SpanSend:
			send = s
		case tracing.SpanGenerate:
			generate = s
		}
	}
	require.NotNil(t, send)
	require.NotNil(t, generate)
	require.Equal(t, send.SpanContext().SpanID(), generate.Parent().SpanID())
}

// counterValue reads a counter from the collectors' registry. An empty label
// matches the unlabelled series.
func counterValue(t *testing.T, c *metrics.Collectors, name, label, value string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if label == "" {
				return metric.GetCounter().GetValue()
			}
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
