package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/forkchat/internal/chat/cancel"
	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/chat/title"
	"github.com/zjrosen/forkchat/internal/flags"
	"github.com/zjrosen/forkchat/internal/llm"
	"github.com/zjrosen/forkchat/internal/log"
	"github.com/zjrosen/forkchat/internal/metrics"
	"github.com/zjrosen/forkchat/internal/tracing"
)

// turn carries the state of one Send through its phases.
type turn struct {
	req      SendRequest
	res      *SendResult
	thread   *domain.Thread // nil until ensured
	settings domain.ResolvedSettings
	invoker  llm.Invoker
	stream   bool

	// replyParent is the message the assistant reply is stored under.
	replyParent domain.MessageID
}

func (t *turn) enter(s State) {
	t.res.State = s
	log.Debug(log.CatChat, "send state", "thread", t.res.ThreadID, "state", s)
}

// Send runs one turn: ensure the thread, persist the user message, generate
// and persist the reply.
//
// A cancelled generation (Stop, pre-emption by a newer Send on the same
// thread, or a done ctx) returns State Aborted and a nil error; nothing is
// persisted for the reply. A model failure is persisted as an error-marked
// assistant message and returned as a *domain.GenerationError alongside the
// result. Validation and lookup failures return before anything is written.
// A new thread gets a background title once its first turn is Finalized,
// even when the reply failed.
func (o *Orchestrator) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	return o.send(ctx, req, nil)
}

// send implements Send. prepare, if set, runs after the thread's previous
// generation has been pre-empted and before the user message is persisted.
func (o *Orchestrator) send(ctx context.Context, req SendRequest, prepare func(ctx context.Context) error) (res *SendResult, err error) {
	ctx, span := o.tracer.Start(ctx, tracing.SpanSend, trace.WithAttributes(
		attribute.String(tracing.AttrThreadID, string(req.ThreadID)),
		attribute.Bool(tracing.AttrRegenerate, req.IsRegenerate),
	))
	defer func() {
		if res != nil {
			span.SetAttributes(attribute.String(tracing.AttrOutcome, string(res.State)))
		}
		tracing.End(span, err)
		span.End()
	}()

	t := &turn{req: req, res: &SendResult{ThreadID: req.ThreadID, State: StateIdle}}
	if err := o.validate(ctx, t); err != nil {
		return nil, err
	}

	if err := o.ensureThread(ctx, t); err != nil {
		return nil, err
	}
	t.enter(StateThreadEnsured)

	// Pre-empt before choosing the parent so the replaced generation cannot
	// commit a reply underneath us.
	h := o.registry.Begin(ctx, t.res.ThreadID)
	defer o.registry.End(h)

	if prepare != nil {
		if err := prepare(ctx); err != nil {
			return t.res, err
		}
	}

	if err := o.persistUserMessage(ctx, t); err != nil {
		return t.res, err
	}
	t.enter(StateUserMessagePersisted)

	// A failed reply is still Finalized, so a new thread gets its title
	// either way.
	err = o.runGeneration(ctx, h, t)
	if t.res.State == StateFinalized && t.res.ThreadCreated {
		o.maybeGenerateTitle(t)
	}
	return t.res, err
}

// validate checks everything that can be checked without writing: request
// shape, thread and parent existence, settings and model availability.
func (o *Orchestrator) validate(ctx context.Context, t *turn) error {
	req := t.req
	if req.IsRegenerate {
		if req.ThreadID == "" {
			return &domain.ValidationError{Field: "thread_id", Reason: "is required to regenerate"}
		}
		if req.ParentID == nil {
			return &domain.ValidationError{Field: "parent_id", Reason: "is required to regenerate"}
		}
	} else if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return &domain.ValidationError{Field: "text", Reason: "must not be empty without attachments"}
	}
	if req.AsRoot && req.ParentID != nil {
		return &domain.ValidationError{Reason: "parent_id and as_root are mutually exclusive"}
	}
	for _, f := range req.Attachments {
		if err := f.Validate(); err != nil {
			return err
		}
	}

	var overrides *domain.ThreadSettings
	if req.ThreadID != "" {
		thread, err := o.threads.Get(ctx, req.ThreadID)
		if err != nil {
			return err
		}
		t.thread = thread
		if overrides, err = o.ThreadSettings(ctx, req.ThreadID); err != nil {
			return err
		}
	} else {
		overrides = o.DraftSettings()
	}

	if req.ParentID != nil {
		if req.ThreadID == "" {
			return &domain.ValidationError{Field: "parent_id", Reason: "requires an existing thread"}
		}
		parent, err := o.messages.Get(ctx, *req.ParentID)
		if err != nil {
			return err
		}
		if parent.ThreadID() != req.ThreadID {
			return &domain.ValidationError{Field: "parent_id", Reason: "belongs to a different thread"}
		}
	}

	t.settings = overrides.Resolve(o.cfg.Defaults)
	if req.ProviderID != "" {
		t.settings.ProviderID = req.ProviderID
	}
	if req.Model != "" {
		t.settings.ModelID = req.Model
	}
	if t.settings.ModelID == "" {
		return &domain.ValidationError{Field: "model", Reason: "is required"}
	}

	inv, err := o.invokers.Invoker(t.settings.ProviderID)
	if err != nil {
		return &domain.ValidationError{Field: "provider", Reason: err.Error()}
	}
	if v, ok := inv.(llm.ModelValidator); ok {
		if err := v.ValidateModel(t.settings.ModelID); err != nil {
			return &domain.ValidationError{Field: "model", Reason: err.Error()}
		}
	}
	t.invoker = inv

	t.stream = o.cfg.Stream
	if req.Stream != nil {
		t.stream = *req.Stream
	}
	return nil
}

// ensureThread creates the thread on first send and stores any pending
// draft settings against it.
func (o *Orchestrator) ensureThread(ctx context.Context, t *turn) error {
	if t.thread != nil {
		return nil
	}

	thread := domain.NewThread(o.newThreadID(), title.SeedTitle(t.req.Text))
	if err := o.threads.Create(ctx, thread); err != nil {
		return err
	}
	t.thread = thread
	t.res.ThreadID = thread.ID()
	t.res.ThreadCreated = true
	trace.SpanFromContext(ctx).AddEvent(tracing.EventThreadCreated,
		trace.WithAttributes(attribute.String(tracing.AttrThreadID, string(thread.ID()))))
	log.Info(log.CatChat, "thread created", "thread", thread.ID(), "title", thread.Title())

	if draft := o.takeDraftSettings(); !draft.IsEmpty() {
		if err := o.settings.Save(ctx, thread.ID(), draft); err != nil {
			return fmt.Errorf("failed to save draft settings: %w", err)
		}
	}
	o.publish(Event{Kind: KindThreadCreated, ThreadID: thread.ID()})
	return nil
}

// persistUserMessage stores the user message under the requested parent or
// the active leaf. Regenerations store nothing and reply under ParentID.
func (o *Orchestrator) persistUserMessage(ctx context.Context, t *turn) error {
	if t.req.IsRegenerate {
		t.replyParent = *t.req.ParentID
		return nil
	}

	parent := t.req.ParentID
	if parent == nil && !t.req.AsRoot {
		leaf, err := o.resolver.ActiveLeaf(ctx, t.res.ThreadID)
		if err != nil {
			return err
		}
		if leaf != nil {
			id := leaf.ID()
			parent = &id
		}
	}

	msg, err := o.messages.Create(ctx, domain.MessageDraft{
		ThreadID: t.res.ThreadID,
		ParentID: parent,
		Role:     domain.RoleUser,
		Content:  t.req.Text,
		Files:    t.req.Attachments,
	})
	if err != nil {
		return err
	}
	t.res.UserMessage = msg
	t.replyParent = msg.ID()

	trace.SpanFromContext(ctx).AddEvent(tracing.EventUserPersisted,
		trace.WithAttributes(attribute.Int64(tracing.AttrMessageID, int64(msg.ID()))))
	o.publish(Event{Kind: KindUserMessage, ThreadID: t.res.ThreadID, MessageID: msg.ID()})
	if t.req.OnUserMessageSaved != nil {
		t.req.OnUserMessageSaved(msg)
	}
	return nil
}

// runGeneration invokes the model under h and settles the turn as Finalized
// or Aborted.
func (o *Orchestrator) runGeneration(ctx context.Context, h *cancel.Handle, t *turn) error {
	t.enter(StateGenerating)
	start := time.Now()

	llmReq, err := o.buildRequest(ctx, t)
	if err != nil {
		return err
	}

	gctx, span := o.tracer.Start(h.Context(), tracing.SpanGenerate, trace.WithAttributes(
		attribute.String(tracing.AttrThreadID, string(t.res.ThreadID)),
		attribute.Int64(tracing.AttrParentID, int64(t.replyParent)),
		attribute.String(tracing.AttrProvider, t.settings.ProviderID),
		attribute.String(tracing.AttrModel, t.settings.ModelID),
		attribute.Bool(tracing.AttrStream, t.stream),
		attribute.Int(tracing.AttrPathLength, len(llmReq.Messages)),
	))
	defer span.End()

	if o.flags.Enabled(flags.FlagTokenEstimates) {
		n := llm.EstimateRequestTokens(llmReq)
		t.res.Tokens = metrics.TokenMetrics{PromptTokens: n, Estimated: true}
		span.SetAttributes(attribute.Int(tracing.AttrPromptTokens, n))
		log.Debug(log.CatChat, "prompt estimate", "thread", t.res.ThreadID, "tokens", n)
	}

	out, genErr := o.generate(gctx, t, llmReq)
	span.SetAttributes(attribute.Int(tracing.AttrChunks, out.chunks))
	o.metrics.AddChunks(out.chunks)
	if out.usage != nil {
		t.res.Tokens = metrics.TokenMetrics{
			PromptTokens:     out.usage.PromptTokens,
			CompletionTokens: out.usage.CompletionTokens,
		}
		o.metrics.AddTokens(out.usage.PromptTokens, out.usage.CompletionTokens)
	}

	if cause := h.Err(); cause != nil {
		o.abort(t, cause, start)
		tracing.End(span, cause, domain.ErrCancelled, context.Canceled, context.DeadlineExceeded)
		return nil
	}

	draft := domain.MessageDraft{
		ThreadID: t.res.ThreadID,
		ParentID: &t.replyParent,
		Role:     domain.RoleAssistant,
		Content:  out.content,
		Model:    t.settings.ModelID,
	}
	if genErr != nil {
		draft.Error = genErr.Error()
	}

	var reply *domain.Message
	err = h.Commit(func() error {
		var err error
		reply, err = o.messages.Create(ctx, draft)
		return err
	})
	if errors.Is(err, domain.ErrCancelled) || (err != nil && h.Err() != nil) {
		o.abort(t, h.Err(), start)
		tracing.End(span, err, domain.ErrCancelled, context.Canceled, context.DeadlineExceeded)
		return nil
	}
	if err != nil {
		tracing.End(span, err)
		o.metrics.ObserveGeneration(metrics.OutcomeFailed, time.Since(start))
		return err
	}

	t.res.Assistant = reply
	t.enter(StateFinalized)
	span.AddEvent(tracing.EventAssistantStored,
		trace.WithAttributes(attribute.Int64(tracing.AttrMessageID, int64(reply.ID()))))
	o.publish(Event{Kind: KindAssistantMessage, ThreadID: t.res.ThreadID, MessageID: reply.ID(), Err: genErr})

	if genErr != nil {
		tracing.End(span, genErr)
		o.metrics.ObserveGeneration(metrics.OutcomeFailed, time.Since(start))
		log.ErrorErr(log.CatChat, "generation failed", genErr,
			"thread", t.res.ThreadID, "model", t.settings.ModelID, "message", reply.ID())
		return &domain.GenerationError{Model: t.settings.ModelID, Err: genErr}
	}

	tracing.End(span, nil)
	o.metrics.ObserveGeneration(metrics.OutcomeFinalized, time.Since(start))
	log.Info(log.CatChat, "generation finalized",
		"thread", t.res.ThreadID, "message", reply.ID(), "chunks", out.chunks,
		"elapsed", time.Since(start).Round(time.Millisecond), "trace", tracing.TraceIDFromContext(gctx))
	return nil
}

func (o *Orchestrator) abort(t *turn, cause error, start time.Time) {
	t.enter(StateAborted)
	o.metrics.ObserveGeneration(metrics.OutcomeAborted, time.Since(start))
	o.publish(Event{Kind: KindAborted, ThreadID: t.res.ThreadID, MessageID: t.replyParent, Err: cause})
	log.Info(log.CatChat, "generation aborted", "thread", t.res.ThreadID, "cause", cause)
}

// maybeGenerateTitle starts title generation for a thread created by this
// turn. The task is detached; its failure is only logged.
func (o *Orchestrator) maybeGenerateTitle(t *turn) {
	if o.titles == nil || !o.flags.Enabled(flags.FlagAutoTitle) {
		return
	}
	threadID := t.res.ThreadID
	providerID, model := t.settings.ProviderID, t.settings.ModelID
	if o.cfg.TitleProviderID != "" {
		providerID = o.cfg.TitleProviderID
	}
	if o.cfg.TitleModel != "" {
		model = o.cfg.TitleModel
	}

	o.goBackground("title:"+string(threadID), o.cfg.TitleTimeout, func(ctx context.Context) {
		ctx, span := o.tracer.Start(ctx, tracing.SpanTitle, trace.WithAttributes(
			attribute.String(tracing.AttrThreadID, string(threadID)),
			attribute.String(tracing.AttrModel, model),
		))
		defer span.End()

		err := o.titles.Generate(ctx, threadID, providerID, model)
		tracing.End(span, err)
		if err != nil {
			log.Warn(log.CatTitle, "title generation failed", "thread", threadID, "error", err)
			return
		}
		o.publish(Event{Kind: KindThreadRenamed, ThreadID: threadID})
	})
}
