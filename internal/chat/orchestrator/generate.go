package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/llm"
	"github.com/zjrosen/forkchat/internal/tracing"
)

// generation is what came back from the model, possibly partial.
type generation struct {
	content string
	chunks  int
	usage   *llm.Usage
}

// buildRequest assembles the transcript ending at the reply's parent.
func (o *Orchestrator) buildRequest(ctx context.Context, t *turn) (llm.Request, error) {
	path, err := o.resolver.PathTo(ctx, t.replyParent)
	if err != nil {
		return llm.Request{}, err
	}
	msgs, err := o.transcript(ctx, path, t.settings.ContextWindow)
	if err != nil {
		return llm.Request{}, err
	}
	return llm.Request{
		Model:     t.settings.ModelID,
		System:    t.settings.SystemPrompt,
		Messages:  msgs,
		MaxTokens: t.settings.MaxTokens,
		Params:    t.settings.ExtraParams,
	}, nil
}

// transcript converts path to model messages. Error-marked replies are
// dropped, and a positive window keeps only the most recent messages.
func (o *Orchestrator) transcript(ctx context.Context, path []*domain.Message, window int) ([]llm.Message, error) {
	kept := make([]*domain.Message, 0, len(path))
	for _, m := range path {
		if m.IsError() {
			continue
		}
		kept = append(kept, m)
	}
	if window > 0 && len(kept) > window {
		kept = kept[len(kept)-window:]
	}

	out := make([]llm.Message, 0, len(kept))
	for _, m := range kept {
		lm := llm.Message{Role: string(m.Role()), Content: m.Content()}
		for _, ref := range m.Files() {
			_, data, err := o.files.Open(ctx, ref.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to load attachment %s: %w", ref.ID, err)
			}
			lm.Attachments = append(lm.Attachments, llm.Attachment{Name: ref.Name, MimeType: ref.MimeType, Data: data})
		}
		out = append(out, lm)
	}
	return out, nil
}

// generate calls the model. In stream mode the context is checked before
// every chunk, and each delta is published as it arrives. On error the text
// received so far is returned with it.
func (o *Orchestrator) generate(ctx context.Context, t *turn, req llm.Request) (out generation, err error) {
	if !t.stream {
		c, err := t.invoker.Complete(ctx, req)
		if err != nil {
			return out, err
		}
		out.content = c.Content
		out.usage = c.Usage
		return out, nil
	}

	stream, err := t.invoker.Stream(ctx, req)
	if err != nil {
		return out, err
	}
	defer func() { _ = stream.Close() }()

	var sb strings.Builder
	defer func() { out.content = sb.String() }()

	span := trace.SpanFromContext(ctx)
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if chunk.Usage != nil {
			out.usage = chunk.Usage
		}
		if chunk.Delta == "" {
			continue
		}
		if out.chunks == 0 {
			span.AddEvent(tracing.EventFirstChunk)
		}
		out.chunks++
		sb.WriteString(chunk.Delta)
		o.publish(Event{Kind: KindDelta, ThreadID: t.res.ThreadID, MessageID: t.replyParent, Delta: chunk.Delta})
	}
}
