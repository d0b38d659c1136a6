package orchestrator

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/log"
	"github.com/zjrosen/forkchat/internal/tracing"
)

// Regenerate produces a new reply for messageID.
//
// For a user message its assistant children are deleted and a fresh reply is
// generated under it. For an assistant message the reply is regenerated from
// its parent: RegenerateReplace deletes the old reply (and its subtree)
// first, RegenerateBranch keeps it as a sibling of the new one.
func (o *Orchestrator) Regenerate(ctx context.Context, threadID domain.ThreadID, messageID domain.MessageID, opts RegenerateOptions) (res *SendResult, err error) {
	err = tracing.Span(ctx, o.tracer, tracing.SpanRegenerate,
		[]attribute.KeyValue{
			attribute.String(tracing.AttrThreadID, string(threadID)),
			attribute.Int64(tracing.AttrMessageID, int64(messageID)),
		},
		func(ctx context.Context) error {
			res, err = o.regenerate(ctx, threadID, messageID, opts)
			return err
		}, domain.ErrCancelled)
	return res, err
}

func (o *Orchestrator) regenerate(ctx context.Context, threadID domain.ThreadID, messageID domain.MessageID, opts RegenerateOptions) (*SendResult, error) {
	msg, err := o.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ThreadID() != threadID {
		return nil, domain.MessageNotFound(messageID)
	}

	req := SendRequest{
		ThreadID:     threadID,
		ProviderID:   opts.ProviderID,
		Model:        opts.Model,
		Stream:       opts.Stream,
		IsRegenerate: true,
	}

	var prepare func(ctx context.Context) error
	switch msg.Role() {
	case domain.RoleUser:
		parent := msg.ID()
		req.ParentID = &parent
		prepare = func(ctx context.Context) error {
			return o.deleteAssistantChildren(ctx, threadID, parent)
		}
	case domain.RoleAssistant:
		if msg.IsRoot() {
			return nil, &domain.ValidationError{Field: "message_id", Reason: "assistant message has no prompt to regenerate from"}
		}
		req.ParentID = msg.ParentID()
		if opts.Mode == RegenerateReplace {
			prepare = func(ctx context.Context) error {
				_, err := o.DeleteMessage(ctx, threadID, messageID)
				return err
			}
		}
	}

	log.Debug(log.CatChat, "regenerate", "thread", threadID, "message", messageID, "role", msg.Role(), "mode", opts.Mode)
	return o.send(ctx, req, prepare)
}

func (o *Orchestrator) deleteAssistantChildren(ctx context.Context, threadID domain.ThreadID, parent domain.MessageID) error {
	children, err := o.messages.Children(ctx, parent)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.Role() != domain.RoleAssistant {
			continue
		}
		if _, err := o.DeleteMessage(ctx, threadID, c.ID()); err != nil {
			return err
		}
	}
	return nil
}

// EditMessage changes a message's content.
//
// EditInPlace rewrites the content and applies file edits without changing
// the tree. EditAsBranch leaves the original untouched and creates a sibling
// with the edited content and the original's attachments, minus removals,
// plus additions; the sibling becomes active. With Resend, a user message
// edited as a branch is sent to the model instead.
func (o *Orchestrator) EditMessage(ctx context.Context, req EditRequest) (res *EditResult, err error) {
	err = tracing.Span(ctx, o.tracer, tracing.SpanEdit,
		[]attribute.KeyValue{
			attribute.String(tracing.AttrThreadID, string(req.ThreadID)),
			attribute.Int64(tracing.AttrMessageID, int64(req.MessageID)),
		},
		func(ctx context.Context) error {
			res, err = o.edit(ctx, req)
			return err
		}, domain.ErrCancelled)
	return res, err
}

func (o *Orchestrator) edit(ctx context.Context, req EditRequest) (*EditResult, error) {
	msg, err := o.messages.Get(ctx, req.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.ThreadID() != req.ThreadID {
		return nil, domain.MessageNotFound(req.MessageID)
	}
	if msg.IsError() {
		return nil, &domain.ValidationError{Field: "message_id", Reason: "failed replies cannot be edited; regenerate instead"}
	}

	if req.Mode == EditInPlace {
		if err := o.messages.UpdateContent(ctx, req.MessageID, req.Content, req.Files); err != nil {
			return nil, err
		}
		updated, err := o.messages.Get(ctx, req.MessageID)
		if err != nil {
			return nil, err
		}
		o.publish(Event{Kind: KindMessageEdited, ThreadID: req.ThreadID, MessageID: req.MessageID})
		return &EditResult{Message: updated}, nil
	}

	files, err := o.branchFiles(ctx, msg, req.Files)
	if err != nil {
		return nil, err
	}

	if req.Resend && msg.Role() == domain.RoleUser {
		reply, err := o.Send(ctx, SendRequest{
			ThreadID:    req.ThreadID,
			Text:        req.Content,
			Attachments: files,
			ParentID:    msg.ParentID(),
			AsRoot:      msg.IsRoot(),
			ProviderID:  req.ProviderID,
			Model:       req.Model,
			Stream:      req.Stream,
		})
		if reply == nil {
			return nil, err
		}
		return &EditResult{Message: reply.UserMessage, Reply: reply}, err
	}

	sibling, err := o.messages.Create(ctx, domain.MessageDraft{
		ThreadID: req.ThreadID,
		ParentID: msg.ParentID(),
		Role:     msg.Role(),
		Content:  req.Content,
		Model:    msg.Model(),
		Files:    files,
	})
	if err != nil {
		return nil, err
	}
	o.publish(Event{Kind: KindMessageEdited, ThreadID: req.ThreadID, MessageID: sibling.ID()})
	return &EditResult{Message: sibling}, nil
}

// branchFiles returns msg's attachments with edits applied, ready to be
// stored on a new sibling.
func (o *Orchestrator) branchFiles(ctx context.Context, msg *domain.Message, edits *domain.FileEdits) ([]domain.FileUpload, error) {
	refs, err := o.files.ListForMessage(ctx, msg.ID())
	if err != nil {
		return nil, err
	}

	var remove []domain.FileID
	var add []domain.FileUpload
	if edits != nil {
		remove, add = edits.Remove, edits.Add
	}
	for _, id := range remove {
		if !slices.ContainsFunc(refs, func(r domain.FileRef) bool { return r.ID == id }) {
			return nil, &domain.NotFoundError{Kind: "file", ID: string(id)}
		}
	}

	out := make([]domain.FileUpload, 0, len(refs)+len(add))
	for _, ref := range refs {
		if slices.Contains(remove, ref.ID) {
			continue
		}
		_, data, err := o.files.Open(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.FileUpload{Name: ref.Name, MimeType: ref.MimeType, Data: data})
	}
	return append(out, add...), nil
}
