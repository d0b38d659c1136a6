package orchestrator

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/log"
	"github.com/zjrosen/forkchat/internal/tracing"
)

// ActivePath returns the thread's active root-to-leaf transcript, read fresh
// from the store.
func (o *Orchestrator) ActivePath(ctx context.Context, threadID domain.ThreadID) ([]*domain.Message, error) {
	var path []*domain.Message
	err := tracing.Span(ctx, o.tracer, tracing.SpanActivePath,
		[]attribute.KeyValue{attribute.String(tracing.AttrThreadID, string(threadID))},
		func(ctx context.Context) error {
			var err error
			path, err = o.resolver.ActivePath(ctx, threadID)
			return err
		})
	return path, err
}

// BranchInfo returns the sibling position of a message.
func (o *Orchestrator) BranchInfo(ctx context.Context, id domain.MessageID) (domain.BranchInfo, error) {
	return o.branches.Info(ctx, id)
}

// SwitchBranch makes target part of the active path. Nothing is created or
// deleted.
func (o *Orchestrator) SwitchBranch(ctx context.Context, threadID domain.ThreadID, target domain.MessageID) error {
	err := tracing.Span(ctx, o.tracer, tracing.SpanSwitchBranch,
		[]attribute.KeyValue{
			attribute.String(tracing.AttrThreadID, string(threadID)),
			attribute.Int64(tracing.AttrMessageID, int64(target)),
		},
		func(ctx context.Context) error {
			return o.branches.Switch(ctx, threadID, target)
		})
	if err != nil {
		return err
	}
	o.publish(Event{Kind: KindBranchSwitched, ThreadID: threadID, MessageID: target})
	return nil
}

// StepBranch switches to the sibling delta positions away from id and
// returns it.
func (o *Orchestrator) StepBranch(ctx context.Context, threadID domain.ThreadID, id domain.MessageID, delta int) (*domain.Message, error) {
	target, err := o.branches.Step(ctx, threadID, id, delta)
	if err != nil {
		return nil, err
	}
	o.publish(Event{Kind: KindBranchSwitched, ThreadID: threadID, MessageID: target.ID()})
	return target, nil
}

// DeleteMessage removes a message and its subtree and returns how many
// messages were removed. Deleting an already removed message returns 0.
func (o *Orchestrator) DeleteMessage(ctx context.Context, threadID domain.ThreadID, id domain.MessageID) (int, error) {
	n, err := o.messages.DeleteSubtree(ctx, threadID, id)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		o.publish(Event{Kind: KindMessagesDeleted, ThreadID: threadID, MessageID: id})
	}
	return n, nil
}

// Message returns a single message.
func (o *Orchestrator) Message(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	return o.messages.Get(ctx, id)
}

// Children returns the children of a message, oldest first.
func (o *Orchestrator) Children(ctx context.Context, id domain.MessageID) ([]*domain.Message, error) {
	return o.messages.Children(ctx, id)
}

// Thread returns a thread.
func (o *Orchestrator) Thread(ctx context.Context, id domain.ThreadID) (*domain.Thread, error) {
	return o.threads.Get(ctx, id)
}

// Threads lists threads, newest first.
func (o *Orchestrator) Threads(ctx context.Context, filter domain.ThreadFilter) ([]*domain.Thread, error) {
	return o.threads.List(ctx, filter)
}

// RenameThread sets a thread's title.
func (o *Orchestrator) RenameThread(ctx context.Context, id domain.ThreadID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return &domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if err := o.threads.Rename(ctx, id, title); err != nil {
		return err
	}
	o.publish(Event{Kind: KindThreadRenamed, ThreadID: id})
	return nil
}

// DeleteThread stops any generation on the thread and deletes it with all
// its messages, attachments and settings.
func (o *Orchestrator) DeleteThread(ctx context.Context, id domain.ThreadID) error {
	o.registry.Cancel(id)
	if err := o.threads.Delete(ctx, id); err != nil {
		return err
	}
	_ = o.settingsCache.Invalidate(ctx, id)
	o.publish(Event{Kind: KindThreadDeleted, ThreadID: id})
	log.Info(log.CatChat, "thread deleted", "thread", id)
	return nil
}

// ThreadSettings returns the thread's overrides, or nil when it has none.
// The result is a copy; changes go through SaveSettings.
func (o *Orchestrator) ThreadSettings(ctx context.Context, id domain.ThreadID) (*domain.ThreadSettings, error) {
	s, err := o.settingsCache.Get(ctx, id, id, o.cfg.SettingsTTL)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// SaveSettings stores the thread's overrides. They take effect on the next
// Send; a generation in flight keeps the settings it started with.
func (o *Orchestrator) SaveSettings(ctx context.Context, id domain.ThreadID, s *domain.ThreadSettings) error {
	if err := o.settings.Save(ctx, id, s); err != nil {
		return err
	}
	_ = o.settingsCache.Invalidate(ctx, id)
	o.publish(Event{Kind: KindSettingsSaved, ThreadID: id})
	return nil
}

// ResolvedSettings returns the settings a Send on id would use.
func (o *Orchestrator) ResolvedSettings(ctx context.Context, id domain.ThreadID) (domain.ResolvedSettings, error) {
	if id == "" {
		return o.DraftSettings().Resolve(o.cfg.Defaults), nil
	}
	if _, err := o.threads.Get(ctx, id); err != nil {
		return domain.ResolvedSettings{}, err
	}
	s, err := o.ThreadSettings(ctx, id)
	if err != nil {
		return domain.ResolvedSettings{}, err
	}
	return s.Resolve(o.cfg.Defaults), nil
}

// SetDraftSettings holds settings for the next thread created by Send.
func (o *Orchestrator) SetDraftSettings(s *domain.ThreadSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	o.draftMu.Lock()
	defer o.draftMu.Unlock()
	o.draft = s.Clone()
	return nil
}

// DraftSettings returns a copy of the pending draft settings.
func (o *Orchestrator) DraftSettings() *domain.ThreadSettings {
	o.draftMu.Lock()
	defer o.draftMu.Unlock()
	return o.draft.Clone()
}

func (o *Orchestrator) takeDraftSettings() *domain.ThreadSettings {
	o.draftMu.Lock()
	defer o.draftMu.Unlock()
	d := o.draft
	o.draft = nil
	return d
}

func (o *Orchestrator) loadSettings(ctx context.Context, id domain.ThreadID) (*domain.ThreadSettings, error) {
	s, err := o.settings.Get(ctx, id)
	if domain.IsNotFound(err) {
		return nil, nil
	}
	return s, err
}
