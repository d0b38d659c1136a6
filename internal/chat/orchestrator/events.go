package orchestrator

import (
	"context"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/pubsub"
)

// EventKind says what changed. Events only signal that a re-read is due;
// the store remains the source of truth.
type EventKind string

const (
	KindThreadCreated    EventKind = "thread_created"
	KindThreadRenamed    EventKind = "thread_renamed"
	KindThreadDeleted    EventKind = "thread_deleted"
	KindUserMessage      EventKind = "user_message"
	KindDelta            EventKind = "delta"
	KindAssistantMessage EventKind = "assistant_message"
	KindAborted          EventKind = "aborted"
	KindBranchSwitched   EventKind = "branch_switched"
	KindMessageEdited    EventKind = "message_edited"
	KindMessagesDeleted  EventKind = "messages_deleted"
	KindSettingsSaved    EventKind = "settings_saved"
)

// Event is the payload published on the orchestrator's broker.
type Event struct {
	Kind      EventKind
	ThreadID  domain.ThreadID
	MessageID domain.MessageID
	Delta     string
	Err       error
}

func eventType(kind EventKind) pubsub.EventType {
	switch kind {
	case KindThreadCreated, KindUserMessage, KindAssistantMessage:
		return pubsub.CreatedEvent
	case KindDelta:
		return pubsub.StreamEvent
	case KindAborted:
		return pubsub.AbortedEvent
	case KindThreadDeleted, KindMessagesDeleted:
		return pubsub.DeletedEvent
	default:
		return pubsub.UpdatedEvent
	}
}

func (o *Orchestrator) publish(ev Event) {
	if o.broker == nil {
		return
	}
	o.broker.Publish(eventType(ev.Kind), ev)
}

// Subscribe returns events for threadID, or for every thread when threadID
// is empty. The channel closes when ctx is done.
func (o *Orchestrator) Subscribe(ctx context.Context, threadID domain.ThreadID) <-chan pubsub.Event[Event] {
	if threadID == "" {
		return o.broker.Subscribe(ctx)
	}
	return o.broker.SubscribeFunc(ctx, func(e pubsub.Event[Event]) bool {
		return e.Payload.ThreadID == threadID
	})
}
