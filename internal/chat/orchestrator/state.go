package orchestrator

import (
	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/metrics"
)

// State is the progress of one Send.
//
//	Idle -> ThreadEnsured -> UserMessagePersisted -> Generating -> Finalized
//	                                                       \-> Aborted
type State string

const (
	StateIdle                 State = "idle"
	StateThreadEnsured        State = "thread_ensured"
	StateUserMessagePersisted State = "user_message_persisted"
	StateGenerating           State = "generating"
	StateFinalized            State = "finalized"
	StateAborted              State = "aborted"
)

// SendRequest describes one user turn or a regeneration.
type SendRequest struct {
	// ThreadID selects an existing thread. Empty creates a new thread titled
	// from Text.
	ThreadID domain.ThreadID

	Text        string
	Attachments []domain.FileUpload

	// ProviderID and Model override the thread settings for this call only.
	ProviderID string
	Model      string

	// Stream selects streamed delivery. Nil uses the configured default.
	Stream *bool

	// ParentID places the user message (or, with IsRegenerate, the new
	// assistant message) under a specific message instead of the active leaf.
	ParentID *domain.MessageID

	// AsRoot places the user message at the top of the thread as a new root.
	AsRoot bool

	// IsRegenerate skips the user message: the reply is generated for the
	// transcript ending at ParentID and stored as a new child of it.
	IsRegenerate bool

	// OnUserMessageSaved is called once the user message is persisted,
	// before the model is invoked.
	OnUserMessageSaved func(*domain.Message)
}

// SendResult reports how far a Send got.
type SendResult struct {
	ThreadID domain.ThreadID
	State    State

	// ThreadCreated is set when this call created the thread.
	ThreadCreated bool

	// UserMessage is the persisted user message; nil for regenerations.
	UserMessage *domain.Message

	// Assistant is the persisted reply; nil when aborted. On a generation
	// failure it is the error-marked message.
	Assistant *domain.Message

	Tokens metrics.TokenMetrics
}

// RegenerateMode selects what happens to an assistant message being
// regenerated.
type RegenerateMode int

const (
	// RegenerateReplace deletes the message and its subtree first.
	RegenerateReplace RegenerateMode = iota
	// RegenerateBranch keeps the message and adds the new reply as a sibling.
	RegenerateBranch
)

// RegenerateOptions tunes a regeneration.
type RegenerateOptions struct {
	Mode       RegenerateMode
	ProviderID string
	Model      string
	Stream     *bool
}

// EditMode selects how a message edit is applied.
type EditMode int

const (
	// EditInPlace rewrites the message content; the tree shape is unchanged.
	EditInPlace EditMode = iota
	// EditAsBranch creates a sibling carrying the edited content; the original
	// and its subtree stay untouched.
	EditAsBranch
)

// EditRequest describes a message edit.
type EditRequest struct {
	ThreadID  domain.ThreadID
	MessageID domain.MessageID
	Content   string
	Files     *domain.FileEdits
	Mode      EditMode

	// Resend generates a reply to a user message edited as a branch.
	Resend bool

	ProviderID string
	Model      string
	Stream     *bool
}

// EditResult reports the outcome of an edit.
type EditResult struct {
	// Message is the edited message (in place) or the new sibling (branch).
	Message *domain.Message

	// Reply is set when the edit was resent.
	Reply *SendResult
}
