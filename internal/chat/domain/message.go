package domain

import (
	"strings"
	"time"
)

// MessageID identifies a message. IDs are assigned monotonically by the store,
// so ordering by ID matches insertion order.
type MessageID int64

// Role is the closed set of message authors.
type Role string

const (
	// RoleUser marks a message written by the user.
	RoleUser Role = "user"

	// RoleAssistant marks a message produced by a model.
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// IsValid returns true if the role is user or assistant.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is one node of a thread's message tree.
// parentID never changes after creation; content may be edited in place.
type Message struct {
	id            MessageID
	threadID      ThreadID
	parentID      *MessageID
	activeChildID *MessageID
	role          Role
	content       string
	model         string
	errorText     string
	files         []FileRef
	createdAt     time.Time
}

// ReconstituteMessage rebuilds a Message from persisted state.
func ReconstituteMessage(
	id MessageID,
	threadID ThreadID,
	parentID *MessageID,
	activeChildID *MessageID,
	role Role,
	content string,
	model string,
	errorText string,
	createdAt time.Time,
) *Message {
	return &Message{
		id:            id,
		threadID:      threadID,
		parentID:      parentID,
		activeChildID: activeChildID,
		role:          role,
		content:       content,
		model:         model,
		errorText:     errorText,
		createdAt:     createdAt,
	}
}

// ID returns the message identifier.
func (m *Message) ID() MessageID {
	return m.id
}

// ThreadID returns the owning thread.
func (m *Message) ThreadID() ThreadID {
	return m.threadID
}

// ParentID returns the parent message, or nil for a root.
func (m *Message) ParentID() *MessageID {
	return m.parentID
}

// ActiveChildID returns the explicitly selected child, or nil when the newest
// child is active by default.
func (m *Message) ActiveChildID() *MessageID {
	return m.activeChildID
}

// Role returns who authored the message.
func (m *Message) Role() Role {
	return m.role
}

// Content returns the message text.
func (m *Message) Content() string {
	return m.content
}

// Model returns the model that produced the message, if any.
func (m *Message) Model() string {
	return m.model
}

// CreatedAt returns when the message was created.
func (m *Message) CreatedAt() time.Time {
	return m.createdAt
}

// ErrorText returns the failure recorded on an assistant message whose
// generation failed, or "" for a normal message.
func (m *Message) ErrorText() string {
	return m.errorText
}

// IsError reports whether the message records a failed generation.
func (m *Message) IsError() bool {
	return m.errorText != ""
}

// IsRoot reports whether the message has no parent.
func (m *Message) IsRoot() bool {
	return m.parentID == nil
}

// Files returns the attachment references loaded with the message.
func (m *Message) Files() []FileRef {
	return m.files
}

// SetFiles attaches loaded file references. Called by the persistence layer.
func (m *Message) SetFiles(files []FileRef) {
	m.files = files
}

// MessageDraft describes a message to be created.
type MessageDraft struct {
	ThreadID ThreadID
	ParentID *MessageID
	Role     Role
	Content  string
	Model    string
	// Error marks an assistant message recording a failed generation.
	Error string
	Files []FileUpload
}

// Validate checks the draft fields that do not require store access.
func (d MessageDraft) Validate() error {
	if d.ThreadID == "" {
		return &ValidationError{Field: "thread_id", Reason: "is required"}
	}
	if !d.Role.IsValid() {
		return &ValidationError{Field: "role", Reason: "must be user or assistant"}
	}
	if d.Error != "" && d.Role != RoleAssistant {
		return &ValidationError{Field: "error", Reason: "only assistant messages may carry an error"}
	}
	if d.Role == RoleUser && strings.TrimSpace(d.Content) == "" && len(d.Files) == 0 {
		return &ValidationError{Field: "content", Reason: "must not be empty without attachments"}
	}
	for _, f := range d.Files {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// BranchInfo describes a message's position among its siblings.
// Current is 1-based.
type BranchInfo struct {
	Siblings []*Message
	Current  int
	Total    int
}

// HasAlternatives reports whether there is more than one sibling.
func (b BranchInfo) HasAlternatives() bool {
	return b.Total > 1
}
