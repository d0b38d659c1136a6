package domain

import "context"

// ThreadFilter provides filtering options for listing threads.
type ThreadFilter struct {
	// Limit restricts the number of threads returned. If 0, no limit is applied.
	Limit int

	// Offset skips the first N threads (for pagination).
	Offset int
}

// ThreadRepository defines the persistence interface for Thread entities.
type ThreadRepository interface {
	// Create persists a new thread. The thread's ID must be set by the caller.
	Create(ctx context.Context, thread *Thread) error

	// Get retrieves a thread by ID. Returns NotFoundError if it does not exist.
	Get(ctx context.Context, id ThreadID) (*Thread, error)

	// List returns threads ordered by created_at descending (newest first).
	List(ctx context.Context, filter ThreadFilter) ([]*Thread, error)

	// Rename updates the thread title. Returns NotFoundError if it does not exist.
	Rename(ctx context.Context, id ThreadID, title string) error

	// Delete removes the thread with all of its messages, attachments and
	// settings. Returns NotFoundError if it does not exist.
	Delete(ctx context.Context, id ThreadID) error
}

// TreeReader is a consistent read view over one snapshot of the message tree.
// Every method observes the same committed state.
type TreeReader interface {
	// Thread returns the thread or NotFoundError.
	Thread(ctx context.Context, id ThreadID) (*Thread, error)

	// Message returns the message or NotFoundError.
	Message(ctx context.Context, id MessageID) (*Message, error)

	// Roots returns the thread's messages with no parent, oldest first.
	Roots(ctx context.Context, threadID ThreadID) ([]*Message, error)

	// Children returns the children of parentID, oldest first (ties by ID).
	Children(ctx context.Context, parentID MessageID) ([]*Message, error)

	// LatestRoot returns the newest root of the thread, or nil if it has none.
	LatestRoot(ctx context.Context, threadID ThreadID) (*Message, error)

	// LatestChild returns the newest child of parentID, or nil if it has none.
	LatestChild(ctx context.Context, parentID MessageID) (*Message, error)

	// AttachFiles loads attachment references onto the given messages with a
	// single query.
	AttachFiles(ctx context.Context, msgs []*Message) error
}

// MessageRepository defines the persistence interface for the message tree.
// Each write runs in its own transaction.
type MessageRepository interface {
	// Create persists a new message and makes it the active child of its parent
	// (or the thread's active root). Returns ValidationError if the parent does
	// not belong to the draft's thread, NotFoundError if the thread is missing.
	Create(ctx context.Context, draft MessageDraft) (*Message, error)

	// Get retrieves a message with its attachment references.
	// Returns NotFoundError if it does not exist.
	Get(ctx context.Context, id MessageID) (*Message, error)

	// Children returns the children of id, oldest first (ties by ID).
	Children(ctx context.Context, id MessageID) ([]*Message, error)

	// UpdateContent replaces the message content in place and applies file
	// edits. The tree shape is untouched. Returns NotFoundError if missing.
	UpdateContent(ctx context.Context, id MessageID, content string, edits *FileEdits) error

	// DeleteSubtree removes the message, all of its descendants and their
	// attachments in one transaction. Deleting an already-removed message is a
	// no-op. Returns ValidationError if the message belongs to another thread.
	DeleteSubtree(ctx context.Context, threadID ThreadID, id MessageID) (int, error)

	// SetActive points the active-child pointer of target's parent (or the
	// thread's root pointer) at target. Returns NotFoundError if target is not
	// in the thread.
	SetActive(ctx context.Context, threadID ThreadID, target MessageID) error

	// Snapshot runs fn against a consistent read-only view of the tree.
	Snapshot(ctx context.Context, fn func(TreeReader) error) error
}

// SettingsRepository persists per-thread settings.
type SettingsRepository interface {
	// Get returns the thread's settings or NotFoundError if none were saved.
	Get(ctx context.Context, threadID ThreadID) (*ThreadSettings, error)

	// Save creates or replaces the thread's settings.
	Save(ctx context.Context, threadID ThreadID, settings *ThreadSettings) error

	// Delete removes the thread's overrides. Deleting absent settings is a no-op.
	Delete(ctx context.Context, threadID ThreadID) error
}

// FileRepository reads attachment blobs.
type FileRepository interface {
	// Open returns the attachment metadata and its bytes.
	// Returns NotFoundError if the file does not exist.
	Open(ctx context.Context, id FileID) (*FileRef, []byte, error)

	// ListForMessage returns the attachment references of a message.
	ListForMessage(ctx context.Context, id MessageID) ([]FileRef, error)
}
