// Package domain provides the pure domain layer for branching conversations.
//
// This package has no infrastructure dependencies:
//   - Defines the Thread and Message entities with encapsulated state
//   - Defines ThreadSettings as a partial configuration (nil means "not set")
//   - Defines the repository interfaces the persistence layer implements
//   - Provides the error taxonomy shared by the store and the orchestrator
//
// A thread's messages form a tree through parent pointers. Each parent (and
// the thread itself, for root messages) may carry an active-child pointer that
// selects which child continues the active path.
package domain

import "time"

// ThreadID identifies a thread. Thread IDs are UUID strings assigned by the caller.
type ThreadID string

// String returns the string form of the ID.
func (id ThreadID) String() string {
	return string(id)
}

// Thread is a conversation owning a tree of messages.
type Thread struct {
	id           ThreadID
	title        string
	activeRootID *MessageID
	createdAt    time.Time
	updatedAt    time.Time
}

// NewThread creates a new Thread with the given ID and title.
// createdAt and updatedAt are set to the current time.
func NewThread(id ThreadID, title string) *Thread {
	now := time.Now()
	return &Thread{
		id:        id,
		title:     title,
		createdAt: now,
		updatedAt: now,
	}
}

// ReconstituteThread rebuilds a Thread from persisted state.
func ReconstituteThread(id ThreadID, title string, activeRootID *MessageID, createdAt, updatedAt time.Time) *Thread {
	return &Thread{
		id:           id,
		title:        title,
		activeRootID: activeRootID,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

// ID returns the thread identifier.
func (t *Thread) ID() ThreadID {
	return t.id
}

// Title returns the thread title.
func (t *Thread) Title() string {
	return t.title
}

// ActiveRootID returns the explicitly selected root message, or nil when the
// newest root is active by default.
func (t *Thread) ActiveRootID() *MessageID {
	return t.activeRootID
}

// CreatedAt returns when the thread was created.
func (t *Thread) CreatedAt() time.Time {
	return t.createdAt
}

// UpdatedAt returns when the thread was last modified.
func (t *Thread) UpdatedAt() time.Time {
	return t.updatedAt
}

// Rename sets a new title and bumps updatedAt.
func (t *Thread) Rename(title string) {
	t.title = title
	t.updatedAt = time.Now()
}
