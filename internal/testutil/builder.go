package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/infrastructure/sqlite"
)

// Builder accumulates threads and messages and inserts them in order.
// Messages are addressed by test-local labels.
type Builder struct {
	t       testing.TB
	db      *sqlite.DB
	threads []domain.ThreadID
	msgs    []messageData
	active  []string
}

// Tree maps labels to the IDs the store assigned.
type Tree struct {
	Thread domain.ThreadID
	ids    map[string]domain.MessageID
	t      testing.TB
}

// ID returns the message ID for label, failing the test for unknown labels.
func (tr *Tree) ID(label string) domain.MessageID {
	tr.t.Helper()
	id, ok := tr.ids[label]
	require.True(tr.t, ok, "unknown message label %q", label)
	return id
}

// NewBuilder creates a builder for the given test database.
func NewBuilder(t testing.TB, db *sqlite.DB) *Builder {
	t.Helper()
	return &Builder{t: t, db: db}
}

// WithThread adds a thread. Messages added afterwards belong to it.
func (b *Builder) WithThread(id domain.ThreadID) *Builder {
	b.threads = append(b.threads, id)
	return b
}

// WithUser adds a user message.
func (b *Builder) WithUser(label, content string, opts ...MessageOption) *Builder {
	return b.withMessage(label, domain.RoleUser, content, opts)
}

// WithAssistant adds an assistant message.
func (b *Builder) WithAssistant(label, content string, opts ...MessageOption) *Builder {
	return b.withMessage(label, domain.RoleAssistant, content, opts)
}

// WithActive switches the active path to the labelled message after insert.
func (b *Builder) WithActive(label string) *Builder {
	b.active = append(b.active, label)
	return b
}

func (b *Builder) withMessage(label string, role domain.Role, content string, opts []MessageOption) *Builder {
	m := messageData{label: label, role: role, content: content}
	if len(b.threads) > 0 {
		m.thread = b.threads[len(b.threads)-1]
	}
	for _, opt := range opts {
		opt(&m)
	}
	if !m.explicit {
		for i := len(b.msgs) - 1; i >= 0; i-- {
			if b.msgs[i].thread == m.thread {
				m.parent = b.msgs[i].label
				break
			}
		}
	}
	b.msgs = append(b.msgs, m)
	return b
}

// Build inserts all accumulated data through the repositories.
// The returned Tree is bound to the last thread added.
func (b *Builder) Build() *Tree {
	b.t.Helper()
	ctx := context.Background()
	tree := &Tree{ids: make(map[string]domain.MessageID), t: b.t}

	for _, id := range b.threads {
		err := b.db.ThreadRepository().Create(ctx, domain.NewThread(id, string(id)))
		require.NoError(b.t, err)
		tree.Thread = id
	}

	messages := b.db.MessageRepository()
	for _, m := range b.msgs {
		draft := domain.MessageDraft{
			ThreadID: m.thread,
			Role:     m.role,
			Content:  m.content,
			Model:    m.model,
			Error:    m.errText,
			Files:    m.files,
		}
		if m.parent != "" {
			parent := tree.ID(m.parent)
			draft.ParentID = &parent
		}
		created, err := messages.Create(ctx, draft)
		require.NoError(b.t, err, "create %q", m.label)
		tree.ids[m.label] = created.ID()
	}

	for _, label := range b.active {
		m := b.find(label)
		err := messages.SetActive(ctx, m.thread, tree.ID(label))
		require.NoError(b.t, err)
	}
	return tree
}

func (b *Builder) find(label string) messageData {
	b.t.Helper()
	for _, m := range b.msgs {
		if m.label == label {
			return m
		}
	}
	b.t.Fatalf("unknown message label %q", label)
	return messageData{}
}
