// Package tree resolves active paths through a thread's message tree and
// implements sibling (branch) navigation.
//
// Every read runs inside a single store snapshot and follows parent or
// active-child pointers one message at a time, so the cost of a walk is
// proportional to the depth of the tree rather than its size.
package tree

import (
	"context"
	"fmt"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/log"
)

// Resolver derives linear transcripts from the message tree.
// Results are recomputed from persisted state on every call.
type Resolver struct {
	messages domain.MessageRepository
}

// NewResolver creates a Resolver reading through messages.
func NewResolver(messages domain.MessageRepository) *Resolver {
	return &Resolver{messages: messages}
}

// ActivePath returns the messages from the thread's active root down to the
// active leaf. An empty thread yields an empty path.
// Returns NotFoundError if the thread does not exist.
func (r *Resolver) ActivePath(ctx context.Context, threadID domain.ThreadID) ([]*domain.Message, error) {
	var path []*domain.Message
	err := r.messages.Snapshot(ctx, func(tr domain.TreeReader) error {
		var err error
		path, err = activePath(ctx, tr, threadID)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Debug(log.CatTree, "resolved active path", "thread", threadID, "depth", len(path))
	return path, nil
}

// ActiveLeaf returns the last message of the active path, or nil for an
// empty thread.
func (r *Resolver) ActiveLeaf(ctx context.Context, threadID domain.ThreadID) (*domain.Message, error) {
	var leaf *domain.Message
	err := r.messages.Snapshot(ctx, func(tr domain.TreeReader) error {
		thread, err := tr.Thread(ctx, threadID)
		if err != nil {
			return err
		}
		return walkActive(ctx, tr, thread, func(m *domain.Message) {
			leaf = m
		})
	})
	return leaf, err
}

// PathTo returns the ancestors of id from its root down to and including id.
// Returns NotFoundError if the message does not exist.
func (r *Resolver) PathTo(ctx context.Context, id domain.MessageID) ([]*domain.Message, error) {
	var path []*domain.Message
	err := r.messages.Snapshot(ctx, func(tr domain.TreeReader) error {
		var err error
		path, err = ancestors(ctx, tr, id)
		if err != nil {
			return err
		}
		return tr.AttachFiles(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	return path, nil
}

func activePath(ctx context.Context, tr domain.TreeReader, threadID domain.ThreadID) ([]*domain.Message, error) {
	thread, err := tr.Thread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	path := []*domain.Message{}
	err = walkActive(ctx, tr, thread, func(m *domain.Message) {
		path = append(path, m)
	})
	if err != nil {
		return nil, err
	}
	if err := tr.AttachFiles(ctx, path); err != nil {
		return nil, err
	}
	return path, nil
}

// walkActive visits the active path from root to leaf.
func walkActive(ctx context.Context, tr domain.TreeReader, thread *domain.Thread, visit func(*domain.Message)) error {
	cur, err := activeRoot(ctx, tr, thread)
	if err != nil {
		return err
	}

	seen := make(map[domain.MessageID]bool)
	for cur != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if seen[cur.ID()] {
			return fmt.Errorf("cycle detected at message %d in thread %s", cur.ID(), thread.ID())
		}
		seen[cur.ID()] = true
		visit(cur)

		if cur, err = activeChild(ctx, tr, cur); err != nil {
			return err
		}
	}
	return nil
}

// activeRoot returns the explicitly selected root, else the newest root.
func activeRoot(ctx context.Context, tr domain.TreeReader, thread *domain.Thread) (*domain.Message, error) {
	if id := thread.ActiveRootID(); id != nil {
		m, err := tr.Message(ctx, *id)
		if err != nil && !domain.IsNotFound(err) {
			return nil, err
		}
		if m != nil && m.IsRoot() && m.ThreadID() == thread.ID() {
			return m, nil
		}
	}
	return tr.LatestRoot(ctx, thread.ID())
}

// activeChild returns the explicitly selected child, else the newest child,
// else nil for a leaf.
func activeChild(ctx context.Context, tr domain.TreeReader, parent *domain.Message) (*domain.Message, error) {
	if id := parent.ActiveChildID(); id != nil {
		m, err := tr.Message(ctx, *id)
		if err != nil && !domain.IsNotFound(err) {
			return nil, err
		}
		if m != nil && m.ParentID() != nil && *m.ParentID() == parent.ID() {
			return m, nil
		}
	}
	return tr.LatestChild(ctx, parent.ID())
}

// ancestors walks parent pointers from id to its root and returns the chain
// root first.
func ancestors(ctx context.Context, tr domain.TreeReader, id domain.MessageID) ([]*domain.Message, error) {
	var chain []*domain.Message
	seen := make(map[domain.MessageID]bool)
	next := &id
	for next != nil {
		if seen[*next] {
			return nil, fmt.Errorf("cycle detected at message %d", *next)
		}
		seen[*next] = true

		m, err := tr.Message(ctx, *next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, m)
		next = m.ParentID()
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
