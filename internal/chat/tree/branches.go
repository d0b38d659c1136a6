package tree

import (
	"context"
	"fmt"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/log"
)

// Branches computes sibling sets and switches the active branch.
type Branches struct {
	messages domain.MessageRepository
}

// NewBranches creates a Branches registry reading and writing through messages.
func NewBranches(messages domain.MessageRepository) *Branches {
	return &Branches{messages: messages}
}

// Info returns the position of id among its siblings. Siblings of a root are
// the thread's other roots, so an edited root or a send --root stays
// navigable.
// Returns NotFoundError if the message does not exist.
func (b *Branches) Info(ctx context.Context, id domain.MessageID) (domain.BranchInfo, error) {
	var info domain.BranchInfo
	err := b.messages.Snapshot(ctx, func(tr domain.TreeReader) error {
		var err error
		info, err = branchInfo(ctx, tr, id)
		return err
	})
	return info, err
}

func branchInfo(ctx context.Context, tr domain.TreeReader, id domain.MessageID) (domain.BranchInfo, error) {
	msg, err := tr.Message(ctx, id)
	if err != nil {
		return domain.BranchInfo{}, err
	}

	var siblings []*domain.Message
	if msg.IsRoot() {
		siblings, err = tr.Roots(ctx, msg.ThreadID())
	} else {
		siblings, err = tr.Children(ctx, *msg.ParentID())
	}
	if err != nil {
		return domain.BranchInfo{}, err
	}

	for i, s := range siblings {
		if s.ID() == id {
			return domain.BranchInfo{Siblings: siblings, Current: i + 1, Total: len(siblings)}, nil
		}
	}
	return domain.BranchInfo{}, fmt.Errorf("message %d missing from its own sibling set", id)
}

// Switch makes target part of the thread's active path. Only active-child
// pointers on the path to target change; nothing is created or deleted, and
// target's own descendants keep their selections.
// Returns NotFoundError if target is not in the thread.
func (b *Branches) Switch(ctx context.Context, threadID domain.ThreadID, target domain.MessageID) error {
	if err := b.messages.SetActive(ctx, threadID, target); err != nil {
		return err
	}
	log.Debug(log.CatTree, "switched branch", "thread", threadID, "target", target)
	return nil
}

// Step switches to the sibling delta positions away from id (negative for
// older siblings) and returns it. Stepping past either end is a ValidationError.
func (b *Branches) Step(ctx context.Context, threadID domain.ThreadID, id domain.MessageID, delta int) (*domain.Message, error) {
	info, err := b.Info(ctx, id)
	if err != nil {
		return nil, err
	}
	if info.Siblings[0].ThreadID() != threadID {
		return nil, domain.MessageNotFound(id)
	}
	idx := info.Current - 1 + delta
	if idx < 0 || idx >= info.Total {
		return nil, &domain.ValidationError{
			Field:  "branch",
			Reason: fmt.Sprintf("no sibling at position %d of %d", idx+1, info.Total),
		}
	}
	target := info.Siblings[idx]
	if err := b.Switch(ctx, threadID, target.ID()); err != nil {
		return nil, err
	}
	return target, nil
}
