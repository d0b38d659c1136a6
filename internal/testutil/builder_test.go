package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/forkchat/internal/chat/domain"
)

func TestNewTestDB_Migrated(t *testing.T) {
	db := NewTestDB(t)

	var count int
	err := db.Connection().QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('threads', 'messages', 'files', 'thread_settings')`,
	).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func TestBuilder_ImplicitParent(t *testing.T) {
	db := NewTestDB(t)

	tree := NewBuilder(t, db).
		WithThread("t1").
		WithUser("u1", "Hi").
		WithAssistant("a1", "Hello").
		Build()

	require.Equal(t, domain.ThreadID("t1"), tree.Thread)
	a1, err := db.MessageRepository().Get(context.Background(), tree.ID("a1"))
	require.NoError(t, err)
	require.Equal(t, tree.ID("u1"), *a1.ParentID())
	require.Equal(t, domain.RoleAssistant, a1.Role())
}

func TestBuilder_Options(t *testing.T) {
	db := NewTestDB(t)

	tree := NewBuilder(t, db).
		WithThread("t1").
		WithUser("u1", "Hi", Attach("a.txt", "text/plain", []byte("abc"))).
		WithAssistant("a1", "", Model("gpt"), Failed("boom")).
		WithUser("r2", "Another root", Root()).
		Build()

	ctx := context.Background()
	u1, err := db.MessageRepository().Get(ctx, tree.ID("u1"))
	require.NoError(t, err)
	require.Len(t, u1.Files(), 1)

	a1, err := db.MessageRepository().Get(ctx, tree.ID("a1"))
	require.NoError(t, err)
	require.Equal(t, "gpt", a1.Model())
	require.True(t, a1.IsError())

	r2, err := db.MessageRepository().Get(ctx, tree.ID("r2"))
	require.NoError(t, err)
	require.True(t, r2.IsRoot())
}

func TestBuilder_MultipleThreads(t *testing.T) {
	db := NewTestDB(t)

	tree := NewBuilder(t, db).
		WithThread("t1").
		WithUser("x", "in t1").
		WithThread("t2").
		WithUser("y", "in t2").
		WithUser("z", "in t1 again", InThread("t1"), Parent("x")).
		Build()

	z, err := db.MessageRepository().Get(context.Background(), tree.ID("z"))
	require.NoError(t, err)
	require.Equal(t, domain.ThreadID("t1"), z.ThreadID())
	require.Equal(t, tree.ID("x"), *z.ParentID())
}

func TestPresets_BranchedConversation(t *testing.T) {
	db := NewTestDB(t)

	tree := NewBuilder(t, db).WithBranchedConversation("t1").Build()

	children, err := db.MessageRepository().Children(context.Background(), tree.ID("u1"))
	require.NoError(t, err)
	require.Len(t, children, 2)
	require.Equal(t, tree.ID("a1"), children[0].ID())
	require.Equal(t, tree.ID("a1b"), children[1].ID())
}

func TestPresets_WithActive(t *testing.T) {
	db := NewTestDB(t)

	tree := NewBuilder(t, db).
		WithBranchedConversation("t1").
		WithActive("a2").
		Build()

	u1, err := db.MessageRepository().Get(context.Background(), tree.ID("u1"))
	require.NoError(t, err)
	require.Equal(t, tree.ID("a1"), *u1.ActiveChildID())
}

func TestPresets_LinearConversation(t *testing.T) {
	db := NewTestDB(t)

	tree := NewBuilder(t, db).WithLinearConversation("t1", 4).Build()

	m3, err := db.MessageRepository().Get(context.Background(), tree.ID("m3"))
	require.NoError(t, err)
	require.Equal(t, "answer 1", m3.Content())
	require.Equal(t, tree.ID("m2"), *m3.ParentID())
}
