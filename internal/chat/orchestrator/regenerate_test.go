package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/llm"
	"github.com/zjrosen/forkchat/internal/llm/mock"
	"github.com/zjrosen/forkchat/internal/testutil"
)

func TestRegenerate_Branch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).WithThread("t1").WithUser("u1", "Hi").WithAssistant("a1", "Hello").Build()

	res, err := h.orch.Regenerate(ctx, tr.Thread, tr.ID("a1"), RegenerateOptions{Mode: RegenerateBranch})
	require.NoError(t, err)
	require.Equal(t, StateFinalized, res.State)
	require.Nil(t, res.UserMessage)
	require.Equal(t, "Echo: Hi", res.Assistant.Content())

	info, err := h.orch.BranchInfo(ctx, tr.ID("a1"))
	require.NoError(t, err)
	require.Equal(t, 2, info.Total)
	require.Equal(t, 1, info.Current)

	path := h.path(tr.Thread)
	require.Equal(t, res.Assistant.ID(), path[len(path)-1].ID())

	require.NoError(t, h.orch.SwitchBranch(ctx, tr.Thread, tr.ID("a1")))
	path = h.path(tr.Thread)
	require.Equal(t, tr.ID("a1"), path[len(path)-1].ID())

	// The transcript ends at the prompt; the replaced reply is not resent.
	req, _ := h.inv.LastRequest()
	require.Equal(t, []string{"Hi"}, transcriptContents(req))
}

func TestRegenerate_ReplaceDropsSubtree(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).WithLinearConversation("t1", 4).Build()

	res, err := h.orch.Regenerate(ctx, tr.Thread, tr.ID("m1"), RegenerateOptions{Mode: RegenerateReplace, Model: "other"})
	require.NoError(t, err)
	require.Equal(t, "other", res.Assistant.Model())

	for _, label := range []string{"m1", "m2", "m3"} {
		_, err := h.orch.Message(ctx, tr.ID(label))
		require.True(t, domain.IsNotFound(err), label)
	}
	require.Equal(t, []string{"question 0", "Echo: question 0"}, contents(h.path(tr.Thread)))

	info, err := h.orch.BranchInfo(ctx, res.Assistant.ID())
	require.NoError(t, err)
	require.Equal(t, 1, info.Total)
}

func TestRegenerate_UserMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).WithBranchedConversation("t1").Build()

	res, err := h.orch.Regenerate(ctx, tr.Thread, tr.ID("u1"), RegenerateOptions{})
	require.NoError(t, err)

	children, err := h.orch.Children(ctx, tr.ID("u1"))
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, res.Assistant.ID(), children[0].ID())
	require.Equal(t, []string{"Hi", "Echo: Hi"}, contents(h.path(tr.Thread)))

	_, err = h.orch.Message(ctx, tr.ID("u2"))
	require.True(t, domain.IsNotFound(err))
}

func TestRegenerate_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).
		WithThread("t1").WithAssistant("greeting", "Welcome", testutil.Root()).
		WithThread("t2").WithUser("x1", "elsewhere").
		Build()

	_, err := h.orch.Regenerate(ctx, "t1", tr.ID("greeting"), RegenerateOptions{})
	require.True(t, domain.IsValidation(err))

	_, err = h.orch.Regenerate(ctx, "t1", tr.ID("x1"), RegenerateOptions{})
	require.True(t, domain.IsNotFound(err))

	_, err = h.orch.Regenerate(ctx, "t1", 9999, RegenerateOptions{})
	require.True(t, domain.IsNotFound(err))
	require.Zero(t, h.inv.StreamCount())
}

func TestRegenerate_StoppedKeepsOldReply(t *testing.T) {
	h := newHarness(t)
	tr := testutil.NewBuilder(t, h.db).WithThread("t1").WithUser("u1", "Hi").WithAssistant("a1", "Hello").Build()
	gates := h.gateStreams()

	done := make(chan sendOutcome, 1)
	go func() {
		res, err := h.orch.Regenerate(context.Background(), tr.Thread, tr.ID("a1"), RegenerateOptions{Mode: RegenerateBranch})
		done <- sendOutcome{res: res, err: err}
	}()
	recvGate(t, gates)
	require.True(t, h.orch.Stop(tr.Thread))

	out := recvOutcome(t, done)
	require.NoError(t, out.err)
	require.Equal(t, StateAborted, out.res.State)
	require.Equal(t, []string{"Hi", "Hello"}, contents(h.path(tr.Thread)))
}

func TestEditMessage_BranchKeepsOriginal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).WithLinearConversation("t1", 4).Build()

	res, err := h.orch.EditMessage(ctx, EditRequest{
		ThreadID:  tr.Thread,
		MessageID: tr.ID("m0"),
		Content:   "C",
		Mode:      EditAsBranch,
	})
	require.NoError(t, err)
	require.Nil(t, res.Reply)
	require.Equal(t, "C", res.Message.Content())
	require.True(t, res.Message.IsRoot())
	require.Equal(t, []string{"C"}, contents(h.path(tr.Thread)))

	info, err := h.orch.BranchInfo(ctx, res.Message.ID())
	require.NoError(t, err)
	require.Equal(t, 2, info.Total)
	require.Equal(t, 2, info.Current)

	require.NoError(t, h.orch.SwitchBranch(ctx, tr.Thread, tr.ID("m0")))
	require.Equal(t, []string{"question 0", "answer 0", "question 1", "answer 1"}, contents(h.path(tr.Thread)))
	require.Zero(t, h.inv.StreamCount())
}

func TestEditMessage_BranchResend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).WithLinearConversation("t1", 4).Build()

	res, err := h.orch.EditMessage(ctx, EditRequest{
		ThreadID:  tr.Thread,
		MessageID: tr.ID("m2"),
		Content:   "question 1, rephrased",
		Mode:      EditAsBranch,
		Resend:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Reply)
	require.Equal(t, StateFinalized, res.Reply.State)
	require.Equal(t, tr.ID("m1"), *res.Message.ParentID())
	require.Equal(t, []string{"question 0", "answer 0", "question 1, rephrased", "Echo: question 1, rephrased"},
		contents(h.path(tr.Thread)))

	// A resent root edit becomes a new root.
	res, err = h.orch.EditMessage(ctx, EditRequest{
		ThreadID:  tr.Thread,
		MessageID: tr.ID("m0"),
		Content:   "start over",
		Mode:      EditAsBranch,
		Resend:    true,
	})
	require.NoError(t, err)
	require.True(t, res.Message.IsRoot())
	require.Equal(t, []string{"start over", "Echo: start over"}, contents(h.path(tr.Thread)))
}

func TestEditMessage_InPlaceWithFiles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).
		WithThread("t1").
		WithUser("u1", "see file", testutil.Attach("a.txt", "text/plain", []byte("A"))).
		WithAssistant("a1", "ok").
		Build()

	orig, err := h.orch.Message(ctx, tr.ID("u1"))
	require.NoError(t, err)
	require.Len(t, orig.Files(), 1)

	res, err := h.orch.EditMessage(ctx, EditRequest{
		ThreadID:  tr.Thread,
		MessageID: tr.ID("u1"),
		Content:   "see files",
		Mode:      EditInPlace,
		Files: &domain.FileEdits{
			Remove: []domain.FileID{orig.Files()[0].ID},
			Add:    []domain.FileUpload{{Name: "b.txt", MimeType: "text/plain", Data: []byte("B")}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, tr.ID("u1"), res.Message.ID())
	require.Equal(t, "see files", res.Message.Content())
	require.Len(t, res.Message.Files(), 1)
	require.Equal(t, "b.txt", res.Message.Files()[0].Name)
	require.Equal(t, []string{"see files", "ok"}, contents(h.path(tr.Thread)))
}

func TestEditMessage_BranchCarriesFiles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).
		WithThread("t1").
		WithUser("u1", "two files",
			testutil.Attach("a.txt", "text/plain", []byte("A")),
			testutil.Attach("b.txt", "text/plain", []byte("B"))).
		Build()

	orig, err := h.orch.Message(ctx, tr.ID("u1"))
	require.NoError(t, err)
	require.Len(t, orig.Files(), 2)
	var drop domain.FileID
	for _, f := range orig.Files() {
		if f.Name == "a.txt" {
			drop = f.ID
		}
	}

	res, err := h.orch.EditMessage(ctx, EditRequest{
		ThreadID:  tr.Thread,
		MessageID: tr.ID("u1"),
		Content:   "one file",
		Mode:      EditAsBranch,
		Files:     &domain.FileEdits{Remove: []domain.FileID{drop}},
	})
	require.NoError(t, err)

	sibling, err := h.orch.Message(ctx, res.Message.ID())
	require.NoError(t, err)
	require.Len(t, sibling.Files(), 1)
	require.Equal(t, "b.txt", sibling.Files()[0].Name)
	_, data, err := h.db.FileRepository().Open(ctx, sibling.Files()[0].ID)
	require.NoError(t, err)
	require.Equal(t, []byte("B"), data)

	orig, err = h.orch.Message(ctx, tr.ID("u1"))
	require.NoError(t, err)
	require.Len(t, orig.Files(), 2)

	_, err = h.orch.EditMessage(ctx, EditRequest{
		ThreadID:  tr.Thread,
		MessageID: tr.ID("u1"),
		Content:   "x",
		Mode:      EditAsBranch,
		Files:     &domain.FileEdits{Remove: []domain.FileID{"not-attached"}},
	})
	require.True(t, domain.IsNotFound(err))
}

func TestEditMessage_Rejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).
		WithThread("t1").WithUser("u1", "Hi").WithAssistant("bad", "", testutil.Failed("boom")).
		WithThread("t2").WithUser("x1", "elsewhere").
		Build()

	_, err := h.orch.EditMessage(ctx, EditRequest{ThreadID: "t1", MessageID: tr.ID("bad"), Content: "x"})
	require.True(t, domain.IsValidation(err))

	_, err = h.orch.EditMessage(ctx, EditRequest{ThreadID: "t1", MessageID: tr.ID("x1"), Content: "x"})
	require.True(t, domain.IsNotFound(err))
}

func TestEditMessage_AssistantBranchWithoutResend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tr := testutil.NewBuilder(t, h.db).WithThread("t1").WithUser("u1", "Hi").WithAssistant("a1", "Hello", testutil.Model("gpt")).Build()
	h.inv.StreamFunc = func(ctx context.Context, req llm.Request) (llm.Stream, error) {
		t.Fatal("model must not be called")
		return mock.NewStream(), nil
	}

	res, err := h.orch.EditMessage(ctx, EditRequest{ThreadID: tr.Thread, MessageID: tr.ID("a1"), Content: "Hello!", Mode: EditAsBranch, Resend: true})
	require.NoError(t, err)
	require.Nil(t, res.Reply)
	require.Equal(t, domain.RoleAssistant, res.Message.Role())
	require.Equal(t, "gpt", res.Message.Model())
	require.Equal(t, []string{"Hi", "Hello!"}, contents(h.path(tr.Thread)))
}
