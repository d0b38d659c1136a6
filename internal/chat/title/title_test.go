package title

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/chat/tree"
	"github.com/zjrosen/forkchat/internal/llm"
	"github.com/zjrosen/forkchat/internal/llm/mock"
	"github.com/zjrosen/forkchat/internal/testutil"
)

func TestSeedTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "short", in: "Hello", want: "Hello"},
		{name: "exactly twenty", in: "abcdefghijklmnopqrst", want: "abcdefghijklmnopqrst"},
		{name: "truncated", in: "How do I reverse a linked list in Go?", want: "How do I reverse a l"},
		{name: "whitespace collapsed", in: "  multi\n\nline   text ", want: "multi line text"},
		{name: "blank", in: " \n\t", want: DefaultTitle},
		{name: "graphemes kept whole", in: strings.Repeat("👍🏽", 25), want: strings.Repeat("👍🏽", 20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SeedTitle(tt.in))
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `"Linked List Reversal"`, want: "Linked List Reversal"},
		{in: "Title: Go Generics.\n\nExtra commentary", want: "Go Generics"},
		{in: "\n\n  **Bold Title**  ", want: "Bold Title"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Sanitize(tt.in), "input %q", tt.in)
	}

	long := Sanitize("word word word word word word word word word word word word word word word")
	require.LessOrEqual(t, len([]rune(long)), MaxLength)
}

func TestLLMGenerator_Generate(t *testing.T) {
	db := testutil.NewTestDB(t)
	tr := testutil.NewBuilder(t, db).
		WithThread("t1").
		WithUser("u1", "How do I reverse a linked list?").
		WithAssistant("a1", "Iterate and flip the pointers.").
		Build()

	inv := mock.NewInvoker()
	inv.CompleteFunc = func(_ context.Context, req llm.Request) (*llm.Completion, error) {
		require.Equal(t, "title-model", req.Model)
		require.Contains(t, req.Messages[0].Content, "user: How do I reverse a linked list?")
		require.Contains(t, req.Messages[0].Content, "assistant: Iterate and flip the pointers.")
		return &llm.Completion{Content: `"Reversing Linked Lists."`}, nil
	}
	router := llm.NewRouter()
	router.Add("p", inv)

	gen := NewLLMGenerator(db.ThreadRepository(), tree.NewResolver(db.MessageRepository()), router, nil)
	require.NoError(t, gen.Generate(context.Background(), tr.Thread, "p", "title-model"))

	thread, err := db.ThreadRepository().Get(context.Background(), tr.Thread)
	require.NoError(t, err)
	require.Equal(t, "Reversing Linked Lists", thread.Title())
}

func TestLLMGenerator_Failures(t *testing.T) {
	db := testutil.NewTestDB(t)
	tr := testutil.NewBuilder(t, db).
		WithThread("t1").
		WithUser("u1", "hello").
		Build()

	inv := mock.NewInvoker()
	boom := errors.New("boom")
	inv.CompleteFunc = func(context.Context, llm.Request) (*llm.Completion, error) { return nil, boom }
	router := llm.NewRouter()
	router.Add("p", inv)
	gen := NewLLMGenerator(db.ThreadRepository(), tree.NewResolver(db.MessageRepository()), router, nil)

	require.ErrorIs(t, gen.Generate(context.Background(), tr.Thread, "p", "m"), boom)
	require.ErrorIs(t, gen.Generate(context.Background(), tr.Thread, "missing", "m"), llm.ErrUnknownProvider)

	err := gen.Generate(context.Background(), domain.ThreadID("nope"), "p", "m")
	require.True(t, domain.IsNotFound(err))

	inv.CompleteFunc = func(context.Context, llm.Request) (*llm.Completion, error) {
		return &llm.Completion{Content: "  \n"}, nil
	}
	require.Error(t, gen.Generate(context.Background(), tr.Thread, "p", "m"))

	thread, err := db.ThreadRepository().Get(context.Background(), tr.Thread)
	require.NoError(t, err)
	require.NotEqual(t, "", thread.Title())
}

func TestFirstExchange_SkipsErrors(t *testing.T) {
	db := testutil.NewTestDB(t)
	tr := testutil.NewBuilder(t, db).
		WithThread("t1").
		WithUser("u1", "question").
		WithAssistant("a1", "", testutil.Failed("rate limited")).
		Build()

	path, err := tree.NewResolver(db.MessageRepository()).ActivePath(context.Background(), tr.Thread)
	require.NoError(t, err)
	require.Equal(t, "user: question", firstExchange(path))
}
