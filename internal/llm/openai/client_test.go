package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/forkchat/internal/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(llm.ProviderConfig{ID: "test", Type: llm.ProviderOpenAI, BaseURL: srv.URL + "/", APIKey: "sk-test"})
}

func sseHandler(t *testing.T, events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, e := range events {
			_, _ = fmt.Fprintf(w, "%s\n\n", e)
		}
	}
}

func drain(t *testing.T, s llm.Stream) (string, *llm.Usage, error) {
	t.Helper()
	var sb strings.Builder
	var usage *llm.Usage
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), usage, nil
		}
		if err != nil {
			return sb.String(), usage, err
		}
		sb.WriteString(chunk.Delta)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
}

func TestStream_Deltas(t *testing.T) {
	c := newTestClient(t, sseHandler(t,
		`: keep-alive`,
		`data: {"choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`data: not json`,
		`data: {"choices":[],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		`data: [DONE]`,
	))

	s, err := c.Stream(context.Background(), llm.Request{Model: "gpt-test", Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	text, usage, err := drain(t, s)
	require.NoError(t, err)
	require.Equal(t, "Hello", text)
	require.NotNil(t, usage)
	require.Equal(t, 5, usage.TotalTokens)

	// Exhausted streams keep returning EOF.
	_, err = s.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestStream_EOFWithoutDone(t *testing.T) {
	c := newTestClient(t, sseHandler(t,
		`data: {"choices":[{"delta":{"content":"partial"}}]}`,
	))

	s, err := c.Stream(context.Background(), llm.Request{Model: "gpt-test"})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	text, usage, err := drain(t, s)
	require.NoError(t, err)
	require.Equal(t, "partial", text)
	require.Nil(t, usage)
}

func TestStream_ErrorEvent(t *testing.T) {
	c := newTestClient(t, sseHandler(t,
		`data: {"choices":[{"delta":{"content":"a"}}]}`,
		`data: {"error":{"message":"overloaded"}}`,
	))

	s, err := c.Stream(context.Background(), llm.Request{Model: "gpt-test"})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	text, _, err := drain(t, s)
	require.ErrorIs(t, err, llm.ErrStreamError)
	require.Contains(t, err.Error(), "overloaded")
	require.Equal(t, "a", text)
}

func TestStream_Non200(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	})

	_, err := c.Stream(context.Background(), llm.Request{Model: "gpt-test"})
	require.ErrorIs(t, err, llm.ErrRequestFailed)
	require.Contains(t, err.Error(), "401")
}

func TestStream_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := c.Stream(ctx, llm.Request{Model: "gpt-test"})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	chunk, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, "a", chunk.Delta)

	cancel()
	_, err = s.Recv()
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

func TestComplete(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"A title"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":2,"total_tokens":12}}`)
	})

	out, err := c.Complete(context.Background(), llm.Request{
		Model:     "gpt-test",
		System:    "be brief",
		Messages:  []llm.Message{{Role: "user", Content: "hi"}},
		MaxTokens: 16,
		Params:    map[string]any{"temperature": 0.2, "model": "ignored"},
	})
	require.NoError(t, err)
	require.Equal(t, "A title", out.Content)
	require.Equal(t, "stop", out.FinishReason)
	require.Equal(t, 12, out.Usage.TotalTokens)

	require.Equal(t, "gpt-test", body["model"])
	require.Equal(t, false, body["stream"])
	require.InDelta(t, 0.2, body["temperature"], 1e-9)
	require.InDelta(t, 16, body["max_tokens"], 1e-9)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	require.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestComplete_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	})

	_, err := c.Complete(context.Background(), llm.Request{Model: "gpt-test"})
	require.ErrorIs(t, err, llm.ErrRequestFailed)
}

func TestValidateModel(t *testing.T) {
	c := NewClient(llm.ProviderConfig{APIKey: "k", DisabledModels: []string{"old-model"}})
	require.NoError(t, c.ValidateModel("gpt-test"))
	require.ErrorIs(t, c.ValidateModel("old-model"), llm.ErrModelDisabled)
	require.ErrorIs(t, c.ValidateModel(""), llm.ErrModelDisabled)

	noKey := NewClient(llm.ProviderConfig{})
	require.ErrorIs(t, noKey.ValidateModel("gpt-test"), llm.ErrMissingAPIKey)
	require.Equal(t, DefaultBaseURL, noKey.baseURL)
}

func TestToWireMessage_Attachments(t *testing.T) {
	m := toWireMessage(llm.Message{
		Role:    "user",
		Content: "look",
		Attachments: []llm.Attachment{
			{Name: "pic.png", MimeType: "image/png", Data: []byte{0x89, 0x50}},
			{Name: "notes.txt", MimeType: "text/plain", Data: []byte("hello")},
		},
	})

	parts, ok := m.Content.([]contentPart)
	require.True(t, ok)
	require.Len(t, parts, 3)
	require.Equal(t, "look", parts[0].Text)
	require.Equal(t, "image_url", parts[1].Type)
	require.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
	require.Equal(t, "File: notes.txt\n\nhello", parts[2].Text)

	plain := toWireMessage(llm.Message{Role: "assistant", Content: "ok"})
	require.Equal(t, "ok", plain.Content)
}

func TestRegisteredWithRouter(t *testing.T) {
	inv, err := llm.NewInvoker(llm.ProviderConfig{ID: "oa", Type: llm.ProviderOpenAI, APIKey: "k"})
	require.NoError(t, err)
	require.IsType(t, &Client{}, inv)
}
