// Package openai implements llm.Invoker for OpenAI-compatible
// /chat/completions endpoints, with server-sent-event streaming.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/zjrosen/forkchat/internal/llm"
	"github.com/zjrosen/forkchat/internal/log"
)

// DefaultBaseURL is used when the provider config leaves BaseURL empty.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client handles communication with an OpenAI-compatible API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	disabled   []string
}

var (
	_ llm.Invoker        = (*Client)(nil)
	_ llm.ModelValidator = (*Client)(nil)
)

// NewClient creates a client from a provider config.
func NewClient(cfg llm.ProviderConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		disabled:   cfg.DisabledModels,
	}
}

// init registers the OpenAI provider with the llm registry.
func init() {
	llm.RegisterProvider(llm.ProviderOpenAI, func(cfg llm.ProviderConfig) (llm.Invoker, error) {
		return NewClient(cfg), nil
	})
}

// ValidateModel rejects disabled models and missing credentials.
func (c *Client) ValidateModel(model string) error {
	if c.apiKey == "" {
		return llm.ErrMissingAPIKey
	}
	if model == "" {
		return fmt.Errorf("%w: no model selected", llm.ErrModelDisabled)
	}
	if slices.Contains(c.disabled, model) {
		return fmt.Errorf("%w: %s", llm.ErrModelDisabled, model)
	}
	return nil
}

// Complete sends a non-streaming request and returns the full response.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", llm.ErrRequestFailed, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message == nil {
		return nil, fmt.Errorf("%w: no choices in response", llm.ErrRequestFailed)
	}

	choice := chatResp.Choices[0]
	return &llm.Completion{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        chatResp.Usage.toLLM(),
	}, nil
}

// Stream sends a streaming request. The returned stream reads SSE events
// lazily; cancelling ctx closes the connection.
func (c *Client) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	resp, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{ctx: ctx, body: resp.Body, scanner: scanner}, nil
}

func (c *Client) post(ctx context.Context, req llm.Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(buildRequest(req, stream))
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	log.Debug(log.CatLLM, "HTTP POST chat/completions",
		"base", c.baseURL, "model", req.Model, "messages", len(req.Messages), "stream", stream)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		log.Warn(log.CatLLM, "API error", "status", resp.StatusCode, "body", string(data))
		return nil, fmt.Errorf("%w: %d - %s", llm.ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp, nil
}

// buildRequest converts an llm.Request to the wire format.
func buildRequest(req llm.Request, stream bool) map[string]any {
	messages := make([]wireMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, wireMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, toWireMessage(m))
	}

	// Extra params go first so the fields the core controls always win.
	body := make(map[string]any, len(req.Params)+4)
	for k, v := range req.Params {
		body[k] = v
	}
	body["model"] = req.Model
	body["messages"] = messages
	body["stream"] = stream
	if stream {
		body["stream_options"] = map[string]any{"include_usage": true}
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	return body
}

// toWireMessage inlines attachments: images as data URLs, everything else as
// a text part.
func toWireMessage(m llm.Message) wireMessage {
	if len(m.Attachments) == 0 {
		return wireMessage{Role: m.Role, Content: m.Content}
	}
	parts := make([]contentPart, 0, len(m.Attachments)+1)
	if m.Content != "" {
		parts = append(parts, contentPart{Type: "text", Text: m.Content})
	}
	for _, a := range m.Attachments {
		if strings.HasPrefix(a.MimeType, "image/") {
			url := "data:" + a.MimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: url}})
			continue
		}
		parts = append(parts, contentPart{
			Type: "text",
			Text: fmt.Sprintf("File: %s\n\n%s", a.Name, string(a.Data)),
		})
	}
	return wireMessage{Role: m.Role, Content: parts}
}

// sseStream reads "data: {json}" lines until "[DONE]" or EOF.
type sseStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
	usage   *llm.Usage
	ended   bool // [DONE] or EOF seen; only pending usage remains
	done    bool
}

// Recv returns the next text delta. The usage-only final chunk is returned
// as a Chunk with an empty Delta just before io.EOF.
func (s *sseStream) Recv() (llm.Chunk, error) {
	if s.done {
		return llm.Chunk{}, io.EOF
	}
	if s.ended {
		return s.finish()
	}
	for s.scanner.Scan() {
		if err := s.ctx.Err(); err != nil {
			return llm.Chunk{}, err
		}

		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		if data == "[DONE]" {
			return s.finish()
		}

		var resp chatResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			continue // skip malformed chunks
		}
		if resp.Error != nil {
			s.done = true
			return llm.Chunk{}, fmt.Errorf("%w: %s", llm.ErrStreamError, resp.Error.Message)
		}
		if resp.Usage != nil {
			s.usage = resp.Usage.toLLM()
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta == nil {
			delta = resp.Choices[0].Message
		}
		if delta == nil || delta.Content == "" {
			continue
		}
		return llm.Chunk{Delta: delta.Content}, nil
	}

	if err := s.scanner.Err(); err != nil {
		// A cancelled request surfaces as a read error on the body.
		if s.ctx.Err() != nil {
			return llm.Chunk{}, s.ctx.Err()
		}
		return llm.Chunk{}, fmt.Errorf("%w: %v", llm.ErrStreamError, err)
	}
	return s.finish()
}

// finish emits any captured usage as a final chunk, then io.EOF.
func (s *sseStream) finish() (llm.Chunk, error) {
	s.ended = true
	if s.usage != nil {
		u := s.usage
		s.usage = nil
		return llm.Chunk{Usage: u}, nil
	}
	s.done = true
	return llm.Chunk{}, io.EOF
}

// Close releases the response body.
func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}
