// Package llm defines the model-invocation boundary used by the chat core.
//
// An Invoker produces either a complete response or a Stream of text deltas.
// Providers register a factory with RegisterProvider from their init functions;
// a Router resolves provider IDs from configuration to live invokers.
package llm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRequestFailed reports a non-2xx response from a provider.
	ErrRequestFailed = errors.New("API request failed")

	// ErrStreamError reports an error event inside a response stream.
	ErrStreamError = errors.New("stream error")

	// ErrMissingAPIKey reports a provider configured without credentials.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrModelDisabled reports a model the provider configuration disallows.
	ErrModelDisabled = errors.New("model disabled")
)

// Message is one transcript entry sent to a model.
type Message struct {
	Role        string // "user" or "assistant"
	Content     string
	Attachments []Attachment
}

// Attachment is a file sent alongside a message.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// Request is a single model invocation.
type Request struct {
	Model     string
	System    string
	Messages  []Message
	MaxTokens int            // 0 means provider default
	Params    map[string]any // passed through to the provider body
}

// Usage is the token accounting reported by a provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is a complete, non-streamed response.
type Completion struct {
	Content      string
	FinishReason string
	Usage        *Usage
}

// Chunk is one streamed delta. The final chunk may carry Usage only.
type Chunk struct {
	Delta string
	Usage *Usage
}

// Stream is a finite, non-restartable sequence of chunks.
// Recv returns io.EOF after the last chunk. Close releases the connection and
// may be called at any time.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Invoker calls a model.
type Invoker interface {
	// Complete returns the full response in one piece.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Stream starts a streamed response. Cancelling ctx aborts the stream.
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ModelValidator is implemented by invokers that can reject a request before
// it is sent, for example for a disabled model or missing credentials.
type ModelValidator interface {
	ValidateModel(model string) error
}

// ProviderType identifies a provider implementation.
type ProviderType string

const (
	// ProviderOpenAI is any OpenAI-compatible /chat/completions endpoint.
	ProviderOpenAI ProviderType = "openai"
	// ProviderMock is an offline echo provider for tests and demos.
	ProviderMock ProviderType = "mock"
)

// ProviderConfig configures one provider instance.
type ProviderConfig struct {
	ID             string
	Type           ProviderType
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	DisabledModels []string
}
