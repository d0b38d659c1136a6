package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/zjrosen/forkchat/internal/llm"
)

// Invoker is a mock implementation of llm.Invoker.
// It allows configuring behavior via function fields.
type Invoker struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, the last user message is echoed back.
	CompleteFunc func(ctx context.Context, req llm.Request) (*llm.Completion, error)

	// StreamFunc is called when Stream is invoked.
	// If nil, the echo reply is streamed one word at a time.
	StreamFunc func(ctx context.Context, req llm.Request) (llm.Stream, error)

	// ValidateFunc is called when ValidateModel is invoked. If nil, every
	// model is accepted.
	ValidateFunc func(model string) error

	mu            sync.Mutex
	completeCount int
	streamCount   int
	requests      []llm.Request
}

var (
	_ llm.Invoker        = (*Invoker)(nil)
	_ llm.ModelValidator = (*Invoker)(nil)
)

// NewInvoker creates a mock invoker with echo behavior.
func NewInvoker() *Invoker {
	return &Invoker{}
}

// Complete records req and returns CompleteFunc's result or an echo.
func (m *Invoker) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	m.mu.Lock()
	m.completeCount++
	m.requests = append(m.requests, req)
	fn := m.CompleteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llm.Completion{Content: Echo(req), FinishReason: "stop"}, nil
}

// Stream records req and returns StreamFunc's result or a word-by-word echo.
func (m *Invoker) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	m.mu.Lock()
	m.streamCount++
	m.requests = append(m.requests, req)
	fn := m.StreamFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	words := strings.SplitAfter(Echo(req), " ")
	return NewStream(words...), nil
}

// ValidateModel delegates to ValidateFunc.
func (m *Invoker) ValidateModel(model string) error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(model)
	}
	return nil
}

// CompleteCount returns how many times Complete was called.
func (m *Invoker) CompleteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeCount
}

// StreamCount returns how many times Stream was called.
func (m *Invoker) StreamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCount
}

// Requests returns a copy of every request received, in order.
func (m *Invoker) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request, or false if none was made.
func (m *Invoker) LastRequest() (llm.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return llm.Request{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// Reset clears the call counters and recorded requests.
func (m *Invoker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCount = 0
	m.streamCount = 0
	m.requests = nil
}

// Echo returns the reply the default invoker gives for req.
func Echo(req llm.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return "Echo: " + req.Messages[i].Content
		}
	}
	return "Echo:"
}

// init registers the mock provider with the llm registry.
func init() {
	llm.RegisterProvider(llm.ProviderMock, func(llm.ProviderConfig) (llm.Invoker, error) {
		return NewInvoker(), nil
	})
}
