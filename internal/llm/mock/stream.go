package mock

import (
	"context"
	"io"
	"sync"

	"github.com/zjrosen/forkchat/internal/llm"
)

// Stream is a pre-scripted llm.Stream.
type Stream struct {
	mu     sync.Mutex
	chunks []llm.Chunk
	err    error
	pos    int
	closed bool
}

var _ llm.Stream = (*Stream)(nil)

// NewStream returns a stream that yields each delta in order, then io.EOF.
func NewStream(deltas ...string) *Stream {
	chunks := make([]llm.Chunk, 0, len(deltas))
	for _, d := range deltas {
		chunks = append(chunks, llm.Chunk{Delta: d})
	}
	return &Stream{chunks: chunks}
}

// WithUsage appends a usage-only final chunk.
func (s *Stream) WithUsage(u llm.Usage) *Stream {
	s.chunks = append(s.chunks, llm.Chunk{Usage: &u})
	return s
}

// FailWith makes the stream return err after its chunks instead of io.EOF.
func (s *Stream) FailWith(err error) *Stream {
	s.err = err
	return s
}

// Recv returns the next scripted chunk.
func (s *Stream) Recv() (llm.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return llm.Chunk{}, io.EOF
	}
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.err != nil {
		return llm.Chunk{}, s.err
	}
	return llm.Chunk{}, io.EOF
}

// Close marks the stream closed.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// GatedStream is an llm.Stream whose chunks are released by the test.
// Recv blocks until a chunk is sent, the stream is finished or failed, or
// the context passed to NewGatedStream is done.
type GatedStream struct {
	ctx     context.Context
	events  chan gateEvent
	started chan struct{}
	once    sync.Once

	mu     sync.Mutex
	closed bool
}

type gateEvent struct {
	chunk llm.Chunk
	err   error
}

var _ llm.Stream = (*GatedStream)(nil)

// NewGatedStream creates a gated stream bound to ctx, normally the context
// the invoker was called with.
func NewGatedStream(ctx context.Context) *GatedStream {
	return &GatedStream{
		ctx:     ctx,
		events:  make(chan gateEvent, 64),
		started: make(chan struct{}),
	}
}

// Send queues a delta.
func (g *GatedStream) Send(delta string) {
	g.events <- gateEvent{chunk: llm.Chunk{Delta: delta}}
}

// Finish ends the stream; the next Recv after queued chunks returns io.EOF.
func (g *GatedStream) Finish() {
	g.events <- gateEvent{err: io.EOF}
}

// Fail ends the stream with err.
func (g *GatedStream) Fail(err error) {
	g.events <- gateEvent{err: err}
}

// Started is closed on the first call to Recv.
func (g *GatedStream) Started() <-chan struct{} {
	return g.started
}

// Recv waits for the next queued event.
func (g *GatedStream) Recv() (llm.Chunk, error) {
	g.once.Do(func() { close(g.started) })

	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return llm.Chunk{}, io.EOF
	}

	select {
	case <-g.ctx.Done():
		return llm.Chunk{}, g.ctx.Err()
	case ev := <-g.events:
		if ev.err != nil {
			return llm.Chunk{}, ev.err
		}
		return ev.chunk, nil
	}
}

// Close marks the stream closed.
func (g *GatedStream) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}
