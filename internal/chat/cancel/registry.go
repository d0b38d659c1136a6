// Package cancel tracks the in-flight generation of each thread.
//
// A thread has at most one live Handle. Beginning a new generation cancels
// and evicts the previous handle before returning, so callers pre-empt rather
// than queue. Handles also serialize the final persist step against
// cancellation through Commit.
package cancel

import (
	"context"
	"fmt"
	"sync"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/log"
)

var (
	// ErrPreempted is the cancellation cause when a newer generation for the
	// same thread replaced the handle.
	ErrPreempted = fmt.Errorf("%w: pre-empted by a newer generation", domain.ErrCancelled)

	// ErrStopped is the cancellation cause of an explicit stop.
	ErrStopped = fmt.Errorf("%w: stopped", domain.ErrCancelled)
)

// Handle is the cancellation handle of one generation.
type Handle struct {
	threadID domain.ThreadID
	seq      uint64
	ctx      context.Context
	cancel   context.CancelCauseFunc

	// ready is closed once the handle this one replaced has been stopped.
	// Stopping waits on it, so pre-emption settles oldest first.
	ready chan struct{}

	// mu is held while the generation commits its result and while the
	// handle is being cancelled, so the two never interleave.
	mu sync.Mutex
}

// ThreadID returns the thread the generation belongs to.
func (h *Handle) ThreadID() domain.ThreadID {
	return h.threadID
}

// Context returns the context the generation must run under. It is done once
// the handle is cancelled.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Err returns the cancellation cause (ErrPreempted, ErrStopped or the parent
// context's error), or nil while the generation may continue.
func (h *Handle) Err() error {
	if h.ctx.Err() == nil {
		return nil
	}
	return context.Cause(h.ctx)
}

// Commit runs fn unless the handle has been cancelled. Cancellation waits for
// a running fn, so once Begin or Cancel returns a pre-empted generation can no
// longer persist anything.
func (h *Handle) Commit(fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.Err(); err != nil {
		return err
	}
	return fn()
}

func (h *Handle) stop(cause error) {
	<-h.ready
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancel(cause)
}

// Registry maps threads to their in-flight generation handle.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	handles map[domain.ThreadID]*Handle
	seq     uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[domain.ThreadID]*Handle)}
}

// Begin registers a new generation for threadID and returns its handle. Any
// previous handle for the thread is cancelled with ErrPreempted and evicted
// before Begin returns.
func (r *Registry) Begin(parent context.Context, threadID domain.ThreadID) *Handle {
	ctx, cancel := context.WithCancelCause(parent)

	r.mu.Lock()
	r.seq++
	h := &Handle{threadID: threadID, seq: r.seq, ctx: ctx, cancel: cancel, ready: make(chan struct{})}
	prev := r.handles[threadID]
	r.handles[threadID] = h
	r.mu.Unlock()

	if prev != nil {
		prev.stop(ErrPreempted)
		log.Debug(log.CatCancel, "generation pre-empted", "thread", threadID, "old", prev.seq, "new", h.seq)
	}
	close(h.ready)
	return h
}

// Cancel stops the current generation of threadID with ErrStopped and removes
// it. Reports whether a generation was in flight.
func (r *Registry) Cancel(threadID domain.ThreadID) bool {
	r.mu.Lock()
	h := r.handles[threadID]
	delete(r.handles, threadID)
	r.mu.Unlock()

	if h == nil {
		return false
	}
	h.stop(ErrStopped)
	log.Debug(log.CatCancel, "generation stopped", "thread", threadID, "seq", h.seq)
	return true
}

// End removes h once its generation has settled. It is a no-op when h was
// already cancelled or replaced, so it is safe to defer unconditionally.
func (r *Registry) End(h *Handle) {
	r.mu.Lock()
	if r.handles[h.threadID] == h {
		delete(r.handles, h.threadID)
	}
	r.mu.Unlock()

	// Release the context; a settled handle has nothing left to interrupt.
	h.cancel(nil)
}

// Active reports whether threadID has a generation in flight.
func (r *Registry) Active(threadID domain.ThreadID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[threadID]
	return ok
}

// Len returns the number of threads with a generation in flight.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// CancelAll stops every in-flight generation. Used on shutdown.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[domain.ThreadID]*Handle)
	r.mu.Unlock()

	for _, h := range handles {
		h.stop(ErrStopped)
	}
	return len(handles)
}
