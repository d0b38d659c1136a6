// Package orchestrator drives a chat turn end to end: it creates threads
// lazily, persists the user message, invokes the model, consumes the stream
// and stores the reply, while the cancellation registry keeps at most one
// generation in flight per thread.
//
// Reads (ActivePath, BranchInfo) always go to the store. Published events
// only tell subscribers that a re-read is due.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/forkchat/internal/cachemanager"
	"github.com/zjrosen/forkchat/internal/chat/cancel"
	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/chat/title"
	"github.com/zjrosen/forkchat/internal/chat/tree"
	"github.com/zjrosen/forkchat/internal/flags"
	"github.com/zjrosen/forkchat/internal/llm"
	"github.com/zjrosen/forkchat/internal/log"
	"github.com/zjrosen/forkchat/internal/metrics"
	"github.com/zjrosen/forkchat/internal/pubsub"
)

const (
	defaultSettingsTTL  = 5 * time.Minute
	defaultTitleTimeout = time.Minute
)

// InvokerSource resolves a provider ID to an invoker. *llm.Router satisfies it.
type InvokerSource interface {
	Invoker(id string) (llm.Invoker, error)
}

// Config holds application-level defaults.
type Config struct {
	// Defaults apply to every thread; ThreadSettings override them.
	Defaults domain.ResolvedSettings

	// Stream is the delivery mode when a request leaves it unset.
	Stream bool

	// TitleProviderID and TitleModel select the title model. Empty values fall
	// back to the provider and model of the first reply.
	TitleProviderID string
	TitleModel      string
	TitleTimeout    time.Duration

	SettingsTTL time.Duration
}

// Deps are the collaborators of an Orchestrator. Threads, Messages,
// Settings, Files and Invokers are required; the rest have defaults.
type Deps struct {
	Threads  domain.ThreadRepository
	Messages domain.MessageRepository
	Settings domain.SettingsRepository
	Files    domain.FileRepository
	Invokers InvokerSource

	Registry *cancel.Registry
	Titles   title.Generator
	Flags    *flags.Registry
	Broker   *pubsub.Broker[Event]
	Tracer   trace.Tracer
	Metrics  *metrics.Collectors

	// NewThreadID generates IDs for lazily created threads.
	NewThreadID func() domain.ThreadID
}

// Orchestrator is the entry point of the chat core. It is safe for
// concurrent use; generations on different threads run in parallel.
type Orchestrator struct {
	cfg Config

	threads  domain.ThreadRepository
	messages domain.MessageRepository
	settings domain.SettingsRepository
	files    domain.FileRepository
	invokers InvokerSource

	resolver *tree.Resolver
	branches *tree.Branches
	registry *cancel.Registry
	titles   title.Generator
	flags    *flags.Registry
	broker   *pubsub.Broker[Event]
	tracer   trace.Tracer
	metrics  *metrics.Collectors

	newThreadID   func() domain.ThreadID
	settingsCache *cachemanager.ReadThroughCache[domain.ThreadID, *domain.ThreadSettings, domain.ThreadID]
	settingsStore *cachemanager.InMemoryCacheManager[domain.ThreadID, *domain.ThreadSettings]

	draftMu sync.Mutex
	draft   *domain.ThreadSettings

	// background tasks (title generation) run under bg and are tracked by wg.
	bg       context.Context
	stopBg   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.SettingsTTL <= 0 {
		cfg.SettingsTTL = defaultSettingsTTL
	}
	if cfg.TitleTimeout <= 0 {
		cfg.TitleTimeout = defaultTitleTimeout
	}

	o := &Orchestrator{
		cfg:         cfg,
		threads:     deps.Threads,
		messages:    deps.Messages,
		settings:    deps.Settings,
		files:       deps.Files,
		invokers:    deps.Invokers,
		resolver:    tree.NewResolver(deps.Messages),
		branches:    tree.NewBranches(deps.Messages),
		registry:    deps.Registry,
		titles:      deps.Titles,
		flags:       deps.Flags,
		broker:      deps.Broker,
		tracer:      deps.Tracer,
		metrics:     deps.Metrics,
		newThreadID: deps.NewThreadID,
	}
	if o.registry == nil {
		o.registry = cancel.NewRegistry()
	}
	if o.broker == nil {
		o.broker = pubsub.NewBroker[Event]()
	}
	if o.tracer == nil {
		o.tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if o.newThreadID == nil {
		o.newThreadID = func() domain.ThreadID { return domain.ThreadID(uuid.NewString()) }
	}

	o.settingsStore = cachemanager.NewInMemoryCacheManager[domain.ThreadID, *domain.ThreadSettings](
		"thread-settings", cfg.SettingsTTL, cachemanager.DefaultCleanupInterval)
	o.settingsCache = cachemanager.NewReadThroughCache[domain.ThreadID, *domain.ThreadSettings, domain.ThreadID](
		o.settingsStore, o.loadSettings, false)

	o.bg, o.stopBg = context.WithCancel(context.Background())
	return o
}

// Registry returns the cancellation registry.
func (o *Orchestrator) Registry() *cancel.Registry {
	return o.registry
}

// Stop cancels the in-flight generation of threadID, if any. The
// generation ends Aborted and persists nothing.
func (o *Orchestrator) Stop(threadID domain.ThreadID) bool {
	stopped := o.registry.Cancel(threadID)
	if stopped {
		log.Info(log.CatChat, "generation stopped", "thread", threadID)
	}
	return stopped
}

// Generating reports whether threadID has a generation in flight.
func (o *Orchestrator) Generating(threadID domain.ThreadID) bool {
	return o.registry.Active(threadID)
}

// Wait blocks until detached background tasks have finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown stops every in-flight generation, cancels background tasks and
// waits for them until ctx is done.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.shutdown.Do(func() {
		if n := o.registry.CancelAll(); n > 0 {
			log.Info(log.CatChat, "stopped in-flight generations", "count", n)
		}
		o.stopBg()
	})

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// goBackground runs fn detached from the caller, under the orchestrator's
// background context.
func (o *Orchestrator) goBackground(name string, timeout time.Duration, fn func(ctx context.Context)) {
	o.wg.Add(1)
	log.SafeGo(name, func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(o.bg, timeout)
		defer cancel()
		fn(ctx)
	})
}
