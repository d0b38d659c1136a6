// Package title names threads: a seed title cut from the first message when
// a thread is created, and an optional model-written title afterwards.
package title

import (
	"context"
	"fmt"
	"strings"

	"github.com/rivo/uniseg"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/llm"
	"github.com/zjrosen/forkchat/internal/log"
	"github.com/zjrosen/forkchat/internal/metrics"
)

const (
	// SeedLength is the number of user-perceived characters kept by SeedTitle.
	SeedLength = 20

	// MaxLength bounds a generated title.
	MaxLength = 60

	// DefaultTitle names a thread whose first message has no text.
	DefaultTitle = "New chat"

	// transcriptLimit bounds how much of each message is sent to the model.
	transcriptLimit = 1000
)

const prompt = "Write a short title (at most six words) for the conversation below. " +
	"Reply with the title only, without quotes or trailing punctuation."

// Generator writes a title for a thread. Callers run it detached and only
// log its error.
type Generator interface {
	Generate(ctx context.Context, threadID domain.ThreadID, providerID, modelID string) error
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, threadID domain.ThreadID, providerID, modelID string) error

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, threadID domain.ThreadID, providerID, modelID string) error {
	return f(ctx, threadID, providerID, modelID)
}

// PathReader returns a thread's active transcript.
type PathReader interface {
	ActivePath(ctx context.Context, threadID domain.ThreadID) ([]*domain.Message, error)
}

// InvokerSource resolves a provider ID to an invoker.
type InvokerSource interface {
	Invoker(id string) (llm.Invoker, error)
}

// LLMGenerator asks a model for a title and renames the thread.
type LLMGenerator struct {
	threads  domain.ThreadRepository
	paths    PathReader
	invokers InvokerSource
	metrics  *metrics.Collectors
}

var _ Generator = (*LLMGenerator)(nil)

// NewLLMGenerator creates a generator. m may be nil.
func NewLLMGenerator(threads domain.ThreadRepository, paths PathReader, invokers InvokerSource, m *metrics.Collectors) *LLMGenerator {
	return &LLMGenerator{threads: threads, paths: paths, invokers: invokers, metrics: m}
}

// Generate titles threadID from its first exchange.
func (g *LLMGenerator) Generate(ctx context.Context, threadID domain.ThreadID, providerID, modelID string) (err error) {
	defer func() { g.metrics.ObserveTitle(err == nil) }()

	path, err := g.paths.ActivePath(ctx, threadID)
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}
	transcript := firstExchange(path)
	if transcript == "" {
		return fmt.Errorf("thread %s has no text to title", threadID)
	}

	inv, err := g.invokers.Invoker(providerID)
	if err != nil {
		return err
	}
	out, err := inv.Complete(ctx, llm.Request{
		Model:     modelID,
		System:    prompt,
		Messages:  []llm.Message{{Role: string(domain.RoleUser), Content: transcript}},
		MaxTokens: 32,
	})
	if err != nil {
		return fmt.Errorf("failed to generate title: %w", err)
	}

	title := Sanitize(out.Content)
	if title == "" {
		return fmt.Errorf("model returned an empty title")
	}
	if err := g.threads.Rename(ctx, threadID, title); err != nil {
		return err
	}
	log.Debug(log.CatTitle, "thread titled", "thread", threadID, "title", title)
	return nil
}

// firstExchange renders the first user message and the first reply.
func firstExchange(path []*domain.Message) string {
	var sb strings.Builder
	var seenUser, seenAssistant bool
	for _, m := range path {
		if m.IsError() || strings.TrimSpace(m.Content()) == "" {
			continue
		}
		switch {
		case m.Role() == domain.RoleUser && !seenUser:
			seenUser = true
		case m.Role() == domain.RoleAssistant && seenUser && !seenAssistant:
			seenAssistant = true
		default:
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", m.Role(), truncate(m.Content(), transcriptLimit))
		if seenAssistant {
			break
		}
	}
	return strings.TrimSpace(sb.String())
}

// SeedTitle returns the first SeedLength graphemes of text with whitespace
// collapsed, or DefaultTitle when text is blank.
func SeedTitle(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if collapsed == "" {
		return DefaultTitle
	}
	return truncate(collapsed, SeedLength)
}

// Sanitize reduces a model reply to a single-line title: first non-blank
// line, surrounding quotes and trailing punctuation removed, at most
// MaxLength graphemes.
func Sanitize(raw string) string {
	line := ""
	for _, l := range strings.Split(raw, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = strings.TrimPrefix(line, "Title:")
	line = strings.Trim(strings.TrimSpace(line), "\"'`*")
	line = strings.TrimRight(line, ".!?:; ")
	line = strings.Join(strings.Fields(line), " ")
	return truncate(line, MaxLength)
}

// truncate keeps the first n grapheme clusters of s.
func truncate(s string, n int) string {
	if uniseg.GraphemeClusterCount(s) <= n {
		return s
	}
	var sb strings.Builder
	g := uniseg.NewGraphemes(s)
	for i := 0; i < n && g.Next(); i++ {
		sb.WriteString(g.Str())
	}
	return strings.TrimSpace(sb.String())
}
