package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/forkchat/internal/chat/orchestrator"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 80

// Formatter handles output formatting
type Formatter struct {
	writer   io.Writer
	json     bool
	width    int
	markdown *MarkdownRenderer
	now      func() time.Time
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithJSON switches every Format method to indented JSON.
func WithJSON(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.json = enabled
	}
}

// WithWidth sets the wrap width for text output.
func WithWidth(width int) FormatterOption {
	return func(f *Formatter) {
		if width > 0 {
			f.width = width
		}
	}
}

// WithMarkdown renders assistant replies through r. Without it replies are
// printed as wrapped plain text.
func WithMarkdown(r *MarkdownRenderer) FormatterOption {
	return func(f *Formatter) {
		f.markdown = r
	}
}

// WithClock sets the reference time for relative timestamps.
func WithClock(now func() time.Time) FormatterOption {
	return func(f *Formatter) {
		f.now = now
	}
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer, opts ...FormatterOption) *Formatter {
	f := &Formatter{
		writer: writer,
		width:  DefaultWidth,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// JSON reports whether the formatter writes JSON.
func (f *Formatter) JSON() bool {
	return f.json
}

func (f *Formatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func (f *Formatter) print(s string) error {
	_, err := io.WriteString(f.writer, s+"\n")
	return err
}

// FormatThreads formats a thread listing, most recently updated first as
// given.
func (f *Formatter) FormatThreads(threads []ThreadDTO) error {
	if f.json {
		return f.encode(threads)
	}
	if len(threads) == 0 {
		return f.print(MutedStyle.Render("No threads yet. Start one with 'forkchat send'."))
	}

	var b strings.Builder
	// id column plus the relative time column
	titleWidth := max(f.width-36, 10)
	for _, t := range threads {
		title := t.Title
		if title == "" {
			title = "(untitled)"
		}
		title = runewidth.FillRight(runewidth.Truncate(title, titleWidth, "…"), titleWidth)
		fmt.Fprintf(&b, "%s  %s  %s\n",
			MutedStyle.Render(t.ID),
			title,
			MutedStyle.Render(f.relTime(t.UpdatedAt)))
	}
	return f.print(strings.TrimRight(b.String(), "\n"))
}

// FormatConversation formats a thread's active path.
func (f *Formatter) FormatConversation(conv ConversationDTO) error {
	if f.json {
		return f.encode(conv)
	}

	var b strings.Builder
	title := conv.Thread.Title
	if title == "" {
		title = "(untitled)"
	}
	b.WriteString(TitleStyle.Render(title) + " " + MutedStyle.Render(conv.Thread.ID) + "\n\n")

	for _, m := range conv.Messages {
		b.WriteString(f.renderMessage(m))
		b.WriteString("\n\n")
	}
	if conv.Generating {
		b.WriteString(MutedStyle.Render("A reply is being generated…") + "\n")
	}
	return f.print(strings.TrimRight(b.String(), "\n"))
}

// FormatMessage formats a single message with its header.
func (f *Formatter) FormatMessage(m MessageDTO) error {
	if f.json {
		return f.encode(m)
	}
	return f.print(f.renderMessage(m))
}

// FormatBranch formats the siblings of a message, marking the active one.
func (f *Formatter) FormatBranch(br BranchDTO) error {
	if f.json {
		return f.encode(br)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", HeaderStyle.Render(fmt.Sprintf("Message #%d: branch %d of %d", br.MessageID, br.Current, br.Total)))
	previewWidth := max(f.width-16, 10)
	for i, s := range br.Siblings {
		marker := " "
		if i+1 == br.Current {
			marker = "*"
		}
		preview := firstLine(s.Content)
		if s.Error != "" {
			preview = ErrorStyle.Render("error: ") + preview
		}
		fmt.Fprintf(&b, "%s %d. %s %s\n",
			marker, i+1,
			MutedStyle.Render(fmt.Sprintf("#%d", s.ID)),
			runewidth.Truncate(preview, previewWidth, "…"))
	}
	return f.print(strings.TrimRight(b.String(), "\n"))
}

// FormatSendResult formats the outcome of a send. In text mode a streamed
// reply has already been written through WriteDelta, so only the footer is
// printed when streamed is set.
func (f *Formatter) FormatSendResult(r *SendResultDTO, streamed bool) error {
	if f.json {
		return f.encode(r)
	}

	var b strings.Builder
	switch {
	case r.State == string(orchestrator.StateAborted):
		b.WriteString(MutedStyle.Render("Stopped. No reply was saved."))
	case r.Assistant == nil:
		b.WriteString(MutedStyle.Render("No reply."))
	case streamed && r.Assistant.Error == "":
	default:
		b.WriteString(f.renderMessage(*r.Assistant))
	}

	var footer []string
	if r.ThreadCreated {
		footer = append(footer, "new thread "+r.ThreadID)
	}
	if r.Tokens != nil {
		footer = append(footer, formatTokens(*r.Tokens))
	}
	if len(footer) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(MutedStyle.Render(strings.Join(footer, " · ")))
	}
	if b.Len() == 0 {
		return nil
	}
	return f.print(b.String())
}

// FormatEdit formats an edit with an inline word diff against the original.
// streamed means a resent reply was already written through WriteDelta.
func (f *Formatter) FormatEdit(e EditDTO, streamed bool) error {
	if f.json {
		return f.encode(e)
	}

	var b strings.Builder
	if e.Branched {
		b.WriteString(HeaderStyle.Render(fmt.Sprintf("Created branch #%d", e.Message.ID)))
	} else {
		b.WriteString(HeaderStyle.Render(fmt.Sprintf("Edited #%d", e.Message.ID)))
	}
	b.WriteString("\n")
	b.WriteString(WordWrap(renderWordDiff(wordDiff(e.Original, e.Message.Content)), f.width))
	if err := f.print(b.String()); err != nil {
		return err
	}
	if e.Reply != nil {
		return f.FormatSendResult(e.Reply, streamed)
	}
	return nil
}

// FormatSettings formats a thread's overrides and the values in effect.
func (f *Formatter) FormatSettings(s SettingsDTO) error {
	if f.json {
		return f.encode(s)
	}

	var b strings.Builder
	if s.ThreadID != "" {
		b.WriteString(HeaderStyle.Render("Settings for "+s.ThreadID) + "\n")
	} else {
		b.WriteString(HeaderStyle.Render("Settings for the next new thread") + "\n")
	}
	row := func(key string, value any) {
		mark := " "
		if _, ok := s.Overrides[key]; ok {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %-15s %v\n", mark, key, value)
	}
	row("provider", s.Resolved.Provider)
	row("model", s.Resolved.Model)
	row("system_prompt", runewidth.Truncate(firstLine(s.Resolved.SystemPrompt), max(f.width-20, 10), "…"))
	row("context_window", limitText(s.Resolved.ContextWindow, "all messages"))
	row("max_tokens", limitText(s.Resolved.MaxTokens, "provider default"))
	for _, k := range slices.Sorted(maps.Keys(s.Resolved.ExtraParams)) {
		fmt.Fprintf(&b, "  %-15s %v\n", k, s.Resolved.ExtraParams[k])
	}
	b.WriteString(MutedStyle.Render("* set on this thread"))
	return f.print(b.String())
}

// FormatDeleted confirms a deletion.
func (f *Formatter) FormatDeleted(d DeletedDTO) error {
	if f.json {
		return f.encode(d)
	}
	if d.Kind == "thread" || d.Count <= 1 {
		return f.print("Deleted " + d.Kind + " " + d.ID)
	}
	return f.print(fmt.Sprintf("Deleted %s %s and %s below it", d.Kind, d.ID, pluralCount(d.Count-1, "message", "messages")))
}

// FormatFlags formats feature flags sorted by name.
func (f *Formatter) FormatFlags(flags map[string]bool) error {
	if f.json {
		return f.encode(flags)
	}
	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(flags)) {
		state := MutedStyle.Render("off")
		if flags[name] {
			state = AddedStyle.Render("on")
		}
		fmt.Fprintf(&b, "%-20s %s\n", name, state)
	}
	return f.print(strings.TrimRight(b.String(), "\n"))
}

// WriteDelta writes a chunk of a streamed reply as it arrives. It is a no-op
// in JSON mode, where only the final result is printed.
func (f *Formatter) WriteDelta(delta string) error {
	if f.json {
		return nil
	}
	_, err := io.WriteString(f.writer, delta)
	return err
}

func (f *Formatter) renderMessage(m MessageDTO) string {
	var b strings.Builder

	header := []string{roleLabel(m.Role, m.Error != ""), MutedStyle.Render(fmt.Sprintf("#%d", m.ID))}
	if m.Branch != nil {
		header = append(header, MutedStyle.Render(fmt.Sprintf("‹%d/%d›", m.Branch.Current, m.Branch.Total)))
	}
	if m.Model != "" {
		header = append(header, MutedStyle.Render(m.Model))
	}
	if !m.CreatedAt.IsZero() {
		header = append(header, MutedStyle.Render(f.relTime(m.CreatedAt)))
	}
	b.WriteString(strings.Join(header, " "))
	b.WriteString("\n")

	if m.Content != "" {
		b.WriteString(f.renderContent(m))
		b.WriteString("\n")
	}
	for _, file := range m.Files {
		fmt.Fprintf(&b, "%s\n", MutedStyle.Render(fmt.Sprintf("📎 %s (%s)", file.Name, humanize.IBytes(uint64(max(file.Size, 0))))))
	}
	if m.Error != "" {
		b.WriteString(ErrorStyle.Render("error: "+m.Error) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (f *Formatter) renderContent(m MessageDTO) string {
	if m.Role == "assistant" && f.markdown != nil {
		if out, err := f.markdown.Render(m.Content); err == nil {
			return out
		}
	}
	return WordWrap(m.Content, f.width)
}

func (f *Formatter) relTime(t time.Time) string {
	return humanize.RelTime(t, f.now(), "ago", "from now")
}

func formatTokens(t TokensDTO) string {
	in := humanize.Comma(int64(t.Prompt))
	if t.Estimated {
		in = "~" + in
	}
	return fmt.Sprintf("%s in / %s out tokens", in, humanize.Comma(int64(t.Completion)))
}

func limitText(n int, zero string) string {
	if n == 0 {
		return zero
	}
	return humanize.Comma(int64(n))
}

func pluralCount(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return humanize.Comma(int64(n)) + " " + many
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
