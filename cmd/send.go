package cmd

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/chat/orchestrator"
	"github.com/zjrosen/forkchat/internal/presentation"
)

var (
	sendThread   string
	sendProvider string
	sendModel    string
	sendParent   int64
	sendAsRoot   bool
	sendNoStream bool
	sendAttach   []string
)

var sendCmd = &cobra.Command{
	Use:   "send [text...]",
	Short: "Send a message and print the reply",
	Long: `Send a user message to a thread and print the model's reply.

Without --thread a new thread is created and titled from the first exchange.
The message is appended to the thread's active branch unless --parent or
--root places it elsewhere. Use "-" as the text to read it from stdin.

Press Ctrl-C while a reply is streaming to stop it. The message you sent is
kept; no reply is saved.

Examples:
  # Start a new thread
  forkchat send "How do I reverse a linked list?"

  # Continue an existing thread
  forkchat send -t 5b0c... "And for a doubly linked list?"

  # Fork the conversation from an earlier message
  forkchat send -t 5b0c... --parent 12 "What about recursion instead?"

  # Attach files and pick a model for this message only
  forkchat send -t 5b0c... -a notes.md -a diagram.png --model gpt-4o "Summarize"

  # Read the prompt from a file
  forkchat send - < prompt.txt

  # Machine-readable output
  forkchat send --json "hi" | jq .assistant.content`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVarP(&sendThread, "thread", "t", "", "thread to send to (default: new thread)")
	sendCmd.Flags().StringVarP(&sendProvider, "provider", "p", "", "provider for this message only")
	sendCmd.Flags().StringVarP(&sendModel, "model", "m", "", "model for this message only")
	sendCmd.Flags().Int64Var(&sendParent, "parent", 0, "reply under this message instead of the active leaf")
	sendCmd.Flags().BoolVar(&sendAsRoot, "root", false, "start a new root branch at the top of the thread")
	sendCmd.Flags().BoolVar(&sendNoStream, "no-stream", false, "wait for the complete reply instead of streaming")
	sendCmd.Flags().StringArrayVarP(&sendAttach, "attach", "a", nil, "attach a file (repeatable)")
	sendCmd.MarkFlagsMutuallyExclusive("parent", "root")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	text, err := messageText(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	attachments, err := readAttachments(sendAttach)
	if err != nil {
		return err
	}

	return withApp(cmd, func(a *app) error {
		req := orchestrator.SendRequest{
			ThreadID:    domain.ThreadID(sendThread),
			Text:        text,
			Attachments: attachments,
			ProviderID:  sendProvider,
			Model:       sendModel,
			AsRoot:      sendAsRoot,
		}
		if sendParent != 0 {
			req.ParentID = messageIDPtr(sendParent)
		}
		if sendNoStream {
			req.Stream = boolPtr(false)
		}

		t := newTurnPrinter(a, req.ThreadID)
		req.OnUserMessageSaved = t.userSaved

		res, err := t.run(cmd.Context(), func(ctx context.Context) (*orchestrator.SendResult, error) {
			return a.orch.Send(ctx, req)
		})
		if res != nil {
			if ferr := t.finish(res); ferr != nil {
				return ferr
			}
		}
		return err
	})
}

// turnPrinter streams deltas of one turn to stdout and turns Ctrl-C into a
// stop of that turn.
type turnPrinter struct {
	a *app

	mu       sync.Mutex
	threadID domain.ThreadID
	printed  strings.Builder
}

func newTurnPrinter(a *app, threadID domain.ThreadID) *turnPrinter {
	return &turnPrinter{a: a, threadID: threadID}
}

func (t *turnPrinter) userSaved(m *domain.Message) {
	t.mu.Lock()
	t.threadID = m.ThreadID()
	t.mu.Unlock()
}

func (t *turnPrinter) thread() domain.ThreadID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.threadID
}

// run executes fn while printing deltas and watching for an interrupt.
func (t *turnPrinter) run(parent context.Context, fn func(ctx context.Context) (*orchestrator.SendResult, error)) (*orchestrator.SendResult, error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			// Stopping keeps the user message; before it is saved there is
			// nothing to stop, so the call is cancelled instead.
			if id := t.thread(); id == "" || !t.a.orch.Stop(id) {
				cancel()
			}
		case <-ctx.Done():
		}
	}()

	events := t.a.orch.Subscribe(ctx, "")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Payload.Kind != orchestrator.KindDelta {
				continue
			}
			if id := t.thread(); id != "" && ev.Payload.ThreadID != id {
				continue
			}
			t.mu.Lock()
			t.printed.WriteString(ev.Payload.Delta)
			t.mu.Unlock()
			_ = t.a.out.WriteDelta(ev.Payload.Delta)
		}
	}()

	res, err := fn(ctx)
	cancel()
	<-done
	return res, err
}

// finish completes the streamed output and prints the result footer.
func (t *turnPrinter) finish(res *orchestrator.SendResult) error {
	streamed := t.flush(res)
	return t.a.out.FormatSendResult(presentation.FromSendResult(res), streamed)
}

// flush prints whatever part of the reply the event stream did not deliver
// and ends the line. It reports whether anything was streamed.
func (t *turnPrinter) flush(res *orchestrator.SendResult) bool {
	t.mu.Lock()
	printed := t.printed.String()
	t.mu.Unlock()
	if printed == "" {
		return false
	}

	if res != nil && res.Assistant != nil && res.Assistant.ErrorText() == "" {
		if rest, ok := strings.CutPrefix(res.Assistant.Content(), printed); ok {
			_ = t.a.out.WriteDelta(rest)
		}
	}
	_ = t.a.out.WriteDelta("\n")
	return true
}

// messageText joins args, or reads stdin when the only arg is "-".
func messageText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}

func readAttachments(paths []string) ([]domain.FileUpload, error) {
	uploads := make([]domain.FileUpload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p) //nolint:gosec // G304: user-selected attachment
		if err != nil {
			return nil, fmt.Errorf("reading attachment: %w", err)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(p))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		uploads = append(uploads, domain.FileUpload{
			Name:     filepath.Base(p),
			MimeType: mimeType,
			Data:     data,
		})
	}
	return uploads, nil
}

func messageIDPtr(id int64) *domain.MessageID {
	v := domain.MessageID(id)
	return &v
}

func boolPtr(b bool) *bool {
	return &b
}
