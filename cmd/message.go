package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/chat/orchestrator"
	"github.com/zjrosen/forkchat/internal/presentation"
)

var (
	editInPlace  bool
	editResend   bool
	editAttach   []string
	editRemove   []string
	editModel    string
	editNoStream bool

	regenBranch   bool
	regenProvider string
	regenModel    string
	regenNoStream bool
)

var messageEditCmd = &cobra.Command{
	Use:   "message:edit <thread-id> <message-id> <text...>",
	Short: "Edit a message, as a new branch by default",
	Long: `Change a message's content.

By default the original message and everything after it are kept and the
edited text becomes a new sibling branch, which is made active. With
--in-place the message itself is rewritten and the tree is unchanged.

With --resend an edited user message is sent to the model as a new branch
and the reply is printed.

Attachments of the original are carried to the new branch; --attach adds
files and --remove-file drops one by id (see threads:show --json).

Examples:
  # Ask the question differently, keeping the old answer on its own branch
  forkchat message:edit 5b0c... 11 "Reverse it recursively" --resend

  # Fix a typo without branching
  forkchat message:edit 5b0c... 11 "Reverse a linked list" --in-place`,
	Args: cobra.MinimumNArgs(3),
	RunE: runMessageEdit,
}

var messageRegenerateCmd = &cobra.Command{
	Use:   "message:regenerate <thread-id> <message-id>",
	Short: "Generate a new reply",
	Long: `Generate a new reply for a message.

For an assistant message the reply is regenerated from the same prompt. By
default the old reply and everything after it are replaced; with --branch it
is kept as a sibling you can switch back to.

For a user message its replies are replaced by a fresh one.

Examples:
  forkchat message:regenerate 5b0c... 12 --branch
  forkchat message:regenerate 5b0c... 12 --model gpt-4o`,
	Args: cobra.ExactArgs(2),
	RunE: runMessageRegenerate,
}

var messageDeleteCmd = &cobra.Command{
	Use:   "message:delete <thread-id> <message-id>",
	Short: "Delete a message and everything below it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseMessageID(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app) error {
			n, err := a.orch.DeleteMessage(cmd.Context(), domain.ThreadID(args[0]), id)
			if err != nil {
				return err
			}
			return a.out.FormatDeleted(presentation.DeletedDTO{Kind: "message", ID: args[1], Count: n})
		})
	},
}

func init() {
	messageEditCmd.Flags().BoolVar(&editInPlace, "in-place", false, "rewrite the message instead of branching")
	messageEditCmd.Flags().BoolVar(&editResend, "resend", false, "send the edited user message to the model")
	messageEditCmd.Flags().StringArrayVarP(&editAttach, "attach", "a", nil, "add a file (repeatable)")
	messageEditCmd.Flags().StringArrayVar(&editRemove, "remove-file", nil, "drop an attachment by id (repeatable)")
	messageEditCmd.Flags().StringVarP(&editModel, "model", "m", "", "model for the resent message")
	messageEditCmd.Flags().BoolVar(&editNoStream, "no-stream", false, "wait for the complete reply instead of streaming")
	messageEditCmd.MarkFlagsMutuallyExclusive("in-place", "resend")

	messageRegenerateCmd.Flags().BoolVarP(&regenBranch, "branch", "b", false, "keep the old reply as a sibling")
	messageRegenerateCmd.Flags().StringVarP(&regenProvider, "provider", "p", "", "provider for this reply only")
	messageRegenerateCmd.Flags().StringVarP(&regenModel, "model", "m", "", "model for this reply only")
	messageRegenerateCmd.Flags().BoolVar(&regenNoStream, "no-stream", false, "wait for the complete reply instead of streaming")

	rootCmd.AddCommand(messageEditCmd, messageRegenerateCmd, messageDeleteCmd)
}

func runMessageEdit(cmd *cobra.Command, args []string) error {
	id, err := parseMessageID(args[1])
	if err != nil {
		return err
	}
	text, err := messageText(args[2:], cmd.InOrStdin())
	if err != nil {
		return err
	}
	uploads, err := readAttachments(editAttach)
	if err != nil {
		return err
	}

	req := orchestrator.EditRequest{
		ThreadID:  domain.ThreadID(args[0]),
		MessageID: id,
		Content:   text,
		Mode:      orchestrator.EditAsBranch,
		Resend:    editResend,
		Model:     editModel,
	}
	if editInPlace {
		req.Mode = orchestrator.EditInPlace
	}
	if editNoStream {
		req.Stream = boolPtr(false)
	}
	if len(uploads) > 0 || len(editRemove) > 0 {
		req.Files = &domain.FileEdits{Add: uploads}
		for _, f := range editRemove {
			req.Files.Remove = append(req.Files.Remove, domain.FileID(f))
		}
	}

	return withApp(cmd, func(a *app) error {
		original, err := a.orch.Message(cmd.Context(), id)
		if err != nil {
			return err
		}

		var res *orchestrator.EditResult
		t := newTurnPrinter(a, req.ThreadID)
		_, err = t.run(cmd.Context(), func(ctx context.Context) (*orchestrator.SendResult, error) {
			var editErr error
			res, editErr = a.orch.EditMessage(ctx, req)
			if res != nil {
				return res.Reply, editErr
			}
			return nil, editErr
		})
		if res == nil {
			return err
		}
		streamed := t.flush(res.Reply)
		if ferr := a.out.FormatEdit(presentation.FromEditResult(original.Content(), req.Mode, res), streamed); ferr != nil {
			return ferr
		}
		return err
	})
}

func runMessageRegenerate(cmd *cobra.Command, args []string) error {
	id, err := parseMessageID(args[1])
	if err != nil {
		return err
	}
	opts := orchestrator.RegenerateOptions{
		Mode:       orchestrator.RegenerateReplace,
		ProviderID: regenProvider,
		Model:      regenModel,
	}
	if regenBranch {
		opts.Mode = orchestrator.RegenerateBranch
	}
	if regenNoStream {
		opts.Stream = boolPtr(false)
	}

	return withApp(cmd, func(a *app) error {
		threadID := domain.ThreadID(args[0])
		t := newTurnPrinter(a, threadID)
		res, err := t.run(cmd.Context(), func(ctx context.Context) (*orchestrator.SendResult, error) {
			return a.orch.Regenerate(ctx, threadID, id, opts)
		})
		if res != nil {
			if ferr := t.finish(res); ferr != nil {
				return ferr
			}
		}
		return err
	})
}
