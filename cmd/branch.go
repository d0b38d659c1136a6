package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/presentation"
)

var branchInfoCmd = &cobra.Command{
	Use:   "branch:info <message-id>",
	Short: "List the alternative versions of a message",
	Long: `List a message and its siblings: the other replies to the same parent,
or the other roots of the thread. The active one is marked with *.

Examples:
  forkchat branch:info 12
  forkchat branch:info 12 --json | jq '.siblings[].id'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseMessageID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app) error {
			info, err := a.orch.BranchInfo(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.out.FormatBranch(presentation.FromBranchInfo(id, info))
		})
	},
}

var branchSwitchCmd = &cobra.Command{
	Use:   "branch:switch <thread-id> <message-id>",
	Short: "Make a message part of the active conversation",
	Long: `Switch the thread's active branch so that it runs through the given
message. Every ancestor is repointed; below the message the branch that was
last active there is kept. Nothing is created or deleted.

Examples:
  forkchat branch:switch 5b0c... 17`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := parseMessageID(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app) error {
			threadID := domain.ThreadID(args[0])
			if err := a.orch.SwitchBranch(cmd.Context(), threadID, target); err != nil {
				return err
			}
			return showConversation(cmd, a, threadID)
		})
	},
}

var branchStepDelta int

var branchStepCmd = &cobra.Command{
	Use:   "branch:step <thread-id> <message-id>",
	Short: "Switch to the next or previous sibling of a message",
	Long: `Move from a message to the sibling --delta positions away and make it
active. Steps outside the sibling list are rejected.

Examples:
  # Next alternative reply
  forkchat branch:step 5b0c... 12

  # Previous alternative reply
  forkchat branch:step 5b0c... 12 --delta -1`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseMessageID(args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(a *app) error {
			threadID := domain.ThreadID(args[0])
			if _, err := a.orch.StepBranch(cmd.Context(), threadID, id, branchStepDelta); err != nil {
				return err
			}
			return showConversation(cmd, a, threadID)
		})
	},
}

func init() {
	branchStepCmd.Flags().IntVar(&branchStepDelta, "delta", 1, "sibling offset, negative to go back")
	rootCmd.AddCommand(branchInfoCmd, branchSwitchCmd, branchStepCmd)
}

func showConversation(cmd *cobra.Command, a *app, threadID domain.ThreadID) error {
	conv, err := conversation(cmd.Context(), a, threadID)
	if err != nil {
		return err
	}
	return a.out.FormatConversation(conv)
}

func parseMessageID(s string) (domain.MessageID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid message id %q", s)
	}
	return domain.MessageID(id), nil
}
