package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/presentation"
)

var (
	threadsLimit  int
	threadsOffset int
)

var threadsListCmd = &cobra.Command{
	Use:   "threads:list",
	Short: "List threads, newest first",
	Long: `List threads with their ids and when they were last updated.

Examples:
  forkchat threads:list
  forkchat threads:list --limit 10 --offset 10
  forkchat threads:list --json | jq '.[].title'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			threads, err := a.orch.Threads(cmd.Context(), domain.ThreadFilter{Limit: threadsLimit, Offset: threadsOffset})
			if err != nil {
				return err
			}
			return a.out.FormatThreads(presentation.FromDomainThreads(threads))
		})
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "threads:show <thread-id>",
	Short: "Print a thread's active conversation",
	Long: `Print the messages on the thread's active branch, root to leaf.

Messages with alternative versions are marked with their position, e.g. ‹2/3›.
Use branch:info to list the alternatives and branch:switch to change branch.

Examples:
  forkchat threads:show 5b0c...
  forkchat threads:show 5b0c... --json | jq '.messages[] | {id, role}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			conv, err := conversation(cmd.Context(), a, domain.ThreadID(args[0]))
			if err != nil {
				return err
			}
			return a.out.FormatConversation(conv)
		})
	},
}

var threadsRenameCmd = &cobra.Command{
	Use:   "threads:rename <thread-id> <title...>",
	Short: "Rename a thread",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			id := domain.ThreadID(args[0])
			if err := a.orch.RenameThread(cmd.Context(), id, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			thread, err := a.orch.Thread(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.out.FormatThreads([]presentation.ThreadDTO{presentation.FromDomainThread(thread)})
		})
	},
}

var threadsDeleteCmd = &cobra.Command{
	Use:   "threads:delete <thread-id>",
	Short: "Delete a thread with all its branches and attachments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			if err := a.orch.DeleteThread(cmd.Context(), domain.ThreadID(args[0])); err != nil {
				return err
			}
			return a.out.FormatDeleted(presentation.DeletedDTO{Kind: "thread", ID: args[0], Count: 1})
		})
	},
}

func init() {
	threadsListCmd.Flags().IntVarP(&threadsLimit, "limit", "n", 0, "show at most this many threads")
	threadsListCmd.Flags().IntVar(&threadsOffset, "offset", 0, "skip this many threads")
	rootCmd.AddCommand(threadsListCmd, threadsShowCmd, threadsRenameCmd, threadsDeleteCmd)
}

// conversation reads the active path with the branch position of every
// message that has alternatives.
func conversation(ctx context.Context, a *app, id domain.ThreadID) (presentation.ConversationDTO, error) {
	thread, err := a.orch.Thread(ctx, id)
	if err != nil {
		return presentation.ConversationDTO{}, err
	}
	path, err := a.orch.ActivePath(ctx, id)
	if err != nil {
		return presentation.ConversationDTO{}, err
	}
	branches := make(map[domain.MessageID]domain.BranchInfo, len(path))
	for _, m := range path {
		info, err := a.orch.BranchInfo(ctx, m.ID())
		if err != nil {
			return presentation.ConversationDTO{}, err
		}
		branches[m.ID()] = info
	}
	return presentation.ConversationDTO{
		Thread:     presentation.FromDomainThread(thread),
		Messages:   presentation.FromDomainMessages(path, branches),
		Generating: a.orch.Generating(id),
	}, nil
}
