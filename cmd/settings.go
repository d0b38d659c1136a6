package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/presentation"
)

var (
	setProvider      string
	setModel         string
	setSystemPrompt  string
	setContextWindow int
	setMaxTokens     int
	setParams        []string
	setUnsetParams   []string
)

var settingsShowCmd = &cobra.Command{
	Use:   "settings:show [thread-id]",
	Short: "Show the settings a thread's next message will use",
	Long: `Show a thread's settings. Values the thread overrides are marked with *;
the rest come from the config file.

Without a thread id the config defaults for new threads are shown.

Examples:
  forkchat settings:show
  forkchat settings:show 5b0c...
  forkchat settings:show 5b0c... --json | jq .resolved.model`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			var threadID domain.ThreadID
			var overrides *domain.ThreadSettings
			if len(args) == 1 {
				threadID = domain.ThreadID(args[0])
				var err error
				if overrides, err = a.orch.ThreadSettings(cmd.Context(), threadID); err != nil {
					return err
				}
			}
			resolved, err := a.orch.ResolvedSettings(cmd.Context(), threadID)
			if err != nil {
				return err
			}
			return a.out.FormatSettings(presentation.FromSettings(threadID, overrides, resolved))
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "settings:set <thread-id>",
	Short: "Override settings for one thread",
	Long: `Set per-thread overrides. Only the flags given are changed; earlier
overrides are kept. The new settings apply from the next message; a reply
being generated keeps the settings it started with.

--param sets a provider-specific request parameter. Values are parsed as
JSON-like scalars: numbers, true/false, or a string.

Examples:
  forkchat settings:set 5b0c... --model gpt-4o --max-tokens 1024
  forkchat settings:set 5b0c... --system "Answer in one paragraph."
  forkchat settings:set 5b0c... --context-window 10
  forkchat settings:set 5b0c... --param temperature=0.2 --unset-param top_p`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsSet,
}

var settingsResetCmd = &cobra.Command{
	Use:   "settings:reset <thread-id>",
	Short: "Remove all overrides from a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			threadID := domain.ThreadID(args[0])
			if err := a.orch.SaveSettings(cmd.Context(), threadID, &domain.ThreadSettings{}); err != nil {
				return err
			}
			resolved, err := a.orch.ResolvedSettings(cmd.Context(), threadID)
			if err != nil {
				return err
			}
			return a.out.FormatSettings(presentation.FromSettings(threadID, nil, resolved))
		})
	},
}

func init() {
	f := settingsSetCmd.Flags()
	f.StringVarP(&setProvider, "provider", "p", "", "provider id")
	f.StringVarP(&setModel, "model", "m", "", "model name")
	f.StringVar(&setSystemPrompt, "system", "", "system prompt")
	f.IntVar(&setContextWindow, "context-window", 0, "send only this many recent messages (0 for all)")
	f.IntVar(&setMaxTokens, "max-tokens", 0, "reply token limit (0 for the provider default)")
	f.StringArrayVar(&setParams, "param", nil, "extra request parameter as key=value (repeatable)")
	f.StringArrayVar(&setUnsetParams, "unset-param", nil, "remove an extra request parameter (repeatable)")

	rootCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsResetCmd)
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	params, err := parseParams(setParams)
	if err != nil {
		return err
	}

	return withApp(cmd, func(a *app) error {
		threadID := domain.ThreadID(args[0])
		current, err := a.orch.ThreadSettings(cmd.Context(), threadID)
		if err != nil {
			return err
		}
		s := current
		if s == nil {
			s = &domain.ThreadSettings{}
		}

		flags := cmd.Flags()
		if flags.Changed("provider") {
			s.ProviderID = domain.Ptr(setProvider)
		}
		if flags.Changed("model") {
			s.ModelID = domain.Ptr(setModel)
		}
		if flags.Changed("system") {
			s.SystemPrompt = domain.Ptr(setSystemPrompt)
		}
		if flags.Changed("context-window") {
			s.ContextWindow = domain.Ptr(setContextWindow)
		}
		if flags.Changed("max-tokens") {
			s.MaxTokens = domain.Ptr(setMaxTokens)
		}
		if len(params) > 0 && s.ExtraParams == nil {
			s.ExtraParams = make(map[string]any, len(params))
		}
		for k, v := range params {
			s.ExtraParams[k] = v
		}
		for _, k := range setUnsetParams {
			delete(s.ExtraParams, k)
		}

		if err := a.orch.SaveSettings(cmd.Context(), threadID, s); err != nil {
			return err
		}
		resolved, err := a.orch.ResolvedSettings(cmd.Context(), threadID)
		if err != nil {
			return err
		}
		return a.out.FormatSettings(presentation.FromSettings(threadID, s, resolved))
	})
}

// parseParams reads key=value pairs. Integers, floats and true/false keep
// their type; anything else is a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", p)
		}
		params[key] = parseScalar(raw)
	}
	return params, nil
}

func parseScalar(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
