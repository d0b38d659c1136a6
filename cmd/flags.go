package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zjrosen/forkchat/internal/config"
	"github.com/zjrosen/forkchat/internal/flags"
)

var flagsListCmd = &cobra.Command{
	Use:   "flags:list",
	Short: "List feature flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cleanup, err := loadConfig()
		if err != nil {
			return err
		}
		defer cleanup()
		return newFormatter(cmd.OutOrStdout()).FormatFlags(flags.New(cfg.Flags).All())
	},
}

var flagsSetCmd = &cobra.Command{
	Use:   "flags:set <name> <on|off>",
	Short: "Turn a feature flag on or off in the config file",
	Long: `Write a feature flag to the config file. Comments and other settings in
the file are kept. A forkchat process already running picks the change up.

Known flags:
  auto-title        title new threads from their first exchange
  token-estimates   count prompt tokens locally before each model call

Examples:
  forkchat flags:set auto-title off
  forkchat flags:set token-estimates on`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, err := parseSwitch(args[1])
		if err != nil {
			return err
		}
		path := configFilePath()
		if err := config.SaveFlag(path, args[0], enabled); err != nil {
			return fmt.Errorf("failed to save flag: %w", err)
		}
		return newFormatter(cmd.OutOrStdout()).FormatFlags(map[string]bool{args[0]: enabled})
	},
}

var configModelCmd = &cobra.Command{
	Use:   "config:model <model>",
	Short: "Set the default model for new threads",
	Long: `Write chat.default_model to the config file. Threads that override the
model keep theirs.

Examples:
  forkchat config:model gpt-4o`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFilePath()
		if err := config.SaveDefaultModel(path, args[0]); err != nil {
			return fmt.Errorf("failed to save default model: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Default model set to %s in %s\n", args[0], path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(flagsListCmd, flagsSetCmd, configModelCmd)
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	return false, fmt.Errorf("invalid value %q: expected on or off", s)
}
