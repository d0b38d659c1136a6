package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/forkchat/internal/config"
	"github.com/zjrosen/forkchat/internal/log"
)

const localConfigPath = ".forkchat/config.yaml"

var (
	version = "dev"
	cfgFile string

	// output flags shared by every command
	jsonOutput  bool
	plainOutput bool
	outputWidth int
	metricsAddr string
	debugFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "forkchat",
	Short: "Branching chat with language models from the terminal",
	Long: `forkchat keeps every conversation as a tree. Editing a message or
regenerating a reply creates a sibling branch instead of overwriting history,
and you can switch between branches at any point.

Threads are stored in a local SQLite database (default ~/.forkchat/chat.db).
Providers are configured in ~/.config/forkchat/config.yaml; API keys are read
from the environment or a .env file.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/forkchat/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"print results as JSON")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false,
		"print replies as plain text instead of rendered markdown")
	rootCmd.PersistentFlags().IntVar(&outputWidth, "width", 0,
		"wrap width for text output (default 80)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address while the command runs")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write debug logs (to log_file, or stderr)")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("metrics.addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))
}

func initConfig() {
	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: reading .env: %v\n", err)
	}

	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("FORKCHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .forkchat/config.yaml (current directory)
		// 2. ~/.config/forkchat/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			viper.AddConfigPath(userConfigDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
			return
		}
		// No config file found anywhere - create the user config
		defaultPath := filepath.Join(userConfigDir(), "config.yaml")
		if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
			viper.SetConfigFile(defaultPath)
			_ = viper.ReadInConfig()
		}
		// If write fails, just continue with defaults (no config file)
	}
}

func userConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".forkchat"
	}
	return filepath.Join(home, ".config", "forkchat")
}

// configFilePath returns the file settings are saved to.
func configFilePath() string {
	if p := viper.ConfigFileUsed(); p != "" {
		return p
	}
	return filepath.Join(userConfigDir(), "config.yaml")
}

// loadConfig decodes the viper state and starts logging.
func loadConfig() (config.Config, func(), error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, nil, err
	}

	cleanup := func() {}
	if cfg.Debug {
		if cfg.LogFile != "" {
			c, err := log.Init(cfg.LogFile)
			if err != nil {
				return config.Config{}, nil, fmt.Errorf("opening log file: %w", err)
			}
			cleanup = c
		} else {
			cleanup = log.InitWriter(os.Stderr, log.LevelDebug)
		}
		log.Debug(log.CatConfig, "Config loaded", "file", viper.ConfigFileUsed(), "db", cfg.Database.Path)
	}
	return cfg, cleanup, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
