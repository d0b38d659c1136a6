// Package config provides configuration types and defaults for forkchat.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/forkchat/internal/chat/domain"
	"github.com/zjrosen/forkchat/internal/flags"
	"github.com/zjrosen/forkchat/internal/llm"
	"github.com/zjrosen/forkchat/internal/log"
	"github.com/zjrosen/forkchat/internal/tracing"
)

// Config holds all configuration options for forkchat.
type Config struct {
	Debug     bool             `mapstructure:"debug"`
	LogFile   string           `mapstructure:"log_file"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Providers []ProviderConfig `mapstructure:"providers"`
	Chat      ChatConfig       `mapstructure:"chat"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Tracing   tracing.Config   `mapstructure:"tracing"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Flags     map[string]bool  `mapstructure:"flags"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	// Path is the database file. Default: ~/.forkchat/chat.db
	Path string `mapstructure:"path"`
}

// ProviderConfig configures one model provider.
type ProviderConfig struct {
	ID      string `mapstructure:"id"`
	Type    string `mapstructure:"type"` // "openai" (default) or "mock"
	BaseURL string `mapstructure:"base_url"`

	// APIKeyEnv names the environment variable holding the API key, so the
	// key itself never has to live in the config file.
	APIKeyEnv string `mapstructure:"api_key_env"`

	Timeout        time.Duration `mapstructure:"timeout"`
	DisabledModels []string      `mapstructure:"disabled_models"`
}

// ChatConfig holds the application-wide chat defaults. Per-thread settings
// override them.
type ChatConfig struct {
	Provider      string `mapstructure:"provider"`
	DefaultModel  string `mapstructure:"default_model"`
	SystemPrompt  string `mapstructure:"system_prompt"`
	ContextWindow int    `mapstructure:"context_window"` // 0 sends the whole path
	MaxTokens     int    `mapstructure:"max_tokens"`     // 0 leaves it to the provider
	Stream        bool   `mapstructure:"stream"`

	// TitleProvider and TitleModel select the model used for thread titles.
	// Empty values reuse the provider and model of the first reply.
	TitleProvider string        `mapstructure:"title_provider"`
	TitleModel    string        `mapstructure:"title_model"`
	TitleTimeout  time.Duration `mapstructure:"title_timeout"`
}

// CacheConfig tunes in-memory caches.
type CacheConfig struct {
	SettingsTTL time.Duration `mapstructure:"settings_ttl"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics, e.g. "127.0.0.1:9464".
	// Empty disables the endpoint.
	Addr string `mapstructure:"addr"`
}

// DefaultProviderID is the provider used when chat.provider is unset.
const DefaultProviderID = "openai"

// Defaults returns the default configuration.
func Defaults() Config {
	tc := tracing.DefaultConfig()
	tc.FilePath = DefaultTracesFilePath()
	return Config{
		Database: DatabaseConfig{Path: DefaultDatabasePath()},
		Providers: []ProviderConfig{
			{
				ID:        DefaultProviderID,
				Type:      string(llm.ProviderOpenAI),
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
				Timeout:   2 * time.Minute,
			},
			{ID: "mock", Type: string(llm.ProviderMock)},
		},
		Chat: ChatConfig{
			Provider:     DefaultProviderID,
			DefaultModel: "gpt-4o-mini",
			Stream:       true,
			TitleTimeout: 30 * time.Second,
		},
		Cache:   CacheConfig{SettingsTTL: 5 * time.Minute},
		Tracing: tc,
		Flags:   flags.Defaults(),
	}
}

// DefaultDatabasePath returns ~/.forkchat/chat.db, or chat.db in the current
// directory if the home directory is unavailable.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chat.db"
	}
	return filepath.Join(home, ".forkchat", "chat.db")
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/forkchat/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "forkchat", "traces", "traces.jsonl")
}

// ChatDefaults converts the chat section into the settings every thread
// starts from.
func (c Config) ChatDefaults() domain.ResolvedSettings {
	return domain.ResolvedSettings{
		ProviderID:    c.Chat.Provider,
		ModelID:       c.Chat.DefaultModel,
		SystemPrompt:  c.Chat.SystemPrompt,
		ContextWindow: c.Chat.ContextWindow,
		MaxTokens:     c.Chat.MaxTokens,
	}
}

// ProviderConfigs converts the providers section for llm.NewRouterFromConfigs,
// reading API keys from the environment.
func (c Config) ProviderConfigs() []llm.ProviderConfig {
	out := make([]llm.ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		typ := llm.ProviderType(p.Type)
		if typ == "" {
			typ = llm.ProviderOpenAI
		}
		var key string
		if p.APIKeyEnv != "" {
			key = os.Getenv(p.APIKeyEnv)
		}
		out = append(out, llm.ProviderConfig{
			ID:             p.ID,
			Type:           typ,
			BaseURL:        p.BaseURL,
			APIKey:         key,
			Timeout:        p.Timeout,
			DisabledModels: p.DisabledModels,
		})
	}
	return out
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if err := ValidateProviders(c.Providers); err != nil {
		return err
	}
	if err := ValidateChat(c.Chat, c.Providers); err != nil {
		return err
	}
	if c.Cache.SettingsTTL < 0 {
		return fmt.Errorf("cache.settings_ttl must not be negative, got %s", c.Cache.SettingsTTL)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateProviders checks provider configuration for errors.
func ValidateProviders(providers []ProviderConfig) error {
	seen := make(map[string]bool, len(providers))
	for i, p := range providers {
		if p.ID == "" {
			return fmt.Errorf("provider %d: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true

		switch llm.ProviderType(p.Type) {
		case "", llm.ProviderOpenAI, llm.ProviderMock:
		default:
			return fmt.Errorf("provider %d (%s): type must be \"openai\" or \"mock\", got %q", i, p.ID, p.Type)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("provider %d (%s): timeout must not be negative", i, p.ID)
		}
	}
	return nil
}

// ValidateChat checks the chat defaults against the configured providers.
func ValidateChat(chat ChatConfig, providers []ProviderConfig) error {
	if chat.ContextWindow < 0 {
		return fmt.Errorf("chat.context_window must not be negative, got %d", chat.ContextWindow)
	}
	if chat.MaxTokens < 0 {
		return fmt.Errorf("chat.max_tokens must not be negative, got %d", chat.MaxTokens)
	}
	for _, id := range []string{chat.Provider, chat.TitleProvider} {
		if id == "" {
			continue
		}
		if !hasProvider(providers, id) {
			return fmt.Errorf("chat: provider %q is not configured", id)
		}
	}
	return nil
}

func hasProvider(providers []ProviderConfig, id string) bool {
	for _, p := range providers {
		if p.ID == id {
			return true
		}
	}
	return false
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}

	if tc.Exporter != "" {
		switch tc.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tc.Enabled {
		if tc.Exporter == "file" && tc.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tc.Exporter == "otlp" && tc.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// DefaultConfigTemplate returns the default config as YAML with comments.
func DefaultConfigTemplate() string {
	return `# forkchat configuration

# Enable debug logging (same as --debug or FORKCHAT_DEBUG=1)
# debug: false
# log_file: debug.log

# SQLite database file (default: ~/.forkchat/chat.db)
# database:
#   path: ~/.forkchat/chat.db

# Model providers. API keys are read from the named environment variable,
# which may also be set in a .env file in the working directory.
providers:
  - id: openai
    type: openai            # openai (any OpenAI-compatible endpoint) or mock
    base_url: https://api.openai.com/v1
    api_key_env: OPENAI_API_KEY
    timeout: 2m
    # disabled_models: [gpt-3.5-turbo]

  # Offline echo provider, handy for trying things out
  - id: mock
    type: mock

# Defaults for every thread. Per-thread settings ('forkchat settings:set')
# override these.
chat:
  provider: openai
  default_model: gpt-4o-mini
  # system_prompt: "You are a helpful assistant."
  # context_window: 0       # most recent messages sent to the model, 0 = all
  # max_tokens: 0           # 0 = provider default
  stream: true
  # title_provider: openai  # defaults to the provider of the first reply
  # title_model: gpt-4o-mini
  # title_timeout: 30s

cache:
  settings_ttl: 5m

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/forkchat/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)

# Prometheus metrics endpoint, served while a command runs
# metrics:
#   addr: 127.0.0.1:9464

# Feature flags. Changes are picked up without a restart.
flags:
  auto-title: true
  token-estimates: false
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
