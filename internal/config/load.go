package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/zjrosen/forkchat/internal/flags"
	"github.com/zjrosen/forkchat/internal/log"
	"github.com/zjrosen/forkchat/internal/paths"
)

// SetDefaults registers every default with v so partial config files only
// need the keys they change.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("debug", d.Debug)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("providers", d.Providers)
	v.SetDefault("chat.provider", d.Chat.Provider)
	v.SetDefault("chat.default_model", d.Chat.DefaultModel)
	v.SetDefault("chat.stream", d.Chat.Stream)
	v.SetDefault("chat.title_timeout", d.Chat.TitleTimeout)
	v.SetDefault("cache.settings_ttl", d.Cache.SettingsTTL)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	for name, enabled := range d.Flags {
		v.SetDefault("flags."+name, enabled)
	}
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Database.Path = paths.ResolveDatabase(cfg.Database.Path)
	cfg.Tracing.FilePath = paths.ExpandHome(cfg.Tracing.FilePath)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Watch reloads feature flags into reg whenever v's config file changes on
// disk. Other settings only take effect on the next start.
func Watch(v *viper.Viper, reg *flags.Registry) {
	v.OnConfigChange(func(e fsnotify.Event) {
		ReloadFlags(v, reg, e)
	})
	v.WatchConfig()
}

// ReloadFlags applies the flags section of v to reg after a file event.
// An invalid file keeps the current flags.
func ReloadFlags(v *viper.Viper, reg *flags.Registry, e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := Load(v)
	if err != nil {
		log.Warn(log.CatConfig, "Ignoring config change", "path", e.Name, "error", err)
		return
	}
	log.Debug(log.CatConfig, "Config file changed", "path", e.Name, "op", e.Op.String())
	reg.Replace(cfg.Flags)
}
