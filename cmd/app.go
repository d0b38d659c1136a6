package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/forkchat/internal/chat/cancel"
	"github.com/zjrosen/forkchat/internal/chat/orchestrator"
	"github.com/zjrosen/forkchat/internal/chat/title"
	"github.com/zjrosen/forkchat/internal/chat/tree"
	"github.com/zjrosen/forkchat/internal/config"
	"github.com/zjrosen/forkchat/internal/flags"
	"github.com/zjrosen/forkchat/internal/infrastructure/sqlite"
	"github.com/zjrosen/forkchat/internal/llm"
	"github.com/zjrosen/forkchat/internal/log"
	"github.com/zjrosen/forkchat/internal/metrics"
	"github.com/zjrosen/forkchat/internal/presentation"
	"github.com/zjrosen/forkchat/internal/tracing"

	// provider factories register themselves
	_ "github.com/zjrosen/forkchat/internal/llm/mock"
	_ "github.com/zjrosen/forkchat/internal/llm/openai"
)

const shutdownTimeout = 5 * time.Second

// app holds everything a command needs, wired from the loaded config.
type app struct {
	cfg     config.Config
	db      *sqlite.DB
	orch    *orchestrator.Orchestrator
	flags   *flags.Registry
	tracing *tracing.Provider
	metrics *metrics.Collectors
	out     *presentation.Formatter

	metricsServer *http.Server
	closeLog      func()
}

// openApp loads the config and opens the database and providers. Command
// output goes to out.
func openApp(out io.Writer) (*app, error) {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, closeLog: closeLog}

	a.tracing, err = tracing.NewProvider(cfg.Tracing)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to start tracing: %w", err)
	}

	a.db, err = sqlite.NewDB(cfg.Database.Path)
	if err != nil {
		a.Close()
		return nil, err
	}

	router, err := llm.NewRouterFromConfigs(cfg.ProviderConfigs())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to configure providers: %w", err)
	}

	registry := cancel.NewRegistry()
	a.metrics = metrics.New(registry.Len)
	if cfg.Metrics.Addr != "" {
		if err := a.serveMetrics(cfg.Metrics.Addr); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.flags = flags.New(cfg.Flags)
	if viper.ConfigFileUsed() != "" {
		config.Watch(viper.GetViper(), a.flags)
	}

	messages := a.db.MessageRepository()
	threads := a.db.ThreadRepository()
	a.orch = orchestrator.New(orchestrator.Deps{
		Threads:  threads,
		Messages: messages,
		Settings: a.db.SettingsRepository(),
		Files:    a.db.FileRepository(),
		Invokers: router,
		Registry: registry,
		Titles:   title.NewLLMGenerator(threads, tree.NewResolver(messages), router, a.metrics),
		Flags:    a.flags,
		Tracer:   a.tracing.Tracer(),
		Metrics:  a.metrics,
	}, orchestrator.Config{
		Defaults:        cfg.ChatDefaults(),
		Stream:          cfg.Chat.Stream,
		TitleProviderID: cfg.Chat.TitleProvider,
		TitleModel:      cfg.Chat.TitleModel,
		TitleTimeout:    cfg.Chat.TitleTimeout,
		SettingsTTL:     cfg.Cache.SettingsTTL,
	})

	a.out = newFormatter(out)
	return a, nil
}

func newFormatter(out io.Writer) *presentation.Formatter {
	opts := []presentation.FormatterOption{
		presentation.WithJSON(jsonOutput),
		presentation.WithWidth(outputWidth),
	}
	if !jsonOutput && !plainOutput {
		width := outputWidth
		if width <= 0 {
			width = presentation.DefaultWidth
		}
		style := "light"
		if lipgloss.HasDarkBackground() {
			style = "dark"
		}
		r, err := presentation.NewMarkdownRenderer(width, style)
		if err != nil {
			log.Warn(log.CatConfig, "Markdown rendering disabled", "error", err)
		} else {
			opts = append(opts, presentation.WithMarkdown(r))
		}
	}
	return presentation.NewFormatter(out, opts...)
}

func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.SafeGo("metrics-server", func() {
		if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorErr(log.CatConfig, "Metrics server stopped", err)
		}
	})
	log.Info(log.CatConfig, "Serving metrics", "addr", ln.Addr().String())
	return nil
}

// Close lets a pending title generation finish, then stops background work.
func (a *app) Close() {
	if a.orch != nil {
		waitFor(a.orch.Wait, a.cfg.Chat.TitleTimeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.orch != nil {
		if err := a.orch.Shutdown(ctx); err != nil {
			log.ErrorErr(log.CatChat, "Shutdown incomplete", err)
		}
	}
	if a.metricsServer != nil {
		_ = a.metricsServer.Shutdown(ctx)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.ErrorErr(log.CatDB, "Failed to close database", err)
		}
	}
	if a.tracing != nil {
		_ = a.tracing.Shutdown(ctx)
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}

// waitFor runs wait until it returns or timeout passes.
func waitFor(wait func(), timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
