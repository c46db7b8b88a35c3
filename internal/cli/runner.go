// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jeranaias/rigrun-agent/internal/agent"
	"github.com/jeranaias/rigrun-agent/internal/config"
	"github.com/jeranaias/rigrun-agent/internal/conversation"
	"github.com/jeranaias/rigrun-agent/internal/metrics"
	"github.com/jeranaias/rigrun-agent/internal/ollama"
	"github.com/jeranaias/rigrun-agent/internal/transcript"
)

// =============================================================================
// GLOBAL OPTIONS
// =============================================================================

// GlobalOptions are the flags shared by every program.
type GlobalOptions struct {
	// ConfigPath loads this file instead of searching for one
	ConfigPath string
	// Model overrides model.model_id
	Model string
	// Host overrides model.host
	Host string

	// Out and ErrOut replace stdout and stderr; plain output is used when set
	Out    io.Writer
	ErrOut io.Writer
}

func (o GlobalOptions) stdout() io.Writer {
	if o.Out != nil {
		return o.Out
	}
	return os.Stdout
}

func (o GlobalOptions) stderr() io.Writer {
	if o.ErrOut != nil {
		return o.ErrOut
	}
	return os.Stderr
}

// printer returns a plain printer for redirected output, else the terminal
// printer.
func (o GlobalOptions) printer(cfg *config.Config) *Printer {
	if o.Out == nil && o.ErrOut == nil {
		return NewStdPrinter(cfg.Output.Markdown)
	}
	return NewPrinter(o.stdout(), o.stderr(), false, 70)
}

// loadConfig loads configuration and applies command-line overrides.
func loadConfig(opts GlobalOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.LoadFromPath(opts.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	if opts.Model != "" {
		cfg.Model.ModelID = opts.Model
	}
	if opts.Host != "" {
		cfg.Model.Host = strings.TrimSpace(opts.Host)
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return cfg, nil
}

// =============================================================================
// PROFILE
// =============================================================================

// Profile describes how a program builds its agent.
type Profile struct {
	// Program names the program in logs
	Program string
	// Manager forces a conversation manager; "" uses the configured one
	Manager string
	// Window forces the sliding window settings; nil uses the configured ones
	Window *conversation.WindowConfig
	// SystemPrompt is sent with every request; when empty and
	// UseConfiguredPrompt is set, agent.system_prompt is used instead
	SystemPrompt        string
	UseConfiguredPrompt bool
	// Interactive programs handle Ctrl+C per request instead of exiting
	Interactive bool
}

func (p Profile) manager(cfg *config.Config) string {
	if p.Manager != "" {
		return p.Manager
	}
	return cfg.Conversation.Manager
}

func (p Profile) window(cfg *config.Config) conversation.WindowConfig {
	if p.Window != nil {
		return *p.Window
	}
	return cfg.WindowConfig()
}

func (p Profile) systemPrompt(cfg *config.Config) string {
	if p.SystemPrompt == "" && p.UseConfiguredPrompt {
		return cfg.Agent.SystemPrompt
	}
	return p.SystemPrompt
}

// =============================================================================
// RUNTIME
// =============================================================================

// Runtime is everything a program needs to talk to the model.
type Runtime struct {
	Config  *config.Config
	Logger  *slog.Logger
	Client  *ollama.Client
	Agent   *agent.Agent
	Printer *Printer
	Metrics metrics.Recorder

	// Session is the transcript session, nil when recording is disabled
	Session *transcript.Session

	store       *transcript.Store
	stopMetrics context.CancelFunc
	metricsDone chan struct{}
}

// NewRuntime wires the client, conversation manager, transcript and
// metrics described by cfg into an agent.
func NewRuntime(ctx context.Context, cfg *config.Config, profile Profile, printer *Printer, logOut io.Writer) (*Runtime, error) {
	if logOut == nil {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	})).With("program", profile.Program)

	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Printer: printer,
		Metrics: metrics.Noop{},
	}

	if cfg.Metrics.Listen != "" {
		prom := metrics.NewProm("rigrun_agent")
		rt.Metrics = prom

		serveCtx, cancel := context.WithCancel(ctx)
		rt.stopMetrics = cancel
		rt.metricsDone = make(chan struct{})
		go func() {
			defer close(rt.metricsDone)
			if err := prom.Serve(serveCtx, cfg.Metrics.Listen, logger); err != nil {
				logger.Warn("metrics listener stopped", "addr", cfg.Metrics.Listen, "error", err)
			}
		}()
	}

	rt.Client = ollama.NewClientWithConfig(cfg.ClientConfig(),
		ollama.WithLogger(logger),
		ollama.WithMetrics(rt.Metrics),
	)

	opts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithMetrics(rt.Metrics),
		agent.WithSystemPrompt(profile.systemPrompt(cfg)),
	}
	if profile.manager(cfg) == config.ManagerSlidingWindow {
		opts = append(opts, agent.WithConversationManager(conversation.NewSlidingWindow(profile.window(cfg))))
	}

	if cfg.Transcript.Path != "" {
		store, err := transcript.Open(cfg.Transcript.Path)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to open transcript: %w", err)
		}
		rt.store = store

		session, err := store.Begin(ctx, cfg.Model.ModelID, profile.systemPrompt(cfg))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to begin transcript session: %w", err)
		}
		rt.Session = session
		opts = append(opts, agent.WithRecorder(session))
		logger.Debug("recording transcript", "path", store.Path(), "session", session.ID())
	}

	a, err := agent.New(rt.Client, opts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Agent = a
	return rt, nil
}

// Ask sends text to the agent and prints the reply. Tokens are streamed
// when the printer accepts them.
func (rt *Runtime) Ask(ctx context.Context, text string) (string, error) {
	sink := rt.Printer.TokenSink()

	var (
		reply string
		err   error
	)
	if sink != nil {
		reply, err = rt.Agent.RespondStream(ctx, text, sink)
	} else {
		reply, err = rt.Agent.Respond(ctx, text)
	}
	if err != nil {
		rt.Printer.Finish()
		return "", err
	}

	rt.Printer.Reply(reply)
	return reply, nil
}

// Close stops the metrics listener and closes the transcript.
func (rt *Runtime) Close() error {
	if rt.stopMetrics != nil {
		rt.stopMetrics()
		<-rt.metricsDone
		rt.stopMetrics = nil
	}
	if rt.store != nil {
		err := rt.store.Close()
		rt.store = nil
		return err
	}
	return nil
}

// =============================================================================
// PROGRAM RUNNER
// =============================================================================

// runProgram loads configuration, builds a runtime for profile and calls
// body with it. Errors are displayed and mapped to an exit code.
func runProgram(opts GlobalOptions, profile Profile, body func(ctx context.Context, rt *Runtime) error) int {
	var (
		ctx  context.Context
		stop context.CancelFunc
	)
	if profile.Interactive {
		ctx, stop = context.WithCancel(context.Background())
	} else {
		ctx, stop = notifyContext(context.Background())
	}
	defer stop()

	cfg, err := loadConfig(opts)
	if err != nil {
		DisplayError(opts.stderr(), err, nil)
		return ExitCode(err)
	}

	rt, err := NewRuntime(ctx, cfg, profile, opts.printer(cfg), opts.stderr())
	if err != nil {
		DisplayError(opts.stderr(), err, cfg)
		return ExitCode(err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			rt.Logger.Warn("failed to close runtime", "error", err)
		}
	}()

	if err := body(ctx, rt); err != nil {
		DisplayError(opts.stderr(), err, cfg)
		return ExitCode(err)
	}
	return ExitSuccess
}

// runCommand runs a command that needs no agent, mapping its error to an
// exit code.
func runCommand(opts GlobalOptions, fn func() error) int {
	if err := fn(); err != nil {
		DisplayError(opts.stderr(), err, nil)
		return ExitCode(err)
	}
	return ExitSuccess
}
