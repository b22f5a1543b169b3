package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/inercia/agentchat/internal/acp"
	"github.com/inercia/agentchat/internal/auxiliary"
	"github.com/inercia/agentchat/internal/config"
	"github.com/inercia/agentchat/internal/inference"
	"github.com/inercia/agentchat/internal/inference/gemini"
	"github.com/inercia/agentchat/internal/logging"
	"github.com/inercia/agentchat/internal/permission"
	"github.com/inercia/agentchat/internal/runner"
	"github.com/inercia/agentchat/internal/session"
	"github.com/inercia/agentchat/internal/status"
)

// app is one wired chat: the session loop and everything it talks to.
type app struct {
	cfg      *config.Config
	registry *config.Registry
	hub      *status.Hub
	loop     *session.Loop
	logger   *slog.Logger

	closers []func() error
}

// appOptions are the parts of an app chosen by the command.
type appOptions struct {
	AutoApprove bool
	// Backend replaces the ACP backend. Used by tests.
	Backend session.Backend
}

// newApp wires the session loop for cfg, rendering into sink.
func newApp(cfg *config.Config, sink session.Sink, opts appOptions) (*app, error) {
	a := &app{
		cfg:      cfg,
		registry: config.NewRegistry(cfg),
		hub:      status.NewHub(cfg.MCPServerInference),
		logger:   logging.Session(),
	}

	rules, err := permission.CompileRules(cfg.Permissions.AutoAllow)
	if err != nil {
		return nil, &config.ConfigError{Path: cfg.Path, Field: "permissions.auto_allow", Err: err}
	}

	r, err := newRunner(cfg)
	if err != nil {
		return nil, err
	}

	backend := opts.Backend
	if backend == nil {
		backend = acp.NewBackend(acp.Options{
			Agent:           cfg.Agent,
			SystemPrompt:    cfg.SystemPrompt,
			Model:           cfg.Model,
			DisallowedTools: cfg.DisallowedTools,
			Runner:          r,
		})
	}

	var inferrer session.Inferrer
	if cfg.MCPServerInference && a.registry.Len() > 0 {
		engine, err := inference.NewEngine(a.newClassifier(r), logging.Inference(),
			inference.WithTimeout(a.cfg.Inference.Timeout))
		if err != nil {
			return nil, err
		}
		inferrer = engine
	}

	a.loop, err = session.New(session.Options{
		Backend:     backend,
		Sink:        sink,
		Registry:    a.registry,
		Inference:   inferrer,
		Rules:       rules,
		AutoApprove: opts.AutoApprove,
		Status:      a.hub,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("Session configured",
		"config", cfg.Path,
		"capabilities", a.registry.Names(),
		"inference", inferrer != nil,
		"auto_allow_rules", rules.Len(),
		"auto_approve", opts.AutoApprove,
	)
	return a, nil
}

// newRunner builds the runner the agent is started with.
func newRunner(cfg *config.Config) (*runner.Runner, error) {
	workspace := cfg.Agent.Cwd
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		workspace = wd
	}
	r, err := runner.NewRunner(cfg.Agent.Runner, workspace, logging.ACP())
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	return r, nil
}

// newClassifier returns the classifier selected by the configuration.
func (a *app) newClassifier(r *runner.Runner) inference.Classifier {
	ic := a.cfg.Inference
	if ic.Provider == config.ProviderGemini {
		return gemini.NewClassifier(ic.Model, ic.APIKeyEnv)
	}

	model := ic.Model
	if model == "" {
		model = a.cfg.Model
	}
	mgr := auxiliary.NewManager(auxiliary.Options{
		Agent:  a.cfg.Agent,
		Model:  model,
		Runner: r,
	})
	a.closers = append(a.closers, mgr.Close)
	return mgr
}

// watchConfig reports configuration file changes through notify until the
// app is closed. A watcher that cannot start is logged and skipped.
func (a *app) watchConfig(notify func(path string)) {
	if a.cfg.Path == "" {
		return
	}
	w, err := config.NewWatcher(a.cfg.Path, logging.Settings())
	if err != nil {
		a.logger.Warn("Cannot watch configuration file", "path", a.cfg.Path, "error", err)
		return
	}
	w.Subscribe(func(ev config.ChangeEvent) { notify(ev.Path) })
	if err := w.Start(); err != nil {
		a.logger.Warn("Cannot watch configuration file", "path", a.cfg.Path, "error", err)
		_ = w.Close()
		return
	}
	a.closers = append(a.closers, w.Close)
}

// configChangedNotice is shown when the configuration file is edited.
func configChangedNotice(path string) session.SystemNotice {
	return session.SystemNotice{Text: fmt.Sprintf("Configuration file %s changed. Restart agentchat to apply it.", path)}
}

// run drives the loop and ui together. When ui returns, the loop is stopped.
func (a *app) run(ctx context.Context, ui func(ctx context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.loop.Run(gctx)
	})
	g.Go(func() error {
		defer a.loop.Close()
		return ui(gctx)
	})
	return g.Wait()
}

// close releases everything the app started, newest first.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Debug("Error during shutdown", "error", err)
		}
	}
	a.closers = nil
}
