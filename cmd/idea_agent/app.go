package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jonathan/idea-forge/internal/agent"
	"github.com/jonathan/idea-forge/internal/archive"
	"github.com/jonathan/idea-forge/internal/artifacts"
	"github.com/jonathan/idea-forge/internal/batch"
	"github.com/jonathan/idea-forge/internal/config"
	"github.com/jonathan/idea-forge/internal/db"
	"github.com/jonathan/idea-forge/internal/ledger"
	"github.com/jonathan/idea-forge/internal/llm"
	"github.com/jonathan/idea-forge/internal/observability"
	"github.com/jonathan/idea-forge/internal/pipeline"
	"github.com/jonathan/idea-forge/internal/prompts"
	"github.com/jonathan/idea-forge/internal/schemas"
	"github.com/jonathan/idea-forge/internal/types"
)

// app holds the collaborators built from the resolved configuration.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	printer  *observability.Printer
	store    *artifacts.Store
	registry *schemas.Registry
	archiver *archive.Manager
	// index is nil when no database is configured.
	index   db.Store
	closers []func() error
}

func newApp(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) (*app, error) {
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		printer:  observability.NewPrinter(stdout),
		store:    artifacts.NewStore(cfg.OutputDir),
		registry: schemas.NewRegistry(cfg.TemplatesDir),
		archiver: archive.NewManager(cfg.ArchiveRetention.Map(), logger),
	}

	index, err := db.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	switch {
	case errors.Is(err, db.ErrNoBackend):
		logger.Debug("run index disabled")
	case err != nil:
		return nil, fmt.Errorf("failed to open run index: %w", err)
	default:
		a.index = index
		a.closers = append(a.closers, index.Close)
	}

	return a, nil
}

// Close releases the run index and model clients.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", "error", err)
		}
	}
}

func (a *app) mode() types.Mode {
	mode, _ := types.ParseMode(a.cfg.Mode)
	return mode
}

// agents builds the agents the configured mode needs.
func (a *app) agents(ctx context.Context, mode types.Mode) (pipeline.Agents, error) {
	loader := prompts.NewLoader(a.cfg.PromptsDir)

	var out pipeline.Agents
	var err error
	if out.Analyst, err = a.buildAgent(ctx, agent.RoleAnalyst, a.cfg.Agents.Analyst, loader); err != nil {
		return out, err
	}
	if mode.ReviewEnabled() {
		if out.Reviewer, err = a.buildAgent(ctx, agent.RoleReviewer, a.cfg.Agents.Reviewer, loader); err != nil {
			return out, err
		}
	}
	if mode.FactCheckEnabled() {
		if out.FactChecker, err = a.buildAgent(ctx, agent.RoleFactChecker, a.cfg.Agents.FactChecker, loader); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (a *app) buildAgent(ctx context.Context, role agent.Role, ac config.AgentConfig, loader *prompts.Loader) (agent.Agent, error) {
	timeout, err := ac.TimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", role, err)
	}

	switch ac.Provider {
	case config.ProviderCommand:
		return agent.NewCommandAgent(string(role), ac.Command, timeout, a.logger)
	case config.ProviderGemini, "":
		if a.cfg.APIKey == "" {
			return nil, fmt.Errorf("%s environment variable or --api-key flag is required for the %s agent", envAPIKey, role)
		}
		tier := llm.ParseTier(ac.Tier)
		llmCfg := llm.DefaultConfig()
		if ac.Model != "" {
			llmCfg = llmCfg.WithModel(tier, ac.Model)
		}
		client, err := llm.NewClient(ctx, llmCfg, a.cfg.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", role, err)
		}
		a.closers = append(a.closers, client.Close)
		a.logger.Debug("agent configured", "role", role, "model", client.Model(tier))
		return agent.NewLLMAgent(role, client, loader, tier), nil
	default:
		return nil, fmt.Errorf("agent %s: unknown provider %q", role, ac.Provider)
	}
}

// runner wires a pipeline runner for mode.
func (a *app) runner(ctx context.Context, mode types.Mode) (*pipeline.Runner, error) {
	agents, err := a.agents(ctx, mode)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(pipeline.Env{
		Store:              a.store,
		Registry:           a.registry,
		Archiver:           a.archiver,
		Index:              a.index,
		Logger:             a.logger,
		MaxIterationsLimit: a.cfg.MaxIterationsLimit,
	}, agents), nil
}

func (a *app) ledger() *ledger.Files {
	return ledger.NewFiles(a.cfg.LedgerDir)
}

func (a *app) batchOptions(onProgress pipeline.ProgressCallback) batch.Options {
	return batch.Options{
		Mode:          a.mode(),
		RunType:       types.RunType(a.cfg.RunType),
		MaxIterations: a.cfg.MaxIterations,
		MaxConcurrent: a.cfg.MaxConcurrent,
		OnProgress:    onProgress,
	}
}

// progressPrinter renders pipeline progress for a terminal. With prefix set,
// every line names its idea so concurrent runs stay readable.
func (a *app) progressPrinter(prefix bool) pipeline.ProgressCallback {
	return func(ev pipeline.ProgressEvent) {
		msg := ev.Message
		if prefix {
			msg = fmt.Sprintf("[%s] %s", ev.Slug, ev.Message)
		}
		a.printer.PrintProgress(ev.Iteration, msg)
		if prefix {
			return
		}
		switch content := ev.Content.(type) {
		case *types.Feedback:
			a.printer.PrintFeedback(ev.Iteration, content)
		case *types.FactCheck:
			a.printer.PrintFactCheck(ev.Iteration, content)
		}
	}
}
