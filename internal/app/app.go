package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/dsipipe/internal/config"
	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/vk/dsipipe/internal/dag"
	"github.com/vk/dsipipe/internal/registry"
	"github.com/vk/dsipipe/internal/workflow"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *registry.Registry
	model    *config.Model
}

// NewApp loads the pipeline file named by cfg and builds the registry from
// modules plus the pipeline's step type aliases. With no modules the core
// modules are used.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := LoadModel(ctx, cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if model.Name != "" {
		logger = logger.With("pipeline", model.Name)
	}
	logger.Debug("Pipeline loaded.", "steps", len(model.Steps))

	if len(modules) == 0 {
		if modules, err = CoreModules(cfg); err != nil {
			return nil, err
		}
	}
	reg, err := registry.New(model.StepTypes, modules...)
	if err != nil {
		return nil, fmt.Errorf("failed to build step registry: %w", err)
	}
	logger.Debug("Step registry built.", "modules", len(modules), "types", len(reg.Types()))

	return &App{outW: outW, logger: logger, config: cfg, registry: reg, model: model}, nil
}

// Registry returns the application's registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// Model returns the loaded pipeline.
func (a *App) Model() *config.Model { return a.model }

// Context returns ctx carrying the application logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Assemble instantiates the declared steps and assembles the graph. Every
// step's command is resolved once, so option errors surface here.
func (a *App) Assemble(ctx context.Context) (*dag.Graph, error) {
	ctx = a.Context(ctx)
	table, err := workflow.Build(ctx, a.registry, a.model)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate steps: %w", err)
	}
	g, err := dag.Assemble(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble pipeline: %w", err)
	}
	a.logger.Debug("Pipeline assembled.", "nodes", g.Len())
	return g, nil
}
