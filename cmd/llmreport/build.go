package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/digital-iq/llm-report/internal/api"
	"github.com/digital-iq/llm-report/internal/artifact"
	"github.com/digital-iq/llm-report/internal/config"
	"github.com/digital-iq/llm-report/internal/decompose"
	"github.com/digital-iq/llm-report/internal/exec"
	"github.com/digital-iq/llm-report/internal/llm"
	"github.com/digital-iq/llm-report/internal/orchestrator"
	"github.com/digital-iq/llm-report/internal/render"
	"github.com/digital-iq/llm-report/internal/state"
)

// loadConfig reads the configuration from --config or the default locations.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newGenerator creates the text generation client selected by the backend
// provider. Requests name their model, so one client serves both roles.
func newGenerator(cfg *config.Config) (llm.Generator, error) {
	timeouts := llm.Timeouts{
		Connect:  cfg.Backend.ConnectTimeout,
		Response: cfg.Backend.ResponseTimeout,
		Idle:     cfg.Backend.IdleTimeout,
	}

	switch cfg.Backend.Provider {
	case "ollama":
		return llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL:  cfg.Backend.URL,
			Model:    cfg.Decomposer.DefaultModel,
			Timeouts: timeouts,
		}), nil
	case "anthropic", "bedrock":
		bedrock := cfg.Backend.Provider == "bedrock"
		apiKey := ""
		if !bedrock {
			key, err := config.GetAPIKey(cfg)
			if err != nil {
				return nil, err
			}
			apiKey = key
		}
		client, err := api.NewClient(api.ClientConfig{
			Model:         anthropic.Model(cfg.Decomposer.DefaultModel),
			APIKey:        apiKey,
			MaxTokens:     cfg.Backend.MaxTokens,
			Timeouts:      timeouts,
			UseAWSBedrock: bedrock,
			AWSRegion:     cfg.Backend.AWSRegion,
			AWSProfile:    cfg.Backend.AWSProfile,
		})
		if err != nil {
			return nil, fmt.Errorf("create API client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Backend.Provider)
	}
}

// pipelineOptions adjusts how buildPipeline wires the executor.
type pipelineOptions struct {
	// NoRender skips document rendering.
	NoRender bool
	// OnPhase receives run state transitions.
	OnPhase orchestrator.PhaseObserver
}

// pipeline holds the long-lived components of the process.
type pipeline struct {
	gen       llm.Generator
	history   state.HistoryStore
	artifacts artifact.Store
	executor  *orchestrator.Executor
}

// Close logs token usage and releases the history store.
func (p *pipeline) Close() error {
	logTokenUsage(logger, p.gen)
	return p.history.Close()
}

// usageTracker is implemented by generators that count tokens.
type usageTracker interface {
	Tracker() *api.TokenTracker
}

// logTokenUsage reports the tokens consumed by gen, if it counts them.
func logTokenUsage(l *zap.Logger, gen llm.Generator) {
	t, ok := gen.(usageTracker)
	if !ok || t.Tracker() == nil {
		return
	}
	calls := t.Tracker().Calls()
	if calls == 0 {
		return
	}
	input, output := t.Tracker().Total()
	l.Info("token usage",
		zap.Int("calls", calls),
		zap.Int64("input_tokens", input),
		zap.Int64("output_tokens", output))
}

// buildPipeline loads settings once and wires every component.
func buildPipeline(ctx context.Context, cfg *config.Config, opts pipelineOptions) (*pipeline, error) {
	settings, err := config.LoadSettings(cfg, logger)
	if err != nil {
		return nil, err
	}

	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}

	history, err := state.Open(ctx, cfg.History)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	artifacts, err := artifact.New(ctx, cfg.Artifacts, cfg.Render.ReportsPath)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open artifact store: %w", err), history.Close())
	}

	renderer := render.NewCommandRenderer(exec.NewRunner(), cfg.Render.Command, cfg.Render.Args)
	if err := renderer.Available(); err != nil && !opts.NoRender {
		logger.Warn("renderer not found, runs will fail at the render stage",
			zap.String("command", cfg.Render.Command), zap.Error(err))
	}

	var publisher orchestrator.Publisher
	if !opts.NoRender {
		publisher = render.NewAssembler(render.AssemblerConfig{
			Renderer:  renderer,
			Store:     artifacts,
			SourceExt: cfg.Render.SourceExt,
			OutputExt: cfg.Render.OutputExt,
			Logger:    logger,
		})
	}

	executor := orchestrator.NewExecutor(orchestrator.ExecutorConfig{
		Decomposer: decompose.New(gen, settings.Decomposer, logger),
		Writer:     orchestrator.NewSectionWriter(gen, settings.Writer, logger),
		Publisher:  publisher,
		Recorder:   history,
		Logger:     logger,
		OnPhase:    opts.OnPhase,
	})

	return &pipeline{
		gen:       gen,
		history:   history,
		artifacts: artifacts,
		executor:  executor,
	}, nil
}
