// Package decompose turns a user request into an ordered list of report
// subtasks by prompting the decomposer model and parsing its output.
package decompose

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/digital-iq/llm-report/internal/config"
	"github.com/digital-iq/llm-report/internal/llm"
	"github.com/digital-iq/llm-report/internal/logging"
	"github.com/digital-iq/llm-report/pkg/models"
)

// Result is a successful decomposition.
type Result struct {
	// Subtasks is the ordered subtask list; it may be empty.
	Subtasks []models.SubtaskDescriptor
	// Raw is the unparsed backend response.
	Raw string
	// Tier records which parse strategy succeeded.
	Tier Tier
}

// Decomposer breaks user requests into report subtasks.
type Decomposer struct {
	gen      llm.Generator
	settings config.PromptSettings
	logger   *zap.Logger
}

// New creates a Decomposer that prompts gen with the given settings.
func New(gen llm.Generator, settings config.PromptSettings, logger *zap.Logger) *Decomposer {
	return &Decomposer{
		gen:      gen,
		settings: settings,
		logger:   logging.OrNop(logger).Named("decompose"),
	}
}

// Decompose prompts the backend and parses the subtask list. Backend
// failures are returned wrapped; parse failures wrap ErrParseFailure.
func (d *Decomposer) Decompose(ctx context.Context, req models.Request) (Result, error) {
	prompt := BuildPrompt(d.settings.PromptTemplate, req.Text)

	raw, err := d.gen.Generate(ctx, llm.GenerateRequest{
		Model:  d.settings.ModelName,
		Prompt: prompt,
	})
	if err != nil {
		return Result{}, fmt.Errorf("decomposer call: %w", err)
	}

	parsed, err := ParseResponse(raw)
	if err != nil {
		d.logger.Warn("decomposition unusable",
			zap.Error(err),
			zap.String("response", logging.Truncate(raw, 300)))
		return Result{Raw: raw}, fmt.Errorf("parse decomposition response: %w", err)
	}

	d.logger.Debug("decomposition parsed",
		zap.Int("subtasks", len(parsed.Subtasks)),
		zap.String("tier", string(parsed.Tier)))

	return Result{Subtasks: parsed.Subtasks, Raw: raw, Tier: parsed.Tier}, nil
}
