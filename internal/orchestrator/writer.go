package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/digital-iq/llm-report/internal/config"
	"github.com/digital-iq/llm-report/internal/llm"
	"github.com/digital-iq/llm-report/internal/logging"
	"github.com/digital-iq/llm-report/pkg/models"
)

const sectionPrompt = `%s

You are the section writer. Your task is to answer the following subtask in detail.

SUBTASK TITLE:
%s

PURPOSE:
%s

EXPECTED OUTPUT FORMAT:
%s

INSTRUCTION:
%s

----------------------------
CONTEXT FROM EARLIER TASKS:
%s
----------------------------

Your answer should consider all prior context and produce the requested section of the report.
`

// BuildSectionPrompt composes the section writer prompt for d with the
// accumulated context of earlier subtasks.
func BuildSectionPrompt(systemPrompt string, d models.SubtaskDescriptor, prior string) string {
	return fmt.Sprintf(sectionPrompt,
		strings.TrimSpace(systemPrompt),
		d.Title,
		d.Purpose,
		d.ExpectedFormat,
		d.Instruction,
		prior,
	)
}

// SectionWriter produces the text of one delegated subtask.
type SectionWriter struct {
	gen      llm.Generator
	settings config.PromptSettings
	logger   *zap.Logger
}

// NewSectionWriter creates a SectionWriter backed by gen.
func NewSectionWriter(gen llm.Generator, settings config.PromptSettings, logger *zap.Logger) *SectionWriter {
	return &SectionWriter{
		gen:      gen,
		settings: settings,
		logger:   logging.OrNop(logger).Named("writer"),
	}
}

// Write generates the section for d. The generated text is trimmed; an
// empty result is reported as llm.ErrEmptyGeneration.
func (w *SectionWriter) Write(ctx context.Context, d models.SubtaskDescriptor, prior string) (string, error) {
	prompt := BuildSectionPrompt(w.settings.PromptTemplate, d, prior)
	w.logger.Debug("section prompt",
		zap.String("title", d.Title),
		zap.Int("context_bytes", len(prior)),
		zap.String("prompt", logging.Truncate(prompt, 300)))

	raw, err := w.gen.Generate(ctx, llm.GenerateRequest{
		Model:  w.settings.ModelName,
		Prompt: prompt,
	})
	if err != nil {
		return "", fmt.Errorf("section writer call: %w", err)
	}

	out := strings.TrimSpace(raw)
	if out == "" {
		return "", fmt.Errorf("section %q: %w", d.Title, llm.ErrEmptyGeneration)
	}
	return out, nil
}
