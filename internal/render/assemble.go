package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/digital-iq/llm-report/internal/artifact"
	"github.com/digital-iq/llm-report/internal/logging"
	"github.com/digital-iq/llm-report/pkg/models"
)

// Assemble joins produced outcomes into an AsciiDoc body: a document title
// followed by one "== title" section per outcome with output, in order.
// Error outcomes contribute nothing.
func Assemble(title string, outcomes []models.SubtaskOutcome) string {
	sections := make([]string, 0, len(outcomes)+1)
	sections = append(sections, "= "+headingText(title))
	for _, o := range outcomes {
		if o.Failed() || o.Output == "" {
			continue
		}
		sections = append(sections, "== "+headingText(o.Title)+"\n\n"+strings.TrimSpace(o.Output))
	}
	return strings.Join(sections, "\n\n") + "\n"
}

// headingText flattens s onto one line so it stays a single heading.
func headingText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "Untitled"
	}
	return s
}

// Assembler writes, renders and stores the documents of finished runs.
type Assembler struct {
	renderer  Renderer
	store     artifact.Store
	workDir   string
	sourceExt string
	outputExt string
	logger    *zap.Logger
}

// AssemblerConfig configures an Assembler.
type AssemblerConfig struct {
	Renderer Renderer
	Store    artifact.Store
	// WorkDir holds in-progress files; empty means the system temp dir.
	WorkDir   string
	SourceExt string
	OutputExt string
	Logger    *zap.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	a := &Assembler{
		renderer:  cfg.Renderer,
		store:     cfg.Store,
		workDir:   cfg.WorkDir,
		sourceExt: cfg.SourceExt,
		outputExt: cfg.OutputExt,
		logger:    logging.OrNop(cfg.Logger).Named("render"),
	}
	if a.sourceExt == "" {
		a.sourceExt = ".adoc"
	}
	if a.outputExt == "" {
		a.outputExt = ".pdf"
	}
	return a
}

// Publish assembles outcomes, renders the document and stores both the
// source and the rendered file as <runID><ext>.
func (a *Assembler) Publish(ctx context.Context, runID, title string, outcomes []models.SubtaskOutcome) (models.ArtifactRefs, error) {
	sourceName := runID + a.sourceExt
	outputName := runID + a.outputExt
	if err := artifact.ValidName(sourceName); err != nil {
		return models.ArtifactRefs{}, err
	}

	dir, err := os.MkdirTemp(a.workDir, "llmreport-"+runID+"-")
	if err != nil {
		return models.ArtifactRefs{}, fmt.Errorf("%w: create work dir: %v", ErrRendererFailure, err)
	}
	defer os.RemoveAll(dir)

	body := Assemble(title, outcomes)
	sourcePath := filepath.Join(dir, sourceName)
	outputPath := filepath.Join(dir, outputName)
	if err := os.WriteFile(sourcePath, []byte(body), 0644); err != nil {
		return models.ArtifactRefs{}, fmt.Errorf("%w: write source: %v", ErrRendererFailure, err)
	}

	if err := a.renderer.Render(ctx, sourcePath, outputPath); err != nil {
		a.logger.Warn("render failed", zap.String("run_id", runID), zap.Error(err))
		return models.ArtifactRefs{}, err
	}

	if err := a.store.Put(ctx, sourceName, bytes.NewReader([]byte(body)), int64(len(body)), artifact.ContentType(sourceName)); err != nil {
		return models.ArtifactRefs{}, fmt.Errorf("store %s: %w", sourceName, err)
	}
	if err := a.storeFile(ctx, outputName, outputPath); err != nil {
		return models.ArtifactRefs{}, err
	}

	a.logger.Debug("document published",
		zap.String("run_id", runID),
		zap.String("source", sourceName),
		zap.String("output", outputName))

	return models.ArtifactRefs{
		SourceRef:   artifact.Ref(sourceName),
		RenderedRef: artifact.Ref(outputName),
	}, nil
}

func (a *Assembler) storeFile(ctx context.Context, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open output: %v", ErrRendererFailure, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat output: %v", ErrRendererFailure, err)
	}
	if err := a.store.Put(ctx, name, f, st.Size(), artifact.ContentType(name)); err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	return nil
}
