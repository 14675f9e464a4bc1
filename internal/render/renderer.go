// Package render assembles subtask outcomes into an AsciiDoc document and
// converts it with an external renderer.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/digital-iq/llm-report/internal/exec"
)

// ErrRendererFailure marks a document conversion that did not produce output.
var ErrRendererFailure = errors.New("renderer failure")

// RendererError is a renderer process that exited non-zero.
type RendererError struct {
	ExitCode int
	Stderr   string
}

func (e *RendererError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("renderer exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("renderer exited with status %d: %s", e.ExitCode, e.Stderr)
}

func (e *RendererError) Unwrap() error {
	return ErrRendererFailure
}

// Renderer converts the source document at sourcePath into outputPath.
type Renderer interface {
	Render(ctx context.Context, sourcePath, outputPath string) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, sourcePath, outputPath string) error

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, sourcePath, outputPath string) error {
	return f(ctx, sourcePath, outputPath)
}

// Argument placeholders substituted by CommandRenderer.
const (
	SourcePlaceholder = "{source}"
	OutputPlaceholder = "{output}"
)

// DefaultArgs is the asciidoctor-pdf argument layout.
var DefaultArgs = []string{SourcePlaceholder, "-o", OutputPlaceholder}

// CommandRenderer runs an external converter such as asciidoctor-pdf.
type CommandRenderer struct {
	runner  exec.CommandRunner
	command string
	args    []string
}

// NewCommandRenderer creates a renderer running command with args. Empty
// args use DefaultArgs.
func NewCommandRenderer(runner exec.CommandRunner, command string, args []string) *CommandRenderer {
	if runner == nil {
		runner = exec.NewRunner()
	}
	if len(args) == 0 {
		args = DefaultArgs
	}
	return &CommandRenderer{runner: runner, command: command, args: args}
}

// Command returns the configured executable.
func (r *CommandRenderer) Command() string {
	return r.command
}

// Args returns the command arguments for the given paths.
func (r *CommandRenderer) Args(sourcePath, outputPath string) []string {
	out := make([]string, len(r.args))
	for i, a := range r.args {
		a = strings.ReplaceAll(a, SourcePlaceholder, sourcePath)
		out[i] = strings.ReplaceAll(a, OutputPlaceholder, outputPath)
	}
	return out
}

// Render runs the converter. Exit status zero with a written output file is
// success; anything else wraps ErrRendererFailure.
func (r *CommandRenderer) Render(ctx context.Context, sourcePath, outputPath string) error {
	res, err := r.runner.Run(ctx, "", r.command, r.Args(sourcePath, outputPath)...)
	if err != nil {
		return fmt.Errorf("%w: run %s: %v", ErrRendererFailure, r.command, err)
	}
	if res.ExitCode != 0 {
		return &RendererError{ExitCode: res.ExitCode, Stderr: strings.TrimSpace(string(res.Stderr))}
	}
	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("%w: no output at %s: %v", ErrRendererFailure, outputPath, err)
	}
	return nil
}

// Available reports whether the converter executable can be found.
func (r *CommandRenderer) Available() error {
	if _, err := r.runner.LookPath(r.command); err != nil {
		return fmt.Errorf("renderer %s: %w", r.command, err)
	}
	return nil
}

var _ Renderer = (*CommandRenderer)(nil)
