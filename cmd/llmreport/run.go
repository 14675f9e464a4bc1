package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/digital-iq/llm-report/internal/artifact"
	"github.com/digital-iq/llm-report/internal/config"
	"github.com/digital-iq/llm-report/internal/orchestrator"
	"github.com/digital-iq/llm-report/internal/tui"
	"github.com/digital-iq/llm-report/pkg/models"
)

var (
	runFile     string
	runIdentity string
	runNoRender bool
	runJSON     bool
	runTUI      bool
)

var runCmd = &cobra.Command{
	Use:   "run [request text]",
	Short: "Run one report request",
	Long: `Run a report request through the pipeline and print the result.

The request text is taken from the arguments, from --file, or from stdin when
--file is "-". The run is recorded in the history of --identity.

Examples:
  llmreport run "Summarize cluster health"
  llmreport run --file request.txt
  echo "Summarize cluster health" | llmreport run --file -`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "Read the request from a file (- for stdin)")
	runCmd.Flags().StringVar(&runIdentity, "identity", "cli", "History identity to record the run under")
	runCmd.Flags().BoolVar(&runNoRender, "no-render", false, "Skip document assembly and rendering")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Print the run record as JSON")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show an interactive progress view")
}

func runRun(cmd *cobra.Command, args []string) error {
	text, err := requestFromArgs(cmd.InOrStdin(), args, runFile)
	if err != nil {
		return err
	}
	req := models.NewRequest(text)
	if req.Empty() {
		return fmt.Errorf("request text is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runTUI {
		return runWithTUI(cmd, cfg, req)
	}

	out := cmd.OutOrStdout()
	opts := pipelineOptions{NoRender: runNoRender}
	if !runJSON {
		opts.OnPhase = func(ev orchestrator.PhaseEvent) {
			printPhase(out, ev)
		}
	}

	p, err := buildPipeline(cmd.Context(), cfg, opts)
	if err != nil {
		return err
	}
	defer p.Close()

	rec, runErr := p.executor.Run(cmd.Context(), runIdentity, req)
	if rec == nil {
		return runErr
	}

	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}
	} else {
		printRecord(out, rec, p.artifacts)
	}
	return runErr
}

// runWithTUI runs the request behind the progress view. Quitting the view
// before the run finishes cancels it.
func runWithTUI(cmd *cobra.Command, cfg *config.Config, req models.Request) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	program, app := tui.NewRunProgram(req.Text, tea.WithAltScreen(), tea.WithContext(ctx))

	p, err := buildPipeline(ctx, cfg, pipelineOptions{
		NoRender: runNoRender,
		OnPhase:  tui.Observer(program.Send),
	})
	if err != nil {
		return err
	}
	defer p.Close()

	var (
		rec    *models.RunRecord
		runErr error
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		rec, runErr = p.executor.Run(ctx, runIdentity, req)
		program.Send(tui.RunDoneMsg{Record: rec, Err: runErr})
	}()

	_, tuiErr := program.Run()
	cancel()
	<-done

	if app.Cancelled() {
		return fmt.Errorf("run cancelled")
	}
	if tuiErr != nil && !errors.Is(tuiErr, tea.ErrProgramKilled) {
		return tuiErr
	}
	if rec != nil {
		printRecord(cmd.OutOrStdout(), rec, p.artifacts)
	}
	return runErr
}

// requestFromArgs resolves the request text from positional args or a file.
func requestFromArgs(stdin io.Reader, args []string, file string) (string, error) {
	if file != "" && len(args) > 0 {
		return "", fmt.Errorf("give the request as arguments or --file, not both")
	}
	switch file {
	case "":
		return strings.Join(args, " "), nil
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	default:
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read request file: %w", err)
		}
		return string(b), nil
	}
}

// printPhase prints one status line per state transition.
func printPhase(w io.Writer, ev orchestrator.PhaseEvent) {
	switch ev.Phase {
	case orchestrator.PhaseDecomposing:
		printStatus(w, "→", "Decomposing request", color.FgCyan)
	case orchestrator.PhaseRouting:
		printStatus(w, "→", fmt.Sprintf("[%d/%d] %s", ev.Index, ev.Total, ev.Title), color.FgCyan)
	case orchestrator.PhaseEmulating:
		printStatus(w, " ", "emulated output", color.FgMagenta)
	case orchestrator.PhaseDelegating:
		printStatus(w, " ", "section writer", color.FgBlue)
	case orchestrator.PhaseAssembling:
		printStatus(w, "→", "Assembling document", color.FgCyan)
	case orchestrator.PhaseDone:
		printStatus(w, "✓", "Done", color.FgGreen)
	case orchestrator.PhaseFailed:
		msg := "Failed"
		if ev.Error != nil {
			msg = "Failed: " + ev.Error.Error()
		}
		printStatus(w, "✗", msg, color.FgRed)
	}
}

// printRecord prints the outcome of every subtask and the artifact locations.
func printRecord(w io.Writer, rec *models.RunRecord, store artifact.Store) {
	fmt.Fprintf(w, "\nRun %s (%.2fs)\n", rec.ID, rec.DurationSeconds)
	for _, o := range rec.Outcomes {
		if o.Failed() {
			printStatus(w, "✗", fmt.Sprintf("%s: %s", o.Title, o.Error), color.FgRed)
			continue
		}
		printStatus(w, "✓", fmt.Sprintf("%s (%s)", o.Title, o.Routing), color.FgGreen)
	}

	if rec.Artifacts != nil {
		fmt.Fprintf(w, "\nSource:   %s\n", artifactLocation(rec.Artifacts.SourceRef, store))
		fmt.Fprintf(w, "Rendered: %s\n", artifactLocation(rec.Artifacts.RenderedRef, store))
	}
	if rec.Result != "" {
		fmt.Fprintf(w, "\n%s\n", rec.Result)
	}
	if rec.Error != "" {
		fmt.Fprintf(w, "\n%s %s\n", color.RedString("Error:"), rec.Error)
	}
}

// artifactLocation maps a reference to a file path when artifacts are local.
func artifactLocation(ref string, store artifact.Store) string {
	local, ok := store.(*artifact.LocalStore)
	if !ok {
		return ref
	}
	name, ok := artifact.NameFromRef(ref)
	if !ok {
		return ref
	}
	return filepath.Join(local.Root(), name)
}

// printStatus prints a status line with color
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}
