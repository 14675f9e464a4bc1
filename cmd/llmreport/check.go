package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/digital-iq/llm-report/internal/artifact"
	"github.com/digital-iq/llm-report/internal/config"
	"github.com/digital-iq/llm-report/internal/exec"
	"github.com/digital-iq/llm-report/internal/render"
	"github.com/digital-iq/llm-report/internal/state"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify configuration and dependencies",
	Long: `Check that everything a run needs is in place:

  - prompt and model files are readable
  - the renderer command is on PATH
  - the history store is reachable
  - the artifact store is reachable
  - credentials for the configured backend are present`,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		printStatus(out, "✗", fmt.Sprintf("Config: %v", err), color.FgRed)
		return err
	}
	printStatus(out, "✓", "Config loaded", color.FgGreen)

	failed := 0
	fail := func(msg string) {
		failed++
		printStatus(out, "✗", msg, color.FgRed)
	}

	if _, err := config.LoadSettings(cfg, logger); err != nil {
		fail(fmt.Sprintf("Decomposer prompt: %v", err))
	} else {
		printStatus(out, "✓", "Decomposer prompt readable", color.FgGreen)
	}
	for _, f := range []struct{ label, path string }{
		{"Writer prompt", cfg.Writer.PromptFile},
		{"Decomposer model file", cfg.Decomposer.ModelFile},
		{"Writer model file", cfg.Writer.ModelFile},
	} {
		if _, err := os.Stat(f.path); err != nil {
			printStatus(out, "⚠", fmt.Sprintf("%s missing (%s), defaults apply", f.label, f.path), color.FgYellow)
		}
	}

	switch cfg.Backend.Provider {
	case "anthropic":
		if key, err := config.GetAPIKey(cfg); err != nil {
			fail("ANTHROPIC_API_KEY not set")
		} else {
			printStatus(out, "✓", "Anthropic API key "+config.MaskSecret(key), color.FgGreen)
		}
	default:
		printStatus(out, "✓", fmt.Sprintf("Backend %s at %s", cfg.Backend.Provider, cfg.Backend.URL), color.FgGreen)
	}

	renderer := render.NewCommandRenderer(exec.NewRunner(), cfg.Render.Command, cfg.Render.Args)
	if err := renderer.Available(); err != nil {
		fail(fmt.Sprintf("Renderer %q not found", cfg.Render.Command))
	} else {
		printStatus(out, "✓", fmt.Sprintf("Renderer %s found", cfg.Render.Command), color.FgGreen)
	}

	history, err := state.Open(ctx, cfg.History)
	if err != nil {
		fail(fmt.Sprintf("History store: %v", err))
	} else {
		if err := history.Ping(ctx); err != nil {
			fail(fmt.Sprintf("History store: %v", err))
		} else {
			printStatus(out, "✓", fmt.Sprintf("History store (%s) reachable", cfg.History.Driver), color.FgGreen)
		}
		history.Close()
	}

	store, err := artifact.New(ctx, cfg.Artifacts, cfg.Render.ReportsPath)
	if err == nil {
		err = store.Check(ctx)
	}
	if err != nil {
		fail(fmt.Sprintf("Artifact store: %v", err))
	} else {
		printStatus(out, "✓", fmt.Sprintf("Artifact store (%s) reachable", cfg.Artifacts.Backend), color.FgGreen)
	}

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Fprintf(out, "\n%s Ready to run reports\n", color.GreenString("✓"))
	return nil
}
