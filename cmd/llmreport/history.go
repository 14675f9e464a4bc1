package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/digital-iq/llm-report/internal/logging"
	"github.com/digital-iq/llm-report/internal/state"
	"github.com/digital-iq/llm-report/pkg/models"
)

var (
	historyIdentity string
	historyFormat   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the run history of an identity",
	Long: `Display the recorded runs of one history identity, oldest first.

Runs started with 'llmreport run' are recorded under "cli" unless --identity
is given; inbox runs use inbox.identity.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyIdentity, "identity", "cli", "History identity")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "o", "text", "Output format: text, json or yaml")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	history, err := state.Open(cmd.Context(), cfg.History)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer history.Close()

	records, err := history.List(cmd.Context(), historyIdentity)
	if err != nil {
		return err
	}
	return writeHistory(cmd.OutOrStdout(), historyFormat, records)
}

// writeHistory prints records in the requested format.
func writeHistory(w io.Writer, format string, records []models.RunRecord) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"history": records})
	case "yaml":
		// Round trip through JSON so YAML keys match the API field names.
		b, err := json.Marshal(map[string]any{"history": records})
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		printHistory(w, records)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

var (
	historyTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	historyDimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	historyOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	historyWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	historyErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func printHistory(w io.Writer, records []models.RunRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, historyDimStyle.Render("No runs recorded."))
		return
	}
	fmt.Fprintln(w, historyTitleStyle.Render(fmt.Sprintf("%d run(s)", len(records))))
	for _, rec := range records {
		fmt.Fprintf(w, "\n%s  %s  %s\n",
			statusBadge(rec),
			historyDimStyle.Render(rec.StartedAt.Local().Format("2006-01-02 15:04:05")),
			historyDimStyle.Render(fmt.Sprintf("%.2fs", rec.DurationSeconds)))
		fmt.Fprintf(w, "  %s\n", logging.Truncate(rec.RequestText, 72))
		if rec.Result != "" {
			fmt.Fprintf(w, "  %s\n", rec.Result)
		}
		if rec.Error != "" {
			fmt.Fprintf(w, "  %s\n", historyErrStyle.Render(rec.Error))
		}
		if rec.Artifacts != nil {
			fmt.Fprintf(w, "  %s\n", historyDimStyle.Render(rec.Artifacts.RenderedRef))
		}
	}
}

func statusBadge(rec models.RunRecord) string {
	switch {
	case rec.Failed():
		return historyErrStyle.Render("failed")
	case rec.FailedSubtasks() > 0:
		return historyWarnStyle.Render("partial")
	default:
		return historyOKStyle.Render("done")
	}
}
