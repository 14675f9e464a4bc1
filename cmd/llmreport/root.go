package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/digital-iq/llm-report/internal/logging"
)

var (
	verbose    bool
	devLogs    bool
	configPath string

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "llmreport",
	Short: "LLM report orchestration pipeline",
	Long: `llmreport turns a free-text request into a rendered report.

A decomposer model splits the request into sections. Each section is either
emulated locally or written by a section writer model that sees the output of
the sections before it. The sections are assembled into an AsciiDoc source,
rendered to PDF and recorded in the caller's run history.

Configuration is read from ~/.config/llmreport/config.yaml, a .llmreport.yaml
in the current directory or a parent, and environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logging.Options{Verbose: verbose, Development: devLogs})
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&devLogs, "dev-logs", false, "Human-readable console logs instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: XDG and project config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
