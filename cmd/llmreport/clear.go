package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/digital-iq/llm-report/internal/state"
)

var (
	clearIdentity  string
	clearOlderThan time.Duration
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear run history",
	Long: `Clear the run history of one identity, or with --older-than remove the
histories of every identity not updated within that duration.`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().StringVar(&clearIdentity, "identity", "cli", "History identity to clear")
	clearCmd.Flags().DurationVar(&clearOlderThan, "older-than", 0, "Remove all histories idle for longer than this (e.g. 720h)")
}

// stalePurger is implemented by the SQL history store.
type stalePurger interface {
	PurgeStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	history, err := state.Open(cmd.Context(), cfg.History)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer history.Close()

	out := cmd.OutOrStdout()
	if clearOlderThan > 0 {
		purger, ok := history.(stalePurger)
		if !ok {
			return fmt.Errorf("history driver %q does not support --older-than", cfg.History.Driver)
		}
		n, err := purger.PurgeStale(cmd.Context(), clearOlderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d stale histories\n", n)
		return nil
	}

	if err := history.Clear(cmd.Context(), clearIdentity); err != nil {
		return err
	}
	fmt.Fprintf(out, "Cleared history of %s\n", clearIdentity)
	return nil
}
