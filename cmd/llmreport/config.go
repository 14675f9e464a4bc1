package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digital-iq/llm-report/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify llmreport configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/llmreport/config.yaml
Project-specific overrides can be placed in .llmreport.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		out := cmd.OutOrStdout()
		switch len(args) {
		case 0:
			displayAllConfig(out, cfg)
			return nil
		case 1:
			value, err := config.Get(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, displayValue(args[0], value))
			return nil
		default:
			if err := config.Set(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}
			fmt.Fprintf(out, "Set %s = %s\n", args[0], displayValue(args[0], args[1]))
			return nil
		}
	},
}

// secretKeys are masked on display.
var secretKeys = map[string]bool{
	"backend.api_key":      true,
	"artifacts.access_key": true,
	"artifacts.secret_key": true,
	"history.dsn":          true,
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, cfg *config.Config) {
	flat := config.Flatten(cfg)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, displayValue(k, flat[k]))
	}
}

func displayValue(key string, value any) string {
	s := fmt.Sprint(value)
	if list, ok := value.([]string); ok {
		s = strings.Join(list, ",")
	}
	if secretKeys[strings.ToLower(key)] {
		return config.MaskSecret(s)
	}
	return s
}
