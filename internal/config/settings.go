package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// DefaultModel is used when a model file is absent.
const DefaultModel = "mixtral:8x7b"

// ErrPromptFile is returned when a required prompt file cannot be read.
var ErrPromptFile = errors.New("prompt file unavailable")

// PromptSettings is the immutable prompt/model pair of one backend role.
type PromptSettings struct {
	PromptTemplate string
	ModelName      string
}

// Settings is loaded once at startup and shared read-only by all components.
type Settings struct {
	Decomposer PromptSettings
	Writer     PromptSettings
}

// LoadSettings reads prompt and model files. A missing decomposer prompt is
// fatal; a missing writer prompt degrades to an empty system prompt; a
// missing model file falls back to the configured default model.
func LoadSettings(cfg *Config, logger *zap.Logger) (Settings, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("config")

	decomposerPrompt, err := readPrompt(cfg.Decomposer.PromptFile)
	if err != nil {
		return Settings{}, fmt.Errorf("decomposer: %w", err)
	}

	writerPrompt, err := readPrompt(cfg.Writer.PromptFile)
	if err != nil {
		log.Warn("writer prompt file unreadable, using empty prompt",
			zap.String("path", cfg.Writer.PromptFile), zap.Error(err))
		writerPrompt = ""
	}

	return Settings{
		Decomposer: PromptSettings{
			PromptTemplate: decomposerPrompt,
			ModelName:      readModel(cfg.Decomposer, log),
		},
		Writer: PromptSettings{
			PromptTemplate: writerPrompt,
			ModelName:      readModel(cfg.Writer, log),
		},
	}, nil
}

func readPrompt(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: no path configured", ErrPromptFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPromptFile, err)
	}
	return string(data), nil
}

func readModel(pc PromptConfig, log *zap.Logger) string {
	fallback := pc.DefaultModel
	if fallback == "" {
		fallback = DefaultModel
	}
	if strings.TrimSpace(pc.ModelFile) == "" {
		return fallback
	}
	data, err := os.ReadFile(pc.ModelFile)
	if err != nil {
		log.Warn("model file not found, using default model",
			zap.String("path", pc.ModelFile), zap.String("model", fallback))
		return fallback
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return fallback
	}
	return name
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Backend.Provider {
	case "ollama", "anthropic", "bedrock":
	default:
		return fmt.Errorf("unknown backend provider %q", c.Backend.Provider)
	}
	switch c.History.Driver {
	case "memory", "sqlite", "sqlite3", "postgres":
	default:
		return fmt.Errorf("unknown history driver %q", c.History.Driver)
	}
	switch c.Artifacts.Backend {
	case "local", "minio":
	default:
		return fmt.Errorf("unknown artifacts backend %q", c.Artifacts.Backend)
	}
	if strings.TrimSpace(c.Render.Command) == "" {
		return errors.New("render.command is required")
	}
	if c.Backend.ConnectTimeout <= 0 || c.Backend.ResponseTimeout <= 0 {
		return errors.New("backend timeouts must be positive")
	}
	return nil
}
