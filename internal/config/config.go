// Package config handles configuration loading and management for llmreport.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for llmreport.
type Config struct {
	Backend    BackendConfig   `mapstructure:"backend"`
	Decomposer PromptConfig    `mapstructure:"decomposer"`
	Writer     PromptConfig    `mapstructure:"writer"`
	Render     RenderConfig    `mapstructure:"render"`
	Artifacts  ArtifactsConfig `mapstructure:"artifacts"`
	History    HistoryConfig   `mapstructure:"history"`
	Server     ServerConfig    `mapstructure:"server"`
	Inbox      InboxConfig     `mapstructure:"inbox"`
}

// BackendConfig holds text generation backend settings.
type BackendConfig struct {
	// Provider is one of "ollama", "anthropic" or "bedrock".
	Provider        string        `mapstructure:"provider"`
	URL             string        `mapstructure:"url"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	APIKey          string        `mapstructure:"api_key"`
	AWSRegion       string        `mapstructure:"aws_region"`
	AWSProfile      string        `mapstructure:"aws_profile"`
	MaxTokens       int64         `mapstructure:"max_tokens"`
}

// PromptConfig points at the prompt and model files of one backend role.
type PromptConfig struct {
	PromptFile   string `mapstructure:"prompt_file"`
	ModelFile    string `mapstructure:"model_file"`
	DefaultModel string `mapstructure:"default_model"`
}

// RenderConfig holds document renderer settings.
type RenderConfig struct {
	Command     string   `mapstructure:"command"`
	Args        []string `mapstructure:"args"`
	ReportsPath string   `mapstructure:"reports_path"`
	SourceExt   string   `mapstructure:"source_ext"`
	OutputExt   string   `mapstructure:"output_ext"`
}

// ArtifactsConfig selects where rendered documents are stored.
type ArtifactsConfig struct {
	// Backend is "local" or "minio".
	Backend   string `mapstructure:"backend"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

// HistoryConfig selects the run history store.
type HistoryConfig struct {
	// Driver is "memory", "sqlite", "sqlite3" or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CookieName      string        `mapstructure:"cookie_name"`
}

// InboxConfig enables request-file intake from a directory.
type InboxConfig struct {
	Dir      string `mapstructure:"dir"`
	Identity string `mapstructure:"identity"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (MANAGER_BACKEND_URL, REPORTS_PATH, ASCIIDOCTOR_CMD, ...)
// 2. Project config (.llmreport.yaml in current directory or parent)
// 3. User config (~/.config/llmreport/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Backend.APIKey = expandEnv(cfg.Backend.APIKey)
	cfg.Artifacts.AccessKey = expandEnv(cfg.Artifacts.AccessKey)
	cfg.Artifacts.SecretKey = expandEnv(cfg.Artifacts.SecretKey)
	cfg.History.DSN = expandEnv(cfg.History.DSN)

	return cfg, nil
}

// bindEnv maps the deployment environment variables onto config keys.
func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()

	v.BindEnv("backend.url", "MANAGER_BACKEND_URL")
	v.BindEnv("backend.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("render.reports_path", "REPORTS_PATH")
	v.BindEnv("render.command", "ASCIIDOCTOR_CMD")
	v.BindEnv("server.addr", "LLMREPORT_ADDR")
	v.BindEnv("history.dsn", "LLMREPORT_HISTORY_DSN")
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	for key, value := range Flatten(cfg) {
		v.Set(key, value)
	}

	return v.WriteConfig()
}

// Get returns the value of a dotted key as a config file would spell it.
func Get(cfg *Config, key string) (any, error) {
	value, ok := Flatten(cfg)[strings.ToLower(key)]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s", key)
	}
	return value, nil
}

// Set assigns a dotted key on cfg. The value is decoded with the same hooks
// used for config files, so durations and comma separated lists work.
func Set(cfg *Config, key, value string) error {
	key = strings.ToLower(key)
	flat := Flatten(cfg)
	if _, ok := flat[key]; !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	v := viper.New()
	for k, val := range flat {
		v.Set(k, val)
	}
	v.Set(key, value)

	updated := &Config{}
	if err := v.Unmarshal(updated); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*cfg = *updated
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()
	for key, value := range Flatten(d) {
		v.SetDefault(key, value)
	}
}

// Flatten returns the configuration as dotted viper keys. Durations are
// rendered as strings so the output round-trips through YAML.
func Flatten(cfg *Config) map[string]any {
	return map[string]any{
		"backend.provider":         cfg.Backend.Provider,
		"backend.url":              cfg.Backend.URL,
		"backend.connect_timeout":  cfg.Backend.ConnectTimeout.String(),
		"backend.response_timeout": cfg.Backend.ResponseTimeout.String(),
		"backend.idle_timeout":     cfg.Backend.IdleTimeout.String(),
		"backend.api_key":          cfg.Backend.APIKey,
		"backend.aws_region":       cfg.Backend.AWSRegion,
		"backend.aws_profile":      cfg.Backend.AWSProfile,
		"backend.max_tokens":       cfg.Backend.MaxTokens,
		"decomposer.prompt_file":   cfg.Decomposer.PromptFile,
		"decomposer.model_file":    cfg.Decomposer.ModelFile,
		"decomposer.default_model": cfg.Decomposer.DefaultModel,
		"writer.prompt_file":       cfg.Writer.PromptFile,
		"writer.model_file":        cfg.Writer.ModelFile,
		"writer.default_model":     cfg.Writer.DefaultModel,
		"render.command":           cfg.Render.Command,
		"render.args":              cfg.Render.Args,
		"render.reports_path":      cfg.Render.ReportsPath,
		"render.source_ext":        cfg.Render.SourceExt,
		"render.output_ext":        cfg.Render.OutputExt,
		"artifacts.backend":        cfg.Artifacts.Backend,
		"artifacts.endpoint":       cfg.Artifacts.Endpoint,
		"artifacts.access_key":     cfg.Artifacts.AccessKey,
		"artifacts.secret_key":     cfg.Artifacts.SecretKey,
		"artifacts.region":         cfg.Artifacts.Region,
		"artifacts.use_ssl":        cfg.Artifacts.UseSSL,
		"artifacts.bucket":         cfg.Artifacts.Bucket,
		"history.driver":           cfg.History.Driver,
		"history.dsn":              cfg.History.DSN,
		"server.addr":              cfg.Server.Addr,
		"server.shutdown_timeout":  cfg.Server.ShutdownTimeout.String(),
		"server.cookie_name":       cfg.Server.CookieName,
		"inbox.dir":                cfg.Inbox.Dir,
		"inbox.identity":           cfg.Inbox.Identity,
	}
}

// getUserConfigDir returns the XDG config directory for llmreport.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "llmreport")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "llmreport")
	}
	return filepath.Join(home, ".config", "llmreport")
}

// getUserDataDir returns the XDG data directory for llmreport.
func getUserDataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", ".local", "share", "llmreport")
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "llmreport")
}

// findProjectConfig searches for .llmreport.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".llmreport.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Provider:        "ollama",
			URL:             "http://localhost:11434",
			ConnectTimeout:  30 * time.Second,
			ResponseTimeout: 300 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxTokens:       8192,
		},
		Decomposer: PromptConfig{
			PromptFile:   "/home/ollama/prompts/decomposer.txt",
			ModelFile:    "/home/ollama/model/decomposer.txt",
			DefaultModel: DefaultModel,
		},
		Writer: PromptConfig{
			PromptFile:   "/home/ollama/prompts/writer.txt",
			ModelFile:    "/home/ollama/model/writer.txt",
			DefaultModel: DefaultModel,
		},
		Render: RenderConfig{
			Command:     "asciidoctor-pdf",
			Args:        []string{"{source}", "-o", "{output}"},
			ReportsPath: "/reports",
			SourceExt:   ".adoc",
			OutputExt:   ".pdf",
		},
		Artifacts: ArtifactsConfig{
			Backend: "local",
			Region:  "us-east-1",
			Bucket:  "reports",
		},
		History: HistoryConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(getUserDataDir(), "history.db"),
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			CookieName:      "llmreport_session",
		},
		Inbox: InboxConfig{
			Identity: "inbox",
		},
	}
}
