package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Backend.Provider != "ollama" {
		t.Errorf("expected default provider 'ollama', got %q", cfg.Backend.Provider)
	}

	if cfg.Backend.ConnectTimeout != 30*time.Second {
		t.Errorf("expected connect timeout 30s, got %v", cfg.Backend.ConnectTimeout)
	}

	if cfg.Backend.ResponseTimeout != 300*time.Second {
		t.Errorf("expected response timeout 300s, got %v", cfg.Backend.ResponseTimeout)
	}

	if cfg.Render.Command != "asciidoctor-pdf" {
		t.Errorf("expected render command 'asciidoctor-pdf', got %q", cfg.Render.Command)
	}

	if cfg.Decomposer.DefaultModel != "mixtral:8x7b" {
		t.Errorf("expected default model 'mixtral:8x7b', got %q", cfg.Decomposer.DefaultModel)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected addr ':8080', got %q", cfg.Server.Addr)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
backend:
  provider: anthropic
  connect_timeout: 5s
  response_timeout: 10m
decomposer:
  prompt_file: /etc/llmreport/decomposer.txt
render:
  command: /usr/local/bin/asciidoctor-pdf
  reports_path: /srv/reports
history:
  driver: memory
inbox:
  dir: /srv/inbox
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Backend.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic', got %q", cfg.Backend.Provider)
	}

	if cfg.Backend.ConnectTimeout != 5*time.Second {
		t.Errorf("expected connect timeout 5s, got %v", cfg.Backend.ConnectTimeout)
	}

	if cfg.Backend.ResponseTimeout != 10*time.Minute {
		t.Errorf("expected response timeout 10m, got %v", cfg.Backend.ResponseTimeout)
	}

	if cfg.Decomposer.PromptFile != "/etc/llmreport/decomposer.txt" {
		t.Errorf("unexpected prompt file %q", cfg.Decomposer.PromptFile)
	}

	if cfg.History.Driver != "memory" {
		t.Errorf("expected history driver 'memory', got %q", cfg.History.Driver)
	}

	// Unset keys keep their defaults.
	if cfg.Render.SourceExt != ".adoc" {
		t.Errorf("expected default source ext '.adoc', got %q", cfg.Render.SourceExt)
	}

	if cfg.Inbox.Identity != "inbox" {
		t.Errorf("expected default inbox identity 'inbox', got %q", cfg.Inbox.Identity)
	}
}

func TestLoadFromPath_EnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("render:\n  command: from-file\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("ASCIIDOCTOR_CMD", "from-env")
	t.Setenv("REPORTS_PATH", "/env/reports")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Render.Command != "from-env" {
		t.Errorf("expected env to win for render.command, got %q", cfg.Render.Command)
	}
	if cfg.Render.ReportsPath != "/env/reports" {
		t.Errorf("expected reports path from env, got %q", cfg.Render.ReportsPath)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	result := expandEnv("${TEST_VAR}")
	if result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}

	result = expandEnv("prefix-${TEST_VAR}-suffix")
	if result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	dir := getUserConfigDir()
	expected := "/custom/config/llmreport"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Backend.Provider = "openai" }},
		{"unknown driver", func(c *Config) { c.History.Driver = "redis" }},
		{"unknown artifacts backend", func(c *Config) { c.Artifacts.Backend = "gcs" }},
		{"empty render command", func(c *Config) { c.Render.Command = " " }},
		{"zero timeout", func(c *Config) { c.Backend.ConnectTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadSettings(t *testing.T) {
	tmpDir := t.TempDir()
	promptPath := filepath.Join(tmpDir, "decomposer.txt")
	modelPath := filepath.Join(tmpDir, "model.txt")
	if err := os.WriteFile(promptPath, []byte("You split requests."), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(modelPath, []byte("llama3:70b\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Decomposer.PromptFile = promptPath
	cfg.Decomposer.ModelFile = modelPath
	cfg.Writer.PromptFile = filepath.Join(tmpDir, "missing-writer.txt")
	cfg.Writer.ModelFile = filepath.Join(tmpDir, "missing-model.txt")

	settings, err := LoadSettings(cfg, nil)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}

	if settings.Decomposer.PromptTemplate != "You split requests." {
		t.Errorf("decomposer prompt = %q", settings.Decomposer.PromptTemplate)
	}
	if settings.Decomposer.ModelName != "llama3:70b" {
		t.Errorf("decomposer model = %q, want trimmed file contents", settings.Decomposer.ModelName)
	}
	if settings.Writer.PromptTemplate != "" {
		t.Errorf("writer prompt should fall back to empty, got %q", settings.Writer.PromptTemplate)
	}
	if settings.Writer.ModelName != DefaultModel {
		t.Errorf("writer model = %q, want %q", settings.Writer.ModelName, DefaultModel)
	}
}

func TestLoadSettings_MissingDecomposerPromptIsFatal(t *testing.T) {
	cfg := Default()
	cfg.Decomposer.PromptFile = filepath.Join(t.TempDir(), "nope.txt")

	_, err := LoadSettings(cfg, nil)
	if !errors.Is(err, ErrPromptFile) {
		t.Fatalf("expected ErrPromptFile, got %v", err)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"sk-ant-api03-abcdefghijkl", "sk-ant-...ijkl"},
	}
	for _, tt := range tests {
		if got := MaskSecret(tt.in); got != tt.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Default()
	if _, err := GetAPIKey(cfg); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}

	cfg.Backend.APIKey = "from-config"
	key, err := GetAPIKey(cfg)
	if err != nil || key != "from-config" {
		t.Errorf("GetAPIKey = %q, %v", key, err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	key, _ = GetAPIKey(cfg)
	if key != "from-env" {
		t.Errorf("environment should take precedence, got %q", key)
	}
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	if err := Set(cfg, "backend.response_timeout", "90s"); err != nil {
		t.Fatalf("Set duration: %v", err)
	}
	if cfg.Backend.ResponseTimeout != 90*time.Second {
		t.Errorf("ResponseTimeout = %v, want 90s", cfg.Backend.ResponseTimeout)
	}

	if err := Set(cfg, "Artifacts.Use_SSL", "true"); err != nil {
		t.Fatalf("Set bool: %v", err)
	}
	if !cfg.Artifacts.UseSSL {
		t.Error("UseSSL should be true")
	}

	if err := Set(cfg, "render.args", "{source},--out,{output}"); err != nil {
		t.Fatalf("Set list: %v", err)
	}
	if len(cfg.Render.Args) != 3 || cfg.Render.Args[1] != "--out" {
		t.Errorf("Args = %v", cfg.Render.Args)
	}

	// Unrelated keys survive the round trip.
	if cfg.Backend.Provider != "ollama" || cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("unrelated keys changed: %+v %+v", cfg.Backend, cfg.Server)
	}

	got, err := Get(cfg, "backend.response_timeout")
	if err != nil || got != "1m30s" {
		t.Errorf("Get = %v, %v", got, err)
	}

	if err := Set(cfg, "backend.max_tokens", "lots"); err == nil {
		t.Error("expected error for non-numeric max_tokens")
	}
	if err := Set(cfg, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := Get(cfg, "no.such.key"); err == nil {
		t.Error("expected error for unknown key")
	}
}
