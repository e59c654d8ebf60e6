package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "assistant.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func baseConfig() string {
	return `
database:
  url: postgres://localhost/assistant
bus:
  url: redis://localhost:6379
credentials:
  encryption_key: dGVzdC1rZXktMzItYnl0ZXMtZm9yLWFlcy1nY20h
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, baseConfig()+"\nextra_top_level: true\n")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidatesDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/assistant
bus:
  url: redis://localhost:6379
credentials:
  encryption_key: dGVzdC1rZXktMzItYnl0ZXMtZm9yLWFlcy1nY20h
llm:
  default_provider: openai
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	path := writeConfig(t, `
bus:
  url: redis://localhost:6379
credentials:
  encryption_key: dGVzdC1rZXktMzItYnl0ZXMtZm9yLWFlcy1nY20h
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "database.url") {
		t.Fatalf("expected database.url error, got %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, baseConfig())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("expected default http_port 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Conversation.MaxIterations != 10 {
		t.Errorf("expected default max_iterations 10, got %d", cfg.Conversation.MaxIterations)
	}
	if cfg.Scheduler.TickInterval.String() != "15s" {
		t.Errorf("expected default scheduler tick_interval 15s, got %s", cfg.Scheduler.TickInterval)
	}
	if cfg.Geofence.StalenessThreshold.String() != "10m0s" {
		t.Errorf("expected default geofence staleness_threshold 10m, got %s", cfg.Geofence.StalenessThreshold)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(basePath, []byte(`
llm:
  default_provider: anthropic
  providers:
    anthropic:
      default_model: claude-opus
`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	mainPath := filepath.Join(dir, "main.yaml")
	if err := os.WriteFile(mainPath, []byte(`
$include: base.yaml
database:
  url: postgres://localhost/assistant
bus:
  url: redis://localhost:6379
credentials:
  encryption_key: dGVzdC1rZXktMzItYnl0ZXMtZm9yLWFlcy1nY20h
`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Providers["anthropic"].DefaultModel != "claude-opus" {
		t.Fatalf("expected included provider config to merge, got %+v", cfg.LLM.Providers["anthropic"])
	}
}

func TestLoadEnvOverridesDatabaseURL(t *testing.T) {
	path := writeConfig(t, baseConfig())
	t.Setenv("DATABASE_URL", "postgres://override/assistant")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "postgres://override/assistant" {
		t.Fatalf("expected env override, got %s", cfg.Database.URL)
	}
}
