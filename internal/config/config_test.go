package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected openai, got %s", cfg.LLM.Provider)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Database.Driver)
	}
	if cfg.Workspace.HistoryLimit != 50 {
		t.Errorf("expected history limit 50, got %d", cfg.Workspace.HistoryLimit)
	}
	if cfg.Workspace.WriteDir != "scratch" {
		t.Errorf("expected scratch, got %s", cfg.Workspace.WriteDir)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[telegram]
token = "bot123"

[llm]
provider = "anthropic"
model = "claude-sonnet-4-20250514"
`), 0644)

	cfg := Load(path)
	if cfg.Telegram.Token != "bot123" {
		t.Errorf("expected bot123, got %s", cfg.Telegram.Token)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected anthropic, got %s", cfg.LLM.Provider)
	}
	// Defaults preserved
	if cfg.Server.Addr != ":8080" {
		t.Errorf("default should be preserved, got %s", cfg.Server.Addr)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SKIFF_TELEGRAM_TOKEN", "env-token")
	t.Setenv("SKIFF_LLM_API_KEY", "env-key")
	t.Setenv("SKIFF_DB_DRIVER", "postgres")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("expected env-token, got %s", cfg.Telegram.Token)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected postgres, got %s", cfg.Database.Driver)
	}
}

func TestEnvBeatsTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte("[llm]\nmodel = \"from-file\"\n"), 0644)
	t.Setenv("SKIFF_LLM_MODEL", "from-env")

	cfg := Load(path)
	if cfg.LLM.Model != "from-env" {
		t.Errorf("env should win, got %s", cfg.LLM.Model)
	}
}
