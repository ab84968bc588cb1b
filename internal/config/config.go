package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	LLM       LLMConfig       `toml:"llm"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Search    SearchConfig    `toml:"search"`
	Workspace WorkspaceConfig `toml:"workspace"`
	Database  DatabaseConfig  `toml:"database"`
	Observer  ObserverConfig  `toml:"observer"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type LLMConfig struct {
	Provider string `toml:"provider"` // "openai" or "anthropic"
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type TelegramConfig struct {
	Token string `toml:"token"`
}

type SearchConfig struct {
	BraveAPIKey string `toml:"brave_api_key"`
}

type WorkspaceConfig struct {
	Path         string `toml:"path"`
	WriteDir     string `toml:"write_dir"`
	HistoryLimit int    `toml:"history_limit"`
}

type DatabaseConfig struct {
	Driver      string `toml:"driver"` // "sqlite" or "postgres"
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type ObserverConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Server:    ServerConfig{Addr: ":8080"},
		LLM:       LLMConfig{Provider: "openai", Model: "gpt-4o-mini", BaseURL: "https://api.openai.com/v1"},
		Workspace: WorkspaceConfig{Path: filepath.Join(home, "skiff-workspace"), WriteDir: "scratch", HistoryLimit: 50},
		Database:  DatabaseConfig{Driver: "sqlite", Path: "skiff.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "skiff.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("SKIFF_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SKIFF_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("SKIFF_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SKIFF_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("SKIFF_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("SKIFF_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("SKIFF_BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
	if v := os.Getenv("SKIFF_WORKSPACE"); v != "" {
		cfg.Workspace.Path = v
	}
	if v := os.Getenv("SKIFF_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SKIFF_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SKIFF_POSTGRES_URL"); v != "" {
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("SKIFF_OTLP_ENDPOINT"); v != "" {
		cfg.Observer.Endpoint = v
	}
	if os.Getenv("SKIFF_OBSERVER_ENABLED") == "true" || os.Getenv("SKIFF_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
