package main

import (
	"os"
	"path/filepath"
	"testing"
)

func setMinimalValidConfigEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("TIMEZONE", "UTC")
}

func TestLoadConfigFromEnvWithDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	setMinimalValidConfigEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://staging.example.com")

	cfg := LoadConfig()

	if cfg.LLMProvider != "anthropic" {
		t.Fatalf("unexpected provider: %q", cfg.LLMProvider)
	}
	if cfg.ListenAddr != ":8090" {
		t.Fatalf("unexpected listen addr default: %q", cfg.ListenAddr)
	}
	if cfg.DBPath != "./optiwatt.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.UploadDir != "./uploads" {
		t.Fatalf("unexpected upload dir default: %q", cfg.UploadDir)
	}
	if cfg.UploadMaxBytes != 10<<20 {
		t.Fatalf("unexpected upload max bytes default: %d", cfg.UploadMaxBytes)
	}
	if cfg.OptimizeTimeoutSeconds != 120 {
		t.Fatalf("unexpected optimize timeout default: %d", cfg.OptimizeTimeoutSeconds)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 CORS origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
}

func TestLoadConfigYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm_provider: "anthropic"
anthropic_api_key: "yaml-key"
listen_addr: ":9000"
db_path: "/tmp/yaml.db"
optimize_timeout_seconds: 60
timezone: "America/Los_Angeles"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("TIMEZONE", "")
	t.Setenv("DB_PATH", "/tmp/env.db")
	t.Setenv("OPTIMIZE_TIMEOUT_SECONDS", "90")

	cfg := LoadConfig()

	if cfg.ListenAddr != ":9000" {
		t.Fatalf("expected yaml listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.AnthropicAPIKey != "yaml-key" {
		t.Fatalf("expected yaml api key, got %q", cfg.AnthropicAPIKey)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected env override for db path, got %q", cfg.DBPath)
	}
	if cfg.OptimizeTimeoutSeconds != 90 {
		t.Fatalf("expected env override for optimize timeout, got %d", cfg.OptimizeTimeoutSeconds)
	}
	if cfg.Timezone != "America/Los_Angeles" {
		t.Fatalf("unexpected timezone: %q", cfg.Timezone)
	}
}
