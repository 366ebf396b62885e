package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "api.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 9090
  host: "0.0.0.0"
  middleware:
    rate_limit: true
    rate_limit_rps: 50
gemini:
  model: gemini-2.5-flash
  timeout: 30s
  retry_count: 3
indexer:
  poll_interval: 2s
  poll_timeout: 25s
storage:
  metadata:
    type: memory
log:
  level: debug
  format: text
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d", cfg.API.Port)
	}
	if !cfg.API.Middleware.RateLimit || cfg.API.Middleware.RateLimitRPS != 50 {
		t.Errorf("Middleware = %+v", cfg.API.Middleware)
	}
	if cfg.Gemini.Model != "gemini-2.5-flash" || cfg.Gemini.RetryCount != 3 {
		t.Errorf("Gemini = %+v", cfg.Gemini)
	}
	if cfg.Indexer.PollInterval != "2s" || cfg.Indexer.PollTimeout != "25s" {
		t.Errorf("Indexer = %+v", cfg.Indexer)
	}
	if cfg.Storage.Metadata.Type != "memory" {
		t.Errorf("Metadata.Type = %q", cfg.Storage.Metadata.Type)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/api.yaml"); err == nil {
		t.Error("LoadConfig should fail for missing file")
	}
}

func TestReplaceEnvVars(t *testing.T) {
	t.Setenv("FSGW_TEST_DSN", "postgres://real")
	path := writeConfig(t, `
storage:
  metadata:
    type: postgres
    dsn: ${FSGW_TEST_DSN}
secrets:
  provider: vault
  config:
    token: ${FSGW_TEST_TOKEN_UNSET}
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Storage.Metadata.DSN != "postgres://real" {
		t.Errorf("DSN = %q, want expanded env value", cfg.Storage.Metadata.DSN)
	}
	// 未设置的环境变量保留原样，便于排错
	if cfg.Secrets.Config["token"] != "${FSGW_TEST_TOKEN_UNSET}" {
		t.Errorf("token = %q", cfg.Secrets.Config["token"])
	}
}
