package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bookpipe.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOOKPIPE_STATE_BACKEND", "")
	t.Setenv("BOOKPIPE_MAX_RETRIES", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Checkpoint.Backend != "file" {
		t.Errorf("default backend = %q, want file", cfg.Checkpoint.Backend)
	}
	if cfg.Checkpoint.Dir != "./output" {
		t.Errorf("default dir = %q", cfg.Checkpoint.Dir)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("default max_retries = %d, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoadFullDocument(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
checkpoint:
  dir: /tmp/book
  backend: sqlite
retry:
  max_retries: 5
  call_timeout: 90s
backoff:
  transient_base: 1s
  rate_limit_base: 10s
  cap_factor: 32
fallbacks:
  gemini: [deepseek]
steps:
  - name: plan
    provider: gemini
    min_result_len: 100
  - name: draft_scenes
    provider: gemini
    items: [scene-1, scene-2]
    command: ["./scripts/draft.sh"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("max_retries = %d, want 5", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.CallTimeout != 90*time.Second {
		t.Errorf("call_timeout = %v, want 90s", cfg.Retry.CallTimeout)
	}
	if cfg.Backoff.RateLimitBase != 10*time.Second {
		t.Errorf("rate_limit_base = %v", cfg.Backoff.RateLimitBase)
	}
	if got := cfg.Fallbacks["gemini"]; len(got) != 1 || got[0] != "deepseek" {
		t.Errorf("fallbacks = %v", got)
	}
	if len(cfg.Steps) != 2 || cfg.Steps[1].Items[1] != "scene-2" {
		t.Errorf("steps not parsed: %+v", cfg.Steps)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_BOOK_DIR", "/data/books")
	path := writeConfig(t, "checkpoint:\n  dir: ${TEST_BOOK_DIR}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Checkpoint.Dir != "/data/books" {
		t.Errorf("dir = %q, want /data/books", cfg.Checkpoint.Dir)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("BOOKPIPE_STATE_BACKEND", "redis")
	t.Setenv("BOOKPIPE_MAX_RETRIES", "7")
	path := writeConfig(t, "checkpoint:\n  backend: file\nretry:\n  max_retries: 2\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Checkpoint.Backend != "redis" {
		t.Errorf("backend = %q, want redis", cfg.Checkpoint.Backend)
	}
	if cfg.Retry.MaxRetries != 7 {
		t.Errorf("max_retries = %d, want 7", cfg.Retry.MaxRetries)
	}
}

func TestLoadRejectsInvalidSteps(t *testing.T) {
	cases := map[string]string{
		"missing name":     "steps:\n  - provider: gemini\n",
		"missing provider": "steps:\n  - name: plan\n",
		"duplicate name":   "steps:\n  - name: plan\n    provider: a\n  - name: plan\n    provider: b\n",
		"negative min len": "steps:\n  - name: plan\n    provider: a\n    min_result_len: -1\n",
	}
	for label, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: Load accepted invalid config", label)
		}
	}
}

func TestParseBoolString(t *testing.T) {
	if !ParseBoolString("YES", false) {
		t.Error("YES not parsed as true")
	}
	if ParseBoolString("off", true) {
		t.Error("off not parsed as false")
	}
	if !ParseBoolString("banana", true) {
		t.Error("fallback not honored")
	}
}
