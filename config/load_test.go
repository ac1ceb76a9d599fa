package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, `
env: dev
api:
  baseURL: https://api.test
  securityKey: sk-123
account:
  username: resto
  password: pass
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "dev" || cfg.API.SecurityKey != "sk-123" {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	if cfg.Account.Username != "resto" {
		t.Fatalf("account not loaded: %+v", cfg.Account)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
env: dev
api:
  baseURL: https://api.test
  securityKey: sk
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.Engine.CheckInterval(); got != 20*time.Second {
		t.Fatalf("check interval default = %v, want 20s", got)
	}
	if got := cfg.Liveness.Watchdog(); got != 25*time.Second {
		t.Fatalf("watchdog default = %v, want 25s", got)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("retry attempts default = %d, want 3", cfg.Retry.MaxAttempts)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
api:
  baseURL: https://api.test
  securityKey: file-key
account:
  username: file-user
  password: file-pass
`)
	t.Setenv("NOTIF_USERNAME", "env-user")
	t.Setenv("NOTIF_PASSWORD", "env-pass")
	t.Setenv("NOTIF_SECURITY_KEY", "env-key")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Account.Username != "env-user" || cfg.Account.Password != "env-pass" {
		t.Fatalf("env overrides not applied: %+v", cfg.Account)
	}
	if cfg.API.SecurityKey != "env-key" {
		t.Fatalf("security key override not applied: %q", cfg.API.SecurityKey)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(AppConfig{}); err == nil {
		t.Fatalf("expected error for empty config")
	}

	bad := AppConfig{Env: "dev"}
	bad.API.BaseURL = "https://api.test"
	bad.API.SecurityKey = "sk"
	bad.Account.Username = "only-user"
	if err := Validate(bad); err == nil {
		t.Fatalf("expected error for username without password")
	}
}
