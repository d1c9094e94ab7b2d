package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sample = `
server:
  port: "9090"
log:
  level: debug
auth:
  jwtSecret: file-secret
postgres:
  url: postgres://file
redis:
  addr: localhost:6379
  ttl: 5m
ai:
  endpoint: http://generator
  timeout: 15s
attempts:
  maxRetries: 4
rabbitmq:
  queue: quiz.submissions
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadReadsYAML(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load(writeConfig(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Auth.JWTSecret != "file-secret" || cfg.Attempts.MaxRetries != 4 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.RabbitMQ.Queue != "quiz.submissions" || cfg.AI.Endpoint != "http://generator" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.LogLevel())
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("POSTGRES_URL", "postgres://env")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("KEY_SECRET", "")

	cfg, err := Load(writeConfig(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Postgres.URL != "postgres://env" || cfg.Auth.JWTSecret != "env-secret" {
		t.Fatalf("env should win over the file: %+v", cfg)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unset variables must keep file values, got %q", cfg.Redis.Addr)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("AI_ENDPOINT=http://from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("AI_ENDPOINT") })

	cfg, err := Load(writeConfig(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AI.Endpoint != "http://from-dotenv" {
		t.Fatalf("expected .env value, got %q", cfg.AI.Endpoint)
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty should fall back, got %v", got)
	}
	if got := TTLDuration("garbage", time.Minute); got != time.Minute {
		t.Fatalf("invalid should fall back, got %v", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore wd: %v", err)
		}
	})
}
