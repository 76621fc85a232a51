package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m3rciful/formbot/bots/formbot/archive"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
  run_mode: polling
metrics:
  listen: ":9090"
database:
  host: db
  name: forms
  user: bot
redis:
  addr: "redis:6379"
  key_prefix: "formbot:"
dialogue:
  distributed_lock: true
  max_pending: 20
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.RunMode != "longpoll" || cfg.Metrics.Path != "/metrics" {
		t.Fatalf("core defaults not applied: %+v", cfg.Config)
	}
	if cfg.Archive.Backend != archive.BackendPostgres {
		t.Fatalf("database section must select postgres, got %q", cfg.Archive.Backend)
	}
	if cfg.Database.Port != "5432" || cfg.Database.MigrationsDir != "migrations" {
		t.Fatalf("database defaults not applied: %+v", cfg.Database)
	}
	if cfg.Redis == nil || cfg.Redis.KeyPrefix != "formbot:" {
		t.Fatalf("redis not loaded: %+v", cfg.Redis)
	}
	d := cfg.Dialogue
	if d.RetryAttempts != 3 || d.RetryBackoffMS != 200 || d.LockTTLMS != 10000 || d.MaxPending != 20 || !d.DistributedLock {
		t.Fatalf("unexpected dialogue settings %+v", d)
	}
	if cfg.CoreConfig().Telegram.Token != "123:abc" {
		t.Fatalf("CoreConfig must expose the embedded config")
	}
}

func TestLoadEnvOverridesAndMemoryDefault(t *testing.T) {
	t.Setenv("BOT_TOKEN", "from-env")
	path := writeConfig(t, "telegram:\n  token: from-file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("env must override file, got %q", cfg.Telegram.Token)
	}
	if cfg.Archive.Backend != archive.BackendMemory || cfg.Database != nil || cfg.Redis != nil {
		t.Fatalf("expected in-memory defaults, got %+v", cfg)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]string{
		"archive.backend": "telegram:\n  token: x\narchive:\n  backend: s3\n",
		"database section": "telegram:\n  token: x\narchive:\n  backend: postgres\n",
		"distributed_lock": "telegram:\n  token: x\ndialogue:\n  distributed_lock: true\n",
		">= 0":             "telegram:\n  token: x\ndialogue:\n  max_pending: -1\n",
	}
	for want, body := range cases {
		_, err := Load(writeConfig(t, body))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error containing %q, got %v", want, err)
		}
	}
}
