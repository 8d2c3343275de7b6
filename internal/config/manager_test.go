package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: debug
  console: true
storage:
  path: ./data/tubefarm.db
scheduler:
  videos_per_day: 20
  jitter_minutes: 10
  reconcile_every: 30m
workers:
  enabled: false
  max_concurrent: 5
  poll_interval: 5s
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging: %+v", cfg.Logging)
	}
	if cfg.Scheduler.VideosPerDay != 20 || cfg.Scheduler.ReconcileEvery != "30m" {
		t.Fatalf("scheduler: %+v", cfg.Scheduler)
	}
	if cfg.WorkersEnabled() {
		t.Fatalf("workers.enabled=false must win over the default")
	}
	if cfg.Workers.MaxConcurrent != 5 {
		t.Fatalf("max_concurrent: %d", cfg.Workers.MaxConcurrent)
	}
}

func TestWorkersEnabledDefaultsTrue(t *testing.T) {
	path := writeConfig(t, "config.yaml", "logging:\n  level: info\n")
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.WorkersEnabled() {
		t.Fatalf("omitted workers.enabled must default to true")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", "schedular:\n  videos_per_day: 5\n")
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("expected unknown-field error")
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	for name, body := range map[string]string{
		"videos_per_day too high": "scheduler:\n  videos_per_day: 51\n",
		"negative jitter":         "scheduler:\n  jitter_minutes: -1\n",
		"bad duration":            "workers:\n  poll_interval: soon\n",
	} {
		path := writeConfig(t, "config.yaml", body)
		if _, err := NewManager(path).Parse(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VIDEOS_PER_DAY", "7")
	t.Setenv("RETRY_BACKOFF_MS", "1500")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-token")
	t.Setenv("ADMIN_CHAT_ID", "12345")

	path := writeConfig(t, "config.yaml", "scheduler:\n  videos_per_day: 3\n")
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Scheduler.VideosPerDay != 7 {
		t.Fatalf("VIDEOS_PER_DAY override lost: %d", cfg.Scheduler.VideosPerDay)
	}
	if cfg.Upload.Backoff != "1.5s" {
		t.Fatalf("RETRY_BACKOFF_MS: %q", cfg.Upload.Backoff)
	}
	if cfg.Telegram == nil || !cfg.Telegram.Enabled || cfg.Telegram.Token != "tg-token" || cfg.Telegram.AdminChatID != 12345 {
		t.Fatalf("telegram env overrides: %+v", cfg.Telegram)
	}
}

func TestEnvRejectsGarbage(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_JOBS", "many")
	path := writeConfig(t, "config.yaml", "scheduler:\n  videos_per_day: 3\n")
	if _, err := NewManager(path).Parse(); err == nil || !strings.Contains(err.Error(), "MAX_CONCURRENT_JOBS") {
		t.Fatalf("expected MAX_CONCURRENT_JOBS error, got %v", err)
	}
}

func TestWatchPublishesOnChange(t *testing.T) {
	path := writeConfig(t, "config.yaml", "scheduler:\n  videos_per_day: 3\n")
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Give the watcher time to attach before the write.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("scheduler:\n  videos_per_day: 9\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-sub:
		if cfg.Scheduler.VideosPerDay != 9 {
			t.Fatalf("reloaded videos_per_day = %d", cfg.Scheduler.VideosPerDay)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no reload published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Watch did not stop")
	}
}

func TestWatchKeepsLastGoodConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", "scheduler:\n  videos_per_day: 3\n")
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("scheduler:\n  videos_per_day: 999\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	// Debounce plus parse; the invalid edit must be rejected, not committed.
	time.Sleep(600 * time.Millisecond)

	if got := m.Get().Scheduler.VideosPerDay; got != 3 {
		t.Fatalf("invalid reload replaced committed config: %d", got)
	}
}
