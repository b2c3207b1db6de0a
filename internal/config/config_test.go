package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppConfigFile != filepath.Join(dir, "config.json") {
		t.Fatalf("unexpected app config path %q", cfg.AppConfigFile)
	}
	if cfg.BBoltPath != filepath.Join(dir, "digest.db") {
		t.Fatalf("unexpected bbolt path %q", cfg.BBoltPath)
	}
	if cfg.SyncReadyTimeout != 60*time.Second || cfg.SyncReadyPoll != 2*time.Second {
		t.Fatalf("unexpected sync timings %v / %v", cfg.SyncReadyTimeout, cfg.SyncReadyPoll)
	}
	if cfg.Schedule != "0 21 * * *" {
		t.Fatalf("unexpected schedule %q", cfg.Schedule)
	}
}

func TestLoadRejectsInvalidTimeout(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("SYNC_READY_TIMEOUT_SECONDS", "0")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero sync_ready_timeout_seconds")
	}
}

func TestLoadLogFormat(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	t.Setenv("LOG_FORMAT", "TEXT")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogFormat != "console" {
		t.Fatalf("LogFormat = %q, want console", cfg.LogFormat)
	}

	t.Setenv("LOG_FORMAT", "xml")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown log_format")
	}
}
