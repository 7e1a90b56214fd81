package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateWeightSum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Indicators.Weights["login"] = 0.5
	if err := Validate(cfg); err == nil {
		t.Fatal("weights summing past 1.0 accepted")
	}

	cfg = DefaultConfig()
	cfg.Indicators.Weights["forum"] = -0.1
	if err := Validate(cfg); err == nil {
		t.Fatal("negative weight accepted")
	}
}

func TestValidateRequiresAddrs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Addr = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("api without addr accepted")
	}

	cfg = DefaultConfig()
	cfg.Ingest.Kafka.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatal("kafka without brokers accepted")
	}
}

func TestValidateStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Driver = "mysql"
	if err := Validate(cfg); err == nil {
		t.Fatal("unsupported driver accepted")
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engagement.yaml")
	content := []byte(`
log_level: debug
storage:
  driver: sqlite
  dsn: "file:test.db"
indicators:
  weights:
    assessment: 0.4
    forum: 0.2
    gradebook: 0.2
    login: 0.2
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Indicators.Weights["assessment"] != 0.4 {
		t.Fatalf("assessment weight = %v", cfg.Indicators.Weights["assessment"])
	}
	// Unset sections keep their defaults.
	if cfg.Ingest.ChannelBuffer != 10000 {
		t.Fatalf("channel buffer = %d", cfg.Ingest.ChannelBuffer)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engagement.json")
	content := []byte(`{"log_level":"warn","api":{"enabled":true,"addr":":9090"}}`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.API.Addr != ":9090" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsBadWeights(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engagement.yaml")
	content := []byte(`
indicators:
  weights:
    login: 0.9
    forum: 0.9
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("weights summing to 1.8 accepted")
	}
}

func TestManagerReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engagement.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if mgr.Get().LogLevel != "info" {
		t.Fatalf("log_level = %q", mgr.Get().LogLevel)
	}

	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if _, err := mgr.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if mgr.Get().LogLevel != "debug" {
		t.Fatalf("log_level after reload = %q", mgr.Get().LogLevel)
	}
}

func TestStaticManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "error"
	mgr := NewStaticManager(cfg)
	if mgr.Get().LogLevel != "error" {
		t.Fatalf("log_level = %q", mgr.Get().LogLevel)
	}
	if mgr.Path() != "" {
		t.Fatalf("path = %q, want empty", mgr.Path())
	}
}
