// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %q", cfg.LLM.Provider)
	}
	if cfg.Session.Backend != "memory" {
		t.Errorf("expected default session backend memory, got %q", cfg.Session.Backend)
	}
	if cfg.Orchestrator.MaxIterations != 8 {
		t.Errorf("expected default max iterations 8, got %d", cfg.Orchestrator.MaxIterations)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("expected default ttl 24h, got %v", cfg.Session.TTL)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tom.yaml")
	content := `
llm:
  provider: gemini
  model: gemini-3-flash-preview
session:
  backend: sqlite
  db_path: /var/lib/tom/tom.db
  history_window: 20
orchestrator:
  max_iterations: 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("expected gemini, got %q", cfg.LLM.Provider)
	}
	if cfg.Session.Backend != "sqlite" || cfg.Session.DBPath != "/var/lib/tom/tom.db" {
		t.Errorf("session config not applied: %+v", cfg.Session)
	}
	if cfg.Session.HistoryWindow != 20 {
		t.Errorf("expected window 20, got %d", cfg.Session.HistoryWindow)
	}
	if cfg.Orchestrator.MaxIterations != 5 {
		t.Errorf("expected 5 iterations, got %d", cfg.Orchestrator.MaxIterations)
	}
	// Untouched keys keep their defaults.
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level, got %q", cfg.Log.Level)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tom.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("TOM_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("env must override file, got %q", cfg.Log.Level)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tom.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: info\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	w, err := NewWatcher([]string{path}, WithWatchInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	changed := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})
	w.Start(t.Context())
	defer w.Stop()

	// Push mod time forward explicitly; coarse filesystem clocks would
	// otherwise make the rewrite invisible.
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	future := time.Now().Add(time.Second)
	os.Chtimes(path, future, future)

	select {
	case cfg := <-changed:
		if cfg.Log.Level != "debug" {
			t.Errorf("expected reloaded level debug, got %q", cfg.Log.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe the change")
	}
}
