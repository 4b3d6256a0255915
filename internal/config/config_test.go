package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaultsWhenFilesAreMissing(t *testing.T) {
	dir := t.TempDir()
	m := NewManager()
	if err := m.Load(filepath.Join(dir, "config.json"), filepath.Join(dir, "overlay.yaml")); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := m.Get()
	if cfg.HeartbeatIntervalSecs != 30 {
		t.Errorf("HeartbeatIntervalSecs = %d, want default 30", cfg.HeartbeatIntervalSecs)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default \"info\"", cfg.LogLevel)
	}
}

func TestOverlayWinsOverBase(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "config.json")
	overlayPath := filepath.Join(dir, "overlay.yaml")

	if err := os.WriteFile(basePath, []byte(`{"server_url":"wss://base.example.com","log_level":"debug"}`), 0o600); err != nil {
		t.Fatalf("write base: %v", err)
	}
	if err := os.WriteFile(overlayPath, []byte("server_url: wss://overlay.example.com\n"), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}

	m := NewManager()
	if err := m.Load(basePath, overlayPath); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := m.Get()
	if cfg.ServerURL != "wss://overlay.example.com" {
		t.Errorf("ServerURL = %q, want overlay value", cfg.ServerURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want base value to survive when overlay is silent", cfg.LogLevel)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "config.json")

	m := NewManager()
	m.base.ServerURL = "wss://saved.example.com"
	m.base.DeviceID = "dev-123"
	if err := m.Save(basePath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := NewManager()
	if err := reloaded.Load(basePath, ""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := reloaded.Get()
	if cfg.ServerURL != "wss://saved.example.com" || cfg.DeviceID != "dev-123" {
		t.Errorf("unexpected roundtrip result: %+v", cfg)
	}
}

func TestWatchReloadsOnBaseFileChange(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(basePath, []byte(`{"log_level":"info"}`), 0o600); err != nil {
		t.Fatalf("write base: %v", err)
	}

	m := NewManager()
	if err := m.Load(basePath, ""); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	changed := make(chan *AgentConfig, 1)
	go m.Watch(ctx, basePath, "", func(cfg *AgentConfig) {
		select {
		case changed <- cfg:
		default:
		}
	})

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(basePath, []byte(`{"log_level":"debug"}`), 0o600); err != nil {
		t.Fatalf("rewrite base: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want \"debug\" after reload", cfg.LogLevel)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for watch callback")
	}
}
