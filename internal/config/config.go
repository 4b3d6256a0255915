// Package config loads and layers the agent's configuration: a base JSON
// file plus an optional YAML overlay, merged field-by-field the way the
// teacher's config.Manager layers user and project settings, with
// fsnotify watching both files for hot-reload.
package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/nodecastle/edgeagent/internal/logger"
)

// AgentConfig holds everything the agent needs to connect, authenticate,
// and log, per SPEC_FULL.md §10.2.
type AgentConfig struct {
	ServerURL    string `json:"server_url,omitempty" yaml:"server_url,omitempty"`
	SessionToken string `json:"session_token,omitempty" yaml:"session_token,omitempty"`
	DeviceID     string `json:"device_id,omitempty" yaml:"device_id,omitempty"`

	HeartbeatIntervalSecs  int `json:"heartbeat_interval_secs,omitempty" yaml:"heartbeat_interval_secs,omitempty"`
	ReconnectBaseDelaySecs int `json:"reconnect_base_delay_secs,omitempty" yaml:"reconnect_base_delay_secs,omitempty"`
	ReconnectMaxDelaySecs  int `json:"reconnect_max_delay_secs,omitempty" yaml:"reconnect_max_delay_secs,omitempty"`

	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFile  string `json:"log_file,omitempty" yaml:"log_file,omitempty"`

	HelperMode bool   `json:"helper_mode,omitempty" yaml:"helper_mode,omitempty"`
	PipeName   string `json:"pipe_name,omitempty" yaml:"pipe_name,omitempty"`
}

// defaults mirrors the reference implementation's config.rs defaults.
func defaults() AgentConfig {
	return AgentConfig{
		HeartbeatIntervalSecs:  30,
		ReconnectBaseDelaySecs: 1,
		ReconnectMaxDelaySecs:  60,
		LogLevel:               "info",
		PipeName:               "edgeagent",
	}
}

// Manager layers a base JSON config file with an optional YAML overlay.
type Manager struct {
	base    AgentConfig
	overlay AgentConfig
	merged  AgentConfig
}

// NewManager creates a manager seeded with built-in defaults.
func NewManager() *Manager {
	d := defaults()
	return &Manager{base: d, merged: d}
}

// Load reads the base JSON config at basePath and, if present, a YAML
// overlay at overlayPath, then merges them (overlay wins per non-zero
// field) on top of the built-in defaults.
func (m *Manager) Load(basePath, overlayPath string) error {
	if err := loadJSON(basePath, &m.base); err != nil {
		return err
	}
	if overlayPath != "" {
		if err := loadYAML(overlayPath, &m.overlay); err != nil {
			return err
		}
	}
	m.merge()
	return nil
}

func loadJSON(path string, cfg *AgentConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, cfg)
}

func loadYAML(path string, cfg *AgentConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (m *Manager) merge() {
	d := defaults()
	m.merged = AgentConfig{
		ServerURL:              firstNonEmpty(m.overlay.ServerURL, m.base.ServerURL, d.ServerURL),
		SessionToken:           firstNonEmpty(m.overlay.SessionToken, m.base.SessionToken, d.SessionToken),
		DeviceID:               firstNonEmpty(m.overlay.DeviceID, m.base.DeviceID, d.DeviceID),
		HeartbeatIntervalSecs:  firstNonZero(m.overlay.HeartbeatIntervalSecs, m.base.HeartbeatIntervalSecs, d.HeartbeatIntervalSecs),
		ReconnectBaseDelaySecs: firstNonZero(m.overlay.ReconnectBaseDelaySecs, m.base.ReconnectBaseDelaySecs, d.ReconnectBaseDelaySecs),
		ReconnectMaxDelaySecs:  firstNonZero(m.overlay.ReconnectMaxDelaySecs, m.base.ReconnectMaxDelaySecs, d.ReconnectMaxDelaySecs),
		LogLevel:               firstNonEmpty(m.overlay.LogLevel, m.base.LogLevel, d.LogLevel),
		LogFile:                firstNonEmpty(m.overlay.LogFile, m.base.LogFile, d.LogFile),
		HelperMode:             m.overlay.HelperMode || m.base.HelperMode,
		PipeName:               firstNonEmpty(m.overlay.PipeName, m.base.PipeName, d.PipeName),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

// Get returns the merged configuration.
func (m *Manager) Get() *AgentConfig { return &m.merged }

// SetDeviceID updates the device id on both the base and merged config, so
// a subsequent Save persists the id the server assigned on first auth.
func (m *Manager) SetDeviceID(id string) {
	m.base.DeviceID = id
	m.merged.DeviceID = id
}

// Watch reloads basePath and overlayPath whenever either changes on disk
// and invokes onChange with the freshly merged config. It blocks until ctx
// is cancelled. Missing files are watched by directory, since fsnotify
// can't watch a path that doesn't exist yet.
func (m *Manager) Watch(ctx context.Context, basePath, overlayPath string, onChange func(*AgentConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs := map[string]struct{}{
		filepath.Dir(basePath): {},
	}
	if overlayPath != "" {
		dirs[filepath.Dir(overlayPath)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			logger.Warn("config: failed to watch directory", "dir", dir, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != basePath && event.Name != overlayPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := m.Load(basePath, overlayPath); err != nil {
				logger.Warn("config: reload failed", "error", err)
				continue
			}
			onChange(m.Get())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config: watcher error", "error", err)
		}
	}
}

// Save writes the base config back to basePath as JSON, creating its
// parent directory if needed.
func (m *Manager) Save(basePath string) error {
	if err := os.MkdirAll(filepath.Dir(basePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.base, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(basePath, data, 0o600)
}
