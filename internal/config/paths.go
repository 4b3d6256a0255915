package config

import (
	"os"
	"path/filepath"
)

// dirName is the config directory the agent reads/writes under, parallel
// to the teacher's ".wingthing" convention.
const dirName = "edgeagent"

// ConfigFileName is the base JSON config file within the config dir.
const ConfigFileName = "config.json"

// OverlayFileName is the optional YAML overlay applied on top of the base
// config, useful for deployment-specific overrides pushed separately from
// the base install.
const OverlayFileName = "overlay.yaml"

// GetConfigDir returns the directory edgeagent stores its configuration
// in: %ProgramData%\edgeagent on Windows, /etc/edgeagent elsewhere, with
// $HOME/.edgeagent as a fallback when the system directory does not exist
// and cannot be created (e.g. running unprivileged during development). An
// existing system directory is returned without checking it is writable.
func GetConfigDir() (string, error) {
	if dir := systemConfigDir(); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
		if err := os.MkdirAll(dir, 0o755); err == nil {
			return dir, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "."+dirName), nil
}

// GetConfigPath returns the base JSON config file's full path.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// GetOverlayPath returns the YAML overlay file's full path.
func GetOverlayPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, OverlayFileName), nil
}

// EnsureConfigDir creates the config directory if it doesn't already exist.
func EnsureConfigDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
