//go:build linux || darwin

package config

import "path/filepath"

func systemConfigDir() string {
	return filepath.Join("/etc", dirName)
}
