//go:build windows

package config

import (
	"os"
	"path/filepath"
)

func systemConfigDir() string {
	programData := os.Getenv("ProgramData")
	if programData == "" {
		return ""
	}
	return filepath.Join(programData, dirName)
}
