//go:build linux || darwin

package platform

import (
	"fmt"
	"os/exec"
)

func runReboot(name string, args ...string) error {
	if err := exec.Command(name, args...).Run(); err != nil {
		return fmt.Errorf("platform: reboot: %w", err)
	}
	return nil
}
