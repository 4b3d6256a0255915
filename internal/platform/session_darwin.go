//go:build darwin

package platform

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

type darwinSessionPresence struct{}

func newSessionPresence() (SessionPresence, error) { return darwinSessionPresence{}, nil }

func (darwinSessionPresence) CurrentSessionID() (string, error) {
	if sid, err := unix.Getsid(os.Getpid()); err == nil {
		return strconv.Itoa(sid), nil
	}
	return "", fmt.Errorf("platform: session id lookup not implemented on darwin")
}

// IsSystemServiceContext would need a SCDynamicStore/loginwindow query to
// answer properly; absent that this conservatively assumes desktop access
// is available, since a launchd-managed daemon on macOS typically still
// runs alongside an active console session (unlike headless Linux/Windows
// services).
func (darwinSessionPresence) IsSystemServiceContext() bool { return false }

func (darwinSessionPresence) GetActiveConsoleSessionID() (string, error) {
	return "", fmt.Errorf("platform: console session lookup not implemented on darwin")
}

type unixSystemControl struct{}

func newSystemControl() (SystemControl, error) { return unixSystemControl{}, nil }

func (unixSystemControl) Reboot() error {
	return runReboot("shutdown", "-r", "now")
}
