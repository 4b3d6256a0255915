//go:build linux

package platform

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

type linuxSessionPresence struct{}

func newSessionPresence() (SessionPresence, error) { return linuxSessionPresence{}, nil }

func (linuxSessionPresence) CurrentSessionID() (string, error) {
	if sid := os.Getenv("XDG_SESSION_ID"); sid != "" {
		return sid, nil
	}
	// No logind session (e.g. running under a bare SSH shell or as a
	// detached service); fall back to the POSIX session id of this process.
	if sid, err := unix.Getsid(os.Getpid()); err == nil {
		return strconv.Itoa(sid), nil
	}
	return "", fmt.Errorf("platform: no XDG_SESSION_ID in environment and getsid failed")
}

// IsSystemServiceContext reports whether the agent is running detached from
// any desktop session. A full implementation would query logind over
// D-Bus; absent that, the presence of a logind session id or a display
// server environment variable is treated as evidence of desktop access.
func (linuxSessionPresence) IsSystemServiceContext() bool {
	if os.Getenv("XDG_SESSION_ID") != "" {
		return false
	}
	if os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != "" {
		return false
	}
	return true
}

func (l linuxSessionPresence) GetActiveConsoleSessionID() (string, error) {
	return l.CurrentSessionID()
}

type unixSystemControl struct{}

func newSystemControl() (SystemControl, error) { return unixSystemControl{}, nil }

func (unixSystemControl) Reboot() error {
	return runReboot("reboot")
}
