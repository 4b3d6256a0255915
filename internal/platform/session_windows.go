//go:build windows

package platform

import (
	"fmt"
	"strconv"

	"golang.org/x/sys/windows"
)

type windowsSessionPresence struct{}

func newSessionPresence() (SessionPresence, error) { return windowsSessionPresence{}, nil }

// IsSystemServiceContext is the platform where no-desktop mode is most
// common: a service installed via SCM runs in session 0, detached from any
// interactive desktop, and must delegate to a helper process (C9/C10).
func (windowsSessionPresence) IsSystemServiceContext() bool {
	return isRunningAsWindowsService()
}

func (windowsSessionPresence) CurrentSessionID() (string, error) {
	var sessionID uint32
	if err := windows.ProcessIdToSessionId(windows.GetCurrentProcessId(), &sessionID); err != nil {
		return "", fmt.Errorf("platform: ProcessIdToSessionId: %w", err)
	}
	return strconv.FormatUint(uint64(sessionID), 10), nil
}

func (windowsSessionPresence) GetActiveConsoleSessionID() (string, error) {
	sessionID := windows.WTSGetActiveConsoleSessionId()
	const invalidSessionID = 0xFFFFFFFF
	if sessionID == invalidSessionID {
		return "", fmt.Errorf("platform: no active console session")
	}
	return strconv.FormatUint(uint64(sessionID), 10), nil
}

// isRunningAsWindowsService reports whether this process runs in session 0,
// where SCM-launched services run; it does not compare against the active
// console session.
func isRunningAsWindowsService() bool {
	var mySession uint32
	if err := windows.ProcessIdToSessionId(windows.GetCurrentProcessId(), &mySession); err != nil {
		return false
	}
	return mySession == 0
}

type windowsSystemControl struct{}

func newSystemControl() (SystemControl, error) { return windowsSystemControl{}, nil }

func (windowsSystemControl) Reboot() error {
	return windows.ExitWindowsEx(windows.EWX_REBOOT|windows.EWX_FORCE, 0)
}
