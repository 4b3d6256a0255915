//go:build windows

package ipc

import (
	"fmt"
	"net"
)

// Listen and Dial target Windows named pipes in the reference
// implementation. No named-pipe library appears in the example pack
// (neither Microsoft/go-winio nor an equivalent), so this backend is left
// as a named but unimplemented collaborator, matching the platform
// package's treatment of other genuinely OS-specific surfaces.

func Listen(pipeName string) (net.Listener, error) {
	return nil, fmt.Errorf("ipc: named pipe transport not implemented on this build")
}

func Dial(pipeName string) (net.Conn, error) {
	return nil, fmt.Errorf("ipc: named pipe transport not implemented on this build")
}
