//go:build linux || darwin

package ipc

import (
	"net"
	"os"
)

// Listen opens a Unix domain socket at path for the helper supervisor,
// removing a stale socket file left by a previous crash.
func Listen(path string) (net.Listener, error) {
	_ = os.Remove(path)
	return net.Listen("unix", path)
}

// Dial connects to a Unix domain socket at path, used by the helper worker.
func Dial(path string) (net.Conn, error) {
	return net.Dial("unix", path)
}
