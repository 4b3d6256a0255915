// Package helper implements the service/helper split for "no-desktop mode"
// (C9 supervisor, C10 worker): the privileged service process launches an
// unprivileged helper in the target interactive session, and the two talk
// the same session protocol over a local IPC pipe instead of directly
// operating on PTYs/screens from the service process itself. Grounded on
// original_source/agent/crates/agent-bin/src/helper.rs.
package helper

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/nodecastle/edgeagent/internal/ipc"
	"github.com/nodecastle/edgeagent/internal/logger"
	"github.com/nodecastle/edgeagent/internal/protocol"
	"github.com/nodecastle/edgeagent/internal/session"
)

const (
	dialRetries = 10
	dialDelay   = 500 * time.Millisecond
)

// SocketPath resolves a short pipe name (as passed on the command line via
// --pipe-name) to the full local IPC socket path both the supervisor and
// the worker dial/listen on.
func SocketPath(pipeName string) string {
	return filepath.Join(os.TempDir(), pipeName+".sock")
}

// pipeSink adapts an *ipc.Conn to the session.Sink interface.
type pipeSink struct{ conn *ipc.Conn }

func (s pipeSink) Send(f protocol.Frame) error { return s.conn.WriteFrame(f) }

// RunWorker connects to the service's IPC pipe (retrying up to dialRetries
// times, dialDelay apart — the service may still be setting up the pipe
// when the helper process starts) and runs a session multiplexer over it
// until the connection drops.
func RunWorker(pipePath string) error {
	conn, err := dialWithRetry(pipePath)
	if err != nil {
		return fmt.Errorf("helper: connect to service pipe: %w", err)
	}
	defer conn.Close()

	ipcConn := ipc.New(conn)
	manager := session.NewManager(pipeSink{conn: ipcConn})

	logger.Info("helper: connected to service, entering message loop")
	for {
		frame, err := ipcConn.ReadFrame()
		if err != nil {
			logger.Info("helper: pipe disconnected, shutting down", "error", err)
			return nil
		}
		manager.Handle(frame)
	}
}

func dialWithRetry(pipePath string) (net.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= dialRetries; attempt++ {
		conn, err := ipc.Dial(pipePath)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt < dialRetries {
			logger.Info("helper: pipe connect attempt failed, retrying", "attempt", attempt, "max", dialRetries, "error", err)
			time.Sleep(dialDelay)
		}
	}
	return nil, lastErr
}
