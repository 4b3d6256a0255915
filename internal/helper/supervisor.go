package helper

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nodecastle/edgeagent/internal/ipc"
	"github.com/nodecastle/edgeagent/internal/logger"
	"github.com/nodecastle/edgeagent/internal/platform"
	"github.com/nodecastle/edgeagent/internal/protocol"
)

// acceptTimeout bounds how long the supervisor waits for the freshly
// launched helper process to dial back in.
const acceptTimeout = 10 * time.Second

// livenessInterval is how often the supervisor checks the helper process
// is still running.
const livenessInterval = 5 * time.Second

// Sink is where the supervisor forwards frames the helper sends back
// (desktop frames, terminal data, close notifications) — the outbound
// connector in service mode.
type Sink interface {
	Send(protocol.Frame) error
}

// Supervisor launches a helper process in a target interactive session,
// accepts its IPC connection, relays session-plane frames to and from it,
// and watches its liveness.
type Supervisor struct {
	launcher platform.HelperLauncher
	listener net.Listener
	sink     Sink

	mu     sync.Mutex
	helper *ipc.Conn
}

// NewSupervisor opens the IPC listener the helper will dial into and
// wraps launcher, the platform-specific process spawner.
func NewSupervisor(launcher platform.HelperLauncher, pipePath string, sink Sink) (*Supervisor, error) {
	listener, err := ipc.Listen(pipePath)
	if err != nil {
		return nil, fmt.Errorf("helper supervisor: listen on %s: %w", pipePath, err)
	}
	return &Supervisor{launcher: launcher, listener: listener, sink: sink}, nil
}

// Start launches the helper in sessionID, accepts its connection, and
// runs the relay and liveness loops until ctx is cancelled or the helper
// connection drops.
func (s *Supervisor) Start(ctx context.Context, sessionID string) error {
	if err := s.launcher.SpawnInSession(sessionID); err != nil {
		return fmt.Errorf("helper supervisor: spawn in session %s: %w", sessionID, err)
	}

	acceptCh := make(chan net.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := s.listener.Accept()
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- conn
	}()

	var conn net.Conn
	select {
	case conn = <-acceptCh:
	case err := <-errCh:
		return fmt.Errorf("helper supervisor: accept: %w", err)
	case <-time.After(acceptTimeout):
		_ = s.launcher.Kill()
		return fmt.Errorf("helper supervisor: timed out waiting for helper to connect")
	case <-ctx.Done():
		_ = s.launcher.Kill()
		return ctx.Err()
	}

	helperConn := ipc.New(conn)
	s.mu.Lock()
	s.helper = helperConn
	s.mu.Unlock()

	relayDone := make(chan error, 1)
	go s.relayFromHelper(helperConn, relayDone)

	liveness := time.NewTicker(livenessInterval)
	defer liveness.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = helperConn.Close()
			return ctx.Err()
		case err := <-relayDone:
			return err
		case <-liveness.C:
			if !s.launcher.IsAlive() {
				logger.Warn("helper process is no longer alive", "session", sessionID)
				_ = helperConn.Close()
				return fmt.Errorf("helper supervisor: helper process died")
			}
		}
	}
}

func (s *Supervisor) relayFromHelper(helperConn *ipc.Conn, done chan<- error) {
	for {
		frame, err := helperConn.ReadFrame()
		if err != nil {
			done <- err
			return
		}
		if err := s.sink.Send(frame); err != nil {
			logger.Warn("helper supervisor: forward to sink failed", "error", err)
		}
	}
}

// Forward sends a session-plane frame down to the helper process. It
// returns an error if no helper is currently connected.
func (s *Supervisor) Forward(f protocol.Frame) error {
	s.mu.Lock()
	conn := s.helper
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("helper supervisor: no helper connected")
	}
	return conn.WriteFrame(f)
}

// Close shuts down the listener and any active helper connection.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	conn := s.helper
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return s.listener.Close()
}
