package helper

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nodecastle/edgeagent/internal/ipc"
	"github.com/nodecastle/edgeagent/internal/protocol"
)

type fakeSink struct {
	mu     sync.Mutex
	frames []protocol.Frame
}

func (s *fakeSink) Send(f protocol.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// fakeLauncher simulates a helper process by dialing the supervisor's pipe
// itself from a goroutine instead of spawning a real subprocess.
type fakeLauncher struct {
	pipePath string

	mu    sync.Mutex
	alive bool
}

func (l *fakeLauncher) SpawnInSession(sessionID string) error {
	l.mu.Lock()
	l.alive = true
	l.mu.Unlock()

	go func() {
		conn, err := ipc.Dial(l.pipePath)
		if err != nil {
			return
		}
		defer conn.Close()
		ipcConn := ipc.New(conn)
		// Echo one DESKTOP_FRAME back, as a real helper would after capturing a tile.
		ipcConn.WriteFrame(protocol.Session(protocol.OpDesktopFrame, 2, 0, []byte("tile")))
		// Keep the connection open until the test closes it.
		time.Sleep(2 * time.Second)
	}()
	return nil
}

func (l *fakeLauncher) IsAlive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alive
}

func (l *fakeLauncher) Kill() error {
	l.mu.Lock()
	l.alive = false
	l.mu.Unlock()
	return nil
}

func TestSupervisorRelaysFramesFromHelper(t *testing.T) {
	pipePath := filepath.Join(t.TempDir(), "agent.sock")
	launcher := &fakeLauncher{pipePath: pipePath}
	sink := &fakeSink{}

	sup, err := NewSupervisor(launcher, pipePath, sink)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	defer sup.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sup.Start(ctx, "session-1") }()

	deadline := time.After(2 * time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for relayed frame")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestNewSupervisorRemovesStaleSocket(t *testing.T) {
	pipePath := filepath.Join(t.TempDir(), "agent.sock")
	if err := os.WriteFile(pipePath, []byte("stale"), 0o644); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}
	launcher := &fakeLauncher{pipePath: pipePath}
	sup, err := NewSupervisor(launcher, pipePath, &fakeSink{})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	defer sup.Close()
}
