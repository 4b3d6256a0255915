package router

import (
	"testing"

	"github.com/nodecastle/edgeagent/internal/command"
	"github.com/nodecastle/edgeagent/internal/files"
	"github.com/nodecastle/edgeagent/internal/platform"
	"github.com/nodecastle/edgeagent/internal/protocol"
	"github.com/nodecastle/edgeagent/internal/session"
	"github.com/nodecastle/edgeagent/internal/telemetry"
)

type fakeSink struct{ frames []protocol.Frame }

func (s *fakeSink) Send(f protocol.Frame) error {
	s.frames = append(s.frames, f)
	return nil
}

type fakeFS struct{}

func (fakeFS) ListDir(string) ([]platform.FileMetadata, error) { return nil, nil }
func (fakeFS) ReadFile(string) ([]byte, error)                 { return nil, nil }
func (fakeFS) WriteFile(string, []byte) error                  { return nil }
func (fakeFS) Delete(string) error                             { return nil }
func (fakeFS) Exists(string) bool                              { return false }
func (fakeFS) Metadata(string) (platform.FileMetadata, error)  { return platform.FileMetadata{}, nil }

type fakeHelper struct{ forwarded []protocol.Frame }

func (h *fakeHelper) Forward(f protocol.Frame) error {
	h.forwarded = append(h.forwarded, f)
	return nil
}

func newTestRouter(noDesktop bool, helper HelperForwarder) (*Router, *fakeSink) {
	sink := &fakeSink{}
	sessions := session.NewManager(sink)
	filesEngine := files.New(fakeFS{}, sink)
	commands := command.New(sink, telemetry.New(""), nil)
	return New(sessions, filesEngine, commands, helper, noDesktop), sink
}

func TestRouteSendsFileOpcodeToFilesEngine(t *testing.T) {
	r, sink := newTestRouter(false, nil)
	r.Route(protocol.Control(protocol.OpFileDeleteReq, 1, []byte(`{"path":"/tmp/x"}`)))
	frames := 0
	for _, f := range sink.frames {
		if f.Type == protocol.OpFileResult {
			frames++
		}
	}
	if frames != 1 {
		t.Fatalf("expected one FILE_RESULT frame, got %d", frames)
	}
}

func TestRouteSendsCommandOpcodeToExecutor(t *testing.T) {
	r, sink := newTestRouter(false, nil)
	r.Route(protocol.Control(protocol.OpCommand, 1, []byte(`{"type":"RUN_SHELL","command":"true"}`)))
	found := false
	for _, f := range sink.frames {
		if f.Type == protocol.OpCommandResult {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a COMMAND_RESULT frame")
	}
}

func TestRouteSendsSessionOpcodeToHelperInNoDesktopMode(t *testing.T) {
	helper := &fakeHelper{}
	r, _ := newTestRouter(true, helper)
	r.Route(protocol.Session(protocol.OpTerminalOpen, 5, 1, []byte(`{}`)))
	if len(helper.forwarded) != 1 {
		t.Fatalf("expected frame forwarded to helper, got %d", len(helper.forwarded))
	}
}

func TestRouteDropsSessionOpcodeWhenNoDesktopAndNoHelper(t *testing.T) {
	r, sink := newTestRouter(true, nil)
	r.Route(protocol.Session(protocol.OpTerminalOpen, 5, 1, []byte(`{}`)))
	if len(sink.frames) != 0 {
		t.Fatalf("expected no frames sent, got %d", len(sink.frames))
	}
}

func TestRouteDropsUnknownOpcode(t *testing.T) {
	r, sink := newTestRouter(false, nil)
	r.Route(protocol.Control(protocol.Opcode(0xFF), 1, nil))
	if len(sink.frames) != 0 {
		t.Fatalf("expected no frames sent for unknown opcode, got %d", len(sink.frames))
	}
}
