package command

import (
	"sync"
	"testing"

	"github.com/nodecastle/edgeagent/internal/protocol"
	"github.com/nodecastle/edgeagent/internal/telemetry"
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

func (s *fakeSink) framesOfType(op protocol.Opcode) []protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Frame
	for _, f := range s.frames {
		if f.Type == op {
			out = append(out, f)
		}
	}
	return out
}

type fakeSystemControl struct {
	rebootCalled bool
	err          error
}

func (f *fakeSystemControl) Reboot() error {
	f.rebootCalled = true
	return f.err
}

func TestRunShellCapturesStdoutAndExitCode(t *testing.T) {
	sink := &fakeSink{}
	exec := New(sink, telemetry.New(""), nil)

	frame, _ := protocol.ControlJSON(protocol.OpCommand, 11, protocol.Command{Type: "RUN_SHELL", Command: "echo hello"})
	exec.Handle(frame)

	results := sink.framesOfType(protocol.OpCommandResult)
	if len(results) != 1 {
		t.Fatalf("expected 1 COMMAND_RESULT, got %d", len(results))
	}
	var res protocol.CommandResult
	if err := results[0].ParseJSON(&res); err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if !res.Success || res.ExitCode != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Stdout != "hello\n" {
		t.Fatalf("stdout = %q, want %q", res.Stdout, "hello\n")
	}
}

func TestRunShellReportsNonZeroExit(t *testing.T) {
	sink := &fakeSink{}
	exec := New(sink, telemetry.New(""), nil)

	frame, _ := protocol.ControlJSON(protocol.OpCommand, 12, protocol.Command{Type: "RUN_SHELL", Command: "exit 7"})
	exec.Handle(frame)

	results := sink.framesOfType(protocol.OpCommandResult)
	var res protocol.CommandResult
	if err := results[0].ParseJSON(&res); err != nil {
		t.Fatalf("parse result: %v", err)
	}
	if res.Success || res.ExitCode != 7 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRebootDelegatesToSystemControl(t *testing.T) {
	sink := &fakeSink{}
	sc := &fakeSystemControl{}
	exec := New(sink, telemetry.New(""), sc)

	frame, _ := protocol.ControlJSON(protocol.OpCommand, 13, protocol.Command{Type: "REBOOT"})
	exec.Handle(frame)

	if !sc.rebootCalled {
		t.Fatal("expected Reboot to be called")
	}
	results := sink.framesOfType(protocol.OpCommandResult)
	var res protocol.CommandResult
	if err := results[0].ParseJSON(&res); err != nil || !res.Success {
		t.Fatalf("expected success result: %+v err=%v", res, err)
	}
}

func TestRebootWithoutSystemControlFails(t *testing.T) {
	sink := &fakeSink{}
	exec := New(sink, telemetry.New(""), nil)

	frame, _ := protocol.ControlJSON(protocol.OpCommand, 14, protocol.Command{Type: "REBOOT"})
	exec.Handle(frame)

	results := sink.framesOfType(protocol.OpCommandResult)
	var res protocol.CommandResult
	if err := results[0].ParseJSON(&res); err != nil || res.Success {
		t.Fatalf("expected failure result: %+v err=%v", res, err)
	}
}

func TestUnknownCommandTypeFails(t *testing.T) {
	sink := &fakeSink{}
	exec := New(sink, telemetry.New(""), nil)

	frame, _ := protocol.ControlJSON(protocol.OpCommand, 15, protocol.Command{Type: "BOGUS"})
	exec.Handle(frame)

	results := sink.framesOfType(protocol.OpCommandResult)
	var res protocol.CommandResult
	if err := results[0].ParseJSON(&res); err != nil || res.Success {
		t.Fatalf("expected failure result: %+v err=%v", res, err)
	}
}

func TestTelemetryReqSendsTelemetryData(t *testing.T) {
	sink := &fakeSink{}
	exec := New(sink, telemetry.New(""), nil)

	exec.Handle(protocol.Control(protocol.OpTelemetryReq, 16, nil))

	results := sink.framesOfType(protocol.OpTelemetryData)
	if len(results) != 1 {
		t.Fatalf("expected 1 TELEMETRY_DATA, got %d", len(results))
	}
}
