// Package command implements the command executor (C7): REFRESH_TELEMETRY,
// REBOOT, RUN_SHELL and UPDATE commands plus the standalone TELEMETRY_REQ
// opcode, grounded on original_source/agent/crates/agent-core/src/protocol.rs's
// COMMAND/TELEMETRY_REQ opcodes and agent-linux/src/service.rs's reboot path.
package command

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"golang.org/x/time/rate"

	"github.com/nodecastle/edgeagent/internal/logger"
	"github.com/nodecastle/edgeagent/internal/platform"
	"github.com/nodecastle/edgeagent/internal/protocol"
	"github.com/nodecastle/edgeagent/internal/telemetry"
)

// shellTimeout bounds a single RUN_SHELL invocation.
const shellTimeout = 5 * time.Minute

// shellRateLimit caps how often a server can make this agent spawn a shell,
// independent of how fast it can push COMMAND frames down the wire.
const (
	shellRateLimit = 1 // per second
	shellRateBurst = 3
)

// Sink is how the executor emits reply frames.
type Sink interface {
	Send(protocol.Frame) error
}

// Executor dispatches COMMAND and TELEMETRY_REQ control-plane frames.
type Executor struct {
	sink       Sink
	telemetry  *telemetry.Collector
	sysControl platform.SystemControl
	shellLimit *rate.Limiter
}

// New creates a command executor.
func New(sink Sink, collector *telemetry.Collector, sysControl platform.SystemControl) *Executor {
	return &Executor{
		sink:       sink,
		telemetry:  collector,
		sysControl: sysControl,
		shellLimit: rate.NewLimiter(rate.Limit(shellRateLimit), shellRateBurst),
	}
}

// Handle dispatches one decoded control-plane frame.
func (e *Executor) Handle(f protocol.Frame) {
	switch f.Type {
	case protocol.OpCommand:
		e.handleCommand(f)
	case protocol.OpTelemetryReq:
		e.sendTelemetry(f.RequestID)
	default:
		logger.Debug("command executor: unhandled opcode", "opcode", f.Type.String())
	}
}

func (e *Executor) handleCommand(f protocol.Frame) {
	var cmd protocol.Command
	if err := f.ParseJSON(&cmd); err != nil {
		e.reply(f.RequestID, protocol.CommandResult{Success: false, Error: "malformed command: " + err.Error()})
		return
	}

	switch cmd.Type {
	case "REFRESH_TELEMETRY":
		e.sendTelemetry(f.RequestID)
		e.reply(f.RequestID, protocol.CommandResult{Success: true})

	case "REBOOT":
		if e.sysControl == nil {
			e.reply(f.RequestID, protocol.CommandResult{Success: false, Error: "reboot not supported on this platform"})
			return
		}
		// Acknowledge before rebooting: the reboot may take the agent down
		// before a later reply could be sent.
		e.reply(f.RequestID, protocol.CommandResult{Success: true})
		if err := e.sysControl.Reboot(); err != nil {
			logger.Warn("reboot failed", "error", err)
		}

	case "RUN_SHELL":
		e.runShell(f.RequestID, cmd.Command)

	case "UPDATE":
		// There is no self-update collaborator (download+verify+replace
		// binary); reply with a failure result without acting.
		e.reply(f.RequestID, protocol.CommandResult{Success: false, Error: "self-update not implemented"})

	default:
		e.reply(f.RequestID, protocol.CommandResult{Success: false, Error: "unknown command: " + cmd.Type})
	}
}

func (e *Executor) runShell(requestID uint32, command string) {
	if command == "" {
		e.reply(requestID, protocol.CommandResult{Success: false, Error: "empty command"})
		return
	}

	if !e.shellLimit.Allow() {
		e.reply(requestID, protocol.CommandResult{Success: false, Error: "RUN_SHELL rate limit exceeded, try again shortly"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shellTimeout)
	defer cancel()

	shell, args := shellInvocation(command)
	cmd := exec.CommandContext(ctx, shell, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := protocol.CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		result.Success = true
		result.ExitCode = 0
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		result.Success = false
		result.ExitCode = exitErr.ExitCode()
		result.Error = err.Error()
	} else {
		result.Success = false
		result.ExitCode = -1
		result.Error = err.Error()
	}
	e.reply(requestID, result)
}

func (e *Executor) sendTelemetry(requestID uint32) {
	data := e.telemetry.Collect()
	frame, err := protocol.ControlJSON(protocol.OpTelemetryData, requestID, data)
	if err != nil {
		logger.Warn("encode telemetry data failed", "error", err)
		return
	}
	if err := e.sink.Send(frame); err != nil {
		logger.Warn("send TELEMETRY_DATA failed", "error", err)
	}
}

func (e *Executor) reply(requestID uint32, result protocol.CommandResult) {
	frame, err := protocol.ControlJSON(protocol.OpCommandResult, requestID, result)
	if err != nil {
		logger.Warn("encode command result failed", "error", err)
		return
	}
	if err := e.sink.Send(frame); err != nil {
		logger.Warn("send COMMAND_RESULT failed", "error", err)
	}
}
