// Package router dispatches decoded frames coming off the connector (C2)
// to the subsystem that owns their opcode: the command executor, the file
// transfer engine, the session multiplexer, or — in no-desktop mode — the
// helper proxy. Grounded on the teacher's relay.Server opcode switch
// (internal/relay/server.go), generalized from HTTP routes to wire opcodes.
package router

import (
	"github.com/nodecastle/edgeagent/internal/command"
	"github.com/nodecastle/edgeagent/internal/files"
	"github.com/nodecastle/edgeagent/internal/logger"
	"github.com/nodecastle/edgeagent/internal/protocol"
	"github.com/nodecastle/edgeagent/internal/session"
)

// HelperForwarder forwards a session-plane frame to the helper process in
// no-desktop mode. Satisfied by *helper.Supervisor.
type HelperForwarder interface {
	Forward(protocol.Frame) error
}

// Router owns the mapping from opcode to handler. It holds no state of its
// own beyond its collaborators and the no-desktop toggle.
type Router struct {
	sessions *session.Manager
	files    *files.Engine
	commands *command.Executor
	helper   HelperForwarder

	// noDesktop routes TERMINAL_*/DESKTOP_* frames to helper instead of
	// sessions. Set once at startup; not expected to flip at runtime.
	noDesktop bool
}

// New builds a router. helper may be nil when not running in no-desktop
// mode; sessions may be nil in no-desktop mode, since session frames never
// reach it then.
func New(sessions *session.Manager, filesEngine *files.Engine, commands *command.Executor, helper HelperForwarder, noDesktop bool) *Router {
	return &Router{sessions: sessions, files: filesEngine, commands: commands, helper: helper, noDesktop: noDesktop}
}

// Route dispatches one frame by opcode class.
func (r *Router) Route(f protocol.Frame) {
	switch {
	case isSessionOpcode(f.Type):
		r.routeSession(f)
	case isFileOpcode(f.Type):
		r.files.Handle(f)
	case isCommandOpcode(f.Type):
		r.commands.Handle(f)
	default:
		logger.Warn("router: dropping unhandled opcode", "opcode", f.Type)
	}
}

func (r *Router) routeSession(f protocol.Frame) {
	if r.noDesktop {
		if r.helper == nil {
			logger.Warn("router: no-desktop mode but no helper pipe, dropping frame", "opcode", f.Type, "channel", f.Channel)
			return
		}
		if err := r.helper.Forward(f); err != nil {
			logger.Warn("router: forward to helper failed", "error", err)
		}
		return
	}
	r.sessions.Handle(f)
}

func isSessionOpcode(op protocol.Opcode) bool {
	switch op {
	case protocol.OpDesktopOpen, protocol.OpDesktopClose, protocol.OpDesktopFrame,
		protocol.OpDesktopInput, protocol.OpDesktopResize, protocol.OpDesktopQuality,
		protocol.OpTerminalOpen, protocol.OpTerminalClose, protocol.OpTerminalData, protocol.OpTerminalResize:
		return true
	}
	return false
}

func isFileOpcode(op protocol.Opcode) bool {
	switch op {
	case protocol.OpFileListReq, protocol.OpFileDownloadReq, protocol.OpFileUploadStart,
		protocol.OpFileUploadData, protocol.OpFileDeleteReq:
		return true
	}
	return false
}

func isCommandOpcode(op protocol.Opcode) bool {
	switch op {
	case protocol.OpCommand, protocol.OpTelemetryReq:
		return true
	}
	return false
}
