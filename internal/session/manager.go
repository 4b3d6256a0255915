// Package session implements the session multiplexer (C4): per-channel
// shell and screen sessions, lifecycle state machines, bounded ingress
// queues, and cooperative teardown. The same Manager type backs both the
// service process (C4, sink = outbound connector queue) and the helper
// process (C10, sink = IPC writer) per spec §9's transport-agnostic design.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nodecastle/edgeagent/internal/desktop"
	"github.com/nodecastle/edgeagent/internal/logger"
	"github.com/nodecastle/edgeagent/internal/platform"
	"github.com/nodecastle/edgeagent/internal/protocol"
)

const (
	dataQueueSize    = 256
	resizeQueueSize  = 16
	qualityQueueSize = 8

	captureTimeout = 100 * time.Millisecond
)

// Sink is how the multiplexer emits outbound frames; the outbound
// connector queue in C4, the IPC writer in C10.
type Sink interface {
	Send(protocol.Frame) error
}

// Factories bundles the platform collaborator constructors the manager
// uses to instantiate per-session resources. Tests substitute fakes here.
type Factories struct {
	NewPTY           func() (platform.PTY, error)
	NewScreenCapture func() (platform.ScreenCapture, error)
	NewInput         func() (platform.InputInjector, error)
}

func defaultFactories() Factories {
	return Factories{
		NewPTY:           platform.NewPTY,
		NewScreenCapture: platform.NewScreenCapture,
		NewInput:         platform.NewInputInjector,
	}
}

// Manager owns the per-channel session table. It is not safe to share
// across goroutines beyond the single router goroutine that calls Handle.
type Manager struct {
	sink      Sink
	factories Factories

	mu        sync.Mutex
	terminals map[uint16]*terminalSession
	desktops  map[uint16]*desktopSession
}

// NewManager creates a session multiplexer using the real platform backends.
func NewManager(sink Sink) *Manager {
	return NewManagerWithFactories(sink, defaultFactories())
}

// NewManagerWithFactories creates a multiplexer with injected collaborator
// constructors, used by tests to substitute fake PTY, screen and input
// backends.
func NewManagerWithFactories(sink Sink, factories Factories) *Manager {
	return &Manager{
		sink:      sink,
		factories: factories,
		terminals: make(map[uint16]*terminalSession),
		desktops:  make(map[uint16]*desktopSession),
	}
}

// Handle dispatches one decoded session-plane frame by opcode.
func (m *Manager) Handle(f protocol.Frame) {
	switch f.Type {
	case protocol.OpTerminalOpen:
		m.openTerminal(f)
	case protocol.OpTerminalClose:
		m.closeTerminal(f.Channel)
	case protocol.OpTerminalData:
		m.terminalStdin(f.Channel, f.Payload)
	case protocol.OpTerminalResize:
		m.terminalResize(f.Channel, f.Payload)
	case protocol.OpDesktopOpen:
		m.openDesktop(f)
	case protocol.OpDesktopClose:
		m.closeDesktop(f.Channel)
	case protocol.OpDesktopInput:
		m.desktopInput(f.Channel, f.Payload)
	case protocol.OpDesktopQuality:
		m.desktopQuality(f.Channel, f.Payload)
	default:
		logger.Warn("session manager: unhandled opcode", "opcode", f.Type.String())
	}
}

// HasActiveSessions reports whether any channel currently has a live session.
func (m *Manager) HasActiveSessions() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.terminals) > 0 || len(m.desktops) > 0
}

// CloseAll tears down every live session, e.g. on connector Disconnected.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	channels := make([]uint16, 0, len(m.terminals)+len(m.desktops))
	for c := range m.terminals {
		channels = append(channels, c)
	}
	for c := range m.desktops {
		channels = append(channels, c)
	}
	m.mu.Unlock()
	for _, c := range channels {
		m.closeTerminal(c)
		m.closeDesktop(c)
	}
}

// --- Shell sessions -------------------------------------------------------

type terminalSession struct {
	stdinCh  chan []byte
	resizeCh chan [2]uint16
	cancel   context.CancelFunc
	done     chan struct{} // closed once the session goroutine has torn down
}

func (m *Manager) openTerminal(f protocol.Frame) {
	req := protocol.DefaultTerminalOpenRequest()
	if len(f.Payload) > 0 {
		if err := f.ParseJSON(&req); err != nil {
			logger.Warn("malformed TERMINAL_OPEN", "error", err)
			return
		}
	}

	m.closeTerminal(f.Channel) // a second OPEN tears down the existing session first

	pty, err := m.factories.NewPTY()
	if err != nil {
		logger.Warn("pty factory failed", "error", err)
		m.emitTerminalClose(f.Channel)
		return
	}
	if err := pty.Spawn(req.Shell, int(req.Cols), int(req.Rows)); err != nil {
		logger.Warn("pty spawn failed", "error", err)
		m.emitTerminalClose(f.Channel)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &terminalSession{
		stdinCh:  make(chan []byte, dataQueueSize),
		resizeCh: make(chan [2]uint16, resizeQueueSize),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.mu.Lock()
	m.terminals[f.Channel] = sess
	m.mu.Unlock()

	go m.runTerminalSession(ctx, f.Channel, pty, sess)
}

func (m *Manager) closeTerminal(channel uint16) {
	m.mu.Lock()
	sess, ok := m.terminals[channel]
	if ok {
		delete(m.terminals, channel)
	}
	m.mu.Unlock()
	if ok {
		sess.cancel()
		<-sess.done
	}
}

func (m *Manager) terminalStdin(channel uint16, data []byte) {
	m.mu.Lock()
	sess, ok := m.terminals[channel]
	m.mu.Unlock()
	if !ok {
		logger.Debug("TERMINAL_DATA for unknown channel", "channel", channel)
		return
	}
	select {
	case sess.stdinCh <- data:
	default:
		logger.Warn("terminal stdin queue full, dropping frame", "channel", channel)
	}
}

func (m *Manager) terminalResize(channel uint16, payload []byte) {
	cols, rows, err := protocol.DecodeTerminalResize(payload)
	if err != nil {
		logger.Warn("malformed TERMINAL_RESIZE", "error", err)
		return
	}
	m.mu.Lock()
	sess, ok := m.terminals[channel]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case sess.resizeCh <- [2]uint16{cols, rows}:
	default:
		logger.Warn("terminal resize queue full, dropping frame", "channel", channel)
	}
}

func (m *Manager) runTerminalSession(ctx context.Context, channel uint16, pty platform.PTY, sess *terminalSession) {
	defer close(sess.done)
	outCh := make(chan []byte, dataQueueSize)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer close(outCh)
		buf := make([]byte, 32*1024)
		for {
			n, err := pty.ReadStdout(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case outCh <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case data, ok := <-outCh:
			if !ok {
				break loop
			}
			if err := m.sink.Send(protocol.TerminalData(channel, data)); err != nil {
				logger.Warn("send TERMINAL_DATA failed", "error", err)
			}
		case data := <-sess.stdinCh:
			if _, err := pty.WriteStdin(data); err != nil {
				break loop
			}
		case size := <-sess.resizeCh:
			_ = pty.Resize(int(size[0]), int(size[1]))
		}
		if !pty.IsAlive() {
			break loop
		}
	}

	// Closing the pty unblocks the reader goroutine's in-flight ReadStdout call.
	pty.Close()
	<-readerDone
	m.emitTerminalClose(channel)
}

func (m *Manager) emitTerminalClose(channel uint16) {
	m.mu.Lock()
	delete(m.terminals, channel)
	m.mu.Unlock()
	if err := m.sink.Send(protocol.New(protocol.OpTerminalClose, channel, 0, nil)); err != nil {
		logger.Warn("send TERMINAL_CLOSE failed", "error", err)
	}
}

// --- Screen sessions --------------------------------------------------------

type desktopSession struct {
	inputCh   chan protocol.InputEvent
	qualityCh chan int
	cancel    context.CancelFunc
	done      chan struct{} // closed once the session goroutine has torn down
}

func (m *Manager) openDesktop(f protocol.Frame) {
	req := protocol.DefaultDesktopOpenRequest()
	if len(f.Payload) > 0 {
		if err := f.ParseJSON(&req); err != nil {
			logger.Warn("malformed DESKTOP_OPEN", "error", err)
			return
		}
	}

	m.closeDesktop(f.Channel)

	screen, err := m.factories.NewScreenCapture()
	if err != nil {
		logger.Warn("screen capture factory failed", "error", err)
		m.emitDesktopClose(f.Channel)
		return
	}
	input, err := m.factories.NewInput()
	if err != nil {
		logger.Warn("input injector factory failed", "error", err)
		m.emitDesktopClose(f.Channel)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &desktopSession{
		inputCh:   make(chan protocol.InputEvent, dataQueueSize),
		qualityCh: make(chan int, qualityQueueSize),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.mu.Lock()
	m.desktops[f.Channel] = sess
	m.mu.Unlock()

	go m.runDesktopSession(ctx, f.Channel, screen, input, sess, req)
}

func (m *Manager) closeDesktop(channel uint16) {
	m.mu.Lock()
	sess, ok := m.desktops[channel]
	if ok {
		delete(m.desktops, channel)
	}
	m.mu.Unlock()
	if ok {
		sess.cancel()
		<-sess.done
	}
}

func (m *Manager) desktopInput(channel uint16, payload []byte) {
	ev, err := protocol.DecodeInput(payload)
	if err != nil {
		logger.Warn("malformed DESKTOP_INPUT", "error", err)
		return
	}
	m.mu.Lock()
	sess, ok := m.desktops[channel]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case sess.inputCh <- ev:
	default:
		logger.Warn("desktop input queue full, dropping event", "channel", channel)
	}
}

func (m *Manager) desktopQuality(channel uint16, payload []byte) {
	var q protocol.DesktopQuality
	if err := (protocol.Frame{Payload: payload}).ParseJSON(&q); err != nil {
		logger.Warn("malformed DESKTOP_QUALITY", "error", err)
		return
	}
	m.mu.Lock()
	sess, ok := m.desktops[channel]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case sess.qualityCh <- q.Quality:
	default:
		logger.Warn("desktop quality queue full, dropping event", "channel", channel)
	}
}

func (m *Manager) runDesktopSession(ctx context.Context, channel uint16, screen platform.ScreenCapture, input platform.InputInjector, sess *desktopSession, req protocol.DesktopOpenRequest) {
	defer close(sess.done)
	defer screen.Close()
	defer input.Close()

	width, height, err := screen.Init()
	if err != nil {
		logger.Warn("screen init failed", "error", err)
		m.emitDesktopClose(channel)
		return
	}

	if err := m.sink.Send(protocol.DesktopResize(channel, uint16(width), uint16(height))); err != nil {
		logger.Warn("send DESKTOP_RESIZE failed", "error", err)
	}

	encoder := desktop.NewEncoder(width, height, req.Quality)
	fps := req.FPS
	if fps <= 0 {
		fps = 1
	}
	ticker := time.NewTicker(time.Duration(1000/fps) * time.Millisecond)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev := <-sess.inputCh:
			applyInput(input, ev)
		case q := <-sess.qualityCh:
			encoder.SetQuality(q)
			encoder.RequestKeyframe()
		case <-ticker.C:
			captureCtx, cancel := context.WithTimeout(ctx, captureTimeout)
			frame, err := screen.CaptureFrame(captureCtx)
			cancel()
			if err != nil {
				continue // miss: empty tile set, try again next tick
			}
			tiles, err := encoder.EncodeFrame(frame.Data, frame.Stride)
			if err != nil {
				logger.Warn("tile encode failed", "error", err)
				continue
			}
			for _, tile := range tiles {
				payload := protocol.EncodeDesktopFrame(protocol.DesktopFrameHeader{
					X: tile.X, Y: tile.Y, W: tile.W, H: tile.H,
					Encoding: protocol.EncodingJPEG, Flags: tile.Flags,
				}, tile.Data)
				if err := m.sink.Send(protocol.Session(protocol.OpDesktopFrame, channel, 0, payload)); err != nil {
					logger.Warn("send DESKTOP_FRAME failed", "error", err)
				}
			}
		}
	}

	m.emitDesktopClose(channel)
}

func (m *Manager) emitDesktopClose(channel uint16) {
	m.mu.Lock()
	delete(m.desktops, channel)
	m.mu.Unlock()
	if err := m.sink.Send(protocol.New(protocol.OpDesktopClose, channel, 0, nil)); err != nil {
		logger.Warn("send DESKTOP_CLOSE failed", "error", err)
	}
}

func applyInput(injector platform.InputInjector, ev protocol.InputEvent) {
	var err error
	switch ev.Subtype {
	case protocol.InputMouseMove:
		err = injector.MouseMove(int(ev.X), int(ev.Y))
	case protocol.InputMouseButton:
		err = injector.MouseButton(uint8(ev.Button), ev.Action == protocol.ActionPress)
	case protocol.InputMouseScroll:
		err = injector.MouseScroll(ev.DX, ev.DY)
	case protocol.InputKeyEvent:
		err = injector.KeyPress(ev.Scancode, ev.Action == protocol.ActionPress, ev.Modifiers)
	case protocol.InputTypeText:
		err = injector.TypeText(ev.Text)
	default:
		err = fmt.Errorf("unhandled input subtype 0x%02x", ev.Subtype)
	}
	if err != nil {
		logger.Debug("input injection failed", "error", err)
	}
}
