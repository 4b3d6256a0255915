// Package connector implements the outbound connector (C2): it dials the
// management server over a single WebSocket, authenticates with a bearer
// session token, keeps the connection alive with a heartbeat, and
// reconnects with jittered exponential backoff on failure. It is the
// Go-native, binary-framed counterpart of the teacher's internal/ws
// reconnect-loop client, swapped from the teacher's JSON-envelope protocol
// to this agent's 9-byte-header frame protocol.
package connector

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/nodecastle/edgeagent/internal/logger"
	"github.com/nodecastle/edgeagent/internal/protocol"
)

const (
	authTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second
	outboundQueue  = 256
	readLimitBytes = protocol.MaxPayloadSize + protocol.HeaderSize

	// reconnectLogInterval bounds how often reconnect/disconnect telemetry is
	// logged, so a server that is down for hours doesn't flood the log with
	// one line per backoff attempt.
	reconnectLogInterval = 30 * time.Second
	reconnectLogBurst    = 1
)

// Config carries everything the connector needs to dial and authenticate.
type Config struct {
	ServerURL    string
	SessionToken string
	Hostname     string
	OS           string
	Arch         string
	AgentVersion string
	DeviceType   string

	HeartbeatInterval  time.Duration
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
}

// EventKind discriminates an Event.
type EventKind int

const (
	EventAuthenticated EventKind = iota
	EventMessage
	EventDisconnected
)

// Event is delivered to the caller over the channel returned by Events.
type Event struct {
	Kind         EventKind
	DeviceID     string
	SessionToken string
	Frame        protocol.Frame
	Err          error
}

// Connector owns one logical connection to the server, reconnecting
// transparently underneath. Send and Events are safe for concurrent use.
type Connector struct {
	cfg Config

	events   chan Event
	outbound chan protocol.Frame

	mu   sync.Mutex
	conn *websocket.Conn

	reconnectLogLimit *rate.Limiter

	timingsMu     sync.RWMutex
	heartbeat     time.Duration
	reconnectBase time.Duration
	reconnectMax  time.Duration
}

// New creates a connector. Call Run to start the reconnect loop.
func New(cfg Config) *Connector {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 60 * time.Second
	}
	return &Connector{
		cfg:               cfg,
		events:            make(chan Event, 64),
		outbound:          make(chan protocol.Frame, outboundQueue),
		reconnectLogLimit: rate.NewLimiter(rate.Every(reconnectLogInterval), reconnectLogBurst),
		heartbeat:         cfg.HeartbeatInterval,
		reconnectBase:     cfg.ReconnectBaseDelay,
		reconnectMax:      cfg.ReconnectMaxDelay,
	}
}

// UpdateTimings applies a freshly reloaded config's heartbeat interval and
// reconnect backoff bounds to a running connector, letting a config hot
// reload take effect without restarting the process. Zero values leave the
// corresponding setting unchanged.
func (c *Connector) UpdateTimings(heartbeat, reconnectBase, reconnectMax time.Duration) {
	c.timingsMu.Lock()
	defer c.timingsMu.Unlock()
	if heartbeat > 0 {
		c.heartbeat = heartbeat
	}
	if reconnectBase > 0 {
		c.reconnectBase = reconnectBase
	}
	if reconnectMax > 0 {
		c.reconnectMax = reconnectMax
	}
}

func (c *Connector) currentTimings() (heartbeat, reconnectBase, reconnectMax time.Duration) {
	c.timingsMu.RLock()
	defer c.timingsMu.RUnlock()
	return c.heartbeat, c.reconnectBase, c.reconnectMax
}

// logReconnect emits a reconnect/disconnect log line, throttled so a server
// that stays unreachable for a long stretch doesn't flood the log with one
// line per backoff attempt.
func (c *Connector) logReconnect(msg string, args ...any) {
	if c.reconnectLogLimit.Allow() {
		logger.Warn(msg, args...)
	}
}

// Events returns the channel of connection lifecycle and inbound-message events.
func (c *Connector) Events() <-chan Event { return c.events }

// Send enqueues a frame for delivery to the server. It never blocks; a full
// outbound queue drops the frame and logs a warning, matching the
// try-send/drop policy used by the session queues.
func (c *Connector) Send(f protocol.Frame) error {
	select {
	case c.outbound <- f:
		return nil
	default:
		logger.Warn("connector outbound queue full, dropping frame", "opcode", f.Type.String())
		return fmt.Errorf("connector: outbound queue full")
	}
}

// Run drives the reconnect loop until ctx is cancelled.
func (c *Connector) Run(ctx context.Context) error {
	attempt := 0
	for {
		_, base, max := c.currentTimings()
		delay := reconnectDelay(base, max, attempt)
		if attempt > 0 {
			c.logReconnect("reconnecting", "delay", delay, "attempt", attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.connectAndRun(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.logReconnect("connector: connection error", "error", err)
			attempt++
		} else {
			attempt = 0
		}

		select {
		case c.events <- Event{Kind: EventDisconnected, Err: err}:
		default:
		}
	}
}

func (c *Connector) connectAndRun(ctx context.Context) error {
	logger.Info("connector: dialing", "url", c.cfg.ServerURL)
	conn, _, err := websocket.Dial(ctx, c.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(readLimitBytes)
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		conn.CloseNow()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	authReq, err := protocol.ControlJSON(protocol.OpAuthRequest, 0, protocol.AuthRequest{
		SessionToken: c.cfg.SessionToken,
		OS:           c.cfg.OS,
		Arch:         c.cfg.Arch,
		Hostname:     c.cfg.Hostname,
		AgentVersion: c.cfg.AgentVersion,
		DeviceType:   c.cfg.DeviceType,
	})
	if err != nil {
		return fmt.Errorf("encode auth request: %w", err)
	}
	if err := c.writeFrame(ctx, conn, authReq); err != nil {
		return fmt.Errorf("send auth request: %w", err)
	}

	frameCh := make(chan protocol.Frame, 64)
	errCh := make(chan error, 1)
	readerCtx, cancelReader := context.WithCancel(ctx)
	defer cancelReader()
	go readLoop(readerCtx, conn, frameCh, errCh)

	deviceID, sessionToken, err := awaitAuth(readerCtx, frameCh, errCh)
	if err != nil {
		return err
	}

	select {
	case c.events <- Event{Kind: EventAuthenticated, DeviceID: deviceID, SessionToken: sessionToken}:
	case <-ctx.Done():
		return ctx.Err()
	}

	return c.messageLoop(ctx, conn, frameCh, errCh)
}

func awaitAuth(ctx context.Context, frameCh <-chan protocol.Frame, errCh <-chan error) (deviceID, sessionToken string, err error) {
	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-timeout.C:
			return "", "", fmt.Errorf("auth timed out after %s", authTimeout)
		case err := <-errCh:
			return "", "", fmt.Errorf("connection closed during auth: %w", err)
		case f := <-frameCh:
			if f.Type != protocol.OpAuthResponse {
				continue
			}
			var resp protocol.AuthResponse
			if err := f.ParseJSON(&resp); err != nil {
				return "", "", fmt.Errorf("decode auth response: %w", err)
			}
			if !resp.Success {
				return "", "", fmt.Errorf("authentication rejected: %s", resp.Error)
			}
			return resp.DeviceID, resp.SessionToken, nil
		}
	}
}

func (c *Connector) messageLoop(ctx context.Context, conn *websocket.Conn, frameCh <-chan protocol.Frame, errCh <-chan error) error {
	interval, _, _ := c.currentTimings()
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()
	lastPong := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-errCh:
			return fmt.Errorf("read: %w", err)

		case f := <-frameCh:
			switch f.Type {
			case protocol.OpHeartbeatAck:
				lastPong = time.Now()
			case protocol.OpHeartbeat:
				if err := c.writeFrame(ctx, conn, protocol.HeartbeatAck()); err != nil {
					return err
				}
			default:
				select {
				case c.events <- Event{Kind: EventMessage, Frame: f}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

		case out := <-c.outbound:
			if err := c.writeFrame(ctx, conn, out); err != nil {
				return err
			}

		case <-heartbeat.C:
			// Pick up a config hot reload's new heartbeat interval before
			// evaluating the timeout, so a just-widened interval doesn't
			// immediately read as a stale connection.
			if current, _, _ := c.currentTimings(); current != interval {
				interval = current
				heartbeat.Reset(interval)
			}
			timeout := interval * 3
			if time.Since(lastPong) > timeout {
				return fmt.Errorf("heartbeat timeout after %s", timeout)
			}
			if err := c.writeFrame(ctx, conn, protocol.Heartbeat()); err != nil {
				return err
			}
		}
	}
}

func (c *Connector) writeFrame(ctx context.Context, conn *websocket.Conn, f protocol.Frame) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageBinary, f.Encode())
}

func readLoop(ctx context.Context, conn *websocket.Conn, frameCh chan<- protocol.Frame, errCh chan<- error) {
	var reassembler protocol.Reassembler
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case errCh <- err:
			case <-ctx.Done():
			}
			return
		}
		frames, err := reassembler.Feed(data)
		if err != nil {
			select {
			case errCh <- err:
			case <-ctx.Done():
			}
			return
		}
		for _, f := range frames {
			select {
			case frameCh <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}

// reconnectDelay mirrors the reference implementation's policy: the first
// attempt reconnects immediately, then delay grows as base*2^(attempt-1)
// capped at max, with ±25% jitter, the jittered result clamped to
// [base, max].
func reconnectDelay(baseDelay, maxDelay time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	base := baseDelay.Seconds()
	max := maxDelay.Seconds()
	delay := base * math.Pow(2, float64(attempt-1))
	if delay > max {
		delay = max
	}
	jitter := delay * 0.25 * (2*rand.Float64() - 1)
	result := delay + jitter
	if result < base {
		result = base
	}
	if result > max {
		result = max
	}
	return time.Duration(result * float64(time.Second))
}
