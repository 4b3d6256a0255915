// Package ipc implements the length-prefixed local transport endpoint
// (C8) used to split the agent into a privileged service process and an
// unprivileged per-session helper: a 4-byte little-endian total-length
// prefix followed by one encoded protocol frame, duplexed over a Unix
// domain socket (or, on Windows, a named pipe — left as a named but
// unimplemented collaborator, matching the platform package's pattern,
// since no named-pipe library appears anywhere in the example pack).
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/nodecastle/edgeagent/internal/protocol"
)

// lengthPrefixSize is the size of the u32 LE total_len header.
const lengthPrefixSize = 4

// maxFrameSize bounds total_len, matching the wire protocol's payload cap.
const maxFrameSize = protocol.HeaderSize + protocol.MaxPayloadSize

// Conn wraps a duplex byte stream with length-prefixed protocol framing.
// Writes are serialized; reads are only ever called from one goroutine by
// convention (the owning read loop), matching the wire connector's usage.
type Conn struct {
	rw      io.ReadWriteCloser
	writeMu sync.Mutex
}

// New wraps rw (a net.Conn to a Unix socket or named pipe) in IPC framing.
func New(rw io.ReadWriteCloser) *Conn {
	return &Conn{rw: rw}
}

// WriteFrame writes one length-prefixed frame. Safe for concurrent use.
func (c *Conn) WriteFrame(f protocol.Frame) error {
	encoded := f.Encode()
	if len(encoded) > maxFrameSize {
		return fmt.Errorf("ipc: frame of %d bytes exceeds max %d", len(encoded), maxFrameSize)
	}
	buf := make([]byte, lengthPrefixSize+len(encoded))
	binary.LittleEndian.PutUint32(buf[:lengthPrefixSize], uint32(len(encoded)))
	copy(buf[lengthPrefixSize:], encoded)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.rw.Write(buf)
	return err
}

// ReadFrame blocks until one complete length-prefixed frame has arrived.
func (c *Conn) ReadFrame() (protocol.Frame, error) {
	var lengthBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(c.rw, lengthBuf[:]); err != nil {
		return protocol.Frame{}, err
	}
	total := binary.LittleEndian.Uint32(lengthBuf[:])
	if total == 0 {
		return protocol.Frame{}, fmt.Errorf("ipc: zero-length frame")
	}
	if total > maxFrameSize {
		return protocol.Frame{}, fmt.Errorf("ipc: frame of %d bytes exceeds max %d", total, maxFrameSize)
	}

	body := make([]byte, total)
	if _, err := io.ReadFull(c.rw, body); err != nil {
		return protocol.Frame{}, err
	}
	frame, consumed, ok, err := protocol.Decode(body)
	if err != nil {
		return protocol.Frame{}, err
	}
	if !ok || consumed != len(body) {
		return protocol.Frame{}, fmt.Errorf("ipc: malformed frame body")
	}
	return frame, nil
}

// Close closes the underlying transport.
func (c *Conn) Close() error { return c.rw.Close() }
