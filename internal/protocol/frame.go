package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// HeaderSize is the fixed size, in bytes, of a frame header.
const HeaderSize = 9

// MaxPayloadSize is the payload cap Decode checks a declared length against,
// shared with the IPC framing in package ipc. The 16-bit length field itself
// limits a frame to 65535 payload bytes; Encode does not check the payload
// length and writes only its low 16 bits.
const MaxPayloadSize = 16 * 1024 * 1024

// ErrPayloadTooLarge is returned by Decode when a header declares a length
// beyond MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("protocol: payload exceeds maximum size")

// Frame is one unit of wire transport: a 9-byte header plus an opaque payload.
type Frame struct {
	Type      Opcode
	Channel   uint16
	RequestID uint32
	Payload   []byte
}

// New builds a frame with an explicit channel and request id.
func New(op Opcode, channel uint16, requestID uint32, payload []byte) Frame {
	return Frame{Type: op, Channel: channel, RequestID: requestID, Payload: payload}
}

// Control builds a channel-0 frame, the shape used for auth, heartbeat,
// command, file, and telemetry traffic.
func Control(op Opcode, requestID uint32, payload []byte) Frame {
	return New(op, ControlChannel, requestID, payload)
}

// ControlJSON marshals v and wraps it in a control-plane frame.
func ControlJSON(op Opcode, requestID uint32, v any) (Frame, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("protocol: marshal payload: %w", err)
	}
	return Control(op, requestID, payload), nil
}

// Session builds a frame addressed to a non-zero virtual channel.
func Session(op Opcode, channel uint16, requestID uint32, payload []byte) Frame {
	return New(op, channel, requestID, payload)
}

// ParseJSON unmarshals the frame payload into v.
func (f Frame) ParseJSON(v any) error {
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("protocol: unmarshal payload: %w", err)
	}
	return nil
}

// Encode serializes the frame to its wire representation.
func (f Frame) Encode() []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	f.EncodeInto(buf)
	return buf
}

// EncodeInto writes the frame into buf, which must be at least
// HeaderSize+len(f.Payload) bytes.
func (f Frame) EncodeInto(buf []byte) {
	buf[0] = byte(f.Type)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(f.Payload)))
	binary.LittleEndian.PutUint16(buf[3:5], f.Channel)
	binary.LittleEndian.PutUint32(buf[5:9], f.RequestID)
	copy(buf[9:], f.Payload)
}

// Decode attempts to parse one frame from the front of buf. It returns
// ok=false with no error when buf does not yet hold a complete frame.
// consumed is the number of leading bytes the caller should drop from buf
// on success.
func Decode(buf []byte) (frame Frame, consumed int, ok bool, err error) {
	if len(buf) < HeaderSize {
		return Frame{}, 0, false, nil
	}
	length := binary.LittleEndian.Uint16(buf[1:3])
	if int(length) > MaxPayloadSize {
		return Frame{}, 0, false, ErrPayloadTooLarge
	}
	total := HeaderSize + int(length)
	if len(buf) < total {
		return Frame{}, 0, false, nil
	}
	payload := make([]byte, length)
	copy(payload, buf[HeaderSize:total])
	frame = Frame{
		Type:      Opcode(buf[0]),
		Channel:   binary.LittleEndian.Uint16(buf[3:5]),
		RequestID: binary.LittleEndian.Uint32(buf[5:9]),
		Payload:   payload,
	}
	return frame, total, true, nil
}

// Reassembler accumulates bytes from a streaming transport and yields
// complete frames, carrying any trailing partial frame across calls.
type Reassembler struct {
	buf []byte
}

// Feed appends data to the internal buffer and decodes as many complete
// frames as are available.
func (r *Reassembler) Feed(data []byte) ([]Frame, error) {
	r.buf = append(r.buf, data...)
	var frames []Frame
	for {
		f, consumed, ok, err := Decode(r.buf)
		if err != nil {
			return frames, err
		}
		if !ok {
			break
		}
		frames = append(frames, f)
		r.buf = r.buf[consumed:]
	}
	// Avoid retaining the backing array of a large, fully-drained buffer.
	if len(r.buf) == 0 {
		r.buf = nil
	}
	return frames, nil
}

// Heartbeat builds an unsolicited HEARTBEAT control frame.
func Heartbeat() Frame {
	return Control(OpHeartbeat, 0, nil)
}

// HeartbeatAck builds the inline reply to a HEARTBEAT frame.
func HeartbeatAck() Frame {
	return Control(OpHeartbeatAck, 0, nil)
}

// TerminalData wraps raw PTY output/input bytes for a session channel.
func TerminalData(channel uint16, data []byte) Frame {
	return Session(OpTerminalData, channel, 0, data)
}

// TerminalResize encodes cols/rows into a TERMINAL_RESIZE payload.
func TerminalResize(channel uint16, cols, rows uint16) Frame {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:2], cols)
	binary.LittleEndian.PutUint16(payload[2:4], rows)
	return Session(OpTerminalResize, channel, 0, payload)
}

// DesktopResize encodes width/height into a DESKTOP_RESIZE payload.
func DesktopResize(channel uint16, width, height uint16) Frame {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:2], width)
	binary.LittleEndian.PutUint16(payload[2:4], height)
	return Session(OpDesktopResize, channel, 0, payload)
}

// DecodeDesktopResize parses a DESKTOP_RESIZE payload.
func DecodeDesktopResize(payload []byte) (width, height uint16, err error) {
	if len(payload) < 4 {
		return 0, 0, fmt.Errorf("protocol: desktop resize payload too short")
	}
	return binary.LittleEndian.Uint16(payload[0:2]), binary.LittleEndian.Uint16(payload[2:4]), nil
}

// DecodeTerminalResize parses a TERMINAL_RESIZE payload.
func DecodeTerminalResize(payload []byte) (cols, rows uint16, err error) {
	if len(payload) < 4 {
		return 0, 0, fmt.Errorf("protocol: terminal resize payload too short")
	}
	return binary.LittleEndian.Uint16(payload[0:2]), binary.LittleEndian.Uint16(payload[2:4]), nil
}
