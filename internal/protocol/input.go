package protocol

import (
	"encoding/binary"
	"fmt"
)

// MouseButton identifies which mouse button an input event refers to.
type MouseButton uint8

const (
	MouseLeft   MouseButton = 0
	MouseRight  MouseButton = 1
	MouseMiddle MouseButton = 2
)

// InputAction is press/release for both mouse buttons and keys.
type InputAction uint8

const (
	ActionPress   InputAction = 0
	ActionRelease InputAction = 1
)

// InputEvent is the decoded form of a DESKTOP_INPUT payload.
type InputEvent struct {
	Subtype byte

	// MouseMove
	X, Y uint16

	// MouseButton
	Button MouseButton
	Action InputAction

	// MouseScroll
	DX, DY int16

	// KeyEvent
	Scancode  uint16
	Modifiers uint8

	// TypeText
	Text string
}

// DecodeInput parses a DESKTOP_INPUT payload into an InputEvent.
func DecodeInput(payload []byte) (InputEvent, error) {
	if len(payload) < 1 {
		return InputEvent{}, fmt.Errorf("protocol: empty desktop input payload")
	}
	subtype := payload[0]
	body := payload[1:]
	ev := InputEvent{Subtype: subtype}

	switch subtype {
	case InputMouseMove:
		if len(body) < 4 {
			return InputEvent{}, fmt.Errorf("protocol: mouse_move payload too short")
		}
		ev.X = binary.LittleEndian.Uint16(body[0:2])
		ev.Y = binary.LittleEndian.Uint16(body[2:4])

	case InputMouseButton:
		if len(body) < 2 {
			return InputEvent{}, fmt.Errorf("protocol: mouse_button payload too short")
		}
		ev.Button = MouseButton(body[0])
		ev.Action = InputAction(body[1])

	case InputMouseScroll:
		if len(body) < 4 {
			return InputEvent{}, fmt.Errorf("protocol: mouse_scroll payload too short")
		}
		ev.DX = int16(binary.LittleEndian.Uint16(body[0:2]))
		ev.DY = int16(binary.LittleEndian.Uint16(body[2:4]))

	case InputKeyEvent:
		if len(body) < 3 {
			return InputEvent{}, fmt.Errorf("protocol: key_event payload too short")
		}
		ev.Scancode = binary.LittleEndian.Uint16(body[0:2])
		ev.Action = InputAction(body[2])
		if len(body) >= 4 {
			ev.Modifiers = body[3]
		}

	case InputTypeText:
		ev.Text = string(body)

	default:
		return InputEvent{}, fmt.Errorf("protocol: unknown desktop input subtype 0x%02x", subtype)
	}
	return ev, nil
}

// EncodeMouseMove builds a MOUSE_MOVE DESKTOP_INPUT payload.
func EncodeMouseMove(x, y uint16) []byte {
	out := make([]byte, 5)
	out[0] = InputMouseMove
	binary.LittleEndian.PutUint16(out[1:3], x)
	binary.LittleEndian.PutUint16(out[3:5], y)
	return out
}

// EncodeMouseButton builds a MOUSE_BUTTON DESKTOP_INPUT payload.
func EncodeMouseButton(btn MouseButton, action InputAction) []byte {
	return []byte{InputMouseButton, byte(btn), byte(action)}
}

// EncodeKeyEvent builds a KEY_EVENT DESKTOP_INPUT payload.
func EncodeKeyEvent(scancode uint16, action InputAction, mods uint8) []byte {
	out := make([]byte, 5)
	out[0] = InputKeyEvent
	binary.LittleEndian.PutUint16(out[1:3], scancode)
	out[3] = byte(action)
	out[4] = mods
	return out
}
