package platform

import (
	"context"
	"fmt"
)

// Screen capture and input injection are genuinely OS-specific (X11/Wayland,
// CoreGraphics, DXGI/GDI) and are named collaborators per the specification,
// not part of the portable core. The stub below satisfies the interface so
// the session multiplexer and its tests can inject a fake; a real per-OS
// backend is out of scope here, matching how the reference implementation
// itself leaves its macOS capture/input backends unimplemented.

type stubScreenCapture struct{}

func newScreenCapture() (ScreenCapture, error) { return stubScreenCapture{}, nil }

func (stubScreenCapture) Init() (int, int, error) {
	return 0, 0, fmt.Errorf("platform: screen capture not implemented on this build")
}
func (stubScreenCapture) CaptureFrame(ctx context.Context) (Frame, error) {
	return Frame{}, fmt.Errorf("platform: screen capture not implemented on this build")
}
func (stubScreenCapture) Dimensions() (int, int) { return 0, 0 }
func (stubScreenCapture) Close() error           { return nil }

type stubInputInjector struct{}

func newInputInjector() (InputInjector, error) { return stubInputInjector{}, nil }

func (stubInputInjector) MouseMove(x, y int) error                       { return nil }
func (stubInputInjector) MouseButton(btn uint8, press bool) error        { return nil }
func (stubInputInjector) MouseScroll(dx, dy int16) error                 { return nil }
func (stubInputInjector) KeyPress(scancode uint16, press bool, mods uint8) error { return nil }
func (stubInputInjector) TypeText(s string) error                        { return nil }
func (stubInputInjector) Close() error                                   { return nil }
