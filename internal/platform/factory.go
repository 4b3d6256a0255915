package platform

// NewPTY resolves the OS-appropriate PTY backend.
func NewPTY() (PTY, error) { return newPTY() }

// NewScreenCapture resolves the OS-appropriate screen capture backend.
func NewScreenCapture() (ScreenCapture, error) { return newScreenCapture() }

// NewInputInjector resolves the OS-appropriate input injection backend.
func NewInputInjector() (InputInjector, error) { return newInputInjector() }

// NewFilesystem returns the local filesystem collaborator. Filesystem
// access is implemented directly on the standard library (os, io/fs) since
// it needs no OS-specific backend selection.
func NewFilesystem() Filesystem { return newOSFilesystem() }

// NewSessionPresence resolves the OS-appropriate session-presence backend.
func NewSessionPresence() (SessionPresence, error) { return newSessionPresence() }

// NewSystemControl resolves the OS-appropriate system-control backend.
func NewSystemControl() (SystemControl, error) { return newSystemControl() }
