//go:build linux || darwin

package platform

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

type unixPTY struct {
	cmd *exec.Cmd
	f   *os.File
}

func newPTY() (PTY, error) { return &unixPTY{}, nil }

func (p *unixPTY) Spawn(shell string, cols, rows int) error {
	if shell == "" {
		shell = os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
	}
	p.cmd = exec.Command(shell)
	f, err := pty.StartWithSize(p.cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return fmt.Errorf("spawn pty: %w", err)
	}
	p.f = f
	return nil
}

func (p *unixPTY) WriteStdin(b []byte) (int, error) { return p.f.Write(b) }
func (p *unixPTY) ReadStdout(b []byte) (int, error) { return p.f.Read(b) }

func (p *unixPTY) Resize(cols, rows int) error {
	return pty.Setsize(p.f, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

func (p *unixPTY) IsAlive() bool {
	if p.cmd == nil || p.cmd.Process == nil {
		return false
	}
	return p.cmd.ProcessState == nil
}

func (p *unixPTY) Close() error {
	if p.f != nil {
		_ = p.f.Close()
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return nil
}
