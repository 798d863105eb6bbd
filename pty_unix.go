package dullahan

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// childProcess wraps the spawned shell's PTY master and command handle,
// grounded on cemoody-c3/pty.go's pty.StartWithSize usage, generalized
// here from tmux-session attachment to direct shell ownership per
// spec.md §3/§4.5.
type childProcess struct {
	ptmx *os.File
	cmd  *exec.Cmd
}

// spawnShell starts shellPath (a detected login shell, spec.md §6) with the
// single argument "-l", attached to a new PTY sized cols x rows, with
// TERM=xterm-256color added to the inherited environment.
func spawnShell(shellPath string, cols, rows int) (*childProcess, error) {
	cmd := exec.Command(shellPath, "-l")
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return nil, fmt.Errorf("pty: start %s: %w", shellPath, err)
	}
	return &childProcess{ptmx: ptmx, cmd: cmd}, nil
}

// resize applies a new window size to the PTY (TIOCSWINSZ).
func (c *childProcess) resize(cols, rows int) error {
	return pty.Setsize(c.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// signalTerm sends SIGTERM to the child, the first step of the
// terminate→kill escalation (spec.md §4.5: 500ms grace, then SIGKILL).
func (c *childProcess) signalTerm() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Signal(syscall.SIGTERM)
}

// signalKill sends SIGKILL, the escalation after the grace period expires.
func (c *childProcess) signalKill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Signal(syscall.SIGKILL)
}

// exited reports whether the child has already been reaped, non-blocking.
func (c *childProcess) exited() bool {
	if c.cmd.ProcessState != nil {
		return true
	}
	var ws syscall.WaitStatus
	pid, err := syscall.Wait4(c.cmd.Process.Pid, &ws, syscall.WNOHANG, nil)
	return err == nil && pid == c.cmd.Process.Pid
}

// close releases the PTY master fd.
func (c *childProcess) close() error {
	return c.ptmx.Close()
}

const (
	terminateGrace = 500 * time.Millisecond
	killGrace      = 1 * time.Second
)
