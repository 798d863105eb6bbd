package dullahan

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// NotifyPipe is a self-pipe used to wake the event loop's poll() call from
// contexts that cannot touch loop state directly, such as signal handlers.
// Both ends are non-blocking; signal() and drain() never block the caller.
type NotifyPipe struct {
	readFD  int
	writeFD int
}

// NewNotifyPipe creates a self-pipe with both ends set non-blocking.
func NewNotifyPipe() (*NotifyPipe, error) {
	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("notifypipe: pipe2: %w", err)
	}
	return &NotifyPipe{readFD: fds[0], writeFD: fds[1]}, nil
}

// FD returns the read end for inclusion in a poll set.
func (p *NotifyPipe) FD() int {
	return p.readFD
}

// Signal wakes the event loop. It may be called any number of times per
// tick; the pipe already carries a pending wake after the first write, so
// EAGAIN (the pipe buffer is full of pending 1-byte wakeups) is not an error.
func (p *NotifyPipe) Signal() {
	var b [1]byte
	b[0] = 1
	_, err := unix.Write(p.writeFD, b[:])
	if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
		// Best effort: nothing sensible to do with a self-pipe write failure
		// other than drop it; the loop will still wake on the next real event.
		_ = err
	}
}

// Drain reads until the pipe is empty. Call once per tick after poll
// reports the read end readable.
func (p *NotifyPipe) Drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.readFD, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Close releases both ends of the pipe.
func (p *NotifyPipe) Close() error {
	err1 := unix.Close(p.readFD)
	err2 := unix.Close(p.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}
