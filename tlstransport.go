package dullahan

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// HandshakeStatus is the result of one non-blocking TLS handshake step.
type HandshakeStatus int

const (
	HandshakeWantRead HandshakeStatus = iota
	HandshakeWantWrite
	HandshakeDone
	HandshakeFatal
)

// TLSHandshake drives a non-blocking TLS server handshake over a raw
// socket fd. Per spec.md §4.2: "a handshake object is created bound to the
// TCP fd; advance() drives one non-blocking handshake step".
type TLSHandshake struct {
	fd     int
	conn   *fdConn
	tls    *tls.Conn
	err    error
	config *tls.Config
}

// NewTLSHandshake creates a handshake object bound to fd. TCP_NODELAY must
// already be set by the caller before construction, per spec.md §4.2.
func NewTLSHandshake(fd int, config *tls.Config) *TLSHandshake {
	fc := &fdConn{fd: fd}
	return &TLSHandshake{
		fd:     fd,
		conn:   fc,
		tls:    tls.Server(fc, config),
		config: config,
	}
}

// Advance drives one non-blocking handshake step.
func (h *TLSHandshake) Advance() HandshakeStatus {
	h.conn.lastBlockedOnWrite = false
	err := h.tls.Handshake()
	if err == nil {
		return HandshakeDone
	}
	if isWouldBlock(err) {
		if h.conn.lastBlockedOnWrite {
			return HandshakeWantWrite
		}
		return HandshakeWantRead
	}
	h.err = err
	return HandshakeFatal
}

// Err returns the fatal handshake error, if Advance returned HandshakeFatal.
func (h *TLSHandshake) Err() error { return h.err }

// Established converts a completed handshake into an established
// connection wrapper.
func (h *TLSHandshake) Established() *tlsConn {
	return &tlsConn{fd: h.fd, conn: h.conn, tls: h.tls}
}

// tlsConn is an established, non-blocking TLS connection.
type tlsConn struct {
	fd   int
	conn *fdConn
	tls  *tls.Conn
}

func (c *tlsConn) Read(p []byte) (int, error) {
	c.conn.lastBlockedOnWrite = false
	n, err := c.tls.Read(p)
	if err != nil {
		if isWouldBlock(err) {
			return n, ErrWouldBlock
		}
		return n, fmt.Errorf("tls: read: %w", err)
	}
	return n, nil
}

func (c *tlsConn) Write(p []byte) (int, error) {
	n, err := c.tls.Write(p)
	if err != nil {
		if isWouldBlock(err) {
			return n, ErrWouldBlock
		}
		return n, fmt.Errorf("tls: write: %w", err)
	}
	return n, nil
}

// HasPendingData reports whether fdConn holds bytes staged from the raw fd
// but not yet handed to crypto/tls. fdConn.Read never stages bytes, so this
// always returns false; application data that crypto/tls has already
// decrypted and buffered internally is not visible through it.
func (c *tlsConn) HasPendingData() bool {
	return c.conn.hasBufferedInput()
}

func (c *tlsConn) CloseNotify() {
	_ = c.tls.CloseWrite()
}

// fdConn adapts a raw non-blocking socket fd to net.Conn for crypto/tls,
// translating EAGAIN into a net.Error with Timeout()==true so the TLS
// state machine can be driven one non-blocking step at a time.
type fdConn struct {
	fd                 int
	lastBlockedOnWrite bool
	staged             []byte // bytes read from the fd but not yet consumed by tls.Conn
}

func (f *fdConn) Read(p []byte) (int, error) {
	if len(f.staged) > 0 {
		n := copy(p, f.staged)
		f.staged = f.staged[n:]
		return n, nil
	}
	n, err := unix.Read(f.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, errTimeout{}
		}
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("fdconn: connection closed")
	}
	return n, nil
}

func (f *fdConn) hasBufferedInput() bool {
	return len(f.staged) > 0
}

func (f *fdConn) Write(p []byte) (int, error) {
	n, err := unix.Write(f.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			f.lastBlockedOnWrite = true
			return 0, errTimeout{}
		}
		return 0, err
	}
	return n, nil
}

func (f *fdConn) Close() error                       { return nil } // the Stream owns fd lifecycle
func (f *fdConn) LocalAddr() net.Addr                { return fdAddr{} }
func (f *fdConn) RemoteAddr() net.Addr               { return fdAddr{} }
func (f *fdConn) SetDeadline(time.Time) error        { return nil }
func (f *fdConn) SetReadDeadline(time.Time) error    { return nil }
func (f *fdConn) SetWriteDeadline(time.Time) error   { return nil }

type fdAddr struct{}

func (fdAddr) Network() string { return "fd" }
func (fdAddr) String() string  { return "fd" }

// errTimeout implements net.Error with Timeout()==true, the signal
// crypto/tls's internal retry paths treat as "try again" rather than fatal
// for our purposes — we inspect it explicitly via isWouldBlock instead of
// relying on tls retrying internally, since tls.Conn does not retry on
// timeout; it surfaces the error to Handshake()/Read()/Write() directly,
// which is exactly the one-step semantics Advance() needs.
type errTimeout struct{}

func (errTimeout) Error() string   { return "fdconn: would block" }
func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }

func isWouldBlock(err error) bool {
	var te interface{ Timeout() bool }
	for e := err; e != nil; {
		if t, ok := e.(interface{ Timeout() bool }); ok {
			te = t
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return te != nil && te.Timeout()
}

// SetTCPNoDelay sets TCP_NODELAY on fd before the handshake begins, per
// spec.md §4.2.
func SetTCPNoDelay(fd int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}
