package dullahan

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// streamKind tags which transport a Stream wraps. A tagged variant rather
// than an interface hierarchy, per spec.md §9 ("Dynamic dispatch ... The
// Stream abstraction over {plain TCP, TLS} is a tagged variant").
type streamKind int

const (
	streamPlain streamKind = iota
	streamTLS
)

// Stream is a non-blocking byte transport over one accepted socket fd,
// either a plain TCP connection or a TLS connection post-handshake.
// Every Read/Write returns ErrWouldBlock instead of blocking.
type Stream struct {
	kind streamKind
	fd   int
	tls  *tlsConn // non-nil when kind == streamTLS and established
}

// newPlainStream wraps a raw, already non-blocking socket fd.
func newPlainStream(fd int) *Stream {
	return &Stream{kind: streamPlain, fd: fd}
}

// FD returns the underlying socket file descriptor, for inclusion in a
// poll set.
func (s *Stream) FD() int { return s.fd }

// Read reads available bytes into p. Returns ErrWouldBlock if none are
// currently available, io.EOF (via a plain nil, 0 return mapped by the
// caller) on peer close, or a fatal error.
func (s *Stream) Read(p []byte) (int, error) {
	if s.kind == streamTLS {
		return s.tls.Read(p)
	}
	n, err := unix.Read(s.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("stream: read: %w", err)
	}
	return n, nil
}

// Write writes as many bytes of p as the transport will currently accept.
// A short write (n < len(p)) is not an error; the caller must retain the
// remainder. Returns (0, ErrWouldBlock) if nothing could be written.
func (s *Stream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if s.kind == streamTLS {
		return s.tls.Write(p)
	}
	n, err := unix.Write(s.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, fmt.Errorf("stream: write: %w", err)
	}
	return n, nil
}

// HasPendingData reports whether the transport holds input the poll layer
// cannot see. Plain streams always report false; TLS streams defer to
// tlsConn.HasPendingData, which does not see crypto/tls's internal buffer
// of decrypted bytes.
func (s *Stream) HasPendingData() bool {
	if s.kind == streamTLS {
		return s.tls.HasPendingData()
	}
	return false
}

// Close closes the underlying socket, sending a TLS close-notify first
// (best effort) if this is a TLS stream.
func (s *Stream) Close() error {
	if s.kind == streamTLS && s.tls != nil {
		s.tls.CloseNotify()
	}
	return unix.Close(s.fd)
}

// errClosed is not returned by any Stream method; reads and writes on a
// closed stream surface the underlying transport error instead.
var errClosed = errors.New("stream: closed")
