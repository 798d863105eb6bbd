package dullahan

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Pending-connection stage deadlines (spec.md §4.4).
const (
	tlsHandshakeDeadline  = 5 * time.Second
	firstByteDeadline     = 250 * time.Millisecond
	headerCompleteDeadline = 2 * time.Second
)

// maxHeaderBytes is the pending-connection header-read cap (spec.md
// §4.4). A package var, not a const, so Config.MaxHeaderBytes can
// override it at startup.
var maxHeaderBytes = 16 * 1024

type pendingStage int

const (
	stageTLS pendingStage = iota
	stageAwaitFirstByte
	stageReadHeaders
)

// PendingOutcome is the result of advancing a PendingConn by one step.
type PendingOutcome int

const (
	PendingStillWaiting PendingOutcome = iota
	PendingUpgraded
	PendingServedAndClosed
	PendingExpired
	PendingFatal
)

// PendingConn tracks one accepted socket through TLS handshake (if any),
// first-byte arrival, and header completion, per spec.md §4.4.
type PendingConn struct {
	stream      *Stream
	tlsHS       *TLSHandshake
	isTLS       bool
	stage       pendingStage
	acceptedAt  time.Time
	stageDeadline time.Time
	headerBuf   []byte
	leftover    []byte
	wantWrite   bool

	wsConn   *WSConn // never set; FinishUpgrade returns the WSConn instead
	acceptKey string
	err      error
}

// NewPendingConn wraps a freshly accepted, non-blocking socket fd. Pass a
// non-nil tlsConfig to require a TLS handshake before header reads begin.
func NewPendingConn(fd int, tlsConfig *tls.Config, now time.Time) *PendingConn {
	p := &PendingConn{acceptedAt: now}
	if tlsConfig != nil {
		p.isTLS = true
		p.stage = stageTLS
		p.stageDeadline = now.Add(tlsHandshakeDeadline)
		p.tlsHS = NewTLSHandshake(fd, tlsConfig)
	} else {
		p.stream = newPlainStream(fd)
		p.stage = stageAwaitFirstByte
		p.stageDeadline = now.Add(firstByteDeadline)
	}
	return p
}

// Stage reports which deadline currently governs this connection.
func (p *PendingConn) Stage() pendingStage { return p.stage }

// Expired reports whether the current stage's deadline has passed.
func (p *PendingConn) Expired(now time.Time) bool {
	return now.After(p.stageDeadline)
}

// WantsWritePoll reports whether this pending connection needs POLLOUT in
// addition to POLLIN (true during a TLS handshake that wants to write).
func (p *PendingConn) WantsWritePoll() bool {
	return p.wantWrite
}

// AdvanceTLS drives one non-blocking TLS handshake step for this
// connection, transitioning to header reading once done.
func (p *PendingConn) AdvanceTLS() PendingOutcome {
	status := p.tlsHS.Advance()
	switch status {
	case HandshakeWantRead:
		p.wantWrite = false
		return PendingStillWaiting
	case HandshakeWantWrite:
		p.wantWrite = true
		return PendingStillWaiting
	case HandshakeDone:
		p.stream = &Stream{kind: streamTLS, fd: p.tlsHS.fd, tls: p.tlsHS.Established()}
		p.stage = stageAwaitFirstByte
		p.stageDeadline = time.Now().Add(firstByteDeadline)
		return PendingStillWaiting
	default:
		p.err = p.tlsHS.Err()
		return PendingFatal
	}
}

// AdvanceRead pumps bytes from the transport into the header buffer and
// checks for completion (CRLFCRLF) or overflow (431-worthy).
func (p *PendingConn) AdvanceRead(now time.Time) (PendingOutcome, *http.Request, error) {
	var scratch [4096]byte
	for {
		n, err := p.stream.Read(scratch[:])
		if err != nil {
			if err == ErrWouldBlock {
				break
			}
			return PendingFatal, nil, err
		}
		if n == 0 {
			return PendingFatal, nil, fmt.Errorf("httpfront: peer closed during header read")
		}
		if p.stage == stageAwaitFirstByte {
			p.stage = stageReadHeaders
			p.stageDeadline = now.Add(headerCompleteDeadline)
		}
		p.headerBuf = append(p.headerBuf, scratch[:n]...)
		if len(p.headerBuf) > maxHeaderBytes {
			return PendingExpired, nil, errHeadersTooLarge
		}
		if idx := bytes.Index(p.headerBuf, []byte("\r\n\r\n")); idx >= 0 {
			req, rerr := http.ReadRequest(bufio.NewReader(bytes.NewReader(p.headerBuf[:idx+4])))
			if rerr != nil {
				return PendingFatal, nil, fmt.Errorf("httpfront: parse request: %w", rerr)
			}
			p.leftover = append([]byte(nil), p.headerBuf[idx+4:]...)
			return PendingStillWaiting, req, nil
		}
	}
	return PendingStillWaiting, nil, nil
}

// FinishUpgrade builds the WSConn for this connection, seeding its read
// buffer with any bytes the client pipelined immediately after the
// upgrade request headers.
func (p *PendingConn) FinishUpgrade() *WSConn {
	c := NewWSConn(p.stream)
	c.readBuf = p.leftover
	return c
}

// Stream returns the underlying transport, for writing the upgrade/static
// response before promoting or closing the connection.
func (p *PendingConn) Stream() *Stream { return p.stream }

var errHeadersTooLarge = fmt.Errorf("httpfront: headers exceed the configured cap")

// IsUpgradeRequest reports whether req carries a valid WebSocket upgrade,
// per spec.md §4.4: Upgrade: websocket AND Connection: upgrade (token
// match, case-insensitive) plus Sec-WebSocket-Key.
func IsUpgradeRequest(req *http.Request) (key string, ok bool) {
	if !headerTokenContains(req.Header.Get("Upgrade"), "websocket") {
		return "", false
	}
	if !headerTokenContains(req.Header.Get("Connection"), "upgrade") {
		return "", false
	}
	key = req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return "", false
	}
	return key, true
}

// headerTokenContains does a case-insensitive, comma-separated token match
// (RFC 7230 §7's "#token" list syntax), e.g. "Connection: keep-alive, Upgrade".
func headerTokenContains(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// BuildUpgradeResponse returns the raw bytes of a 101 Switching Protocols
// response with the computed Sec-WebSocket-Accept header.
func BuildUpgradeResponse(clientKey string) []byte {
	accept := computeAcceptKey(clientKey)
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	return []byte(resp)
}

// Build431Response returns the raw bytes of a 431 Request Header Fields
// Too Large response, sent when header bytes exceed maxHeaderBytes.
func Build431Response() []byte {
	return []byte("HTTP/1.1 431 Request Header Fields Too Large\r\nConnection: close\r\nContent-Length: 0\r\n\r\n")
}
