package dullahan

import (
	"bufio"
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func newBufReader(raw string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(raw))
}

func TestIsUpgradeRequestValid(t *testing.T) {
	raw := "GET /ws HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: keep-alive, Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"
	req, err := http.ReadRequest(newBufReader(raw))
	if err != nil {
		t.Fatalf("parse request: %v", err)
	}
	key, ok := IsUpgradeRequest(req)
	if !ok || key != "dGhlIHNhbXBsZSBub25jZQ==" {
		t.Fatalf("IsUpgradeRequest = %q, %v", key, ok)
	}
}

func TestIsUpgradeRequestMissingKey(t *testing.T) {
	raw := "GET /ws HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n"
	req, err := http.ReadRequest(newBufReader(raw))
	if err != nil {
		t.Fatalf("parse request: %v", err)
	}
	if _, ok := IsUpgradeRequest(req); ok {
		t.Fatal("expected rejection with no Sec-WebSocket-Key")
	}
}

func TestHeaderTokenContainsCaseInsensitive(t *testing.T) {
	if !headerTokenContains("keep-alive, Upgrade", "upgrade") {
		t.Fatal("expected case-insensitive token match")
	}
	if headerTokenContains("keep-alive", "upgrade") {
		t.Fatal("expected no match when token absent")
	}
}

func TestBuild431Response(t *testing.T) {
	resp := Build431Response()
	if !bytes.Contains(resp, []byte("431")) {
		t.Fatalf("expected a 431 status line, got %q", resp)
	}
}

func TestAdvanceReadCompletesOnHeaderTerminator(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[1])
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}

	raw := "GET /ws HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n\r\n"
	if _, err := unix.Write(fds[1], []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}

	p := NewPendingConn(fds[0], nil, time.Now())
	outcome, req, err := p.AdvanceRead(time.Now())
	if err != nil {
		t.Fatalf("AdvanceRead: %v", err)
	}
	if outcome != PendingStillWaiting || req == nil {
		t.Fatalf("expected a parsed request, got outcome=%v req=%v", outcome, req)
	}
	if req.Header.Get("Upgrade") != "websocket" {
		t.Fatalf("parsed request missing Upgrade header: %+v", req.Header)
	}
}

func TestAdvanceReadRejectsOversizedHeaders(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[1])
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}

	oversized := bytes.Repeat([]byte("a"), maxHeaderBytes+1)
	if _, err := unix.Write(fds[1], oversized); err != nil {
		t.Fatalf("write: %v", err)
	}

	p := NewPendingConn(fds[0], nil, time.Now())
	outcome, _, err := p.AdvanceRead(time.Now())
	if outcome != PendingExpired || err != errHeadersTooLarge {
		t.Fatalf("expected PendingExpired/errHeadersTooLarge, got outcome=%v err=%v", outcome, err)
	}
}
