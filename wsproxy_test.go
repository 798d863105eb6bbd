package dullahan

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// newTestClient wires a ClientState to one end of a real (non-blocking)
// unix socketpair so WsProxy's write path can run for real without a
// network listener.
func newTestClient(t *testing.T) (*ClientState, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	conn := NewWSConn(newPlainStream(fds[0]))
	return NewClientState(conn, time.Now()), fds[1]
}

func TestWsProxySingleMasterInvariant(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	proxy := NewWsProxy(log)

	a, peerA := newTestClient(t)
	b, peerB := newTestClient(t)
	defer unix.Close(peerA)
	defer unix.Close(peerB)

	proxy.Register(a)
	proxy.Register(b)

	proxy.HandleHello(a, uuid.New())
	if !proxy.IsMaster(a) {
		t.Fatal("first authenticated client should be auto-promoted to master")
	}

	proxy.HandleHello(b, uuid.New())
	if proxy.IsMaster(b) {
		t.Fatal("second client should not be auto-promoted while a master exists")
	}

	if err := proxy.RequestMaster(b); err != nil {
		t.Fatalf("RequestMaster: %v", err)
	}
	if !proxy.IsMaster(b) {
		t.Fatal("b should now be master")
	}
	if proxy.IsMaster(a) {
		t.Fatal("a should have been demoted")
	}
}

func TestWsProxyRegisterDoesNotEvictExistingClients(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	proxy := NewWsProxy(log)

	a, peerA := newTestClient(t)
	b, peerB := newTestClient(t)
	defer unix.Close(peerA)
	defer unix.Close(peerB)

	proxy.Register(a)
	proxy.Register(b)

	if got := len(proxy.Clients()); got != 2 {
		t.Fatalf("expected 2 registered clients, got %d", got)
	}
}

func TestWsProxyUnregisterDemotesMaster(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	proxy := NewWsProxy(log)

	a, peerA := newTestClient(t)
	defer unix.Close(peerA)

	proxy.Register(a)
	proxy.HandleHello(a, uuid.New())
	if !proxy.IsMaster(a) {
		t.Fatal("a should be master")
	}

	proxy.Unregister(a)

	b, peerB := newTestClient(t)
	defer unix.Close(peerB)
	proxy.Register(b)
	proxy.HandleHello(b, uuid.New())
	if !proxy.IsMaster(b) {
		t.Fatal("b should be auto-promoted after the prior master disconnected")
	}
}

func TestWsProxyRequireAuthGatesUnauthenticatedClients(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	proxy := NewWsProxy(log)

	a, peerA := newTestClient(t)
	defer unix.Close(peerA)
	proxy.Register(a)

	if err := proxy.RequireAuth(a); err != ErrNotAuthenticated {
		t.Fatalf("expected ErrNotAuthenticated before hello, got %v", err)
	}
}
