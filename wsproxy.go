package dullahan

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// WsProxy enforces the auth gate and the single-master invariant across
// every connected client, and is the sole writer of server->client
// frames, per spec.md §4.7. Grounded on cemoody-c3/hub.go's
// broadcast-to-subscribers shape, generalized from an unauthenticated
// fan-out to role-aware, congestion-aware per-client delivery.
type WsProxy struct {
	clients  map[*ClientState]struct{}
	masterID uuid.UUID
	hasMaster bool
	log      *slog.Logger
}

// NewWsProxy creates an empty proxy.
func NewWsProxy(log *slog.Logger) *WsProxy {
	return &WsProxy{clients: make(map[*ClientState]struct{}), log: log}
}

// ErrNotAuthenticated is returned by any client action attempted before
// hello has been processed.
var ErrNotAuthenticated = fmt.Errorf("wsproxy: client not authenticated")

// Register adds a newly upgraded connection, unauthenticated until it
// sends hello.
func (w *WsProxy) Register(c *ClientState) {
	w.clients[c] = struct{}{}
}

// Unregister drops a disconnected client, demoting the master slot if it
// was held by this client.
func (w *WsProxy) Unregister(c *ClientState) {
	delete(w.clients, c)
	if w.hasMaster && c.ID == w.masterID {
		w.hasMaster = false
	}
}

// HandleHello authenticates a client and grants it the view role. A client
// that authenticates while no master exists (the first client, or any
// client after the previous master disconnected) is promoted straight to
// master.
func (w *WsProxy) HandleHello(c *ClientState, clientID uuid.UUID) {
	c.Authenticate(clientID)
	if !w.hasMaster {
		w.promote(c)
	}
}

// RequireAuth returns ErrNotAuthenticated if c hasn't sent hello yet;
// every non-hello message handler must call this first.
func (w *WsProxy) RequireAuth(c *ClientState) error {
	if !c.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// RequestMaster handles a request_master message: promotes c and demotes
// whoever held the role before, notifying both with an explicit
// role-change frame (DESIGN.md's resolution of this Open Question).
func (w *WsProxy) RequestMaster(c *ClientState) error {
	if err := w.RequireAuth(c); err != nil {
		return err
	}
	if w.hasMaster && w.masterID == c.ID {
		return nil
	}
	var previous *ClientState
	if w.hasMaster {
		for other := range w.clients {
			if other.ID == w.masterID {
				previous = other
				break
			}
		}
	}
	w.promote(c)
	if previous != nil {
		previous.Role = AuthView
		if frame, err := EncodeRoleChangeFrame(AuthView); err == nil {
			w.send(previous, frame)
		}
	}
	if frame, err := EncodeRoleChangeFrame(AuthMaster); err == nil {
		w.send(c, frame)
	}
	return nil
}

func (w *WsProxy) promote(c *ClientState) {
	c.Role = AuthMaster
	w.masterID = c.ID
	w.hasMaster = true
}

// IsMaster reports whether c currently holds the master (input) role.
func (w *WsProxy) IsMaster(c *ClientState) bool {
	return c.Role == AuthMaster
}

// Send writes frame to one client, auth-gated, marking the client
// congested (rather than failing loudly) if the write would block.
func (w *WsProxy) Send(c *ClientState, frame []byte) error {
	if err := w.RequireAuth(c); err != nil {
		return err
	}
	w.send(c, frame)
	return nil
}

func (w *WsProxy) send(c *ClientState, frame []byte) {
	err := c.Conn.WriteFrame(OpBinary, frame)
	if err == nil {
		c.SetWriteCongested(c.Conn.HasQueuedWrites())
		return
	}
	// ErrWriteBufferFull (queue over the 8 MiB cap, spec.md §4.7) and any
	// other write error are both fatal for this connection.
	if w.log != nil {
		w.log.Warn("wsproxy: write failed, closing client", "client", c.ID, "error", err)
	}
	_ = c.Conn.Close()
	w.Unregister(c)
}

// Broadcast sends frame to every authenticated, non-congested client.
func (w *WsProxy) Broadcast(frame []byte) {
	for c := range w.clients {
		if !c.Authenticated() || c.WriteCongested() {
			continue
		}
		w.send(c, frame)
	}
}

// SendToMaster delivers frame only to the current master, if any.
func (w *WsProxy) SendToMaster(frame []byte) {
	if !w.hasMaster {
		return
	}
	for c := range w.clients {
		if c.ID == w.masterID {
			w.send(c, frame)
			return
		}
	}
}

// Clients returns every registered client, authenticated or not.
func (w *WsProxy) Clients() []*ClientState {
	out := make([]*ClientState, 0, len(w.clients))
	for c := range w.clients {
		out = append(out, c)
	}
	return out
}
