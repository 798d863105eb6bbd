package dullahan

import (
	"time"

	"github.com/google/uuid"
)

// AuthRole is a client connection's privilege level. A client is "none"
// until it sends hello, then "view" (read-only), with at most one client
// promoted to "master" (input-capable) at a time (spec.md §4.7).
type AuthRole int

const (
	AuthNone AuthRole = iota
	AuthView
	AuthMaster
)

func (r AuthRole) String() string {
	switch r {
	case AuthView:
		return "view"
	case AuthMaster:
		return "master"
	default:
		return "none"
	}
}

// ClientState tracks one connected browser client: its transport, auth
// role, per-pane sync cursors, and liveness timers. Grounded on
// cemoody-c3/client.go's per-connection state struct, generalized from a
// single ring-buffer cursor to the generation-based per-pane map spec.md
// §4.5/§4.7 requires.
type ClientState struct {
	Conn *WSConn

	ID   uuid.UUID
	Role AuthRole

	lastAckedGen map[uint16]uint64

	writeCongested bool

	lastFrameAt     time.Time
	lastIdlePingAt  time.Time
	awaitingPong    bool

	focusedPane uint16
}

// NewClientState wraps a freshly upgraded WebSocket connection. The
// client is unauthenticated until it sends hello.
func NewClientState(conn *WSConn, now time.Time) *ClientState {
	return &ClientState{
		Conn:         conn,
		Role:         AuthNone,
		lastAckedGen: make(map[uint16]uint64),
		lastFrameAt:  now,
	}
}

// Authenticate records the client's self-reported identity from hello
// and promotes it to view role.
func (c *ClientState) Authenticate(id uuid.UUID) {
	c.ID = id
	c.Role = AuthView
}

// Authenticated reports whether hello has been processed.
func (c *ClientState) Authenticated() bool { return c.Role != AuthNone }

// LastAckedGen returns the last generation this client is known to have
// for paneID, defaulting to 0 (nothing received yet). A 0 only matches the
// cached delta of a pane's first committed tick; otherwise a client at 0
// is sent a full snapshot.
func (c *ClientState) LastAckedGen(paneID uint16) uint64 {
	return c.lastAckedGen[paneID]
}

// SetAckedGen records the generation the client has just been brought up
// to date with for paneID.
func (c *ClientState) SetAckedGen(paneID uint16, gen uint64) {
	c.lastAckedGen[paneID] = gen
}

// MarkFrameReceived resets the idle timer and clears any pending-pong
// wait, called whenever any frame (including pong) arrives from the
// client.
func (c *ClientState) MarkFrameReceived(now time.Time) {
	c.lastFrameAt = now
	c.awaitingPong = false
}

// IdleFor reports how long it has been since the client last sent
// anything.
func (c *ClientState) IdleFor(now time.Time) time.Duration {
	return now.Sub(c.lastFrameAt)
}

// MarkPingSent records that an idle ping was just sent, starting the
// pong-timeout window.
func (c *ClientState) MarkPingSent(now time.Time) {
	c.lastIdlePingAt = now
	c.awaitingPong = true
}

// AwaitingPong reports whether the client has an outstanding idle ping.
func (c *ClientState) AwaitingPong() bool { return c.awaitingPong }

// PongOverdue reports whether the client has failed to respond to its
// outstanding ping within timeout.
func (c *ClientState) PongOverdue(now time.Time, timeout time.Duration) bool {
	return c.awaitingPong && now.Sub(c.lastIdlePingAt) > timeout
}

// SetWriteCongested marks whether this client's outbound buffer is
// backed up (WouldBlock on write); congested clients are skipped by
// broadcasts until they drain.
func (c *ClientState) SetWriteCongested(congested bool) { c.writeCongested = congested }

// WriteCongested reports the current congestion state.
func (c *ClientState) WriteCongested() bool { return c.writeCongested }

// FocusedPane returns the pane id this client last declared focus on via
// the focus message (0 if none yet).
func (c *ClientState) FocusedPane() uint16 { return c.focusedPane }

// SetFocusedPane records the client's current focus target.
func (c *ClientState) SetFocusedPane(paneID uint16) { c.focusedPane = paneID }
