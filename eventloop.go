package dullahan

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// parseOrNewUUID accepts the client-supplied identity from hello,
// minting a fresh one if it's empty or malformed (spec.md §4.8 leaves
// client_id validation up to the server).
func parseOrNewUUID(s string) (uuid.UUID, error) {
	if id, err := uuid.Parse(s); err == nil {
		return id, nil
	}
	return uuid.New(), nil
}

// wsClientEntry pairs a live WebSocket connection's fd with its
// ClientState, so the poll loop can go from a ready fd straight to the
// state that owns it.
type wsClientEntry struct {
	fd     int
	client *ClientState
}

// EventLoop is the single-threaded, poll(2)-driven multiplexer described
// by spec.md §4.10: one goroutine, no worker pool, every fd non-blocking.
// It owns the listening socket, every pending (mid-handshake) connection,
// every established client, and ticks every pane's termination state
// machine. Grounded on the teacher's goroutine-per-connection model
// (cemoody-c3/hub.go, client.go) generalized to the fundamentally
// different poll-driven architecture spec.md requires; the surrounding
// ambient style (slog logging, error wrapping, struct naming) still
// follows the teacher.
type EventLoop struct {
	cfg     *Config
	session *Session
	proxy   *WsProxy
	static  *StaticFileServer
	log     *slog.Logger

	listenFD  int
	tlsConfig *tls.Config

	pending map[int]*PendingConn
	clients map[int]*wsClientEntry

	shuttingDown atomic.Bool
}

// NewEventLoop builds the loop around an already-bootstrapped session. It
// does not start listening; call Run for that.
func NewEventLoop(cfg *Config, session *Session, log *slog.Logger) (*EventLoop, error) {
	if cfg.MaxWriteBufferBytes > 0 {
		maxWriteBufferBytes = cfg.MaxWriteBufferBytes
	}
	if cfg.MaxHeaderBytes > 0 {
		maxHeaderBytes = cfg.MaxHeaderBytes
	}
	if cfg.MaxSnapshotBytes > 0 {
		maxSnapshotBytes = cfg.MaxSnapshotBytes
	}

	var tlsConfig *tls.Config
	if cfg.TLSEnabled() {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("eventloop: load TLS keypair: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	listenFD, err := createListener(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("eventloop: listen %s: %w", cfg.ListenAddr, err)
	}

	return &EventLoop{
		cfg:       cfg,
		session:   session,
		proxy:     NewWsProxy(log),
		static:    &StaticFileServer{Root: "./static"},
		log:       log,
		listenFD:  listenFD,
		tlsConfig: tlsConfig,
		pending:   make(map[int]*PendingConn),
		clients:   make(map[int]*wsClientEntry),
	}, nil
}

// createListener builds a non-blocking TCP listening socket via raw
// syscalls, since the poll loop owns accept() directly rather than
// handing it to net/http.
func createListener(addr string) (int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, err
	}

	domain := unix.AF_INET
	ip4 := tcpAddr.IP.To4()
	if ip4 == nil {
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	if domain == unix.AF_INET {
		var sa unix.SockaddrInet4
		sa.Port = tcpAddr.Port
		if ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		if err := unix.Bind(fd, &sa); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("bind: %w", err)
		}
	} else {
		var sa unix.SockaddrInet6
		sa.Port = tcpAddr.Port
		copy(sa.Addr[:], tcpAddr.IP.To16())
		if err := unix.Bind(fd, &sa); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("bind: %w", err)
		}
	}

	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// RequestShutdown is safe to call from a signal handler's goroutine (or
// synchronously); it only flips a flag and kicks the notify pipe so the
// poll loop wakes up and does the actual work on its own goroutine.
func (e *EventLoop) RequestShutdown() {
	e.shuttingDown.Store(true)
	e.session.Notify.Signal()
}

// Run is the poll loop itself: steps 1-10 of spec.md §4.10, repeated
// until shutdown is requested and every pane and client has been closed.
func (e *EventLoop) Run() error {
	for {
		if e.shuttingDown.Load() {
			e.doShutdown()
			return nil
		}

		fds, index := e.buildPollSet()
		if _, err := unix.Poll(fds, 1000); err != nil && err != unix.EINTR {
			return fmt.Errorf("eventloop: poll: %w", err)
		}
		now := time.Now()

		for i, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			e.handleReadyFD(index[i], pfd, now)
		}

		e.tickPanes(now)
		e.tickIdleClients(now)
	}
}

type fdKind int

const (
	fdListen fdKind = iota
	fdNotify
	fdPending
	fdClient
	fdPane
)

type fdRef struct {
	kind   fdKind
	fd     int
	paneID uint16
}

func (e *EventLoop) buildPollSet() ([]unix.PollFd, []fdRef) {
	var fds []unix.PollFd
	var index []fdRef

	fds = append(fds, unix.PollFd{Fd: int32(e.listenFD), Events: unix.POLLIN})
	index = append(index, fdRef{kind: fdListen})

	fds = append(fds, unix.PollFd{Fd: int32(e.session.Notify.FD()), Events: unix.POLLIN})
	index = append(index, fdRef{kind: fdNotify})

	for fd, p := range e.pending {
		events := int16(unix.POLLIN)
		if p.WantsWritePoll() {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
		index = append(index, fdRef{kind: fdPending, fd: fd})
	}

	for fd, entry := range e.clients {
		events := int16(unix.POLLIN)
		if entry.client.Conn.HasQueuedWrites() {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
		index = append(index, fdRef{kind: fdClient, fd: fd})
	}

	for _, p := range e.session.Registry.All() {
		if child := p.PTYFile(); child != nil && p.State() == PaneRunning {
			fds = append(fds, unix.PollFd{Fd: int32(ptyFD(child)), Events: unix.POLLIN})
			index = append(index, fdRef{kind: fdPane, paneID: p.ID})
		}
	}

	return fds, index
}

func ptyFD(c *childProcess) int {
	return int(c.ptmx.Fd())
}

func (e *EventLoop) handleReadyFD(ref fdRef, pfd unix.PollFd, now time.Time) {
	switch ref.kind {
	case fdListen:
		e.acceptLoop()
	case fdNotify:
		e.session.Notify.Drain()
	case fdPending:
		e.advancePending(ref.fd, now)
	case fdClient:
		e.serviceClient(ref.fd, pfd, now)
	case fdPane:
		e.servicePane(ref.paneID)
	}
}

// acceptLoop accepts every connection waiting on the listener, per
// spec.md §4.10 step 2 ("accept until WouldBlock").
func (e *EventLoop) acceptLoop() {
	for {
		nfd, _, err := unix.Accept4(e.listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			e.log.Warn("accept error", "error", err)
			return
		}
		_ = SetTCPNoDelay(nfd)
		e.pending[nfd] = NewPendingConn(nfd, e.tlsConfig, time.Now())
	}
}

// advancePending drives one pending connection through TLS, first-byte,
// and header stages, promoting it to a client on a successful upgrade.
func (e *EventLoop) advancePending(fd int, now time.Time) {
	p, ok := e.pending[fd]
	if !ok {
		return
	}

	if p.Expired(now) {
		// Stage-deadline expiry closes with no response beyond the
		// current stage (spec.md §4.4/§5); 431 is reserved for the
		// header-size overflow handled below.
		e.dropPending(fd)
		return
	}

	if p.Stage() == stageTLS {
		if p.AdvanceTLS() == PendingFatal {
			e.dropPending(fd)
			return
		}
	}

	if p.Stage() == stageTLS {
		return
	}

	outcome, req, err := p.AdvanceRead(now)
	if err != nil {
		if err == errHeadersTooLarge {
			e.failPending(fd, p, Build431Response())
			return
		}
		e.dropPending(fd)
		return
	}
	if outcome == PendingStillWaiting && req == nil {
		return
	}

	if key, ok := IsUpgradeRequest(req); ok {
		if _, werr := p.Stream().Write(BuildUpgradeResponse(key)); werr != nil && werr != ErrWouldBlock {
			e.dropPending(fd)
			return
		}
		delete(e.pending, fd)
		conn := p.FinishUpgrade()
		client := NewClientState(conn, now)
		e.clients[fd] = &wsClientEntry{fd: fd, client: client}
		e.proxy.Register(client)
		e.log.Info("client upgraded", "fd", fd)
		return
	}

	resp := e.static.Serve(req)
	_, _ = p.Stream().Write(resp.Bytes())
	e.dropPending(fd)
}

func (e *EventLoop) failPending(fd int, p *PendingConn, resp []byte) {
	if p.Stream() != nil {
		_, _ = p.Stream().Write(resp)
	}
	e.dropPending(fd)
}

func (e *EventLoop) dropPending(fd int) {
	if p, ok := e.pending[fd]; ok {
		if p.Stream() != nil {
			_ = p.Stream().Close()
		} else {
			unix.Close(fd)
		}
		delete(e.pending, fd)
	}
}

// serviceClient pumps a client's socket, decodes any complete frames,
// dispatches them, and flushes queued writes if the fd is writable.
func (e *EventLoop) serviceClient(fd int, pfd unix.PollFd, now time.Time) {
	entry, ok := e.clients[fd]
	if !ok {
		return
	}
	c := entry.client

	if pfd.Revents&unix.POLLOUT != 0 {
		drained, err := c.Conn.FlushWriteBuffer()
		if err != nil {
			e.closeClient(fd)
			return
		}
		if drained {
			c.SetWriteCongested(false)
		}
	}

	if pfd.Revents&unix.POLLIN == 0 {
		return
	}

	_, ok, err := c.Conn.PumpRead()
	if err != nil {
		e.closeClient(fd)
		return
	}
	if !ok {
		e.closeClient(fd)
		return
	}

	for {
		frame, err := c.Conn.ReadFrame()
		if err != nil {
			if err == ErrWouldBlock {
				break // no complete frame buffered yet
			}
			e.closeClient(fd)
			return
		}
		c.MarkFrameReceived(now)
		e.dispatchFrame(c, frame)
	}
}

func (e *EventLoop) dispatchFrame(c *ClientState, frame Frame) {
	switch frame.Opcode {
	case OpClose:
		e.closeClientState(c)
		return
	case OpPing:
		_ = c.Conn.WriteFrame(OpPong, frame.Payload)
		return
	case OpPong:
		return
	}

	msg := ParseClientMessage(frame.Opcode, frame.Payload)
	e.dispatchMessage(c, msg)
}

func (e *EventLoop) dispatchMessage(c *ClientState, msg any) {
	_, isHello := msg.(HelloMsg)
	_, isUnknown := msg.(UnknownMsg)
	if !isHello && !isUnknown && e.proxy.RequireAuth(c) != nil {
		return
	}
	switch m := msg.(type) {
	case HelloMsg:
		id, err := parseOrNewUUID(m.ClientID)
		if err != nil {
			e.log.Warn("hello: bad client_id", "error", err)
			return
		}
		e.proxy.HandleHello(c, id)
		e.sendInitialSnapshot(c)
	case RequestMasterMsg:
		_ = e.proxy.RequestMaster(c)
	case KeyMsg:
		e.handleKey(c, m)
	case TextMsg:
		e.handleText(c, m)
	case ResizeMsg:
		e.handleResize(c, m)
	case ScrollMsg:
		e.handleScroll(c, m)
	case MouseMsg:
		e.handleMouse(c, m)
	case SyncMsg:
		e.handleSync(c, m)
	case ResyncMsg:
		e.handleSync(c, SyncMsg{Pane: m.Pane, Gen: 0})
	case FocusMsg:
		c.SetFocusedPane(m.Pane)
	case PingMsg:
		if frame, err := EncodePongFrame(); err == nil {
			_ = e.proxy.Send(c, frame)
		}
	case NewWindowMsg:
		if _, err := e.session.NewWindow(m.Template); err != nil {
			e.log.Warn("new_window failed", "error", err)
		}
	case CloseWindowMsg:
		if err := e.session.CloseWindow(m.Window); err != nil {
			e.log.Warn("close_window failed", "error", err)
		}
	case ClosePaneMsg:
		if p := e.session.Registry.Get(m.Pane); p != nil {
			p.BeginTerminate(time.Now())
		}
	case UnknownMsg:
		e.log.Warn("dropping unrecognized client message", "raw", m.Raw)
	default:
		// Parsed messages with no server-side handler (layout, selection,
		// clipboard) are dropped, never fatal to the connection.
	}
}

// sendInitialSnapshot pushes a full snapshot of the bootstrap window's
// active pane to a freshly authenticated client and focuses it there, per
// spec.md §6's "a client connects, sends hello, receives a full snapshot
// of the active pane". Without this, a joining client has no baseline
// until it explicitly syncs.
func (e *EventLoop) sendInitialSnapshot(c *ClientState) {
	win := e.session.Window(0)
	if win == nil {
		return
	}
	paneID := win.ActivePaneID()
	p := e.session.Registry.Get(paneID)
	if p == nil {
		return
	}
	c.SetFocusedPane(paneID)
	payload, err := EncodeSnapshot(paneID, p)
	if err != nil {
		e.log.Warn("snapshot encode failed", "pane", paneID, "error", err)
		return
	}
	_ = e.proxy.Send(c, payload)
	c.SetAckedGen(paneID, p.BroadcastGen())
}

func (e *EventLoop) requireMaster(c *ClientState) bool {
	if err := e.proxy.RequireAuth(c); err != nil {
		return false
	}
	return e.proxy.IsMaster(c)
}

func (e *EventLoop) handleKey(c *ClientState, m KeyMsg) {
	if !e.requireMaster(c) {
		return
	}
	p := e.session.Registry.Get(c.FocusedPane())
	if p == nil {
		return
	}
	seq := TranslateKey(m.Key, m.Shift, m.Alt, m.Ctrl, m.Meta, p.DECCKM())
	if seq != nil {
		_ = p.WriteInput(seq)
	}
}

func (e *EventLoop) handleText(c *ClientState, m TextMsg) {
	if !e.requireMaster(c) {
		return
	}
	if p := e.session.Registry.Get(c.FocusedPane()); p != nil {
		_ = p.WriteInput([]byte(m.Text))
	}
}

func (e *EventLoop) handleResize(c *ClientState, m ResizeMsg) {
	if !e.requireMaster(c) {
		return
	}
	if p := e.session.Registry.Get(m.Pane); p != nil {
		if err := p.Resize(m.Cols, m.Rows); err != nil {
			e.log.Warn("resize rejected", "pane", m.Pane, "error", err)
		}
	}
}

func (e *EventLoop) handleScroll(c *ClientState, m ScrollMsg) {
	if p := e.session.Registry.Get(m.Pane); p != nil {
		p.Scroll(m.Delta)
	}
}

func (e *EventLoop) handleMouse(c *ClientState, m MouseMsg) {
	if !e.requireMaster(c) {
		return
	}
	p := e.session.Registry.Get(c.FocusedPane())
	if p == nil {
		return
	}
	release := m.Action == "release"
	motion := m.Action == "move"
	seq := EncodeMouseEvent(p.MouseMode(), p.MouseEncoding(), m.Button, release, motion, m.X, m.Y, m.PxX, m.PxY, m.Shift, m.Alt, m.Ctrl)
	if seq != nil {
		_ = p.WriteInput(seq)
	}
}

func (e *EventLoop) handleSync(c *ClientState, m SyncMsg) {
	p := e.session.Registry.Get(m.Pane)
	if p == nil {
		return
	}
	e.sendStateTo(c, m.Pane, p, m.Gen)
}

// sendStateTo delivers either the cached delta (if fromGen matches the
// pane's retained baseline) or a full snapshot, per spec.md §4.5/§4.7.
func (e *EventLoop) sendStateTo(c *ClientState, paneID uint16, p *Pane, fromGen uint64) {
	if payload, ok := p.CachedDeltaFor(fromGen); ok {
		_ = e.proxy.Send(c, payload)
		c.SetAckedGen(paneID, p.BroadcastGen())
		return
	}
	payload, err := EncodeSnapshot(paneID, p)
	if err != nil {
		e.log.Warn("snapshot encode failed", "pane", paneID, "error", err)
		return
	}
	_ = e.proxy.Send(c, payload)
	c.SetAckedGen(paneID, p.BroadcastGen())
}

func (e *EventLoop) closeClient(fd int) {
	entry, ok := e.clients[fd]
	if !ok {
		return
	}
	e.closeClientState(entry.client)
	_ = entry.client.Conn.Close()
	delete(e.clients, fd)
}

func (e *EventLoop) closeClientState(c *ClientState) {
	e.proxy.Unregister(c)
}

// servicePane reads available PTY output into the pane's terminal and
// mirrors a formatted trace line into the debug pane, per spec.md
// §4.10 step 6.
func (e *EventLoop) servicePane(paneID uint16) {
	p := e.session.Registry.Get(paneID)
	if p == nil {
		return
	}
	child := p.PTYFile()
	if child == nil {
		return
	}

	var buf [8192]byte
	n, err := child.ptmx.Read(buf[:])
	if n > 0 {
		p.Feed(buf[:n])
		if debug := e.session.Registry.Get(0); debug != nil && debug.ID != p.ID {
			debug.Feed([]byte(fmt.Sprintf("[pane %d] %d bytes\r\n", p.ID, n)))
		}
	}
	if err != nil {
		p.BeginTerminate(time.Now())
	}
}

// tickPanes advances every terminating pane's kill escalation and
// dispatches one delta or snapshot per pane that changed this tick
// (spec.md §4.10 steps 5 and 8).
func (e *EventLoop) tickPanes(now time.Time) {
	for _, p := range e.session.Registry.All() {
		p.Tick(now)
		if p.State() == PaneGone {
			e.session.Registry.Remove(p.ID)
			continue
		}
		if title, changed := p.TakeTitleChanged(); changed {
			if frame, err := EncodeTitleFrame(p.ID, title); err == nil {
				e.proxy.Broadcast(frame)
			}
		}
		if p.TakeBell() {
			if frame, err := EncodeBellFrame(p.ID); err == nil {
				e.proxy.Broadcast(frame)
			}
		}
		if !p.Changed() {
			continue
		}
		delta, err := ComputeDelta(p.ID, p)
		if err != nil {
			e.log.Warn("delta compute failed", "pane", p.ID, "error", err)
			continue
		}
		p.CommitTick(delta)
		for _, c := range e.proxy.Clients() {
			if !c.Authenticated() || c.WriteCongested() {
				continue
			}
			e.sendStateTo(c, p.ID, p, c.LastAckedGen(p.ID))
		}
	}
}

// tickIdleClients sends an idle ping after cfg.IdlePingInterval of
// silence and disconnects clients that don't pong back within
// cfg.IdlePongTimeout (spec.md §4.10 step 10).
func (e *EventLoop) tickIdleClients(now time.Time) {
	for fd, entry := range e.clients {
		c := entry.client
		if c.PongOverdue(now, e.cfg.IdlePongTimeout) {
			e.closeClient(fd)
			continue
		}
		if !c.AwaitingPong() && c.IdleFor(now) > e.cfg.IdlePingInterval {
			if frame, err := EncodePingFrame(); err == nil {
				_ = e.proxy.Send(c, frame)
			}
			c.MarkPingSent(now)
		}
	}
}

// doShutdown transitions every pane to Terminating, closes every client
// connection, and ticks the panes until all of them are Gone, per
// spec.md §4.10's shutdown sequence.
func (e *EventLoop) doShutdown() {
	now := time.Now()
	for _, p := range e.session.Registry.All() {
		p.BeginTerminate(now)
	}
	for fd, entry := range e.clients {
		_ = entry.client.Conn.WriteFrame(OpClose, nil)
		_ = entry.client.Conn.Close()
		delete(e.clients, fd)
	}
	for {
		allGone := true
		for _, p := range e.session.Registry.All() {
			p.Tick(time.Now())
			if p.State() != PaneGone {
				allGone = false
			}
		}
		if allGone {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	unix.Close(e.listenFD)
	e.session.Close()
}
