package dullahan

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/vito/midterm"
)

// PaneKind distinguishes shell panes (PTY-backed) from the debug pane
// (pane 0, text-fed only, no child process), per spec.md §4.5.
type PaneKind int

const (
	PaneKindShell PaneKind = iota
	PaneKindDebug
)

// PaneState is the pane lifecycle per spec.md §4.5: Created, Running,
// Terminating (SIGTERM sent, awaiting grace period), Gone.
type PaneState int

const (
	PaneCreated PaneState = iota
	PaneRunning
	PaneTerminating
	PaneGone
)

func (s PaneState) String() string {
	switch s {
	case PaneCreated:
		return "created"
	case PaneRunning:
		return "running"
	case PaneTerminating:
		return "terminating"
	case PaneGone:
		return "gone"
	default:
		return "unknown"
	}
}

// MouseTrackingMode is the active mouse reporting mode as set by the
// child application via CSI ? Pm h/l (DECSET/DECRST).
type MouseTrackingMode int

const (
	MouseTrackingOff MouseTrackingMode = iota
	MouseTrackingX10
	MouseTrackingNormal      // 1000: press/release
	MouseTrackingButtonEvent // 1002: + drag
	MouseTrackingAnyEvent    // 1003: + motion
)

// MouseEncoding is the active mouse coordinate encoding.
type MouseEncoding int

const (
	MouseEncodingDefault MouseEncoding = iota
	MouseEncodingUTF8
	MouseEncodingSGR
	MouseEncodingURXVT
	MouseEncodingSGRPixels
)

const (
	minPaneDim    = 1
	maxPaneDim    = 500
	scrollbackCap = 10000
)

// ErrInvalidPaneSize is returned by Resize for dimensions outside
// [minPaneDim, maxPaneDim].
var ErrInvalidPaneSize = fmt.Errorf("pane: size out of range [%d,%d]", minPaneDim, maxPaneDim)

// Pane owns one virtual terminal and, for shell panes, the child process
// and PTY backing it. It is the unit of generation tracking, broadcast
// delta caching, and scrollback, grounded on cemoody-c3/pty.go's
// per-session lifecycle generalized from tmux attachment to direct
// ownership per spec.md §3/§4.5, using github.com/vito/midterm for VT
// emulation (see _examples/other_examples/...dcosson-h2...vt.go for the
// reference usage this wraps).
type Pane struct {
	ID    uint16
	Kind  PaneKind
	state PaneState

	vt    *midterm.Terminal
	child *childProcess

	cols, rows int

	generation              uint64
	lastCommittedGeneration uint64
	broadcastGen            uint64

	title        string
	titleChanged bool
	bell         bool

	decckm        bool
	mouseMode     MouseTrackingMode
	mouseEncoding MouseEncoding

	scrollback     []string
	scrollbackBase int
	scrollOffset   int

	prevRows          []string
	prevCursorX       int
	prevCursorY       int
	prevDecckm        bool
	prevMouseMode     MouseTrackingMode
	prevMouseEncoding MouseEncoding

	deltaCache       []byte
	deltaCacheToGen  uint64
	deltaCacheFromGen uint64

	esc escScanState

	killSent      bool
	sigkillAt     time.Time
	goneAt        time.Time

	log *slog.Logger
}

// NewPane allocates a pane of the given kind sized cols x rows. The
// virtual terminal is created eagerly for both kinds: the debug pane
// uses it to render the formatted PTY-traffic log fed into it, exactly
// like a shell pane renders shell output.
func NewPane(id uint16, kind PaneKind, cols, rows int, log *slog.Logger) *Pane {
	p := &Pane{
		ID:     id,
		Kind:   kind,
		state:  PaneCreated,
		vt:     midterm.NewTerminal(rows, cols),
		cols:   cols,
		rows:   rows,
		log:    log.With("pane", id),
	}
	p.vt.OnScrollback(func(line midterm.Line) {
		p.appendScrollback(line.Display())
	})
	return p
}

// SpawnShell starts the child shell process attached to this pane's PTY.
// Only valid for PaneKindShell panes in the Created state.
func (p *Pane) SpawnShell(shellPath string) error {
	if p.Kind != PaneKindShell {
		return fmt.Errorf("pane %d: SpawnShell called on non-shell pane", p.ID)
	}
	if p.state != PaneCreated {
		return fmt.Errorf("pane %d: SpawnShell called in state %s", p.ID, p.state)
	}
	child, err := spawnShell(shellPath, p.cols, p.rows)
	if err != nil {
		return err
	}
	p.child = child
	p.state = PaneRunning
	p.log.Info("shell spawned", "shell", shellPath, "cols", p.cols, "rows", p.rows)
	return nil
}

// MarkDebugRunning transitions the debug pane straight to Running: it has
// no child process to wait on.
func (p *Pane) MarkDebugRunning() {
	if p.Kind == PaneKindDebug && p.state == PaneCreated {
		p.state = PaneRunning
	}
}

// State reports the pane's lifecycle state.
func (p *Pane) State() PaneState { return p.state }

// PTYFile returns the child process, whose ptmx is the PTY master for poll
// registration, or nil for a debug pane. The child stays attached after it
// exits, so callers also check State().
func (p *Pane) PTYFile() *childProcess { return p.child }

// Feed writes child (or debug-log) output into the virtual terminal,
// scans it for mode/title/bell control sequences, and bumps the pane's
// generation counter.
func (p *Pane) Feed(data []byte) {
	if len(data) == 0 {
		return
	}
	p.vt.Write(data)
	p.esc.scan(p, data)
	p.generation++
}

// WriteInput sends browser-originated keystrokes to the child's PTY
// stdin. No-op (not an error) if the pane has no running child, matching
// the debug pane's read-only nature.
func (p *Pane) WriteInput(data []byte) error {
	if p.child == nil {
		return nil
	}
	_, err := p.child.ptmx.Write(data)
	return err
}

// Resize validates and applies a new size to the PTY and virtual
// terminal. cols and rows must each be in [1,500] (spec.md §4.5).
func (p *Pane) Resize(cols, rows int) error {
	if cols < minPaneDim || cols > maxPaneDim || rows < minPaneDim || rows > maxPaneDim {
		return ErrInvalidPaneSize
	}
	if cols == p.cols && rows == p.rows {
		return nil
	}
	p.cols, p.rows = cols, rows
	p.vt.Resize(rows, cols)
	if p.child != nil {
		if err := p.child.resize(cols, rows); err != nil {
			return fmt.Errorf("pane %d: resize pty: %w", p.ID, err)
		}
	}
	p.generation++
	return nil
}

// Dimensions returns the pane's current cols, rows.
func (p *Pane) Dimensions() (cols, rows int) { return p.cols, p.rows }

// Scroll adjusts the scrollback view offset by delta rows, clamped to
// [0, len(scrollback)]. Positive delta scrolls up (toward history).
func (p *Pane) Scroll(delta int) {
	p.scrollOffset += delta
	if p.scrollOffset < 0 {
		p.scrollOffset = 0
	}
	if max := len(p.scrollback); p.scrollOffset > max {
		p.scrollOffset = max
	}
}

// ScrollOffset returns the current scrollback view offset.
func (p *Pane) ScrollOffset() int { return p.scrollOffset }

func (p *Pane) appendScrollback(rendered string) {
	p.scrollback = append(p.scrollback, rendered)
	if len(p.scrollback) > scrollbackCap {
		trim := len(p.scrollback) - scrollbackCap
		p.scrollback = p.scrollback[trim:]
		p.scrollbackBase += trim
	}
}

// Rows renders the current viewport, one string per row, via midterm's
// Line.Display().
func (p *Pane) Rows() []string {
	out := make([]string, p.rows)
	for y := 0; y < p.rows; y++ {
		out[y] = p.vt.GetLine(y).Display()
	}
	return out
}

// Cursor returns the current cursor column, row.
func (p *Pane) Cursor() (x, y int) {
	return p.vt.Cursor.X, p.vt.Cursor.Y
}

// DECCKM reports whether cursor-key application mode is active.
func (p *Pane) DECCKM() bool { return p.decckm }

// MouseMode and MouseEncoding report the active mouse protocol state.
func (p *Pane) MouseMode() MouseTrackingMode   { return p.mouseMode }
func (p *Pane) MouseEncoding() MouseEncoding   { return p.mouseEncoding }

// TakeTitleChanged reports and clears the title-changed flag.
func (p *Pane) TakeTitleChanged() (title string, changed bool) {
	changed = p.titleChanged
	p.titleChanged = false
	return p.title, changed
}

// TakeBell reports and clears the bell flag.
func (p *Pane) TakeBell() bool {
	b := p.bell
	p.bell = false
	return b
}

// Generation is the internal monotonic counter bumped on every Feed or
// Resize; it never decreases and is used by the event loop to detect
// whether a pane changed since the last tick.
func (p *Pane) Generation() uint64 { return p.generation }

// Changed reports whether the pane has mutated since the last CommitTick.
func (p *Pane) Changed() bool { return p.generation != p.lastCommittedGeneration }

// BroadcastGen is the generation number communicated to clients in
// deltas and snapshots (spec.md §4.5's client-visible generation).
func (p *Pane) BroadcastGen() uint64 { return p.broadcastGen }

// PrevSnapshot exposes the baseline captured at the last CommitTick, for
// delta.go to diff the current state against.
func (p *Pane) PrevSnapshot() (rows []string, cursorX, cursorY int, decckm bool, mode MouseTrackingMode, enc MouseEncoding) {
	return p.prevRows, p.prevCursorX, p.prevCursorY, p.prevDecckm, p.prevMouseMode, p.prevMouseEncoding
}

// CommitTick records payload as the cached delta for this tick (valid
// against from_gen == the pane's previous broadcastGen), advances the
// broadcast generation, and snapshots current state as the new baseline.
func (p *Pane) CommitTick(payload []byte) {
	p.deltaCacheFromGen = p.broadcastGen
	p.broadcastGen++
	p.deltaCacheToGen = p.broadcastGen
	p.deltaCache = payload

	p.lastCommittedGeneration = p.generation
	cols, rows := p.Dimensions()
	cur := p.Rows()
	p.prevRows = append(p.prevRows[:0], cur...)
	_ = cols
	_ = rows
	p.prevCursorX, p.prevCursorY = p.Cursor()
	p.prevDecckm = p.decckm
	p.prevMouseMode = p.mouseMode
	p.prevMouseEncoding = p.mouseEncoding
}

// CachedDeltaFor returns the already-encoded delta payload if it was
// computed against exactly this from_gen this tick, avoiding recomputing
// the same delta for every client sharing the same baseline.
func (p *Pane) CachedDeltaFor(fromGen uint64) ([]byte, bool) {
	if p.deltaCache == nil || fromGen != p.deltaCacheFromGen {
		return nil, false
	}
	return p.deltaCache, true
}

// BeginTerminate starts the Terminating state: SIGTERM now, SIGKILL after
// terminateGrace, and the pane is considered Gone killGrace after that if
// the child still hasn't been reaped.
func (p *Pane) BeginTerminate(now time.Time) {
	if p.state == PaneGone || p.state == PaneTerminating {
		return
	}
	p.state = PaneTerminating
	if p.child != nil {
		_ = p.child.signalTerm()
	} else {
		p.state = PaneGone
		return
	}
	p.sigkillAt = now.Add(terminateGrace)
}

// Tick advances the termination state machine; call once per event loop
// iteration for every pane not already Gone.
func (p *Pane) Tick(now time.Time) {
	if p.state != PaneTerminating {
		return
	}
	if p.child != nil && p.child.exited() {
		_ = p.child.close()
		p.state = PaneGone
		return
	}
	if !p.killSent && now.After(p.sigkillAt) {
		_ = p.child.signalKill()
		p.killSent = true
		p.goneAt = now.Add(killGrace)
		return
	}
	if p.killSent && now.After(p.goneAt) {
		if p.child != nil {
			_ = p.child.close()
		}
		p.state = PaneGone
	}
}

// escScanState is a small byte-at-a-time scanner over PTY output that
// tracks DECCKM, mouse tracking mode/encoding, OSC window-title sets, and
// BEL, mirroring the plain-text scrollback scanner's state-machine style
// (_examples/other_examples/...dcosson-h2...vt.go's CapturePlainHistory).
type escScanState struct {
	state      int
	csiPrivate bool
	csiParam   int
	csiParams  []int
	oscType    int
	oscBuf     []byte
}

const (
	escNormal = iota
	escEsc
	escCSI
	escOSC
	escOSCEsc
)

func (s *escScanState) scan(p *Pane, data []byte) {
	for _, b := range data {
		switch s.state {
		case escNormal:
			switch b {
			case 0x1B:
				s.state = escEsc
			case 0x07:
				p.bell = true
			}
		case escEsc:
			switch b {
			case '[':
				s.state = escCSI
				s.csiPrivate = false
				s.csiParam = 0
				s.csiParams = s.csiParams[:0]
			case ']':
				s.state = escOSC
				s.oscType = -1
				s.oscBuf = s.oscBuf[:0]
			default:
				s.state = escNormal
			}
		case escCSI:
			switch {
			case b == '?':
				s.csiPrivate = true
			case b >= '0' && b <= '9':
				s.csiParam = s.csiParam*10 + int(b-'0')
			case b == ';':
				s.csiParams = append(s.csiParams, s.csiParam)
				s.csiParam = 0
			case b >= 0x40 && b <= 0x7E:
				s.csiParams = append(s.csiParams, s.csiParam)
				s.applyCSI(p, b)
				s.state = escNormal
			}
		case escOSC:
			switch b {
			case 0x07:
				s.finishOSC(p)
				s.state = escNormal
			case 0x1B:
				s.state = escOSCEsc
			case ';':
				if s.oscType == -1 {
					s.oscType = parseOSCType(s.oscBuf)
					s.oscBuf = s.oscBuf[:0]
				} else {
					s.oscBuf = append(s.oscBuf, b)
				}
			default:
				s.oscBuf = append(s.oscBuf, b)
			}
		case escOSCEsc:
			if b == '\\' {
				s.finishOSC(p)
			}
			s.state = escNormal
		}
	}
}

func parseOSCType(buf []byte) int {
	n, err := strconv.Atoi(string(buf))
	if err != nil {
		return -1
	}
	return n
}

func (s *escScanState) finishOSC(p *Pane) {
	if s.oscType == 0 || s.oscType == 2 {
		p.title = string(s.oscBuf)
		p.titleChanged = true
	}
}

func (s *escScanState) applyCSI(p *Pane, final byte) {
	if !s.csiPrivate || len(s.csiParams) == 0 {
		return
	}
	set := final == 'h'
	for _, param := range s.csiParams {
		switch param {
		case 1:
			p.decckm = set
		case 9:
			if set {
				p.mouseMode = MouseTrackingX10
			} else if p.mouseMode == MouseTrackingX10 {
				p.mouseMode = MouseTrackingOff
			}
		case 1000:
			if set {
				p.mouseMode = MouseTrackingNormal
			} else if p.mouseMode == MouseTrackingNormal {
				p.mouseMode = MouseTrackingOff
			}
		case 1002:
			if set {
				p.mouseMode = MouseTrackingButtonEvent
			} else if p.mouseMode == MouseTrackingButtonEvent {
				p.mouseMode = MouseTrackingOff
			}
		case 1003:
			if set {
				p.mouseMode = MouseTrackingAnyEvent
			} else if p.mouseMode == MouseTrackingAnyEvent {
				p.mouseMode = MouseTrackingOff
			}
		case 1005:
			if set {
				p.mouseEncoding = MouseEncodingUTF8
			} else if p.mouseEncoding == MouseEncodingUTF8 {
				p.mouseEncoding = MouseEncodingDefault
			}
		case 1006:
			if set {
				p.mouseEncoding = MouseEncodingSGR
			} else if p.mouseEncoding == MouseEncodingSGR {
				p.mouseEncoding = MouseEncodingDefault
			}
		case 1015:
			if set {
				p.mouseEncoding = MouseEncodingURXVT
			} else if p.mouseEncoding == MouseEncodingURXVT {
				p.mouseEncoding = MouseEncodingDefault
			}
		case 1016:
			if set {
				p.mouseEncoding = MouseEncodingSGRPixels
			} else if p.mouseEncoding == MouseEncodingSGRPixels {
				p.mouseEncoding = MouseEncodingDefault
			}
		}
	}
}
