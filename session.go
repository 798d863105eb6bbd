package dullahan

import (
	"fmt"
	"log/slog"
	"time"
)

// Session owns every window and pane in the server, the wakeup pipe used
// to interrupt poll() when shutdown is requested (PTY masters are polled
// directly), and default
// geometry for newly created panes. Grounded on cemoody-c3/session.go's
// SessionManager-owns-everything shape, collapsed to a single session
// since spec.md describes one shared terminal-mux session per server
// instance rather than one per tmux target.
type Session struct {
	Registry *PaneRegistry
	windows  map[uint16]*Window
	nextWinID uint16

	Notify *NotifyPipe

	defaultCols int
	defaultRows int

	shellPath string

	layoutTemplates map[string]int

	log *slog.Logger
}

// NewSession creates the registry and notify pipe but does not bootstrap
// any windows or panes; call Bootstrap for that.
func NewSession(defaultCols, defaultRows int, shellPath string, log *slog.Logger) (*Session, error) {
	notify, err := NewNotifyPipe()
	if err != nil {
		return nil, fmt.Errorf("session: notify pipe: %w", err)
	}
	templates, err := LoadLayoutTemplates()
	if err != nil {
		log.Warn("session: ignoring malformed layout templates", "error", err)
		templates = map[string]int{}
	}
	return &Session{
		Registry:        NewPaneRegistry(log),
		windows:         make(map[uint16]*Window),
		Notify:          notify,
		defaultCols:     defaultCols,
		defaultRows:     defaultRows,
		shellPath:       shellPath,
		layoutTemplates: templates,
		log:             log,
	}, nil
}

// Bootstrap creates window 0 with the debug pane (id 0, no PTY) and two
// shell panes (ids 1 and 2), with pane 1 active, per spec.md §4.5's
// startup layout.
func (s *Session) Bootstrap() error {
	win := s.newWindowLocked()

	debug := s.Registry.CreateDebugPane(s.defaultCols, s.defaultRows)
	win.AddPane(debug.ID)

	first, err := s.Registry.CreateShellPane(s.defaultCols, s.defaultRows, s.shellPath)
	if err != nil {
		return fmt.Errorf("session: bootstrap pane 1: %w", err)
	}
	win.AddPane(first.ID)

	second, err := s.Registry.CreateShellPane(s.defaultCols, s.defaultRows, s.shellPath)
	if err != nil {
		return fmt.Errorf("session: bootstrap pane 2: %w", err)
	}
	win.AddPane(second.ID)

	if err := win.SetActivePane(first.ID); err != nil {
		return err
	}

	s.log.Info("session bootstrapped", "window", win.ID, "debug_pane", debug.ID, "panes", []uint16{first.ID, second.ID})
	return nil
}

func (s *Session) newWindowLocked() *Window {
	id := s.nextWinID
	s.nextWinID++
	w := NewWindow(id)
	s.windows[id] = w
	return w
}

// NewWindow creates an additional window, servicing the new_window
// client message (spec.md §4.8). An empty or unrecognized template
// yields a single shell pane; a recognized template name (from
// layouts.json) spawns that many shell panes up front.
func (s *Session) NewWindow(template string) (*Window, error) {
	paneCount := 1
	if n, ok := s.layoutTemplates[template]; ok && n > 0 {
		paneCount = n
	}

	win := s.newWindowLocked()
	for i := 0; i < paneCount; i++ {
		p, err := s.Registry.CreateShellPane(s.defaultCols, s.defaultRows, s.shellPath)
		if err != nil {
			delete(s.windows, win.ID)
			return nil, fmt.Errorf("session: new window pane %d: %w", i, err)
		}
		win.AddPane(p.ID)
	}
	return win, nil
}

// CloseWindow sends SIGTERM to every pane in the window (via
// Pane.BeginTerminate) and removes the window itself. Panes transition
// to PaneGone asynchronously as the event loop ticks them; the registry
// reaps them once gone.
func (s *Session) CloseWindow(id uint16) error {
	win, ok := s.windows[id]
	if !ok {
		return fmt.Errorf("session: window %d not found", id)
	}
	now := time.Now()
	for _, pid := range win.PaneIDs() {
		if p := s.Registry.Get(pid); p != nil {
			p.BeginTerminate(now)
		}
	}
	delete(s.windows, id)
	return nil
}

// Window returns the window with the given id, or nil.
func (s *Session) Window(id uint16) *Window { return s.windows[id] }

// Windows returns every window in the session.
func (s *Session) Windows() map[uint16]*Window { return s.windows }

// Lookup resolves a (window, pane) pair, verifying the pane actually
// belongs to the named window (spec.md's 2-D addressing scheme).
func (s *Session) Lookup(windowID, paneID uint16) (*Pane, error) {
	win, ok := s.windows[windowID]
	if !ok {
		return nil, fmt.Errorf("session: window %d not found", windowID)
	}
	if !win.HasPane(paneID) {
		return nil, fmt.Errorf("session: pane %d not in window %d", paneID, windowID)
	}
	p := s.Registry.Get(paneID)
	if p == nil {
		return nil, fmt.Errorf("session: pane %d not registered", paneID)
	}
	return p, nil
}

// Close terminates every pane and the notify pipe.
func (s *Session) Close() {
	now := time.Now()
	for _, p := range s.Registry.All() {
		p.BeginTerminate(now)
	}
	_ = s.Notify.Close()
}
