package dullahan

import (
	"fmt"
	"log/slog"
)

// PaneRegistry issues pane ids and owns every pane in a session,
// regardless of which window it's attached to, grounded on
// cemoody-c3/session.go's SessionManager map-plus-constructor idiom.
type PaneRegistry struct {
	panes  map[uint16]*Pane
	nextID uint16
	log    *slog.Logger
}

// NewPaneRegistry creates an empty registry. Pane id 0 is reserved for
// the debug pane by convention (spec.md §4.5); callers create it first.
func NewPaneRegistry(log *slog.Logger) *PaneRegistry {
	return &PaneRegistry{panes: make(map[uint16]*Pane), log: log}
}

func (r *PaneRegistry) allocateID() uint16 {
	id := r.nextID
	r.nextID++
	return id
}

// CreateDebugPane allocates the debug pane (no PTY, receives formatted
// PTY-traffic log lines). Must be called first so it receives id 0.
func (r *PaneRegistry) CreateDebugPane(cols, rows int) *Pane {
	id := r.allocateID()
	p := NewPane(id, PaneKindDebug, cols, rows, r.log)
	p.MarkDebugRunning()
	r.panes[id] = p
	return p
}

// CreateShellPane allocates a new pane, spawns a login shell in it, and
// registers it.
func (r *PaneRegistry) CreateShellPane(cols, rows int, shellPath string) (*Pane, error) {
	id := r.allocateID()
	p := NewPane(id, PaneKindShell, cols, rows, r.log)
	if err := p.SpawnShell(shellPath); err != nil {
		return nil, fmt.Errorf("registry: spawn pane %d: %w", id, err)
	}
	r.panes[id] = p
	return p, nil
}

// Get returns the pane with the given id, or nil.
func (r *PaneRegistry) Get(id uint16) *Pane { return r.panes[id] }

// All returns every registered pane, in no particular order.
func (r *PaneRegistry) All() []*Pane {
	out := make([]*Pane, 0, len(r.panes))
	for _, p := range r.panes {
		out = append(out, p)
	}
	return out
}

// Remove drops a pane from the registry (after it has reached PaneGone).
func (r *PaneRegistry) Remove(id uint16) { delete(r.panes, id) }

// ResizeAll applies cols x rows to every registered pane whose current
// size differs, a no-op for panes already at that size (Pane.Resize
// itself short-circuits unchanged sizes).
func (r *PaneRegistry) ResizeAll(cols, rows int) {
	for _, p := range r.panes {
		if err := p.Resize(cols, rows); err != nil {
			r.log.Warn("resize_all: pane rejected size", "pane", p.ID, "cols", cols, "rows", rows, "error", err)
		}
	}
}
