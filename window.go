package dullahan

import "fmt"

// Window groups a set of panes under one layout and tracks which of them
// is active, per spec.md §3's window/pane hierarchy. Window owns only
// membership and the active-pane pointer; it keeps no layout geometry,
// and the event loop drops set_layout, resize_layout and swap_panes
// messages without acting on them.
type Window struct {
	ID           uint16
	paneIDs      []uint16
	activePaneID uint16
}

// NewWindow creates a window with no panes; use AddPane to populate it.
func NewWindow(id uint16) *Window {
	return &Window{ID: id}
}

// AddPane attaches an existing pane (by id) to the window. The first
// pane added becomes active.
func (w *Window) AddPane(id uint16) {
	w.paneIDs = append(w.paneIDs, id)
	if len(w.paneIDs) == 1 {
		w.activePaneID = id
	}
}

// RemovePane detaches a pane from the window, moving the active pane to
// the first remaining one if it was the one removed.
func (w *Window) RemovePane(id uint16) {
	for i, pid := range w.paneIDs {
		if pid == id {
			w.paneIDs = append(w.paneIDs[:i], w.paneIDs[i+1:]...)
			break
		}
	}
	if w.activePaneID == id && len(w.paneIDs) > 0 {
		w.activePaneID = w.paneIDs[0]
	}
}

// PaneIDs returns the panes belonging to this window.
func (w *Window) PaneIDs() []uint16 { return w.paneIDs }

// ActivePaneID returns the window's currently focused pane.
func (w *Window) ActivePaneID() uint16 { return w.activePaneID }

// SetActivePane changes focus to paneID, which must already belong to
// the window.
func (w *Window) SetActivePane(paneID uint16) error {
	for _, pid := range w.paneIDs {
		if pid == paneID {
			w.activePaneID = paneID
			return nil
		}
	}
	return fmt.Errorf("window %d: pane %d not a member", w.ID, paneID)
}

// HasPane reports whether paneID belongs to this window.
func (w *Window) HasPane(paneID uint16) bool {
	for _, pid := range w.paneIDs {
		if pid == paneID {
			return true
		}
	}
	return false
}
