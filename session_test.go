package dullahan

import "testing"

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(80, 24, "/bin/sh", testLogger())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSessionLookupResolvesPaneWithinWindow(t *testing.T) {
	s := newTestSession(t)
	win := s.newWindowLocked()
	debug := s.Registry.CreateDebugPane(80, 24)
	win.AddPane(debug.ID)

	p, err := s.Lookup(win.ID, debug.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if p != debug {
		t.Fatal("Lookup returned a different pane")
	}
}

func TestSessionLookupRejectsPaneNotInWindow(t *testing.T) {
	s := newTestSession(t)
	winA := s.newWindowLocked()
	winB := s.newWindowLocked()
	debug := s.Registry.CreateDebugPane(80, 24)
	winA.AddPane(debug.ID)

	if _, err := s.Lookup(winB.ID, debug.ID); err == nil {
		t.Fatal("expected an error looking up a pane in the wrong window")
	}
}

func TestSessionCloseWindowBeginsTerminatingEveryPane(t *testing.T) {
	s := newTestSession(t)
	win := s.newWindowLocked()
	debug := s.Registry.CreateDebugPane(80, 24)
	win.AddPane(debug.ID)

	if err := s.CloseWindow(win.ID); err != nil {
		t.Fatalf("CloseWindow: %v", err)
	}
	if s.Window(win.ID) != nil {
		t.Fatal("expected the window to be removed")
	}
	// The debug pane has no child process, so BeginTerminate should have
	// moved it straight to PaneGone rather than waiting on a SIGTERM grace
	// period.
	if debug.State() != PaneGone {
		t.Fatalf("debug pane state = %v, want PaneGone", debug.State())
	}
}

func TestSessionCloseWindowRejectsUnknownID(t *testing.T) {
	s := newTestSession(t)
	if err := s.CloseWindow(999); err == nil {
		t.Fatal("expected an error closing a nonexistent window")
	}
}

func TestSessionNewWindowDefaultsToSinglePane(t *testing.T) {
	s := newTestSession(t)
	win, err := s.NewWindow("")
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	if len(win.PaneIDs()) != 1 {
		t.Fatalf("pane count = %d, want 1 for an untemplated window", len(win.PaneIDs()))
	}
}

func TestSessionNewWindowAppliesNamedTemplate(t *testing.T) {
	s := newTestSession(t)
	s.layoutTemplates = map[string]int{"dev": 3}

	win, err := s.NewWindow("dev")
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	if len(win.PaneIDs()) != 3 {
		t.Fatalf("pane count = %d, want 3 for the \"dev\" template", len(win.PaneIDs()))
	}
}
