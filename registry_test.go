package dullahan

import "testing"

func TestRegistryDebugPaneGetsIDZero(t *testing.T) {
	r := NewPaneRegistry(testLogger())
	p := r.CreateDebugPane(80, 24)
	if p.ID != 0 {
		t.Fatalf("debug pane id = %d, want 0", p.ID)
	}
	if r.Get(0) != p {
		t.Fatal("Get(0) should return the debug pane")
	}
}

func TestRegistryAllocatesSequentialIDs(t *testing.T) {
	r := NewPaneRegistry(testLogger())
	a := r.CreateDebugPane(80, 24)
	b := r.CreateDebugPane(80, 24)
	if a.ID != 0 || b.ID != 1 {
		t.Fatalf("ids = %d, %d, want 0, 1", a.ID, b.ID)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewPaneRegistry(testLogger())
	p := r.CreateDebugPane(80, 24)
	r.Remove(p.ID)
	if r.Get(p.ID) != nil {
		t.Fatal("expected pane to be gone after Remove")
	}
}

func TestRegistryResizeAllRejectsOversizedWithoutAbortingBatch(t *testing.T) {
	r := NewPaneRegistry(testLogger())
	a := r.CreateDebugPane(80, 24)
	b := r.CreateDebugPane(80, 24)

	r.ResizeAll(600, 600) // out of bounds, both panes should be left untouched
	if cols, rows := a.Dimensions(); cols != 80 || rows != 24 {
		t.Fatalf("pane a resized despite invalid request: %d x %d", cols, rows)
	}
	if cols, rows := b.Dimensions(); cols != 80 || rows != 24 {
		t.Fatalf("pane b resized despite invalid request: %d x %d", cols, rows)
	}

	r.ResizeAll(100, 30)
	if cols, rows := a.Dimensions(); cols != 100 || rows != 30 {
		t.Fatalf("pane a not resized: %d x %d", cols, rows)
	}
}
