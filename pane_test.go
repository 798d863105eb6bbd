package dullahan

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPaneResizeBoundaries(t *testing.T) {
	p := NewPane(1, PaneKindDebug, 80, 24, testLogger())

	if err := p.Resize(0, 24); err != ErrInvalidPaneSize {
		t.Fatalf("cols=0 should be rejected, got %v", err)
	}
	if err := p.Resize(80, 501); err != ErrInvalidPaneSize {
		t.Fatalf("rows=501 should be rejected, got %v", err)
	}
	if err := p.Resize(1, 1); err != nil {
		t.Fatalf("cols=1,rows=1 should be accepted: %v", err)
	}
	if err := p.Resize(500, 500); err != nil {
		t.Fatalf("cols=500,rows=500 should be accepted: %v", err)
	}
}

func TestPaneGenerationMonotonic(t *testing.T) {
	p := NewPane(0, PaneKindDebug, 80, 24, testLogger())
	g0 := p.Generation()

	p.Feed([]byte("hello\r\n"))
	g1 := p.Generation()
	if g1 <= g0 {
		t.Fatalf("generation did not advance on Feed: %d -> %d", g0, g1)
	}

	p.Feed([]byte("world\r\n"))
	g2 := p.Generation()
	if g2 <= g1 {
		t.Fatalf("generation did not advance on second Feed: %d -> %d", g1, g2)
	}
}

func TestPaneFeedSetsBellAndTitle(t *testing.T) {
	p := NewPane(0, PaneKindDebug, 80, 24, testLogger())

	p.Feed([]byte("\x07"))
	if !p.TakeBell() {
		t.Fatal("expected bell flag set after BEL byte")
	}
	if p.TakeBell() {
		t.Fatal("TakeBell should clear the flag")
	}

	p.Feed([]byte("\x1b]0;new title\x07"))
	title, changed := p.TakeTitleChanged()
	if !changed || title != "new title" {
		t.Fatalf("title = %q changed=%v, want \"new title\" true", title, changed)
	}
	if _, changed := p.TakeTitleChanged(); changed {
		t.Fatal("TakeTitleChanged should clear the flag")
	}
}

func TestPaneDECCKMToggle(t *testing.T) {
	p := NewPane(0, PaneKindDebug, 80, 24, testLogger())
	if p.DECCKM() {
		t.Fatal("DECCKM should start false")
	}
	p.Feed([]byte("\x1b[?1h"))
	if !p.DECCKM() {
		t.Fatal("DECCKM should be true after CSI ?1h")
	}
	p.Feed([]byte("\x1b[?1l"))
	if p.DECCKM() {
		t.Fatal("DECCKM should be false after CSI ?1l")
	}
}

func TestPaneMouseModeTracking(t *testing.T) {
	p := NewPane(0, PaneKindDebug, 80, 24, testLogger())
	p.Feed([]byte("\x1b[?1000h"))
	if p.MouseMode() != MouseTrackingNormal {
		t.Fatalf("mouse mode = %v, want Normal", p.MouseMode())
	}
	p.Feed([]byte("\x1b[?1006h"))
	if p.MouseEncoding() != MouseEncodingSGR {
		t.Fatalf("mouse encoding = %v, want SGR", p.MouseEncoding())
	}
	p.Feed([]byte("\x1b[?1000l"))
	if p.MouseMode() != MouseTrackingOff {
		t.Fatalf("mouse mode = %v, want Off after reset", p.MouseMode())
	}
}
