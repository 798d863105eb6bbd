package dullahan

import "testing"

func TestX10MouseBoundary(t *testing.T) {
	seq := EncodeMouseEvent(MouseTrackingNormal, MouseEncodingDefault, 0, false, false, 222, 222, 0, 0, false, false, false)
	if seq == nil {
		t.Fatal("expected X10 encoding at x=222,y=222")
	}
	if len(seq) != 6 || seq[4] != byte(222+33) || seq[5] != byte(222+33) {
		t.Fatalf("unexpected X10 frame: %v", seq)
	}

	if seq := EncodeMouseEvent(MouseTrackingNormal, MouseEncodingDefault, 0, false, false, 223, 222, 0, 0, false, false, false); seq != nil {
		t.Fatalf("expected nil past X10's 223-cell limit, got %v", seq)
	}
}

func TestSGRModifierEncoding(t *testing.T) {
	// Shift+Ctrl on button 0: code = 0 | shift(4) | ctrl(16) = 20.
	seq := EncodeMouseEvent(MouseTrackingNormal, MouseEncodingSGR, 0, false, false, 10, 20, 0, 0, true, false, true)
	want := "\x1b[<20;11;21M"
	if string(seq) != want {
		t.Fatalf("SGR shift+ctrl = %q, want %q", seq, want)
	}
}

func TestSGRRelease(t *testing.T) {
	seq := EncodeMouseEvent(MouseTrackingNormal, MouseEncodingSGR, 1, true, false, 0, 0, 0, 0, false, false, false)
	if string(seq) != "\x1b[<1;1;1m" {
		t.Fatalf("SGR release = %q", seq)
	}
}

func TestSGRPixelsUsesZeroIndexedPixelCoords(t *testing.T) {
	seq := EncodeMouseEvent(MouseTrackingNormal, MouseEncodingSGRPixels, 0, false, false, 10, 20, 137, 245, false, false, false)
	want := "\x1b[<0;137;245M"
	if string(seq) != want {
		t.Fatalf("SGR-Pixels = %q, want %q", seq, want)
	}
}

func TestMouseTrackingOffYieldsNil(t *testing.T) {
	if seq := EncodeMouseEvent(MouseTrackingOff, MouseEncodingSGR, 0, false, false, 1, 1, 0, 0, false, false, false); seq != nil {
		t.Fatalf("tracking off = %v, want nil", seq)
	}
}

func TestMotionSuppressedOutsideDragOrAnyEventMode(t *testing.T) {
	if seq := EncodeMouseEvent(MouseTrackingNormal, MouseEncodingSGR, 0, false, true, 1, 1, 0, 0, false, false, false); seq != nil {
		t.Fatalf("motion under normal-tracking = %v, want nil", seq)
	}
	if seq := EncodeMouseEvent(MouseTrackingAnyEvent, MouseEncodingSGR, 0, false, true, 1, 1, 0, 0, false, false, false); seq == nil {
		t.Fatal("expected a report for motion under any-event tracking")
	}
}
