package dullahan

import (
	"bytes"
	"testing"
)

func TestRowIDPageMath(t *testing.T) {
	id := NewRowID(2345)
	if id.PageSerial() != 2 {
		t.Fatalf("page serial = %d, want 2", id.PageSerial())
	}
	if id.RowIndex() != 345 {
		t.Fatalf("row index = %d, want 345", id.RowIndex())
	}
}

func TestWrapUnwrapFrameRoundTrip(t *testing.T) {
	small := []byte("short body")
	frame, err := wrapFrame(frameTagDelta, small)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	tag, body, err := unwrapFrame(frame)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if tag != frameTagDelta || !bytes.Equal(body, small) {
		t.Fatalf("round trip mismatch: tag=%d body=%q", tag, body)
	}
}

func TestWrapUnwrapFrameCompressed(t *testing.T) {
	large := bytes.Repeat([]byte("x"), compressThreshold+100)
	frame, err := wrapFrame(frameTagSnapshot, large)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if frame[1] != 1 {
		t.Fatal("expected compression flag set for a large body")
	}
	tag, body, err := unwrapFrame(frame)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if tag != frameTagSnapshot || !bytes.Equal(body, large) {
		t.Fatal("compressed round trip mismatch")
	}
}

func TestComputeDeltaDetectsChangedRows(t *testing.T) {
	p := NewPane(1, PaneKindDebug, 10, 3, testLogger())
	p.Feed([]byte("line one"))
	p.CommitTick(nil) // establish the baseline at generation 1

	p.Feed([]byte("\r\nline two"))
	frame, err := ComputeDelta(1, p)
	if err != nil {
		t.Fatalf("ComputeDelta: %v", err)
	}
	tag, body, err := unwrapFrame(frame)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if tag != frameTagDelta {
		t.Fatalf("tag = %d, want frameTagDelta", tag)
	}
	if len(body) == 0 {
		t.Fatal("expected a non-empty delta body after changing a row")
	}
}

func TestCachedDeltaOnlyValidForRetainedBaseline(t *testing.T) {
	p := NewPane(1, PaneKindDebug, 10, 3, testLogger())
	p.Feed([]byte("one"))
	delta, err := ComputeDelta(1, p)
	if err != nil {
		t.Fatalf("ComputeDelta: %v", err)
	}
	p.CommitTick(delta)

	if _, ok := p.CachedDeltaFor(0); !ok {
		t.Fatal("expected cached delta to be valid for from_gen=0 (the baseline before this commit)")
	}
	if _, ok := p.CachedDeltaFor(99); ok {
		t.Fatal("expected cache miss for an unrelated from_gen")
	}
}
