package dullahan

import (
	"bytes"
	"testing"
)

func TestCtrlLetterSequence(t *testing.T) {
	seq := TranslateKey("a", false, false, true, false, false)
	if !bytes.Equal(seq, []byte{0x01}) {
		t.Fatalf("Ctrl+a = %v, want [0x01]", seq)
	}
}

func TestCtrlPunctuationSequences(t *testing.T) {
	cases := map[string]byte{
		"@": 0x00,
		"[": 0x1B,
		"\\": 0x1C,
		"]": 0x1D,
		"^": 0x1E,
		"_": 0x1F,
		"?": 0x7F,
	}
	for key, want := range cases {
		seq := TranslateKey(key, false, false, true, false, false)
		if len(seq) != 1 || seq[0] != want {
			t.Fatalf("Ctrl+%s = %v, want [%#x]", key, seq, want)
		}
	}
}

func TestAltCharIsEscPrefixed(t *testing.T) {
	seq := TranslateKey("x", false, true, false, false, false)
	if !bytes.Equal(seq, []byte{0x1B, 'x'}) {
		t.Fatalf("Alt+x = %v, want ESC x", seq)
	}
}

func TestArrowDECCKMToggle(t *testing.T) {
	normal := TranslateKey("ArrowUp", false, false, false, false, false)
	if !bytes.Equal(normal, []byte{0x1B, '[', 'A'}) {
		t.Fatalf("ArrowUp (normal) = %v", normal)
	}
	app := TranslateKey("ArrowUp", false, false, false, false, true)
	if !bytes.Equal(app, []byte{0x1B, 'O', 'A'}) {
		t.Fatalf("ArrowUp (DECCKM) = %v", app)
	}
}

func TestArrowWithModifiersUsesCSICode(t *testing.T) {
	// Shift+Ctrl = mod 1 + 1 + 4 = 6
	seq := TranslateKey("ArrowRight", true, false, true, false, false)
	want := []byte("\x1b[1;6C")
	if !bytes.Equal(seq, want) {
		t.Fatalf("Shift+Ctrl+ArrowRight = %q, want %q", seq, want)
	}
}

func TestNamedKeys(t *testing.T) {
	cases := map[string][]byte{
		"Enter":     {'\r'},
		"Backspace": {0x7F},
		"Tab":       {'\t'},
		"Escape":    {0x1B},
	}
	for key, want := range cases {
		seq := TranslateKey(key, false, false, false, false, false)
		if !bytes.Equal(seq, want) {
			t.Fatalf("%s = %v, want %v", key, seq, want)
		}
	}
}

func TestShiftTabSendsCSIZ(t *testing.T) {
	seq := TranslateKey("Tab", true, false, false, false, false)
	if !bytes.Equal(seq, []byte("\x1b[Z")) {
		t.Fatalf("Shift+Tab = %q, want CSI Z", seq)
	}
}

func TestFunctionKeys(t *testing.T) {
	if seq := TranslateKey("F1", false, false, false, false, false); !bytes.Equal(seq, []byte{0x1B, 'O', 'P'}) {
		t.Fatalf("F1 = %v", seq)
	}
	if seq := TranslateKey("F5", false, false, false, false, false); !bytes.Equal(seq, []byte("\x1b[15~")) {
		t.Fatalf("F5 = %q", seq)
	}
}

func TestBareModifierKeyProducesNoOutput(t *testing.T) {
	if seq := TranslateKey("Shift", false, false, false, false, false); seq != nil {
		t.Fatalf("bare Shift keydown = %v, want nil", seq)
	}
}

func TestMetaComboProducesNoOutput(t *testing.T) {
	if seq := TranslateKey("a", false, false, false, true, false); seq != nil {
		t.Fatalf("Meta+a = %v, want nil", seq)
	}
}
