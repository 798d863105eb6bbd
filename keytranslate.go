package dullahan

import (
	"strconv"
	"unicode/utf8"
)

// TranslateKey turns a browser key event (as decoded from a KeyMsg) into
// the terminal byte sequence to write to the pane's PTY stdin, per
// spec.md §4.8. decckm selects the SS3 (application) vs CSI (normal)
// form for the arrow/Home/End keys.
func TranslateKey(key string, shift, alt, ctrl, meta bool, decckm bool) []byte {
	if meta {
		// No terminal sequence is defined for bare Meta combinations;
		// browsers reserve most of them for OS-level shortcuts anyway.
		return nil
	}

	if ctrl && len(key) == 1 {
		if seq, ok := ctrlControlSequence(key[0]); ok {
			return seq
		}
	}

	if named, ok := namedKeySequence(key, shift, ctrl, decckm); ok {
		return named
	}

	if alt && len(key) == 1 {
		return append([]byte{0x1B}, key[0])
	}

	if utf8.RuneCountInString(key) == 1 {
		return []byte(key)
	}

	// Multi-rune keys not covered by namedKeySequence (e.g.
	// "Unidentified", "AudioVolumeUp") carry no output.
	return nil
}

// ctrlControlSequence maps Ctrl+ASCII to its C0 control code, including
// the named punctuation forms @ [ \ ] ^ _ ? per the standard terminal
// Ctrl-key table.
func ctrlControlSequence(c byte) ([]byte, bool) {
	upper := c
	if upper >= 'a' && upper <= 'z' {
		upper -= 'a' - 'A'
	}
	switch {
	case upper >= 'A' && upper <= '_':
		return []byte{upper & 0x1F}, true
	case upper == '?':
		return []byte{0x7F}, true
	case upper == '@':
		return []byte{0x00}, true
	}
	return nil, false
}

// modifierCode computes the CSI modifier parameter per the xterm
// convention: 1 + 1*shift + 2*alt + 4*ctrl.
func modifierCode(shift, alt, ctrl bool) int {
	code := 1
	if shift {
		code += 1
	}
	if alt {
		code += 2
	}
	if ctrl {
		code += 4
	}
	return code
}

func namedKeySequence(key string, shift, ctrl, decckm bool) ([]byte, bool) {
	mod := modifierCode(shift, false, ctrl)

	arrow := func(final byte) []byte {
		if mod != 1 {
			return []byte("\x1b[1;" + strconv.Itoa(mod) + string(final))
		}
		if decckm {
			return []byte{0x1B, 'O', final}
		}
		return []byte{0x1B, '[', final}
	}

	switch key {
	case "ArrowUp":
		return arrow('A'), true
	case "ArrowDown":
		return arrow('B'), true
	case "ArrowRight":
		return arrow('C'), true
	case "ArrowLeft":
		return arrow('D'), true
	case "Enter":
		return []byte{'\r'}, true
	case "Backspace":
		return []byte{0x7F}, true
	case "Tab":
		if shift {
			return []byte("\x1b[Z"), true
		}
		return []byte{'\t'}, true
	case "Escape":
		return []byte{0x1B}, true
	case "Delete":
		return tildeSeq(3, mod), true
	case "Home":
		if mod != 1 {
			return []byte("\x1b[1;" + strconv.Itoa(mod) + "H"), true
		}
		if decckm {
			return []byte{0x1B, 'O', 'H'}, true
		}
		return []byte("\x1b[H"), true
	case "End":
		if mod != 1 {
			return []byte("\x1b[1;" + strconv.Itoa(mod) + "F"), true
		}
		if decckm {
			return []byte{0x1B, 'O', 'F'}, true
		}
		return []byte("\x1b[F"), true
	case "PageUp":
		return tildeSeq(5, mod), true
	case "PageDown":
		return tildeSeq(6, mod), true
	case "Insert":
		return tildeSeq(2, mod), true
	case "F1":
		return ssKey('P'), true
	case "F2":
		return ssKey('Q'), true
	case "F3":
		return ssKey('R'), true
	case "F4":
		return ssKey('S'), true
	case "F5":
		return tildeSeq(15, mod), true
	case "F6":
		return tildeSeq(17, mod), true
	case "F7":
		return tildeSeq(18, mod), true
	case "F8":
		return tildeSeq(19, mod), true
	case "F9":
		return tildeSeq(20, mod), true
	case "F10":
		return tildeSeq(21, mod), true
	case "F11":
		return tildeSeq(23, mod), true
	case "F12":
		return tildeSeq(24, mod), true
	case "Shift", "Control", "Alt", "Meta", "CapsLock":
		return nil, true // pure modifier keydown, nothing to send
	default:
		return nil, false
	}
}

func ssKey(final byte) []byte {
	return []byte{0x1B, 'O', final}
}

// tildeSeq builds a CSI Pn [; Pm] ~ sequence, omitting the modifier
// parameter when it's the default (1, i.e. no modifiers).
func tildeSeq(n, mod int) []byte {
	if mod == 1 {
		return []byte("\x1b[" + strconv.Itoa(n) + "~")
	}
	return []byte("\x1b[" + strconv.Itoa(n) + ";" + strconv.Itoa(mod) + "~")
}
