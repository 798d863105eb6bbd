package dullahan

import "fmt"

// EncodeMouseEvent renders a mouse event into the byte sequence to write
// to the PTY, per the encoding the pane's child has requested (spec.md
// §4.8): SGR, SGR-Pixels, URXVT, UTF-8, or the legacy X10 form. button is
// 0/1/2 for left/middle/right, release is true for button-up, motion is
// true for a drag/move report (only meaningful under button-event or
// any-event tracking). x/y are 0-indexed cell coordinates; pxX/pxY are
// 0-indexed pixel coordinates, used only by MouseEncodingSGRPixels.
// Returns nil if the mode/encoding combination yields no report (e.g.
// tracking off).
func EncodeMouseEvent(mode MouseTrackingMode, enc MouseEncoding, button int, release, motion bool, x, y, pxX, pxY int, shift, alt, ctrl bool) []byte {
	if mode == MouseTrackingOff {
		return nil
	}
	if motion && mode != MouseTrackingButtonEvent && mode != MouseTrackingAnyEvent {
		return nil
	}

	code := button & 0x03
	if motion {
		code |= 0x20
	}
	if shift {
		code |= 0x04
	}
	if alt {
		code |= 0x08
	}
	if ctrl {
		code |= 0x10
	}

	switch enc {
	case MouseEncodingSGR:
		final := byte('M')
		if release {
			final = 'm'
		}
		return []byte(fmt.Sprintf("\x1b[<%d;%d;%d%c", code, x+1, y+1, final))
	case MouseEncodingSGRPixels:
		// Same wire form as SGR, but coordinates are 0-indexed pixels,
		// not 1-indexed cells.
		final := byte('M')
		if release {
			final = 'm'
		}
		return []byte(fmt.Sprintf("\x1b[<%d;%d;%d%c", code, pxX, pxY, final))
	case MouseEncodingURXVT:
		if release {
			code = 3
		}
		return []byte(fmt.Sprintf("\x1b[%d;%d;%dM", code+32, x+1, y+1))
	case MouseEncodingUTF8:
		if release {
			code = 3
		}
		out := []byte{0x1B, '[', 'M'}
		out = append(out, encodeUTF8MouseCoord(code+32)...)
		out = append(out, encodeUTF8MouseCoord(x+33)...)
		return append(out, encodeUTF8MouseCoord(y+33)...)
	default: // MouseEncodingDefault: legacy X10, limited to coordinates <= 223 (255-32)
		if x > 222 || y > 222 {
			return nil
		}
		if release {
			code = 3
		}
		return []byte{0x1B, '[', 'M', byte(code + 32), byte(x + 33), byte(y + 33)}
	}
}

// encodeUTF8MouseCoord UTF-8-encodes a coordinate byte per the
// UTF-8 mouse mode extension (1005), which lifts X10's 223-cell limit by
// encoding values above 127 as two-byte UTF-8 sequences.
func encodeUTF8MouseCoord(v int) []byte {
	if v < 128 {
		return []byte{byte(v)}
	}
	return []byte{byte(0xC0 | (v >> 6)), byte(0x80 | (v & 0x3F))}
}
