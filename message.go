package dullahan

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Client -> server message variants (spec.md §4.8). Text frames carry
// JSON; binary frames carry a compact fixed-layout encoding for the four
// high-frequency, latency-sensitive messages (key, mouse, resize,
// scroll), parsed in parseBinaryClientMessage. The two-phase
// peek-then-unmarshal JSON parse mirrors
// _examples/cemoody-c3/protocol.go's ParseClientMessage.

type HelloMsg struct {
	Type     string  `json:"type"`
	ClientID string  `json:"client_id"`
	ThemeFg  *string `json:"theme_fg,omitempty"`
	ThemeBg  *string `json:"theme_bg,omitempty"`
	Token    *string `json:"token,omitempty"`
}

type KeyMsg struct {
	Type  string `json:"type"`
	Pane  uint16 `json:"pane"`
	Key   string `json:"key"`
	Shift bool   `json:"shift,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Meta  bool   `json:"meta,omitempty"`
}

type TextMsg struct {
	Type string `json:"type"`
	Pane uint16 `json:"pane"`
	Text string `json:"text"`
}

type ResizeMsg struct {
	Type string `json:"type"`
	Pane uint16 `json:"pane"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

type ScrollMsg struct {
	Type  string `json:"type"`
	Pane  uint16 `json:"pane"`
	Delta int    `json:"delta"`
}

type PingMsg struct {
	Type string `json:"type"`
}

type SyncMsg struct {
	Type     string `json:"type"`
	Pane     uint16 `json:"pane"`
	Gen      uint64 `json:"gen"`
	MinRowID uint64 `json:"min_row_id"`
}

type ResyncMsg struct {
	Type   string `json:"type"`
	Pane   uint16 `json:"pane"`
	Reason string `json:"reason"`
}

type FocusMsg struct {
	Type string `json:"type"`
	Pane uint16 `json:"pane"`
}

type RequestMasterMsg struct {
	Type string `json:"type"`
}

type NewWindowMsg struct {
	Type     string `json:"type"`
	Template string `json:"template,omitempty"`
}

type CloseWindowMsg struct {
	Type   string `json:"type"`
	Window uint16 `json:"window"`
}

type ClosePaneMsg struct {
	Type string `json:"type"`
	Pane uint16 `json:"pane"`
}

type SetLayoutMsg struct {
	Type     string `json:"type"`
	Window   uint16 `json:"window"`
	Template string `json:"template"`
}

type SwapPanesMsg struct {
	Type   string `json:"type"`
	Window uint16 `json:"window"`
	A      uint16 `json:"a"`
	B      uint16 `json:"b"`
}

type ResizeLayoutMsg struct {
	Type   string          `json:"type"`
	Window uint16          `json:"window"`
	Nodes  json.RawMessage `json:"nodes"`
}

type MouseMsg struct {
	Type   string `json:"type"`
	Pane   uint16 `json:"pane"`
	Button int    `json:"button"`
	Action string `json:"action"` // "press", "release", "move"
	X      int    `json:"x"`
	Y      int    `json:"y"`
	PxX    int    `json:"px,omitempty"`
	PxY    int    `json:"py,omitempty"`
	Shift  bool   `json:"shift,omitempty"`
	Alt    bool   `json:"alt,omitempty"`
	Ctrl   bool   `json:"ctrl,omitempty"`
}

type SelectAllMsg struct {
	Type string `json:"type"`
	Pane uint16 `json:"pane"`
}

type ClearSelectionMsg struct {
	Type string `json:"type"`
	Pane uint16 `json:"pane"`
}

type ClipboardResponseMsg struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type ClipboardSetMsg struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
	Data string `json:"data"`
}

type CopyMsg struct {
	Type string `json:"type"`
	Pane uint16 `json:"pane"`
}

type ClipboardPasteMsg struct {
	Type string `json:"type"`
	Pane uint16 `json:"pane"`
	Kind string `json:"kind"`
}

// UnknownMsg is returned, never an error, for malformed or unrecognized
// input: the connection stays open and the message is dropped with a
// logged warning (spec.md §4.8's "never fatal" rule).
type UnknownMsg struct {
	Raw string
}

// ParseClientMessage decodes one client frame's payload into its typed
// message, dispatching on the websocket opcode: OpText carries JSON,
// OpBinary carries the compact encoding for the hot-path message types.
func ParseClientMessage(opcode Opcode, payload []byte) any {
	switch opcode {
	case OpBinary:
		if msg, ok := parseBinaryClientMessage(payload); ok {
			return msg
		}
		return UnknownMsg{Raw: fmt.Sprintf("%d bytes binary", len(payload))}
	case OpText:
		msg, err := parseJSONClientMessage(payload)
		if err != nil {
			return UnknownMsg{Raw: string(payload)}
		}
		return msg
	default:
		return UnknownMsg{Raw: fmt.Sprintf("unexpected opcode %d", opcode)}
	}
}

func parseJSONClientMessage(raw []byte) (any, error) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, fmt.Errorf("message: invalid JSON: %w", err)
	}

	switch base.Type {
	case "hello":
		var m HelloMsg
		return decodeInto(raw, &m)
	case "key":
		var m KeyMsg
		return decodeInto(raw, &m)
	case "text":
		var m TextMsg
		return decodeInto(raw, &m)
	case "resize":
		var m ResizeMsg
		return decodeInto(raw, &m)
	case "scroll":
		var m ScrollMsg
		return decodeInto(raw, &m)
	case "ping":
		var m PingMsg
		return decodeInto(raw, &m)
	case "sync":
		var m SyncMsg
		return decodeInto(raw, &m)
	case "resync":
		var m ResyncMsg
		return decodeInto(raw, &m)
	case "focus":
		var m FocusMsg
		return decodeInto(raw, &m)
	case "request_master":
		var m RequestMasterMsg
		return decodeInto(raw, &m)
	case "new_window":
		var m NewWindowMsg
		return decodeInto(raw, &m)
	case "close_window":
		var m CloseWindowMsg
		return decodeInto(raw, &m)
	case "close_pane":
		var m ClosePaneMsg
		return decodeInto(raw, &m)
	case "set_layout":
		var m SetLayoutMsg
		return decodeInto(raw, &m)
	case "swap_panes":
		var m SwapPanesMsg
		return decodeInto(raw, &m)
	case "resize_layout":
		var m ResizeLayoutMsg
		return decodeInto(raw, &m)
	case "mouse":
		var m MouseMsg
		return decodeInto(raw, &m)
	case "select_all":
		var m SelectAllMsg
		return decodeInto(raw, &m)
	case "clear_selection":
		var m ClearSelectionMsg
		return decodeInto(raw, &m)
	case "clipboard_response":
		var m ClipboardResponseMsg
		return decodeInto(raw, &m)
	case "clipboard_set":
		var m ClipboardSetMsg
		return decodeInto(raw, &m)
	case "copy":
		var m CopyMsg
		return decodeInto(raw, &m)
	case "clipboard_paste":
		var m ClipboardPasteMsg
		return decodeInto(raw, &m)
	default:
		return nil, fmt.Errorf("message: unknown type %q", base.Type)
	}
}

func decodeInto[T any](raw []byte, m *T) (any, error) {
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, err
	}
	return *m, nil
}

const (
	binTagKey    byte = 1
	binTagMouse  byte = 2
	binTagResize byte = 3
	binTagScroll byte = 4
)

// parseBinaryClientMessage decodes the fixed-layout binary encoding used
// for high-frequency input, all multi-byte fields big-endian.
func parseBinaryClientMessage(payload []byte) (any, bool) {
	if len(payload) < 1 {
		return nil, false
	}
	tag, body := payload[0], payload[1:]
	switch tag {
	case binTagKey:
		if len(body) < 3 {
			return nil, false
		}
		pane := binary.BigEndian.Uint16(body[0:2])
		mods := body[2]
		key := string(body[3:])
		return KeyMsg{
			Type:  "key",
			Pane:  pane,
			Key:   key,
			Shift: mods&0x1 != 0,
			Alt:   mods&0x2 != 0,
			Ctrl:  mods&0x4 != 0,
			Meta:  mods&0x8 != 0,
		}, true
	case binTagMouse:
		if len(body) != 8 {
			return nil, false
		}
		pane := binary.BigEndian.Uint16(body[0:2])
		button := body[2]
		action := body[3]
		x := binary.BigEndian.Uint16(body[4:6])
		y := binary.BigEndian.Uint16(body[6:8])
		actionStr := map[byte]string{0: "press", 1: "release", 2: "move"}[action]
		return MouseMsg{
			Type:   "mouse",
			Pane:   pane,
			Button: int(button & 0x0F),
			Action: actionStr,
			X:      int(x),
			Y:      int(y),
			Shift:  button&0x10 != 0,
			Alt:    button&0x20 != 0,
			Ctrl:   button&0x40 != 0,
		}, true
	case binTagResize:
		if len(body) != 6 {
			return nil, false
		}
		pane := binary.BigEndian.Uint16(body[0:2])
		cols := binary.BigEndian.Uint16(body[2:4])
		rows := binary.BigEndian.Uint16(body[4:6])
		return ResizeMsg{Type: "resize", Pane: pane, Cols: int(cols), Rows: int(rows)}, true
	case binTagScroll:
		if len(body) != 4 {
			return nil, false
		}
		pane := binary.BigEndian.Uint16(body[0:2])
		delta := int16(binary.BigEndian.Uint16(body[2:4]))
		return ScrollMsg{Type: "scroll", Pane: pane, Delta: int(delta)}, true
	default:
		return nil, false
	}
}
