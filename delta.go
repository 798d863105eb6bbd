package dullahan

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Binary frame tags, the first byte of every server->client OpBinary
// payload (spec.md §4.5's snapshot/delta/title/bell/ping/pong frames).
const (
	frameTagSnapshot byte = 1
	frameTagDelta    byte = 2
	frameTagTitle    byte = 3
	frameTagBell     byte = 4
	frameTagPing     byte = 5
	frameTagPong     byte = 6
	frameTagRoleChange byte = 7
)

// compressThreshold is the minimum body size, in bytes, worth paying
// zstd's framing overhead for.
const compressThreshold = 256

var (
	sharedEncoder *zstd.Encoder
	sharedDecoder *zstd.Decoder
)

func init() {
	var err error
	sharedEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		panic(fmt.Sprintf("delta: zstd encoder init: %v", err))
	}
	sharedDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("delta: zstd decoder init: %v", err))
	}
}

// wrapFrame prepends the frame tag and a compression flag byte, zstd
// compressing body when it's large enough to be worth it.
func wrapFrame(tag byte, body []byte) ([]byte, error) {
	out := make([]byte, 0, len(body)+2)
	out = append(out, tag)
	if len(body) >= compressThreshold {
		compressed := sharedEncoder.EncodeAll(body, nil)
		out = append(out, 1)
		out = append(out, compressed...)
	} else {
		out = append(out, 0)
		out = append(out, body...)
	}
	return out, nil
}

// unwrapFrame splits a frame into its tag and decompressed body.
func unwrapFrame(frame []byte) (tag byte, body []byte, err error) {
	if len(frame) < 2 {
		return 0, nil, fmt.Errorf("delta: frame too short")
	}
	tag = frame[0]
	compressed := frame[1]
	rest := frame[2:]
	if compressed == 0 {
		return tag, rest, nil
	}
	decoded, err := sharedDecoder.DecodeAll(rest, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("delta: zstd decode: %w", err)
	}
	return tag, decoded, nil
}

// changedRow pairs a row's address with its newly rendered content.
type changedRow struct {
	id      RowID
	content string
}

// ComputeDelta diffs the pane's current state against the baseline
// captured at its last CommitTick and encodes a delta frame. Pane
// guarantees this is only meaningful when fromGen == pane.BroadcastGen()
// (the single retained baseline); callers must fall back to
// EncodeSnapshot otherwise.
func ComputeDelta(paneID uint16, p *Pane) ([]byte, error) {
	prevRows, prevCX, prevCY, prevDecckm, prevMode, prevEnc := p.PrevSnapshot()
	curRows := p.Rows()
	cx, cy := p.Cursor()

	var changed []changedRow
	baseIndex := p.scrollbackBase + len(p.scrollback)
	for i, row := range curRows {
		if i >= len(prevRows) || row != prevRows[i] {
			changed = append(changed, changedRow{id: NewRowID(baseIndex + i), content: row})
		}
	}

	var body bytes.Buffer
	binary.Write(&body, binary.BigEndian, paneID)
	binary.Write(&body, binary.BigEndian, p.BroadcastGen())
	binary.Write(&body, binary.BigEndian, p.BroadcastGen()+1)

	binary.Write(&body, binary.BigEndian, uint32(len(changed)))
	for _, c := range changed {
		binary.Write(&body, binary.BigEndian, uint64(c.id))
		writeLengthPrefixed(&body, []byte(c.content))
	}

	if cx != prevCX || cy != prevCY {
		body.WriteByte(1)
		binary.Write(&body, binary.BigEndian, uint16(cx))
		binary.Write(&body, binary.BigEndian, uint16(cy))
	} else {
		body.WriteByte(0)
	}

	decckm := p.DECCKM()
	mode, enc := p.MouseMode(), p.MouseEncoding()
	if decckm != prevDecckm || mode != prevMode || enc != prevEnc {
		body.WriteByte(1)
		flags := byte(0)
		if decckm {
			flags |= 0x01
		}
		body.WriteByte(flags)
		body.WriteByte(byte(mode))
		body.WriteByte(byte(enc))
	} else {
		body.WriteByte(0)
	}

	// Scrollback extent is always reported; cheap relative to row data
	// and lets clients notice when old rows have been evicted.
	minID := NewRowID(p.scrollbackBase)
	maxID := NewRowID(baseIndex + len(curRows))
	binary.Write(&body, binary.BigEndian, uint64(minID))
	binary.Write(&body, binary.BigEndian, uint64(maxID))

	return wrapFrame(frameTagDelta, body.Bytes())
}

// EncodeTitleFrame builds the aux frame sent when a pane's title changes.
func EncodeTitleFrame(paneID uint16, title string) ([]byte, error) {
	var body bytes.Buffer
	binary.Write(&body, binary.BigEndian, paneID)
	writeLengthPrefixed(&body, []byte(title))
	return wrapFrame(frameTagTitle, body.Bytes())
}

// EncodeBellFrame builds the aux frame sent on a BEL from the pane.
func EncodeBellFrame(paneID uint16) ([]byte, error) {
	var body bytes.Buffer
	binary.Write(&body, binary.BigEndian, paneID)
	return wrapFrame(frameTagBell, body.Bytes())
}

// EncodePingFrame and EncodePongFrame are the idle keepalive frames
// (spec.md §4.10's 30s ping / 30s pong-timeout).
func EncodePingFrame() ([]byte, error) { return wrapFrame(frameTagPing, nil) }
func EncodePongFrame() ([]byte, error) { return wrapFrame(frameTagPong, nil) }

// EncodeRoleChangeFrame tells a client its new auth role, sent to both
// parties of a request_master promotion/demotion (see DESIGN.md's
// decision on this Open Question).
func EncodeRoleChangeFrame(role AuthRole) ([]byte, error) {
	return wrapFrame(frameTagRoleChange, []byte{byte(role)})
}
