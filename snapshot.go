package dullahan

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Row-id scheme: absolute row index (scrollback position counting from
// the very first line ever produced) split into a page serial and an
// in-page index, PAGE_SIZE rows per page, per spec.md §4.5. RowID and
// absolute index are numerically identical; PageSerial/RowIndex exist so
// clients can reason about page boundaries without redoing the math.
const rowPageSize = 1000

type RowID uint64

func NewRowID(absoluteIndex int) RowID { return RowID(absoluteIndex) }

func (id RowID) PageSerial() uint64 { return uint64(id) / rowPageSize }
func (id RowID) RowIndex() uint64   { return uint64(id) % rowPageSize }

// maxSnapshotBytes caps a single pane's encoded snapshot body. A package
// var, not a const, so Config.MaxSnapshotBytes can override it at
// startup.
var maxSnapshotBytes = 4 * 1024 * 1024

// EncodeSnapshot builds the full-state binary frame for a pane: every
// visible row, cursor, modes, and scrollback addressing metadata. Sent
// when a client's from_gen doesn't match the pane's cached delta
// baseline (spec.md §4.5/§4.7).
func EncodeSnapshot(paneID uint16, p *Pane) ([]byte, error) {
	var body bytes.Buffer

	toGen := p.BroadcastGen()
	binary.Write(&body, binary.BigEndian, paneID)
	binary.Write(&body, binary.BigEndian, toGen)

	cols, rows := p.Dimensions()
	binary.Write(&body, binary.BigEndian, uint16(cols))
	binary.Write(&body, binary.BigEndian, uint16(rows))

	cx, cy := p.Cursor()
	binary.Write(&body, binary.BigEndian, uint16(cx))
	binary.Write(&body, binary.BigEndian, uint16(cy))

	var flags byte
	if p.DECCKM() {
		flags |= 0x01
	}
	body.WriteByte(flags)
	body.WriteByte(byte(p.MouseMode()))
	body.WriteByte(byte(p.MouseEncoding()))

	minID := NewRowID(p.scrollbackBase)
	maxID := NewRowID(p.scrollbackBase + len(p.scrollback) + rows)
	binary.Write(&body, binary.BigEndian, uint64(minID))
	binary.Write(&body, binary.BigEndian, uint64(maxID))
	binary.Write(&body, binary.BigEndian, uint32(rowPageSize))

	rowsOut := p.Rows()
	binary.Write(&body, binary.BigEndian, uint32(len(rowsOut)))
	for _, line := range rowsOut {
		writeLengthPrefixed(&body, []byte(line))
	}

	if body.Len() > maxSnapshotBytes {
		return nil, fmt.Errorf("snapshot: pane %d body %d bytes exceeds %d cap", paneID, body.Len(), maxSnapshotBytes)
	}

	return wrapFrame(frameTagSnapshot, body.Bytes())
}

func writeLengthPrefixed(buf *bytes.Buffer, data []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}

func readLengthPrefixed(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}
