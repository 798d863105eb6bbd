package dullahan

import (
	"fmt"
)

// maxWriteBufferBytes is the per-connection write-buffer cap. Exceeding it
// is a fatal error for that connection (spec.md §4.3). A package var
// rather than a const so Config.MaxWriteBufferBytes can override the
// default at startup without threading cfg through every WSConn.
var maxWriteBufferBytes = 8 * 1024 * 1024

// ErrWriteBufferFull is returned when a connection's queued write bytes
// would exceed maxWriteBufferBytes.
var ErrWriteBufferFull = fmt.Errorf("websocket: write buffer full")

// WSConn owns one upgraded WebSocket connection's read buffer (bytes may
// straddle frame boundaries), write buffer (bounded, queued on WouldBlock),
// and its underlying transport.
type WSConn struct {
	stream *Stream

	readBuf  []byte
	writeBuf []byte

	closed bool
}

// NewWSConn wraps a transport as an upgraded WebSocket connection.
func NewWSConn(stream *Stream) *WSConn {
	return &WSConn{stream: stream}
}

// FD returns the underlying socket fd.
func (c *WSConn) FD() int { return c.stream.FD() }

// HasQueuedWrites reports whether FlushWriteBuffer has work to do.
func (c *WSConn) HasQueuedWrites() bool { return len(c.writeBuf) > 0 }

// PumpRead reads available bytes from the transport into the read buffer.
// Returns the number of bytes newly read; io.EOF-equivalent is signaled by
// (0, nil) with ok=false.
func (c *WSConn) PumpRead() (n int, ok bool, err error) {
	var scratch [32 * 1024]byte
	total := 0
	for {
		m, rerr := c.stream.Read(scratch[:])
		if m > 0 {
			c.readBuf = append(c.readBuf, scratch[:m]...)
			total += m
		}
		if rerr != nil {
			if rerr == ErrWouldBlock {
				return total, true, nil
			}
			return total, false, rerr
		}
		if m == 0 {
			return total, false, nil
		}
	}
}

// ReadFrame parses lazily from the accumulated read buffer. Returns
// (Frame{}, ErrWouldBlock) if no complete frame is buffered yet. Control
// frames are returned to the caller for inline handling (spec.md §4.3
// says they are "handled inline", which the event loop does).
func (c *WSConn) ReadFrame() (Frame, error) {
	res, err := decodeFrame(c.readBuf)
	if err != nil {
		return Frame{}, err
	}
	if !res.completed {
		return Frame{}, ErrWouldBlock
	}
	c.readBuf = c.readBuf[res.consumed:]
	return res.frame, nil
}

// WriteFrame encodes and attempts to send a server→client frame. On
// WouldBlock, the remaining bytes are enqueued into the write buffer for a
// later FlushWriteBuffer call. Returns ErrWriteBufferFull (fatal for this
// connection) if the queue would exceed maxWriteBufferBytes.
func (c *WSConn) WriteFrame(op Opcode, payload []byte) error {
	encoded := EncodeFrame(nil, op, payload)
	return c.enqueueOrWrite(encoded)
}

func (c *WSConn) enqueueOrWrite(encoded []byte) error {
	if len(c.writeBuf) > 0 {
		return c.appendToQueue(encoded)
	}
	n, err := c.stream.Write(encoded)
	if err != nil {
		if err == ErrWouldBlock {
			return c.appendToQueue(encoded)
		}
		return err
	}
	if n < len(encoded) {
		return c.appendToQueue(encoded[n:])
	}
	return nil
}

func (c *WSConn) appendToQueue(remaining []byte) error {
	if len(c.writeBuf)+len(remaining) > maxWriteBufferBytes {
		return ErrWriteBufferFull
	}
	c.writeBuf = append(c.writeBuf, remaining...)
	return nil
}

// FlushWriteBuffer attempts to drain queued bytes once the transport
// reports writable. Returns drained=true when the queue is now empty.
func (c *WSConn) FlushWriteBuffer() (drained bool, err error) {
	for len(c.writeBuf) > 0 {
		n, werr := c.stream.Write(c.writeBuf)
		if n > 0 {
			c.writeBuf = c.writeBuf[n:]
		}
		if werr != nil {
			if werr == ErrWouldBlock {
				return false, nil
			}
			return false, werr
		}
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Close closes the underlying transport.
func (c *WSConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.stream.Close()
}
