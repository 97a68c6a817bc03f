package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxFrameSize is the defensive cap on a single frame's body.
const DefaultMaxFrameSize = 1 << 20 // 1 MiB

// Conn frames Messages over an underlying stream: a big-endian uint32
// length prefix followed by exactly that many bytes of JSON. Reads
// must be exact (io.ReadFull); a short read is fatal to the
// connection. Writes are serialized by an internal mutex so concurrent
// callers on the same Conn never interleave frames — safety for
// concurrent writers is implemented here rather than left to callers,
// since the control session and the router both write to the same
// client's Conn.
type Conn struct {
	r io.Reader
	w io.Writer

	maxFrameSize uint32

	writeMu sync.Mutex
}

// NewConn wraps rw for framed-message I/O. maxFrameSize of 0 uses
// DefaultMaxFrameSize.
func NewConn(rw io.ReadWriter, maxFrameSize uint32) *Conn {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Conn{r: bufio.NewReader(rw), w: rw, maxFrameSize: maxFrameSize}
}

// Reader exposes the Conn's underlying buffered reader so a caller
// that needs to hand the connection off to something else (e.g. a
// splice) after reading one or more framed messages can keep reading
// from the same buffer — any bytes already buffered past the last
// frame read here must not be dropped.
func (c *Conn) Reader() io.Reader {
	return c.r
}

// ReadMessage reads exactly one framed message. Any short read,
// oversize frame, or malformed JSON is a protocol error and the
// caller should treat it as fatal to the connection.
func (c *Conn) ReadMessage() (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > c.maxFrameSize {
		return Message{}, fmt.Errorf("wire: frame of %d bytes exceeds max %d", n, c.maxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return Message{}, fmt.Errorf("wire: short read on %d-byte frame: %w", n, err)
	}
	return UnmarshalStrict(body)
}

// WriteMessage encodes and writes m as a single frame. The write is
// serialized against other WriteMessage calls on this Conn so frames
// from concurrent goroutines never interleave on the wire, and the
// frame is fully written (flushed) before returning so the next
// caller's write cannot race into the middle of it.
func (c *Conn) WriteMessage(m Message) error {
	body, err := MarshalStrict(m)
	if err != nil {
		return err
	}
	if len(body) > int(c.maxFrameSize) {
		return fmt.Errorf("wire: outgoing frame of %d bytes exceeds max %d", len(body), c.maxFrameSize)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := c.w.Write(body); err != nil {
		return err
	}
	return nil
}
