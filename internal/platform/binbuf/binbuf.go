// Package binbuf is the little-endian byte buffer the platform codecs build
// native payloads with and parse them back from.
package binbuf

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/samcharles93/strata/internal/platform"
)

// Encoder appends little-endian values to a growing buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with capacity for n bytes.
func NewEncoder(n int) *Encoder { return &Encoder{buf: make([]byte, 0, n)} }

func (e *Encoder) Bytes() []byte { return e.buf }
func (e *Encoder) Len() int      { return len(e.buf) }

func (e *Encoder) U8(v uint8)   { e.buf = append(e.buf, v) }
func (e *Encoder) U16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *Encoder) U32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *Encoder) F32(v float32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(v))
}
func (e *Encoder) Raw(p []byte) { e.buf = append(e.buf, p...) }

// Pad appends zero bytes until the length is a multiple of align.
func (e *Encoder) Pad(align int) {
	for len(e.buf)%align != 0 {
		e.buf = append(e.buf, 0)
	}
}

// PutU32 overwrites a previously appended word at off.
func (e *Encoder) PutU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(e.buf[off:], v)
}

// Decoder reads little-endian values. The first out-of-range read sets a
// sticky error wrapping platform.ErrCorruptNative; later reads return zero.
type Decoder struct {
	buf []byte
	off int
	err error
}

func NewDecoder(p []byte) *Decoder { return &Decoder{buf: p} }

func (d *Decoder) Err() error     { return d.err }
func (d *Decoder) Offset() int    { return d.off }
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf)-d.off {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d of %d", platform.ErrCorruptNative, n, d.off, len(d.buf))
		return nil
	}
	p := d.buf[d.off : d.off+n]
	d.off += n
	return p
}

func (d *Decoder) U8() uint8 {
	if p := d.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (d *Decoder) U16() uint16 {
	if p := d.take(2); p != nil {
		return binary.LittleEndian.Uint16(p)
	}
	return 0
}

func (d *Decoder) U32() uint32 {
	if p := d.take(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (d *Decoder) F32() float32 { return math.Float32frombits(d.U32()) }

// Raw returns the next n bytes without copying.
func (d *Decoder) Raw(n int) []byte { return d.take(n) }

// Align skips bytes until the offset is a multiple of align.
func (d *Decoder) Align(align int) {
	if rem := d.off % align; rem != 0 {
		d.take(align - rem)
	}
}

// Fail records a semantic error found by the caller.
func (d *Decoder) Fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", platform.ErrCorruptNative, fmt.Sprintf(format, args...))
	}
}

// Count reads a u32 element count and checks that count elements of elemSize
// bytes could still fit in the buffer.
func (d *Decoder) Count(elemSize int) int {
	n := int(d.U32())
	if d.err == nil && elemSize > 0 && n > d.Remaining()/elemSize {
		d.Fail("count %d of %d-byte elements exceeds %d remaining bytes", n, elemSize, d.Remaining())
		return 0
	}
	return n
}
