package chunk

import (
	"encoding/binary"
	"io"
	"math"
)

// Writer encodes chunks in little-endian order. Every header carries the
// writer's own version and build, including headers of records that were read
// from an older file and are only being passed through.
//
// The first write error is sticky: later writes are dropped and return it, so
// a caller may issue a run of writes and check Err once.
type Writer struct {
	w       io.Writer
	libID   uint32
	version uint32
	build   uint32
	n       int64
	err     error
	buf     [HeaderSize]byte
}

// NewWriter returns a Writer stamping version and build into every header.
func NewWriter(w io.Writer, version, build uint32) *Writer {
	return &Writer{
		w:       w,
		libID:   PackLibraryID(version, build),
		version: version,
		build:   build,
	}
}

// Version returns the version this writer stamps into headers.
func (w *Writer) Version() uint32 { return w.version }

// Build returns the build this writer stamps into headers.
func (w *Writer) Build() uint32 { return w.build }

// Written returns the number of bytes written so far.
func (w *Writer) Written() int64 { return w.n }

// Err returns the first write error, if any.
func (w *Writer) Err() error { return w.err }

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.w.Write(p)
	w.n += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.err = err
	}
	return n, err
}

// WriteHeader writes a chunk header of type t with the given payload length.
func (w *Writer) WriteHeader(t Type, length uint32) error {
	binary.LittleEndian.PutUint32(w.buf[0:4], uint32(t))
	binary.LittleEndian.PutUint32(w.buf[4:8], length)
	binary.LittleEndian.PutUint32(w.buf[8:12], w.libID)
	_, err := w.Write(w.buf[:])
	return err
}

func (w *Writer) WriteU8(v uint8) error {
	w.buf[0] = v
	_, err := w.Write(w.buf[:1])
	return err
}

func (w *Writer) WriteU16(v uint16) error {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	_, err := w.Write(w.buf[:2])
	return err
}

func (w *Writer) WriteU32(v uint32) error {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	_, err := w.Write(w.buf[:4])
	return err
}

func (w *Writer) WriteI32(v int32) error { return w.WriteU32(uint32(v)) }

func (w *Writer) WriteF32(v float32) error { return w.WriteU32(math.Float32bits(v)) }

// WriteString writes s as a STRING chunk, NUL terminated and padded to four bytes.
func (w *Writer) WriteString(s string) error {
	n := stringPayloadSize(s)
	if err := w.WriteHeader(TypeString, n); err != nil {
		return err
	}
	buf := make([]byte, n)
	copy(buf, s)
	_, err := w.Write(buf)
	return err
}

// StringSize returns the encoded size of s as a STRING chunk, header included.
func StringSize(s string) uint32 { return HeaderSize + stringPayloadSize(s) }

func stringPayloadSize(s string) uint32 {
	return (uint32(len(s)) + 4) &^ 3
}
