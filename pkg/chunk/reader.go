package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Reader decodes chunk headers and little-endian scalars from a seekable stream.
// Every short read is reported as ErrChunkTruncated.
type Reader struct {
	rs    io.ReadSeeker
	size  int64
	limit int64
	buf   [HeaderSize]byte

	// version of the last header read, used by version-gated payloads
	version uint32
	build   uint32
}

// NewReader wraps rs. The stream size is measured once so Skip can detect
// truncation without reading.
func NewReader(rs io.ReadSeeker) (*Reader, error) {
	cur, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := rs.Seek(cur, io.SeekStart); err != nil {
		return nil, err
	}
	return &Reader{rs: rs, size: end, limit: end, version: DefaultVersion, build: DefaultBuild}, nil
}

// Size returns the total stream size.
func (r *Reader) Size() int64 { return r.size }

// Pos returns the current stream offset.
func (r *Reader) Pos() int64 {
	pos, err := r.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	return pos
}

// Remaining returns the number of bytes left before the current read limit.
func (r *Reader) Remaining() int64 { return r.limit - r.Pos() }

// Limit bounds every read, skip and seek to end until restore is called.
// Limits nest: a bound wider than the current one has no effect.
func (r *Reader) Limit(end int64) (restore func()) {
	prev := r.limit
	if end < prev {
		r.limit = end
	}
	return func() { r.limit = prev }
}

// Version returns the version of the most recently read header.
func (r *Reader) Version() uint32 { return r.version }

// Build returns the build of the most recently read header.
func (r *Reader) Build() uint32 { return r.build }

// SeekTo repositions the stream at an absolute offset.
func (r *Reader) SeekTo(off int64) error {
	if off < 0 || off > r.limit {
		return fmt.Errorf("%w: seek to %d beyond %d", ErrChunkTruncated, off, r.limit)
	}
	_, err := r.rs.Seek(off, io.SeekStart)
	return err
}

// ReadHeader reads the next chunk header. It returns io.EOF when the stream is
// exhausted exactly at a chunk boundary and ErrChunkTruncated when fewer than
// HeaderSize bytes remain.
func (r *Reader) ReadHeader() (Header, error) {
	if left := r.Remaining(); left < HeaderSize {
		if left == 0 {
			return Header{}, io.EOF
		}
		return Header{}, fmt.Errorf("%w: header: %d of %d bytes", ErrChunkTruncated, max(left, 0), HeaderSize)
	}
	n, err := io.ReadFull(r.rs, r.buf[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return Header{}, io.EOF
		}
		return Header{}, fmt.Errorf("%w: header: %d of %d bytes", ErrChunkTruncated, n, HeaderSize)
	}
	h := Header{
		Type:      Type(binary.LittleEndian.Uint32(r.buf[0:4])),
		Length:    binary.LittleEndian.Uint32(r.buf[4:8]),
		LibraryID: binary.LittleEndian.Uint32(r.buf[8:12]),
	}
	r.version = h.Version()
	r.build = h.Build()
	return h, nil
}

// Expect reads a header and fails with ErrChunkTypeMismatch unless it has type t.
func (r *Reader) Expect(t Type) (Header, error) {
	h, err := r.ReadHeader()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Header{}, fmt.Errorf("%w: expected %s at end of stream", ErrChunkTruncated, t)
		}
		return Header{}, err
	}
	if h.Type != t {
		return h, fmt.Errorf("%w: expected %s, got %s", ErrChunkTypeMismatch, t, h.Type)
	}
	return h, nil
}

// Find scans sibling chunks until one of type want is found and leaves the
// stream at the start of its payload. Chunks of other types are skipped by
// length. A TypeNAObject header or the end of the stream yields ErrNotFound;
// the sentinel header is consumed.
func (r *Reader) Find(want Type) (Header, error) {
	for {
		h, err := r.ReadHeader()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Header{}, fmt.Errorf("%w: %s", ErrNotFound, want)
			}
			return Header{}, err
		}
		if h.Type == TypeNAObject {
			return Header{}, fmt.Errorf("%w: %s", ErrNotFound, want)
		}
		if h.Type == want {
			return h, nil
		}
		if err := r.Skip(h.Length); err != nil {
			return Header{}, err
		}
	}
}

// Skip advances past n payload bytes.
func (r *Reader) Skip(n uint32) error {
	pos := r.Pos()
	if pos < 0 || pos+int64(n) > r.limit {
		return fmt.Errorf("%w: skip %d bytes at offset %d", ErrChunkTruncated, n, pos)
	}
	_, err := r.rs.Seek(int64(n), io.SeekCurrent)
	return err
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || int64(n) > r.Remaining() {
		return nil, fmt.Errorf("%w: read of %d bytes at offset %d", ErrChunkTruncated, n, r.Pos())
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.rs, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChunkTruncated, err)
	}
	return buf, nil
}

// ReadFull fills p.
func (r *Reader) ReadFull(p []byte) error {
	if int64(len(p)) > r.Remaining() {
		return fmt.Errorf("%w: read of %d bytes at offset %d", ErrChunkTruncated, len(p), r.Pos())
	}
	if _, err := io.ReadFull(r.rs, p); err != nil {
		return fmt.Errorf("%w: %v", ErrChunkTruncated, err)
	}
	return nil
}

func (r *Reader) ReadU8() (uint8, error) {
	if err := r.ReadFull(r.buf[:1]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

func (r *Reader) ReadU16() (uint16, error) {
	if err := r.ReadFull(r.buf[:2]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(r.buf[:2]), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	if err := r.ReadFull(r.buf[:4]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.buf[:4]), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadString reads a STRING chunk and returns its text up to the first NUL.
func (r *Reader) ReadString() (string, error) {
	h, err := r.Expect(TypeString)
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(h.Length))
	if err != nil {
		return "", err
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), nil
		}
	}
	return string(b), nil
}
