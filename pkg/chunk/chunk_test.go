package chunk

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(t Type, length, libID uint32) []byte {
	var b [HeaderSize]byte
	binary.LittleEndian.PutUint32(b[0:], uint32(t))
	binary.LittleEndian.PutUint32(b[4:], length)
	binary.LittleEndian.PutUint32(b[8:], libID)
	return b[:]
}

func newTestReader(t *testing.T, data []byte) *Reader {
	t.Helper()
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	return r
}

func TestPackLibraryIDModern(t *testing.T) {
	t.Parallel()

	id := PackLibraryID(0x36003, 0xFFFF)
	assert.Equal(t, uint32(0x1803FFFF), id)
	assert.Equal(t, uint32(0x36003), UnpackVersion(id))
	assert.Equal(t, uint32(0xFFFF), UnpackBuild(id))
}

func TestPackLibraryIDLegacy(t *testing.T) {
	t.Parallel()

	id := PackLibraryID(0x31000, 0)
	assert.Equal(t, uint32(0x310), id)
	assert.Equal(t, uint32(0x31000), UnpackVersion(id))
	assert.Zero(t, UnpackBuild(id))
}

func TestLibraryIDRoundTrip(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ version, build uint32 }{
		{0x33002, 1},
		{0x34003, 0x0102},
		{0x35000, 0xFFFF},
		{0x36003, 0xFFFF},
		{0x3FF3F, 0x7},
	} {
		id := PackLibraryID(tc.version, tc.build)
		assert.NotZero(t, id&0xFFFF0000, "modern id for %#x", tc.version)
		assert.Equal(t, tc.version, UnpackVersion(id))
		assert.Equal(t, tc.build, UnpackBuild(id))
	}
	// An id read from a file survives decode and re-encode untouched.
	for _, id := range []uint32{0x0800FFFF, 0x1003FFFF, 0x1803FFFF, 0x310, 0x302} {
		assert.Equal(t, id, PackLibraryID(UnpackVersion(id), UnpackBuild(id)))
	}
}

func TestFindChunkAndSentinel(t *testing.T) {
	t.Parallel()

	libID := PackLibraryID(DefaultVersion, DefaultBuild)
	var buf bytes.Buffer
	buf.Write(header(TypeClump, 24, libID))
	buf.Write(bytes.Repeat([]byte{0xAB}, 24))
	buf.Write(header(TypeNAObject, 0, libID))

	r := newTestReader(t, buf.Bytes())
	h, err := r.Find(TypeClump)
	require.NoError(t, err)
	assert.Equal(t, TypeClump, h.Type)
	assert.Equal(t, uint32(24), h.Length)
	assert.Equal(t, DefaultVersion, h.Version())
	assert.Equal(t, int64(HeaderSize), r.Pos())

	require.NoError(t, r.SeekTo(0))
	_, err = r.Find(0x99)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(2*HeaderSize+24), r.Pos(), "sentinel consumed")
}

func TestFindAtEndOfStream(t *testing.T) {
	t.Parallel()

	r := newTestReader(t, header(TypeStruct, 0, 0x310))
	_, err := r.Find(TypeClump)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadHeaderTruncated(t *testing.T) {
	t.Parallel()

	r := newTestReader(t, []byte{1, 0, 0, 0, 5})
	_, err := r.ReadHeader()
	require.ErrorIs(t, err, ErrChunkTruncated)

	r = newTestReader(t, nil)
	_, err = r.ReadHeader()
	require.ErrorIs(t, err, io.EOF)
}

func TestSkipPastEnd(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.Write(header(TypeTexture, 100, 0x310))
	buf.Write(make([]byte, 10))

	r := newTestReader(t, buf.Bytes())
	_, err := r.Find(TypeClump)
	require.ErrorIs(t, err, ErrChunkTruncated)
}

func TestLimitBoundsReads(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.Write(header(TypeStruct, 2, 0x310))
	buf.Write([]byte{1, 2})
	buf.Write(header(TypeString, 4, 0x310))
	buf.Write([]byte("abc\x00"))

	r := newTestReader(t, buf.Bytes())
	h, err := r.ReadHeader()
	require.NoError(t, err)
	restore := r.Limit(r.Pos() + int64(h.Length))

	inner := r.Limit(r.Size())
	assert.Equal(t, int64(2), r.Remaining(), "wider bound does not widen")
	inner()

	_, err = r.ReadU32()
	require.ErrorIs(t, err, ErrChunkTruncated)
	_, err = r.ReadBytes(3)
	require.ErrorIs(t, err, ErrChunkTruncated)
	require.ErrorIs(t, r.Skip(3), ErrChunkTruncated)
	require.ErrorIs(t, r.SeekTo(r.Size()), ErrChunkTruncated)

	v, err := r.ReadU16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), v)
	_, err = r.ReadHeader()
	require.ErrorIs(t, err, io.EOF)

	restore()
	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
}

func TestExpectMismatch(t *testing.T) {
	t.Parallel()

	r := newTestReader(t, header(TypeString, 4, 0x310))
	_, err := r.Expect(TypeStruct)
	require.ErrorIs(t, err, ErrChunkTypeMismatch)
}

func TestWriterStampsOwnVersion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewWriter(&buf, 0x34003, 0x0103)
	require.NoError(t, w.WriteHeader(TypeGeometry, 7))

	r := newTestReader(t, buf.Bytes())
	h, err := r.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, TypeGeometry, h.Type)
	assert.Equal(t, uint32(7), h.Length)
	assert.Equal(t, uint32(0x34003), h.Version())
	assert.Equal(t, uint32(0x0103), h.Build())
	assert.Equal(t, uint32(0x34003), r.Version())
}

func TestStringChunk(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "abc", "abcd", "body_texture"} {
		var buf bytes.Buffer
		w := NewWriter(&buf, DefaultVersion, DefaultBuild)
		require.NoError(t, w.WriteString(s))
		assert.Equal(t, int64(StringSize(s)), w.Written())
		assert.Zero(t, (w.Written()-HeaderSize)%4)

		got, err := newTestReader(t, buf.Bytes()).ReadString()
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

type failWriter struct{ n int }

func (f *failWriter) Write(p []byte) (int, error) {
	if f.n <= 0 {
		return 0, errors.New("disk full")
	}
	f.n--
	return len(p), nil
}

func TestWriterStickyError(t *testing.T) {
	t.Parallel()

	w := NewWriter(&failWriter{n: 1}, DefaultVersion, DefaultBuild)
	require.NoError(t, w.WriteU32(1))
	require.Error(t, w.WriteU32(2))
	require.Error(t, w.WriteF32(3))
	assert.EqualError(t, w.Err(), "disk full")
	assert.Equal(t, int64(4), w.Written())
}

func TestWalkDescendsContainers(t *testing.T) {
	t.Parallel()

	var inner bytes.Buffer
	iw := NewWriter(&inner, DefaultVersion, DefaultBuild)
	require.NoError(t, iw.WriteHeader(TypeStruct, 4))
	require.NoError(t, iw.WriteU32(0))
	require.NoError(t, iw.WriteHeader(TypeExtension, 0))

	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultVersion, DefaultBuild)
	require.NoError(t, w.WriteHeader(TypeTexture, uint32(inner.Len())))
	_, err := w.Write(inner.Bytes())
	require.NoError(t, err)

	var got []Node
	err = newTestReader(t, buf.Bytes()).Walk(-1, func(n Node) error {
		got = append(got, n)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, TypeTexture, got[0].Type)
	assert.Equal(t, 0, got[0].Depth)
	assert.Equal(t, TypeStruct, got[1].Type)
	assert.Equal(t, 1, got[1].Depth)
	assert.Equal(t, int64(HeaderSize), got[1].Offset)
	assert.Equal(t, TypeExtension, got[2].Type)
}

func TestOpenFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "asset.dff")
	var buf bytes.Buffer
	buf.Write(header(TypeClump, 0, 0x310))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	f, err := Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	assert.Equal(t, path, f.Path())
	assert.Equal(t, int64(HeaderSize), f.Size())
	h, err := f.Reader().Find(TypeClump)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x31000), h.Version())
	require.NoError(t, f.Close())
}

func TestOpenShortFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	short := filepath.Join(dir, "short.dff")
	require.NoError(t, os.WriteFile(short, []byte{0x10, 0, 0}, 0o644))
	_, err := Open(short)
	require.ErrorIs(t, err, ErrChunkTruncated)

	empty := filepath.Join(dir, "empty.dff")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	f, err := Open(empty)
	require.NoError(t, err)
	_, err = f.Reader().ReadHeader()
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, f.Close())

	_, err = Open(filepath.Join(dir, "missing.dff"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
