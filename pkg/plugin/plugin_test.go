package plugin

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/strata/pkg/chunk"
)

type record struct {
	plugins Block
}

func (r *record) Plugins() *Block { return &r.plugins }

type counter struct {
	Value uint32
}

type label struct {
	Text string
}

const (
	idCounter chunk.Type = 0x0F01
	idLabel   chunk.Type = 0x0F02
	idExtra   chunk.Type = 0x0F03
)

func counterStream() StreamHooks[counter] {
	return StreamHooks[counter]{
		Read: func(r *chunk.Reader, length uint32, _ Extensible, v *counter) error {
			var err error
			v.Value, err = r.ReadU32()
			return err
		},
		Write: func(w *chunk.Writer, _ Extensible, v *counter) error {
			return w.WriteU32(v.Value)
		},
		Size: func(Extensible, *counter) int32 { return 4 },
	}
}

func labelStream() StreamHooks[label] {
	return StreamHooks[label]{
		Read: func(r *chunk.Reader, length uint32, _ Extensible, v *label) error {
			b, err := r.ReadBytes(int(length))
			if err != nil {
				return err
			}
			v.Text = string(b)
			return nil
		},
		Write: func(w *chunk.Writer, _ Extensible, v *label) error {
			_, err := w.Write([]byte(v.Text))
			return err
		},
		Size: func(_ Extensible, v *label) int32 {
			if v.Text == "" {
				return -1
			}
			return int32(len(v.Text))
		},
	}
}

func newRegistry(t *testing.T) (*Registry, Slot[counter], Slot[label]) {
	t.Helper()
	reg := NewRegistry("test", 16)
	cs, err := Register(reg, idCounter, 8, Hooks[counter]{})
	require.NoError(t, err)
	ls, err := Register(reg, idLabel, 4, Hooks[label]{})
	require.NoError(t, err)
	_, err = RegisterStream(reg, idCounter, counterStream())
	require.NoError(t, err)
	_, err = RegisterStream(reg, idLabel, labelStream())
	require.NoError(t, err)
	return reg, cs, ls
}

func newRecord(t *testing.T, reg *Registry) *record {
	t.Helper()
	rec := &record{}
	require.NoError(t, reg.Construct(rec))
	return rec
}

func TestOffsetsFollowRegistrationOrder(t *testing.T) {
	t.Parallel()

	reg := NewRegistry("kind", 16)
	a, err := Register(reg, 0xA, 8, Hooks[counter]{})
	require.NoError(t, err)
	b, err := Register(reg, 0xB, 4, Hooks[counter]{})
	require.NoError(t, err)

	assert.Equal(t, uint32(16), a.Offset())
	assert.Equal(t, uint32(24), b.Offset())
	assert.Equal(t, uint32(28), reg.InstanceSize())

	descs := reg.Descriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, chunk.Type(0xA), descs[0].ID)
	assert.Equal(t, chunk.Type(0xB), descs[1].ID)
}

func TestRegisterStreamUnknownID(t *testing.T) {
	t.Parallel()

	reg := NewRegistry("kind", 0)
	_, err := RegisterStream(reg, 0x77, counterStream())
	require.ErrorIs(t, err, ErrPluginNotFound)
}

func TestRegisterStreamTypeMismatch(t *testing.T) {
	t.Parallel()

	reg := NewRegistry("kind", 0)
	_, err := Register(reg, idCounter, 4, Hooks[counter]{})
	require.NoError(t, err)
	_, err = RegisterStream(reg, idCounter, labelStream())
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := NewRegistry("kind", 0)
	_, err := Register(reg, idCounter, 4, Hooks[counter]{})
	require.NoError(t, err)
	_, err = Register(reg, idCounter, 4, Hooks[counter]{})
	require.ErrorIs(t, err, ErrDuplicatePlugin)
}

func TestRegistrySealedAfterFirstInstance(t *testing.T) {
	t.Parallel()

	reg, _, _ := newRegistry(t)
	newRecord(t, reg)
	assert.True(t, reg.Sealed())

	_, err := Register(reg, idExtra, 4, Hooks[counter]{})
	require.ErrorIs(t, err, ErrRegistrySealed)
	_, err = RegisterStream(reg, idCounter, counterStream())
	require.ErrorIs(t, err, ErrRegistrySealed)
}

func TestConstructDestructBalanced(t *testing.T) {
	t.Parallel()

	var live int
	var order []chunk.Type
	reg := NewRegistry("kind", 0)
	for _, id := range []chunk.Type{1, 2, 3} {
		id := id
		_, err := Register(reg, id, 4, Hooks[counter]{
			Construct: func(_ Extensible, v *counter) error {
				live++
				v.Value = uint32(id)
				return nil
			},
			Destruct: func(_ Extensible, v *counter) {
				live--
				order = append(order, chunk.Type(v.Value))
			},
		})
		require.NoError(t, err)
	}
	// A plugin without hooks must not disturb its siblings.
	_, err := Register(reg, 4, 4, Hooks[label]{})
	require.NoError(t, err)

	recs := make([]*record, 5)
	for i := range recs {
		recs[i] = newRecord(t, reg)
	}
	assert.Equal(t, 15, live)
	for _, rec := range recs {
		reg.Destruct(rec)
		assert.False(t, rec.plugins.Constructed())
	}
	assert.Zero(t, live)
	assert.Equal(t, []chunk.Type{1, 2, 3}, order[:3])

	// Destructing twice is harmless.
	reg.Destruct(recs[0])
	assert.Zero(t, live)
}

func TestConstructFailureRollsBack(t *testing.T) {
	t.Parallel()

	var live int
	reg := NewRegistry("kind", 0)
	_, err := Register(reg, 1, 4, Hooks[counter]{
		Construct: func(Extensible, *counter) error { live++; return nil },
		Destruct:  func(Extensible, *counter) { live-- },
	})
	require.NoError(t, err)
	_, err = Register(reg, 2, 4, Hooks[counter]{
		Construct: func(Extensible, *counter) error { return errors.New("out of memory") },
	})
	require.NoError(t, err)

	rec := &record{}
	require.Error(t, reg.Construct(rec))
	assert.Zero(t, live)
	assert.False(t, rec.plugins.Constructed())
}

func TestCopyHooks(t *testing.T) {
	t.Parallel()

	reg := NewRegistry("kind", 0)
	cs, err := Register(reg, idCounter, 4, Hooks[counter]{
		Copy: func(dst, src *counter) error {
			*dst = *src
			return nil
		},
	})
	require.NoError(t, err)
	ls, err := Register(reg, idLabel, 4, Hooks[label]{
		Construct: func(_ Extensible, v *label) error {
			v.Text = "fresh"
			return nil
		},
	})
	require.NoError(t, err)

	src, dst := newRecord(t, reg), newRecord(t, reg)
	cs.Get(src).Value = 42
	ls.Get(src).Text = "source"

	require.NoError(t, reg.Copy(dst, src))
	assert.Equal(t, uint32(42), cs.Get(dst).Value)
	assert.Equal(t, "fresh", ls.Get(dst).Text, "no copy hook keeps the constructed value")

	require.ErrorIs(t, reg.Copy(dst, &record{}), ErrNotConstructed)
}

func TestSlotGetUnconstructed(t *testing.T) {
	t.Parallel()

	_, cs, _ := newRegistry(t)
	assert.Nil(t, cs.Get(&record{}))
}

func TestStreamRoundTrip(t *testing.T) {
	t.Parallel()

	reg, cs, ls := newRegistry(t)
	rec := newRecord(t, reg)
	cs.Get(rec).Value = 0xDEADBEEF
	ls.Get(rec).Text = "hello"

	data, err := reg.EncodeExtension(rec, chunk.DefaultVersion, chunk.DefaultBuild)
	require.NoError(t, err)
	assert.Equal(t, int(reg.ExtensionChunkSize(rec)), len(data))
	assert.Equal(t, uint32(12+4+12+5), reg.ExtensionSize(rec))

	rd, err := chunk.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	got := newRecord(t, reg)
	skipped, err := reg.ReadExtension(rd, got)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, *cs.Get(rec), *cs.Get(got))
	assert.Equal(t, *ls.Get(rec), *ls.Get(got))
	assert.Equal(t, int64(len(data)), rd.Pos())
}

func TestNegativeSizeOmitsPlugin(t *testing.T) {
	t.Parallel()

	reg, cs, ls := newRegistry(t)
	rec := newRecord(t, reg)
	cs.Get(rec).Value = 7
	ls.Get(rec).Text = ""

	data, err := reg.EncodeExtension(rec, chunk.DefaultVersion, chunk.DefaultBuild)
	require.NoError(t, err)
	require.Len(t, data, 12+12+4)

	rd, err := chunk.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	ext, err := rd.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, uint32(16), ext.Length)
	sub, err := rd.ReadHeader()
	require.NoError(t, err)
	assert.Equal(t, idCounter, sub.Type)
	assert.NotContains(t, string(data), string([]byte{0x02, 0x0F, 0, 0}))
}

func TestUnknownPluginSkipped(t *testing.T) {
	t.Parallel()

	newer := NewRegistry("kind", 0)
	_, err := Register(newer, idExtra, 4, Hooks[label]{})
	require.NoError(t, err)
	es, err := Register(newer, idCounter, 4, Hooks[counter]{})
	require.NoError(t, err)
	_, err = RegisterStream(newer, idExtra, labelStream())
	require.NoError(t, err)
	_, err = RegisterStream(newer, idCounter, counterStream())
	require.NoError(t, err)

	rec := newRecord(t, newer)
	Slot[label]{desc: mustLookup(t, newer, idExtra)}.Get(rec).Text = "from the future"
	es.Get(rec).Value = 99

	data, err := newer.EncodeExtension(rec, chunk.DefaultVersion, chunk.DefaultBuild)
	require.NoError(t, err)

	older, cs, _ := newRegistry(t)
	got := newRecord(t, older)
	rd, err := chunk.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	skipped, err := older.ReadExtension(rd, got)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, idExtra, skipped[0].Type)
	assert.Equal(t, uint32(99), cs.Get(got).Value)
}

func mustLookup(t *testing.T, reg *Registry, id chunk.Type) *Descriptor {
	t.Helper()
	d, ok := reg.Lookup(id)
	require.True(t, ok)
	return d
}

func TestReadExtensionCorrupt(t *testing.T) {
	t.Parallel()

	reg, cs, _ := newRegistry(t)
	rec := newRecord(t, reg)
	cs.Get(rec).Value = 1
	data, err := reg.EncodeExtension(rec, chunk.DefaultVersion, chunk.DefaultBuild)
	require.NoError(t, err)

	// Extension claims more than the stream holds.
	rd, err := chunk.NewReader(bytes.NewReader(data[:len(data)-2]))
	require.NoError(t, err)
	_, err = reg.ReadExtension(rd, newRecord(t, reg))
	require.ErrorIs(t, err, ErrCorruptAsset)

	// Plugin payload shorter than what its read hook consumes.
	var buf bytes.Buffer
	w := chunk.NewWriter(&buf, chunk.DefaultVersion, chunk.DefaultBuild)
	require.NoError(t, w.WriteHeader(chunk.TypeExtension, 12+2+12))
	require.NoError(t, w.WriteHeader(idCounter, 2))
	require.NoError(t, w.WriteU16(5))
	require.NoError(t, w.WriteHeader(idExtra, 0))
	require.NoError(t, w.WriteHeader(chunk.TypeNAObject, 0))
	rd, err = chunk.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	_, err = reg.ReadExtension(rd, newRecord(t, reg))
	require.ErrorIs(t, err, ErrCorruptAsset)

	// Missing extension chunk.
	rd, err = chunk.NewReader(bytes.NewReader(data[12:]))
	require.NoError(t, err)
	_, err = reg.ReadExtension(rd, newRecord(t, reg))
	require.ErrorIs(t, err, ErrCorruptAsset)
}

func TestReadHookStopsAtPayloadEnd(t *testing.T) {
	t.Parallel()

	reg, cs, _ := newRegistry(t)

	// A two-byte counter payload at the end of the extension, followed by a
	// sibling chunk whose bytes would satisfy a four-byte read.
	var buf bytes.Buffer
	w := chunk.NewWriter(&buf, chunk.DefaultVersion, chunk.DefaultBuild)
	require.NoError(t, w.WriteHeader(chunk.TypeExtension, 12+2))
	require.NoError(t, w.WriteHeader(idCounter, 2))
	require.NoError(t, w.WriteU16(5))
	require.NoError(t, w.WriteHeader(chunk.TypeStruct, 4))
	require.NoError(t, w.WriteU32(0xFFFFFFFF))

	rd, err := chunk.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	rec := newRecord(t, reg)
	_, err = reg.ReadExtension(rd, rec)
	require.ErrorIs(t, err, ErrCorruptAsset)
	require.ErrorIs(t, err, chunk.ErrChunkTruncated)
	assert.Zero(t, cs.Get(rec).Value)

	// The bound is lifted once the extension is done.
	assert.Equal(t, rd.Size()-rd.Pos(), rd.Remaining())
}

func TestWriteSizeMismatch(t *testing.T) {
	t.Parallel()

	reg := NewRegistry("kind", 0)
	_, err := Register(reg, idCounter, 4, Hooks[counter]{})
	require.NoError(t, err)
	_, err = RegisterStream(reg, idCounter, StreamHooks[counter]{
		Write: func(w *chunk.Writer, _ Extensible, v *counter) error { return w.WriteU32(v.Value) },
		Size:  func(Extensible, *counter) int32 { return 8 },
	})
	require.NoError(t, err)

	_, err = reg.EncodeExtension(newRecord(t, reg), chunk.DefaultVersion, chunk.DefaultBuild)
	require.Error(t, err)
}
