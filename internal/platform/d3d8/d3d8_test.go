package d3d8

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/strata/internal/mesh"
	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/binbuf"
	"github.com/samcharles93/strata/internal/platform/platformtest"
)

func TestRoundTripBox(t *testing.T) {
	t.Parallel()

	want := platformtest.Box()
	got := platformtest.RoundTrip(t, New(), want)
	platformtest.AssertEquivalent(t, want, got, 0)
	assert.Equal(t, want.Normals, got.Normals)
}

func TestRoundTripStrip(t *testing.T) {
	t.Parallel()

	want := platformtest.Strip(30)
	got := platformtest.RoundTrip(t, New(), want)
	assert.Equal(t, mesh.TriStrip, got.Prim)
	platformtest.AssertEquivalent(t, want, got, 0)
}

func TestBuffersAreRelativeToMinVert(t *testing.T) {
	t.Parallel()

	m := platformtest.Strip(4)
	m.Groups = []mesh.Group{
		{Material: 0, Indices: []uint32{0, 1, 2, 3}},
		{Material: 1, Indices: []uint32{4, 5, 6, 7}},
	}
	buf, err := New().Instance(m)
	require.NoError(t, err)

	inst, err := Parse(buf.Payload)
	require.NoError(t, err)
	require.Len(t, inst.Buffers, 2)
	b := inst.Buffers[1]
	assert.Equal(t, uint32(4), b.MinVert)
	assert.Equal(t, uint32(4), b.NumVertices)
	assert.Equal(t, []uint16{0, 1, 2, 3}, b.Indices)
	assert.Equal(t, uint32(12), b.Stride)
	assert.Equal(t, FVFXYZ, b.FVF)
	assert.Len(t, b.Vertices, 48)
}

func TestFVFCarriesAttributes(t *testing.T) {
	t.Parallel()

	buf, err := New().Instance(platformtest.Box())
	require.NoError(t, err)
	inst, err := Parse(buf.Payload)
	require.NoError(t, err)
	f := inst.Buffers[0].FVF
	assert.Equal(t, FVFXYZ|FVFNormal|FVFDiffuse|1<<FVFTexShift, f)
	assert.Equal(t, uint32(12+12+4+8), inst.Buffers[0].Stride)
}

func TestColourIsStoredBGRA(t *testing.T) {
	t.Parallel()

	m := &mesh.Mesh{
		Prim:      mesh.TriList,
		Positions: []mesh.Vec3{{}, {}, {}},
		Colors:    []mesh.RGBA{{R: 1, G: 2, B: 3, A: 4}, {}, {}},
		Groups:    []mesh.Group{{Indices: []uint32{0, 1, 2}}},
	}
	buf, err := New().Instance(m)
	require.NoError(t, err)
	inst, err := Parse(buf.Payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 2, 1, 4}, inst.Buffers[0].Vertices[12:16])
}

func TestRejectsCorruptPayload(t *testing.T) {
	t.Parallel()

	buf, err := New().Instance(platformtest.Box())
	require.NoError(t, err)

	require.ErrorIs(t, New().Validate(buf.Payload[:len(buf.Payload)-1]), platform.ErrCorruptNative)
	require.ErrorIs(t, New().Validate(buf.Payload[:10]), platform.ErrCorruptNative)

	_, err = New().Uninstance(platform.NativeBuffer{Platform: platform.PS2, Payload: buf.Payload})
	require.ErrorIs(t, err, platform.ErrUnsupportedPlatform)
}

func TestInstanceRejectsInvalidMesh(t *testing.T) {
	t.Parallel()

	m := platformtest.Box()
	m.Groups[0].Indices[0] = 99
	_, err := New().Instance(m)
	require.ErrorIs(t, err, mesh.ErrInvalidMesh)
}

func TestTexSetCountIsBounded(t *testing.T) {
	t.Parallel()

	// A header-only payload declaring every texture set a u32 can count.
	e := binbuf.NewEncoder(16)
	e.U32(PrimTriangleList)
	e.U32(0)
	e.U32(0xFFFFFFFF)
	e.U32(0)
	require.ErrorIs(t, New().Validate(e.Bytes()), platform.ErrCorruptNative)
	_, err := New().Uninstance(platform.NativeBuffer{Platform: platform.D3D8, Payload: e.Bytes()})
	require.ErrorIs(t, err, platform.ErrCorruptNative)

	buf, err := New().Instance(platformtest.Box())
	require.NoError(t, err)
	bad := append([]byte(nil), buf.Payload...)
	bad[16+4*4+1] = 0x09 // first buffer's fvf: nine texture sets
	require.ErrorIs(t, New().Validate(bad), platform.ErrCorruptNative)

	m := platformtest.Box()
	for len(m.TexCoords) <= MaxTexSets {
		m.TexCoords = append(m.TexCoords, m.TexCoords[0])
	}
	_, err = New().Instance(m)
	require.Error(t, err)
}
