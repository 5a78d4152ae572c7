package ps2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/strata/internal/mesh"
	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/platformtest"
)

func TestFourVertexStripRoundTrip(t *testing.T) {
	t.Parallel()

	want := &mesh.Mesh{
		Prim:      mesh.TriStrip,
		Positions: []mesh.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}},
		Groups:    []mesh.Group{{Indices: []uint32{0, 1, 2, 3}}},
	}
	got := platformtest.RoundTrip(t, New(), want)

	assert.Equal(t, want.Positions, got.Positions)
	assert.Equal(t, want.Groups, got.Groups)
	assert.Equal(t, want.Triangles(want.Groups[0]), got.Triangles(got.Groups[0]))
}

func TestRoundTripBox(t *testing.T) {
	t.Parallel()

	want := platformtest.Box()
	got := platformtest.RoundTrip(t, New(), want)
	platformtest.AssertEquivalent(t, want, got, 1.0/127)
	assert.Equal(t, want.NumVertices(), got.NumVertices())
}

func TestLongStripIsBatchedWithOverlap(t *testing.T) {
	t.Parallel()

	want := platformtest.Strip(60)
	buf, err := New().Instance(want)
	require.NoError(t, err)

	in, err := Parse(buf.Payload)
	require.NoError(t, err)
	require.Len(t, in.Groups, 1)
	counts := []int{}
	for _, b := range in.Groups[0].Batches {
		counts = append(counts, b.Count)
	}
	// 120 vertices: batches start at 0, 46 and 92.
	assert.Equal(t, []int{48, 48, 28}, counts)

	got, err := New().Uninstance(buf)
	require.NoError(t, err)
	platformtest.AssertEquivalent(t, want, got, 0)
	assert.Equal(t, want.Positions, got.Positions)
}

func TestLongListIsBatchedOnTriangles(t *testing.T) {
	t.Parallel()

	strip := platformtest.Strip(40)
	want := &mesh.Mesh{Prim: mesh.TriList, Positions: strip.Positions}
	var idx []uint32
	for i := 0; i+3 < len(strip.Positions); i += 2 {
		idx = append(idx, uint32(i), uint32(i+1), uint32(i+2), uint32(i+2), uint32(i+1), uint32(i+3))
	}
	want.Groups = []mesh.Group{{Material: 2, Indices: idx}}

	buf, err := New().Instance(want)
	require.NoError(t, err)
	in, err := Parse(buf.Payload)
	require.NoError(t, err)
	for _, b := range in.Groups[0].Batches {
		assert.Zero(t, b.Count%3)
		assert.LessOrEqual(t, b.Count, BatchSize)
	}

	got, err := New().Uninstance(buf)
	require.NoError(t, err)
	platformtest.AssertEquivalent(t, want, got, 0)
}

func TestUninstanceMergesSharedVertices(t *testing.T) {
	t.Parallel()

	m := &mesh.Mesh{
		Prim:      mesh.TriList,
		Positions: []mesh.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}},
		Groups: []mesh.Group{
			{Material: 0, Indices: []uint32{0, 1, 2}},
			{Material: 1, Indices: []uint32{2, 1, 3}},
		},
	}
	got := platformtest.RoundTrip(t, New(), m)
	assert.Equal(t, 4, got.NumVertices())
	assert.Equal(t, []uint32{2, 1, 3}, got.Groups[1].Indices)
}

func TestUninstanceOrdersVerticesByFirstUse(t *testing.T) {
	t.Parallel()

	m := &mesh.Mesh{
		Prim:      mesh.TriList,
		Positions: []mesh.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {5, 5, 5}},
		Groups:    []mesh.Group{{Indices: []uint32{2, 0, 1}}},
	}
	got := platformtest.RoundTrip(t, New(), m)
	assert.Equal(t, []mesh.Vec3{{0, 1, 0}, {0, 0, 0}, {1, 0, 0}}, got.Positions)
	assert.Equal(t, []uint32{0, 1, 2}, got.Groups[0].Indices)
}

func TestBatchDescriptors(t *testing.T) {
	t.Parallel()

	buf, err := New().Instance(platformtest.Box())
	require.NoError(t, err)

	// header (5 words), group header (3 words), then the DMA tag.
	tag := buf.Payload[32:48]
	assert.Equal(t, byte(dmaEnd<<4), tag[3]&0x70, "single batch ends the chain")
	assert.Equal(t, []byte{0x01, 0x01, 0x00, vifStcycl}, tag[8:12])
	assert.Equal(t, []byte{18, 0x00, 0x00, vifItop}, tag[12:16])
	assert.Equal(t, []byte{0x00, 0x00, 18, unpackV3x32}, buf.Payload[48:52])
}

func TestRejectsCorruptPayload(t *testing.T) {
	t.Parallel()

	buf, err := New().Instance(platformtest.Box())
	require.NoError(t, err)

	require.ErrorIs(t, New().Validate(buf.Payload[:len(buf.Payload)-16]), platform.ErrCorruptNative)

	bad := append([]byte(nil), buf.Payload...)
	bad[8] = 2 // claims a texture coordinate set the batches lack
	require.ErrorIs(t, New().Validate(bad), platform.ErrCorruptNative)

	bad = append([]byte(nil), buf.Payload...)
	bad[47] = 0x05 // not an ITOP code
	require.ErrorIs(t, New().Validate(bad), platform.ErrCorruptNative)

	_, err = New().Uninstance(platform.NativeBuffer{Platform: platform.GL, Payload: buf.Payload})
	require.ErrorIs(t, err, platform.ErrUnsupportedPlatform)
}
