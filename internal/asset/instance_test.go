package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/d3d8"
	"github.com/samcharles93/strata/internal/platform/gl"
	"github.com/samcharles93/strata/internal/platform/platformtest"
	"github.com/samcharles93/strata/pkg/chunk"
)

func TestInstanceStateMachine(t *testing.T) {
	t.Parallel()
	for _, tag := range []platform.Tag{platform.D3D8, platform.D3D9, platform.GL, platform.PS2} {
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()
			e := newEngine(t, Options{})
			g := boxGeometry(t, e)
			want := g.Mesh.Clone()

			require.NoError(t, e.Uninstance(g))
			assert.Equal(t, want, g.Mesh)

			require.NoError(t, e.Instance(g, tag))
			require.True(t, g.IsNative())
			assert.Nil(t, g.Mesh)
			assert.Nil(t, g.Triangles)
			buf := e.Native(g)
			require.NotNil(t, buf)
			assert.Equal(t, tag, buf.Platform)
			assert.Equal(t, 8, g.NumVertices())
			assert.Equal(t, 1, g.NumTexSets())

			require.NoError(t, e.Instance(g, platform.GL))
			assert.Same(t, buf, e.Native(g))

			b := encode(t, e, func(w *chunk.Writer) error { return e.WriteGeometry(w, g) })
			require.Len(t, b, int(e.GeometrySize(g)))

			got, err := e.ReadGeometry(reader(t, b))
			require.NoError(t, err)
			require.True(t, got.IsNative())
			assert.Equal(t, buf.Payload, e.Native(got).Payload)
			bm := e.BinMesh(got)
			require.Len(t, bm.Groups, 2)
			assert.Equal(t, uint32(18), bm.Groups[0].NumIndices)
			assert.Equal(t, uint32(1), bm.Groups[1].Material)
			assert.Nil(t, bm.Groups[0].Indices)

			again := encode(t, e, func(w *chunk.Writer) error { return e.WriteGeometry(w, got) })
			assert.Equal(t, b, again)

			require.NoError(t, e.Uninstance(got))
			assert.False(t, got.IsNative())
			assert.Nil(t, e.Native(got))
			platformtest.AssertEquivalent(t, want, got.Mesh, 1.0/64)
			assert.Equal(t, trianglesOf(got.Mesh), got.Triangles)
			assert.Equal(t, g.Flags&^GeoNative, got.Flags)
		})
	}
}

func TestInstanceUnsupportedPlatform(t *testing.T) {
	t.Parallel()
	e, err := NewEngine(DefaultOptions(), nil, gl.New())
	require.NoError(t, err)
	g := boxGeometry(t, e)

	require.ErrorIs(t, e.Instance(g, platform.PS2), platform.ErrUnsupportedPlatform)
	assert.False(t, g.IsNative())
	assert.NotNil(t, g.Mesh)

	_, err = NewEngine(Options{InstanceOnLoad: true, Platform: platform.PS2}, nil, gl.New())
	require.ErrorIs(t, err, platform.ErrUnsupportedPlatform)
}

func TestInstanceOnLoad(t *testing.T) {
	t.Parallel()
	plain := newEngine(t, Options{})
	g := boxGeometry(t, plain)
	b := encode(t, plain, func(w *chunk.Writer) error { return plain.WriteGeometry(w, g) })

	e := newEngine(t, Options{InstanceOnLoad: true, Platform: platform.D3D8})
	got, err := e.ReadGeometry(reader(t, b))
	require.NoError(t, err)
	require.True(t, got.IsNative())
	assert.Equal(t, platform.D3D8, e.Native(got).Platform)
}

func TestUnsupportedNativeDataPassesThrough(t *testing.T) {
	t.Parallel()
	e := newEngine(t, Options{})
	g := boxGeometry(t, e)
	require.NoError(t, e.Instance(g, platform.PS2))
	b := encode(t, e, func(w *chunk.Writer) error { return e.WriteGeometry(w, g) })

	d3dOnly, logs := captureEngine(t, Options{}, d3d8.New())
	got, err := d3dOnly.ReadGeometry(reader(t, b))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "passing through native geometry")
	assert.Equal(t, platform.PS2, d3dOnly.Native(got).Platform)
	require.ErrorIs(t, d3dOnly.Uninstance(got), platform.ErrUnsupportedPlatform)

	again := encode(t, d3dOnly, func(w *chunk.Writer) error { return d3dOnly.WriteGeometry(w, got) })
	assert.Equal(t, b, again)
}

func TestCorruptNativeDataRejected(t *testing.T) {
	t.Parallel()
	e := newEngine(t, Options{})
	g := boxGeometry(t, e)
	require.NoError(t, e.Instance(g, platform.D3D9))
	buf := e.Native(g)
	buf.Payload = buf.Payload[:10]

	b := encode(t, e, func(w *chunk.Writer) error { return e.WriteGeometry(w, g) })
	_, err := e.ReadGeometry(reader(t, b))
	require.ErrorIs(t, err, ErrCorruptAsset)
}

func TestNativeGeometryRequiresNativeData(t *testing.T) {
	t.Parallel()
	e := newEngine(t, Options{})
	g := boxGeometry(t, e)
	require.NoError(t, e.Instance(g, platform.GL))
	e.nativeData.Get(g).Buffer = nil

	b := encode(t, e, func(w *chunk.Writer) error { return e.WriteGeometry(w, g) })
	_, err := e.ReadGeometry(reader(t, b))
	require.ErrorIs(t, err, ErrCorruptAsset)
	require.ErrorIs(t, e.Uninstance(g), ErrNoGeometry)
}

func TestCopyNativeGeometry(t *testing.T) {
	t.Parallel()
	e := newEngine(t, Options{})
	g := boxGeometry(t, e)
	require.NoError(t, e.Instance(g, platform.D3D8))

	cp, err := e.CopyGeometry(g)
	require.NoError(t, err)
	require.True(t, cp.IsNative())
	assert.Equal(t, e.Native(g).Payload, e.Native(cp).Payload)
	e.Native(cp).Payload[0] ^= 0xFF
	assert.NotEqual(t, e.Native(g).Payload[0], e.Native(cp).Payload[0])
	assert.Equal(t, e.BinMesh(g).Groups, e.BinMesh(cp).Groups)
}
