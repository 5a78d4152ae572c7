// Package platformtest holds meshes and assertions shared by the codec tests.
package platformtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/strata/internal/mesh"
	"github.com/samcharles93/strata/internal/platform"
)

// Box returns an 8-vertex, 12-triangle list mesh split over two materials with
// unit normals, prelit colours and one texture coordinate set.
func Box() *mesh.Mesh {
	m := &mesh.Mesh{Prim: mesh.TriList}
	for i := 0; i < 8; i++ {
		x, y, z := float32(i&1), float32(i>>1&1), float32(i>>2&1)
		m.Positions = append(m.Positions, mesh.Vec3{x*2 - 1, y*2 - 1, z*2 - 1})
		n := mesh.Vec3{x*2 - 1, y*2 - 1, z*2 - 1}.Normalize()
		m.Normals = append(m.Normals, n)
		m.Colors = append(m.Colors, mesh.RGBA{R: uint8(i * 30), G: uint8(255 - i*30), B: uint8(i * 7), A: 255})
	}
	uv := make([]mesh.Vec2, 8)
	for i := range uv {
		uv[i] = mesh.Vec2{float32(i&1) * 0.5, float32(i>>1&1) * 0.25}
	}
	m.TexCoords = [][]mesh.Vec2{uv}
	m.Groups = []mesh.Group{
		{Material: 0, Indices: []uint32{0, 1, 3, 0, 3, 2, 4, 6, 7, 4, 7, 5, 0, 4, 5, 0, 5, 1}},
		{Material: 1, Indices: []uint32{2, 3, 7, 2, 7, 6, 0, 2, 6, 0, 6, 4, 1, 5, 7, 1, 7, 3}},
	}
	return m
}

// Strip returns a two-row triangle strip of n columns with positions only.
func Strip(n int) *mesh.Mesh {
	m := &mesh.Mesh{Prim: mesh.TriStrip}
	var idx []uint32
	for i := 0; i < n; i++ {
		m.Positions = append(m.Positions, mesh.Vec3{float32(i), 0, 0}, mesh.Vec3{float32(i), 1, 0})
		idx = append(idx, uint32(2*i), uint32(2*i+1))
	}
	m.Groups = []mesh.Group{{Material: 3, Indices: idx}}
	return m
}

// Triangles returns every triangle of m as resolved vertex positions, grouped
// by material.
func Triangles(m *mesh.Mesh) map[uint32][][3]mesh.Vec3 {
	out := make(map[uint32][][3]mesh.Vec3)
	for _, g := range m.Groups {
		for _, tri := range m.Triangles(g) {
			out[g.Material] = append(out[g.Material], [3]mesh.Vec3{
				m.Positions[tri[0]], m.Positions[tri[1]], m.Positions[tri[2]],
			})
		}
	}
	return out
}

// RoundTrip instances m with c, uninstances the result and returns the mesh.
func RoundTrip(t *testing.T, c platform.Codec, m *mesh.Mesh) *mesh.Mesh {
	t.Helper()
	buf, err := c.Instance(m)
	require.NoError(t, err)
	require.Equal(t, c.Platform(), buf.Platform)
	require.NoError(t, c.Validate(buf.Payload))
	got, err := c.Uninstance(buf)
	require.NoError(t, err)
	return got
}

// AssertEquivalent checks that got draws the same triangles as want with the
// same attributes. Normals are compared within normalTol.
func AssertEquivalent(t *testing.T, want, got *mesh.Mesh, normalTol float32) {
	t.Helper()
	require.NoError(t, got.Validate())
	assert.Equal(t, Triangles(want), Triangles(got))
	assert.Equal(t, want.HasNormals(), got.HasNormals())
	assert.Equal(t, want.HasColors(), got.HasColors())
	require.Equal(t, len(want.TexCoords), len(got.TexCoords))

	// Attributes are compared per drawn corner so codecs may reorder vertices.
	for gi, g := range want.Groups {
		gg := got.Groups[gi]
		require.Equal(t, len(g.Indices), len(gg.Indices), "group %d", gi)
		for k := range g.Indices {
			a, b := g.Indices[k], gg.Indices[k]
			assert.Equal(t, want.Positions[a], got.Positions[b])
			if want.HasNormals() {
				for k := 0; k < 3; k++ {
					assert.InDelta(t, want.Normals[a][k], got.Normals[b][k], float64(normalTol)+1e-6)
				}
			}
			if want.HasColors() {
				assert.Equal(t, want.Colors[a], got.Colors[b])
			}
			for s := range want.TexCoords {
				assert.Equal(t, want.TexCoords[s][a], got.TexCoords[s][b])
			}
		}
	}
}
