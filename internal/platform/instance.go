package platform

import (
	"fmt"

	"github.com/samcharles93/strata/internal/mesh"
)

// Attribute presence flags shared by the native payload headers.
const (
	FlagNormals uint32 = 1 << 0
	FlagColors  uint32 = 1 << 1
)

// AttribFlags returns the presence flags of m.
func AttribFlags(m *mesh.Mesh) uint32 {
	var f uint32
	if m.HasNormals() {
		f |= FlagNormals
	}
	if m.HasColors() {
		f |= FlagColors
	}
	return f
}

// Range is the window of vertices one group references.
type Range struct {
	Min   uint32
	Count uint32
}

// GroupRange returns the referenced window of g; empty groups get an empty range.
func GroupRange(g mesh.Group) Range {
	lo, hi, ok := g.MinMax()
	if !ok {
		return Range{}
	}
	return Range{Min: lo, Count: hi - lo + 1}
}

// Relative16 rewrites indices relative to base as 16-bit values.
func Relative16(indices []uint32, base uint32) ([]uint16, error) {
	out := make([]uint16, len(indices))
	for i, idx := range indices {
		rel := idx - base
		if idx < base || rel > 0xFFFF {
			return nil, fmt.Errorf("index %d does not fit 16 bits relative to %d", idx, base)
		}
		out[i] = uint16(rel)
	}
	return out, nil
}

// NewShell allocates an empty mesh with room for numVerts vertices and the
// given attributes.
func NewShell(prim mesh.PrimType, numVerts int, flags uint32, numTexSets int) *mesh.Mesh {
	m := &mesh.Mesh{Prim: prim, Positions: make([]mesh.Vec3, numVerts)}
	if flags&FlagNormals != 0 {
		m.Normals = make([]mesh.Vec3, numVerts)
	}
	if flags&FlagColors != 0 {
		m.Colors = make([]mesh.RGBA, numVerts)
	}
	for i := 0; i < numTexSets; i++ {
		m.TexCoords = append(m.TexCoords, make([]mesh.Vec2, numVerts))
	}
	return m
}
