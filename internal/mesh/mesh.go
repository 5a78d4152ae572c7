// Package mesh defines the back-end independent mesh that platform codecs
// instance from and uninstance into.
package mesh

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

var ErrInvalidMesh = errors.New("invalid mesh")

type (
	Vec2 = mgl32.Vec2
	Vec3 = mgl32.Vec3
)

// RGBA is a prelit vertex colour.
type RGBA struct {
	R, G, B, A uint8
}

// PrimType is the primitive topology shared by every group of a mesh.
type PrimType uint32

const (
	TriList  PrimType = 0
	TriStrip PrimType = 1
)

func (p PrimType) String() string {
	switch p {
	case TriList:
		return "trilist"
	case TriStrip:
		return "tristrip"
	default:
		return fmt.Sprintf("prim(%d)", uint32(p))
	}
}

// Group is the index list of one material.
type Group struct {
	Material uint32
	Indices  []uint32
}

// MinMax returns the smallest and largest referenced vertex index.
func (g Group) MinMax() (lo, hi uint32, ok bool) {
	if len(g.Indices) == 0 {
		return 0, 0, false
	}
	lo, hi = g.Indices[0], g.Indices[0]
	for _, idx := range g.Indices[1:] {
		lo = min(lo, idx)
		hi = max(hi, idx)
	}
	return lo, hi, true
}

// Mesh is a generic indexed mesh. Per-vertex attribute slices are either empty
// or exactly as long as Positions.
type Mesh struct {
	Prim      PrimType
	Positions []Vec3
	Normals   []Vec3
	Colors    []RGBA
	TexCoords [][]Vec2
	Groups    []Group
}

// NumVertices returns the vertex count.
func (m *Mesh) NumVertices() int { return len(m.Positions) }

// HasNormals reports whether the mesh carries normals.
func (m *Mesh) HasNormals() bool { return len(m.Normals) > 0 }

// HasColors reports whether the mesh carries prelit colours.
func (m *Mesh) HasColors() bool { return len(m.Colors) > 0 }

// NumIndices returns the index count over all groups.
func (m *Mesh) NumIndices() int {
	n := 0
	for _, g := range m.Groups {
		n += len(g.Indices)
	}
	return n
}

// Validate checks attribute lengths, index ranges and group sizes.
func (m *Mesh) Validate() error {
	n := len(m.Positions)
	if len(m.Normals) != 0 && len(m.Normals) != n {
		return fmt.Errorf("%w: %d normals for %d vertices", ErrInvalidMesh, len(m.Normals), n)
	}
	if len(m.Colors) != 0 && len(m.Colors) != n {
		return fmt.Errorf("%w: %d colours for %d vertices", ErrInvalidMesh, len(m.Colors), n)
	}
	for i, set := range m.TexCoords {
		if len(set) != n {
			return fmt.Errorf("%w: texcoord set %d has %d entries for %d vertices", ErrInvalidMesh, i, len(set), n)
		}
	}
	if m.Prim != TriList && m.Prim != TriStrip {
		return fmt.Errorf("%w: primitive %s", ErrInvalidMesh, m.Prim)
	}
	for gi, g := range m.Groups {
		if m.Prim == TriList && len(g.Indices)%3 != 0 {
			return fmt.Errorf("%w: group %d: %d list indices", ErrInvalidMesh, gi, len(g.Indices))
		}
		if m.Prim == TriStrip && len(g.Indices) > 0 && len(g.Indices) < 3 {
			return fmt.Errorf("%w: group %d: strip of %d indices", ErrInvalidMesh, gi, len(g.Indices))
		}
		for _, idx := range g.Indices {
			if int(idx) >= n {
				return fmt.Errorf("%w: group %d: index %d out of %d vertices", ErrInvalidMesh, gi, idx, n)
			}
		}
	}
	return nil
}

// Triangles returns every non-degenerate triangle of a group in its winding
// order. Odd strip triangles are flipped so all triangles face the same way.
func (m *Mesh) Triangles(g Group) [][3]uint32 {
	var tris [][3]uint32
	idx := g.Indices
	switch m.Prim {
	case TriList:
		for i := 0; i+2 < len(idx); i += 3 {
			tris = append(tris, [3]uint32{idx[i], idx[i+1], idx[i+2]})
		}
	case TriStrip:
		for i := 0; i+2 < len(idx); i++ {
			a, b, c := idx[i], idx[i+1], idx[i+2]
			if a == b || b == c || a == c {
				continue
			}
			if i%2 == 1 {
				a, b = b, a
			}
			tris = append(tris, [3]uint32{a, b, c})
		}
	}
	return tris
}

// Bounds returns the axis-aligned box around every position.
func (m *Mesh) Bounds() (lo, hi Vec3) {
	if len(m.Positions) == 0 {
		return lo, hi
	}
	lo, hi = m.Positions[0], m.Positions[0]
	for _, p := range m.Positions[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = math32.Min(lo[k], p[k])
			hi[k] = math32.Max(hi[k], p[k])
		}
	}
	return lo, hi
}

// Sphere returns a bounding sphere centred on the box centre.
func (m *Mesh) Sphere() (centre Vec3, radius float32) {
	lo, hi := m.Bounds()
	centre = lo.Add(hi).Mul(0.5)
	for _, p := range m.Positions {
		radius = math32.Max(radius, p.Sub(centre).Len())
	}
	return centre, radius
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Prim:      m.Prim,
		Positions: append([]Vec3(nil), m.Positions...),
		Normals:   append([]Vec3(nil), m.Normals...),
		Colors:    append([]RGBA(nil), m.Colors...),
	}
	for _, set := range m.TexCoords {
		out.TexCoords = append(out.TexCoords, append([]Vec2(nil), set...))
	}
	for _, g := range m.Groups {
		out.Groups = append(out.Groups, Group{Material: g.Material, Indices: append([]uint32(nil), g.Indices...)})
	}
	return out
}
