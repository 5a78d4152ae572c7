// Package d3d8 instances meshes into per-material vertex and index buffers in
// the fixed-function vertex format order: position, normal, diffuse colour,
// texture coordinates.
package d3d8

import (
	"fmt"

	"github.com/samcharles93/strata/internal/mesh"
	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/binbuf"
)

// Flexible vertex format bits recorded with every buffer.
const (
	FVFXYZ      uint32 = 0x002
	FVFNormal   uint32 = 0x010
	FVFDiffuse  uint32 = 0x040
	FVFTexShift        = 8
)

// MaxTexSets is the number of texture coordinate sets a vertex format can carry.
const MaxTexSets = 8

// Primitive types.
const (
	PrimTriangleList  uint32 = 4
	PrimTriangleStrip uint32 = 5
)

// Buffer is one material's instanced geometry.
type Buffer struct {
	Material    uint32
	MinVert     uint32
	NumVertices uint32
	Stride      uint32
	FVF         uint32
	Indices     []uint16
	Vertices    []byte
}

// Instances is the platform view of a D3D8 native payload.
type Instances struct {
	PrimType    uint32
	NumVertices uint32
	NumTexSets  uint32
	Buffers     []Buffer
}

// Codec implements platform.Codec for D3D8.
type Codec struct{}

func New() *Codec { return &Codec{} }

func (*Codec) Platform() platform.Tag { return platform.D3D8 }

func fvf(flags uint32, texSets int) uint32 {
	f := FVFXYZ | uint32(texSets)<<FVFTexShift
	if flags&platform.FlagNormals != 0 {
		f |= FVFNormal
	}
	if flags&platform.FlagColors != 0 {
		f |= FVFDiffuse
	}
	return f
}

func stride(f uint32) uint32 {
	s := uint32(12)
	if f&FVFNormal != 0 {
		s += 12
	}
	if f&FVFDiffuse != 0 {
		s += 4
	}
	return s + 8*(f>>FVFTexShift&0xF)
}

func primType(p mesh.PrimType) uint32 {
	if p == mesh.TriStrip {
		return PrimTriangleStrip
	}
	return PrimTriangleList
}

func (*Codec) Instance(m *mesh.Mesh) (platform.NativeBuffer, error) {
	if err := m.Validate(); err != nil {
		return platform.NativeBuffer{}, err
	}
	if len(m.TexCoords) > MaxTexSets {
		return platform.NativeBuffer{}, fmt.Errorf("d3d8: %d texture coordinate sets, at most %d", len(m.TexCoords), MaxTexSets)
	}
	f := fvf(platform.AttribFlags(m), len(m.TexCoords))
	st := stride(f)

	e := binbuf.NewEncoder(64 + m.NumIndices()*2 + m.NumVertices()*int(st))
	e.U32(primType(m.Prim))
	e.U32(uint32(m.NumVertices()))
	e.U32(uint32(len(m.TexCoords)))
	e.U32(uint32(len(m.Groups)))
	for gi, g := range m.Groups {
		rng := platform.GroupRange(g)
		idx, err := platform.Relative16(g.Indices, rng.Min)
		if err != nil {
			return platform.NativeBuffer{}, fmt.Errorf("d3d8: group %d: %w", gi, err)
		}
		e.U32(g.Material)
		e.U32(rng.Min)
		e.U32(rng.Count)
		e.U32(st)
		e.U32(f)
		e.U32(uint32(len(idx)))
		for _, v := range idx {
			e.U16(v)
		}
		e.Pad(4)
		for v := rng.Min; v < rng.Min+rng.Count; v++ {
			writeVertex(e, m, int(v), f)
		}
	}
	return platform.NativeBuffer{Platform: platform.D3D8, Payload: e.Bytes()}, nil
}

func writeVertex(e *binbuf.Encoder, m *mesh.Mesh, v int, f uint32) {
	p := m.Positions[v]
	e.F32(p[0])
	e.F32(p[1])
	e.F32(p[2])
	if f&FVFNormal != 0 {
		n := m.Normals[v]
		e.F32(n[0])
		e.F32(n[1])
		e.F32(n[2])
	}
	if f&FVFDiffuse != 0 {
		c := m.Colors[v]
		// D3DCOLOR is ARGB in a little-endian dword.
		e.U8(c.B)
		e.U8(c.G)
		e.U8(c.R)
		e.U8(c.A)
	}
	for _, set := range m.TexCoords {
		e.F32(set[v][0])
		e.F32(set[v][1])
	}
}

// Parse builds the platform view of a payload.
func Parse(payload []byte) (*Instances, error) {
	d := binbuf.NewDecoder(payload)
	inst := &Instances{
		PrimType:    d.U32(),
		NumVertices: d.U32(),
		NumTexSets:  d.U32(),
	}
	if d.Err() == nil && inst.NumTexSets > MaxTexSets {
		d.Fail("%d texture coordinate sets, at most %d", inst.NumTexSets, MaxTexSets)
	}
	numBufs := d.Count(24)
	for i := 0; i < numBufs && d.Err() == nil; i++ {
		b := Buffer{
			Material:    d.U32(),
			MinVert:     d.U32(),
			NumVertices: d.U32(),
			Stride:      d.U32(),
			FVF:         d.U32(),
		}
		n := d.Count(2)
		raw := d.Raw(n * 2)
		if raw != nil {
			b.Indices = make([]uint16, n)
			for k := range b.Indices {
				b.Indices[k] = uint16(raw[2*k]) | uint16(raw[2*k+1])<<8
			}
		}
		d.Align(4)
		if d.Err() == nil && b.FVF>>FVFTexShift&0xF > MaxTexSets {
			d.Fail("buffer %d: fvf 0x%x carries more than %d texture sets", i, b.FVF, MaxTexSets)
		}
		if d.Err() == nil && b.Stride != stride(b.FVF) {
			d.Fail("buffer %d: stride %d does not match fvf 0x%x", i, b.Stride, b.FVF)
		}
		if d.Err() == nil && uint64(b.MinVert)+uint64(b.NumVertices) > uint64(inst.NumVertices) {
			d.Fail("buffer %d: vertex window exceeds %d vertices", i, inst.NumVertices)
		}
		for _, idx := range b.Indices {
			if uint32(idx) >= b.NumVertices {
				d.Fail("buffer %d: index %d outside %d vertices", i, idx, b.NumVertices)
				break
			}
		}
		b.Vertices = d.Raw(int(b.NumVertices) * int(b.Stride))
		inst.Buffers = append(inst.Buffers, b)
	}
	if d.Err() == nil && inst.PrimType != PrimTriangleList && inst.PrimType != PrimTriangleStrip {
		d.Fail("primitive type %d", inst.PrimType)
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("d3d8: %w", err)
	}
	return inst, nil
}

func (*Codec) Validate(payload []byte) error {
	_, err := Parse(payload)
	return err
}

func (*Codec) Uninstance(buf platform.NativeBuffer) (*mesh.Mesh, error) {
	if buf.Platform != platform.D3D8 {
		return nil, fmt.Errorf("d3d8: %w: %s", platform.ErrUnsupportedPlatform, buf.Platform)
	}
	inst, err := Parse(buf.Payload)
	if err != nil {
		return nil, err
	}
	prim := mesh.TriList
	if inst.PrimType == PrimTriangleStrip {
		prim = mesh.TriStrip
	}
	var flags uint32
	if len(inst.Buffers) > 0 {
		f := inst.Buffers[0].FVF
		if f&FVFNormal != 0 {
			flags |= platform.FlagNormals
		}
		if f&FVFDiffuse != 0 {
			flags |= platform.FlagColors
		}
	}
	m := platform.NewShell(prim, int(inst.NumVertices), flags, int(inst.NumTexSets))

	for _, b := range inst.Buffers {
		d := binbuf.NewDecoder(b.Vertices)
		for k := uint32(0); k < b.NumVertices; k++ {
			readVertex(d, m, int(b.MinVert+k), b.FVF)
		}
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("d3d8: %w", err)
		}
		g := mesh.Group{Material: b.Material, Indices: make([]uint32, len(b.Indices))}
		for k, idx := range b.Indices {
			g.Indices[k] = uint32(idx) + b.MinVert
		}
		m.Groups = append(m.Groups, g)
	}
	return m, nil
}

func readVertex(d *binbuf.Decoder, m *mesh.Mesh, v int, f uint32) {
	m.Positions[v] = mesh.Vec3{d.F32(), d.F32(), d.F32()}
	if f&FVFNormal != 0 {
		n := mesh.Vec3{d.F32(), d.F32(), d.F32()}
		if m.Normals != nil {
			m.Normals[v] = n
		}
	}
	if f&FVFDiffuse != 0 {
		b, g, r, a := d.U8(), d.U8(), d.U8(), d.U8()
		if m.Colors != nil {
			m.Colors[v] = mesh.RGBA{R: r, G: g, B: b, A: a}
		}
	}
	for s := 0; s < int(f>>FVFTexShift&0xF); s++ {
		uv := mesh.Vec2{d.F32(), d.F32()}
		if s < len(m.TexCoords) {
			m.TexCoords[s][v] = uv
		}
	}
}
