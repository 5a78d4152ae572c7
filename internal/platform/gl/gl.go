// Package gl instances meshes into one interleaved vertex buffer described by
// an attribute table. Normals are stored as signed bytes, so a round trip
// through this back-end is lossy for them.
package gl

import (
	"fmt"

	"github.com/samcharles93/strata/internal/mesh"
	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/binbuf"
)

// Component types, using the GL enum values.
const (
	Byte         uint32 = 0x1400
	UnsignedByte uint32 = 0x1401
	Float        uint32 = 0x1406
)

// Attribute slots.
const (
	AttribPosition uint32 = 0
	AttribNormal   uint32 = 1
	AttribColor    uint32 = 2
	AttribTexCoord uint32 = 3 // plus set index
)

// Primitive modes.
const (
	Triangles     uint32 = 0x0004
	TriangleStrip uint32 = 0x0005
)

// Attrib describes one vertex attribute in the interleaved buffer.
type Attrib struct {
	Index      uint32
	Type       uint32
	Size       uint32
	Normalized bool
	Offset     uint32
}

// attribShapes is the component type and count each attribute slot must use.
var attribShapes = map[uint32][2]uint32{
	AttribPosition: {Float, 3},
	AttribNormal:   {Byte, 3},
	AttribColor:    {UnsignedByte, 4},
}

func (a Attrib) shape() [2]uint32 {
	if want, ok := attribShapes[a.Index]; ok {
		return want
	}
	return [2]uint32{Float, 2}
}

func (a Attrib) bytes() uint32 {
	switch a.Type {
	case Float:
		return 4 * a.Size
	case Byte, UnsignedByte:
		// Byte triples are padded to a word.
		return (a.Size + 3) &^ 3
	}
	return 0
}

// Draw is one material's range into the shared index buffer. Its indices are
// relative to MinVert and stay below NumVerts.
type Draw struct {
	Material   uint32
	MinVert    uint32
	NumVerts   uint32
	StartIndex uint32
	NumIndices uint32
}

// Instances is the platform view of a GL native payload.
type Instances struct {
	Mode        uint32
	NumVertices uint32
	Stride      uint32
	Attribs     []Attrib
	Draws       []Draw
	Indices     []uint16
	Vertices    []byte
}

// Attrib returns the attribute bound to slot index.
func (in *Instances) Attrib(index uint32) (Attrib, bool) {
	for _, a := range in.Attribs {
		if a.Index == index {
			return a, true
		}
	}
	return Attrib{}, false
}

// Codec implements platform.Codec for GL.
type Codec struct{}

func New() *Codec { return &Codec{} }

func (*Codec) Platform() platform.Tag { return platform.GL }

// Layout returns the attribute table for m and the vertex stride.
func Layout(m *mesh.Mesh) ([]Attrib, uint32) {
	var attribs []Attrib
	off := uint32(0)
	add := func(a Attrib) {
		a.Offset = off
		attribs = append(attribs, a)
		off += a.bytes()
	}
	add(Attrib{Index: AttribPosition, Type: Float, Size: 3})
	for s := range m.TexCoords {
		add(Attrib{Index: AttribTexCoord + uint32(s), Type: Float, Size: 2})
	}
	if m.HasColors() {
		add(Attrib{Index: AttribColor, Type: UnsignedByte, Size: 4, Normalized: true})
	}
	if m.HasNormals() {
		add(Attrib{Index: AttribNormal, Type: Byte, Size: 3, Normalized: true})
	}
	return attribs, off
}

func (*Codec) Instance(m *mesh.Mesh) (platform.NativeBuffer, error) {
	if err := m.Validate(); err != nil {
		return platform.NativeBuffer{}, err
	}
	attribs, stride := Layout(m)
	mode := Triangles
	if m.Prim == mesh.TriStrip {
		mode = TriangleStrip
	}

	e := binbuf.NewEncoder(64 + len(attribs)*20 + len(m.Groups)*20 + m.NumIndices()*2 + m.NumVertices()*int(stride))
	e.U32(mode)
	e.U32(uint32(m.NumVertices()))
	e.U32(stride)
	e.U32(uint32(len(attribs)))
	for _, a := range attribs {
		e.U32(a.Index)
		e.U32(a.Type)
		e.U32(a.Size)
		if a.Normalized {
			e.U32(1)
		} else {
			e.U32(0)
		}
		e.U32(a.Offset)
	}

	var indices []uint16
	e.U32(uint32(len(m.Groups)))
	for gi, g := range m.Groups {
		rng := platform.GroupRange(g)
		idx, err := platform.Relative16(g.Indices, rng.Min)
		if err != nil {
			return platform.NativeBuffer{}, fmt.Errorf("gl: group %d: %w", gi, err)
		}
		e.U32(g.Material)
		e.U32(rng.Min)
		e.U32(rng.Count)
		e.U32(uint32(len(indices)))
		e.U32(uint32(len(idx)))
		indices = append(indices, idx...)
	}
	e.U32(uint32(len(indices)))
	for _, v := range indices {
		e.U16(v)
	}
	e.Pad(4)

	for v, p := range m.Positions {
		e.F32(p[0])
		e.F32(p[1])
		e.F32(p[2])
		for _, set := range m.TexCoords {
			e.F32(set[v][0])
			e.F32(set[v][1])
		}
		if m.HasColors() {
			c := m.Colors[v]
			e.U8(c.R)
			e.U8(c.G)
			e.U8(c.B)
			e.U8(c.A)
		}
		if m.HasNormals() {
			q := mesh.QuantizeNormal(m.Normals[v])
			e.U8(uint8(q[0]))
			e.U8(uint8(q[1]))
			e.U8(uint8(q[2]))
			e.U8(0)
		}
	}
	return platform.NativeBuffer{Platform: platform.GL, Payload: e.Bytes()}, nil
}

// Parse builds the platform view of a payload.
func Parse(payload []byte) (*Instances, error) {
	d := binbuf.NewDecoder(payload)
	in := &Instances{
		Mode:        d.U32(),
		NumVertices: d.U32(),
		Stride:      d.U32(),
	}
	n := d.Count(20)
	for i := 0; i < n && d.Err() == nil; i++ {
		in.Attribs = append(in.Attribs, Attrib{
			Index:      d.U32(),
			Type:       d.U32(),
			Size:       d.U32(),
			Normalized: d.U32() != 0,
			Offset:     d.U32(),
		})
	}
	n = d.Count(20)
	for i := 0; i < n && d.Err() == nil; i++ {
		in.Draws = append(in.Draws, Draw{
			Material:   d.U32(),
			MinVert:    d.U32(),
			NumVerts:   d.U32(),
			StartIndex: d.U32(),
			NumIndices: d.U32(),
		})
	}
	n = d.Count(2)
	for i := 0; i < n && d.Err() == nil; i++ {
		in.Indices = append(in.Indices, d.U16())
	}
	d.Align(4)
	if d.Err() == nil {
		in.Vertices = d.Raw(int(in.NumVertices) * int(in.Stride))
	}
	if d.Err() == nil {
		check(d, in)
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("gl: %w", err)
	}
	return in, nil
}

func check(d *binbuf.Decoder, in *Instances) {
	if in.Mode != Triangles && in.Mode != TriangleStrip {
		d.Fail("primitive mode 0x%x", in.Mode)
		return
	}
	seen := make(map[uint32]bool, len(in.Attribs))
	for i, a := range in.Attribs {
		if seen[a.Index] {
			d.Fail("attribute %d repeats slot %d", i, a.Index)
			return
		}
		seen[a.Index] = true
		if [2]uint32{a.Type, a.Size} != a.shape() {
			d.Fail("attribute %d: slot %d as %d x 0x%x", i, a.Index, a.Size, a.Type)
			return
		}
		if uint64(a.Offset)+uint64(a.bytes()) > uint64(in.Stride) {
			d.Fail("attribute %d does not fit stride %d", i, in.Stride)
			return
		}
	}
	if _, ok := in.Attrib(AttribPosition); !ok {
		d.Fail("no position attribute")
		return
	}
	for i, dr := range in.Draws {
		if uint64(dr.StartIndex)+uint64(dr.NumIndices) > uint64(len(in.Indices)) {
			d.Fail("draw %d exceeds %d indices", i, len(in.Indices))
			return
		}
		if uint64(dr.MinVert)+uint64(dr.NumVerts) > uint64(in.NumVertices) {
			d.Fail("draw %d vertex window exceeds %d vertices", i, in.NumVertices)
			return
		}
		for _, idx := range in.Indices[dr.StartIndex : dr.StartIndex+dr.NumIndices] {
			if uint32(idx) >= dr.NumVerts {
				d.Fail("draw %d index %d outside %d vertices", i, idx, dr.NumVerts)
				return
			}
		}
	}
}

func (*Codec) Validate(payload []byte) error {
	_, err := Parse(payload)
	return err
}

func (*Codec) Uninstance(buf platform.NativeBuffer) (*mesh.Mesh, error) {
	if buf.Platform != platform.GL {
		return nil, fmt.Errorf("gl: %w: %s", platform.ErrUnsupportedPlatform, buf.Platform)
	}
	in, err := Parse(buf.Payload)
	if err != nil {
		return nil, err
	}

	var flags uint32
	if _, ok := in.Attrib(AttribNormal); ok {
		flags |= platform.FlagNormals
	}
	if _, ok := in.Attrib(AttribColor); ok {
		flags |= platform.FlagColors
	}
	sets := 0
	for {
		if _, ok := in.Attrib(AttribTexCoord + uint32(sets)); !ok {
			break
		}
		sets++
	}
	prim := mesh.TriList
	if in.Mode == TriangleStrip {
		prim = mesh.TriStrip
	}
	m := platform.NewShell(prim, int(in.NumVertices), flags, sets)

	for v := 0; v < int(in.NumVertices); v++ {
		base := v * int(in.Stride)
		for _, a := range in.Attribs {
			d := binbuf.NewDecoder(in.Vertices[base+int(a.Offset):])
			switch {
			case a.Index == AttribPosition:
				m.Positions[v] = mesh.Vec3{d.F32(), d.F32(), d.F32()}
			case a.Index == AttribNormal:
				m.Normals[v] = mesh.DequantizeNormal([3]int8{int8(d.U8()), int8(d.U8()), int8(d.U8())})
			case a.Index == AttribColor:
				m.Colors[v] = mesh.RGBA{R: d.U8(), G: d.U8(), B: d.U8(), A: d.U8()}
			case a.Index >= AttribTexCoord && int(a.Index-AttribTexCoord) < sets:
				m.TexCoords[a.Index-AttribTexCoord][v] = mesh.Vec2{d.F32(), d.F32()}
			}
		}
	}

	for _, dr := range in.Draws {
		g := mesh.Group{Material: dr.Material, Indices: make([]uint32, dr.NumIndices)}
		for k, idx := range in.Indices[dr.StartIndex : dr.StartIndex+dr.NumIndices] {
			g.Indices[k] = uint32(idx) + dr.MinVert
		}
		m.Groups = append(m.Groups, g)
	}
	return m, nil
}
