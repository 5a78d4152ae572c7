// Package d3d9 instances meshes into one shared vertex buffer described by a
// vertex declaration plus a 16-bit index buffer split into per-material
// draw ranges.
package d3d9

import (
	"fmt"

	"github.com/samcharles93/strata/internal/mesh"
	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/binbuf"
)

// Declaration element types.
const (
	TypeFloat2 uint8 = 1
	TypeFloat3 uint8 = 2
	TypeColor  uint8 = 4
	TypeUnused uint8 = 17
)

// Declaration usages.
const (
	UsagePosition uint8 = 0
	UsageNormal   uint8 = 3
	UsageTexCoord uint8 = 5
	UsageColor    uint8 = 10
)

// Primitive types.
const (
	PrimTriangleList  uint32 = 4
	PrimTriangleStrip uint32 = 5
)

// Element is one vertex declaration entry.
type Element struct {
	Stream     uint16
	Offset     uint16
	Type       uint8
	Method     uint8
	Usage      uint8
	UsageIndex uint8
}

// usageTypes is the element type each understood usage must carry.
var usageTypes = map[uint8]uint8{
	UsagePosition: TypeFloat3,
	UsageNormal:   TypeFloat3,
	UsageTexCoord: TypeFloat2,
	UsageColor:    TypeColor,
}

func (e Element) size() int {
	switch e.Type {
	case TypeFloat2:
		return 8
	case TypeFloat3:
		return 12
	case TypeColor:
		return 4
	}
	return 0
}

// Split is one material's draw range into the shared buffers.
type Split struct {
	Material   uint32
	MinVert    uint32
	NumVerts   uint32
	StartIndex uint32
	NumIndices uint32
}

// Instances is the platform view of a D3D9 native payload.
type Instances struct {
	PrimType    uint32
	NumVertices uint32
	Stride      uint32
	Decl        []Element
	Splits      []Split
	Indices     []uint16
	Vertices    []byte
}

// Find returns the declaration entry with usage u and index i.
func (in *Instances) Find(u, i uint8) (Element, bool) {
	for _, e := range in.Decl {
		if e.Usage == u && e.UsageIndex == i {
			return e, true
		}
	}
	return Element{}, false
}

// Codec implements platform.Codec for D3D9.
type Codec struct{}

func New() *Codec { return &Codec{} }

func (*Codec) Platform() platform.Tag { return platform.D3D9 }

// Declaration builds the vertex layout for m: position, texture coordinate
// sets, normal, colour.
func Declaration(m *mesh.Mesh) ([]Element, uint32) {
	var decl []Element
	off := uint16(0)
	add := func(typ, usage, index uint8) {
		e := Element{Offset: off, Type: typ, Usage: usage, UsageIndex: index}
		decl = append(decl, e)
		off += uint16(e.size())
	}
	add(TypeFloat3, UsagePosition, 0)
	for s := range m.TexCoords {
		add(TypeFloat2, UsageTexCoord, uint8(s))
	}
	if m.HasNormals() {
		add(TypeFloat3, UsageNormal, 0)
	}
	if m.HasColors() {
		add(TypeColor, UsageColor, 0)
	}
	return decl, uint32(off)
}

func (*Codec) Instance(m *mesh.Mesh) (platform.NativeBuffer, error) {
	if err := m.Validate(); err != nil {
		return platform.NativeBuffer{}, err
	}
	decl, stride := Declaration(m)
	prim := PrimTriangleList
	if m.Prim == mesh.TriStrip {
		prim = PrimTriangleStrip
	}

	e := binbuf.NewEncoder(64 + len(decl)*8 + len(m.Groups)*20 + m.NumIndices()*2 + m.NumVertices()*int(stride))
	e.U32(prim)
	e.U32(uint32(m.NumVertices()))
	e.U32(stride)
	e.U32(uint32(len(decl)))
	for _, el := range decl {
		e.U16(el.Stream)
		e.U16(el.Offset)
		e.U8(el.Type)
		e.U8(el.Method)
		e.U8(el.Usage)
		e.U8(el.UsageIndex)
	}

	var indices []uint16
	e.U32(uint32(len(m.Groups)))
	for gi, g := range m.Groups {
		rng := platform.GroupRange(g)
		idx, err := platform.Relative16(g.Indices, rng.Min)
		if err != nil {
			return platform.NativeBuffer{}, fmt.Errorf("d3d9: group %d: %w", gi, err)
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

	for v := range m.Positions {
		p := m.Positions[v]
		e.F32(p[0])
		e.F32(p[1])
		e.F32(p[2])
		for _, set := range m.TexCoords {
			e.F32(set[v][0])
			e.F32(set[v][1])
		}
		if m.HasNormals() {
			n := m.Normals[v]
			e.F32(n[0])
			e.F32(n[1])
			e.F32(n[2])
		}
		if m.HasColors() {
			c := m.Colors[v]
			e.U8(c.B)
			e.U8(c.G)
			e.U8(c.R)
			e.U8(c.A)
		}
	}
	return platform.NativeBuffer{Platform: platform.D3D9, Payload: e.Bytes()}, nil
}

// Parse builds the platform view of a payload.
func Parse(payload []byte) (*Instances, error) {
	d := binbuf.NewDecoder(payload)
	in := &Instances{
		PrimType:    d.U32(),
		NumVertices: d.U32(),
		Stride:      d.U32(),
	}
	n := d.Count(8)
	for i := 0; i < n && d.Err() == nil; i++ {
		in.Decl = append(in.Decl, Element{
			Stream:     d.U16(),
			Offset:     d.U16(),
			Type:       d.U8(),
			Method:     d.U8(),
			Usage:      d.U8(),
			UsageIndex: d.U8(),
		})
	}
	n = d.Count(20)
	for i := 0; i < n && d.Err() == nil; i++ {
		in.Splits = append(in.Splits, Split{
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
		validate(d, in)
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("d3d9: %w", err)
	}
	return in, nil
}

func validate(d *binbuf.Decoder, in *Instances) {
	if in.PrimType != PrimTriangleList && in.PrimType != PrimTriangleStrip {
		d.Fail("primitive type %d", in.PrimType)
		return
	}
	seen := make(map[[2]uint8]bool, len(in.Decl))
	for i, el := range in.Decl {
		if el.size() == 0 || uint32(el.Offset)+uint32(el.size()) > in.Stride {
			d.Fail("declaration element %d does not fit stride %d", i, in.Stride)
			return
		}
		if el.Stream != 0 {
			d.Fail("declaration element %d reads stream %d", i, el.Stream)
			return
		}
		key := [2]uint8{el.Usage, el.UsageIndex}
		if seen[key] {
			d.Fail("declaration element %d repeats usage %d index %d", i, el.Usage, el.UsageIndex)
			return
		}
		seen[key] = true
		if want, ok := usageTypes[el.Usage]; ok && el.Type != want {
			d.Fail("declaration element %d has type %d for usage %d", i, el.Type, el.Usage)
			return
		}
		if el.Usage != UsageTexCoord && el.UsageIndex != 0 {
			d.Fail("declaration element %d has usage %d index %d", i, el.Usage, el.UsageIndex)
			return
		}
	}
	if _, ok := in.Find(UsagePosition, 0); !ok {
		d.Fail("declaration has no position")
		return
	}
	for i, s := range in.Splits {
		if uint64(s.StartIndex)+uint64(s.NumIndices) > uint64(len(in.Indices)) {
			d.Fail("split %d index range exceeds %d indices", i, len(in.Indices))
			return
		}
		if uint64(s.MinVert)+uint64(s.NumVerts) > uint64(in.NumVertices) {
			d.Fail("split %d vertex window exceeds %d vertices", i, in.NumVertices)
			return
		}
		for _, idx := range in.Indices[s.StartIndex : s.StartIndex+s.NumIndices] {
			if uint32(idx) >= s.NumVerts {
				d.Fail("split %d index %d outside %d vertices", i, idx, s.NumVerts)
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
	if buf.Platform != platform.D3D9 {
		return nil, fmt.Errorf("d3d9: %w: %s", platform.ErrUnsupportedPlatform, buf.Platform)
	}
	in, err := Parse(buf.Payload)
	if err != nil {
		return nil, err
	}

	pos, _ := in.Find(UsagePosition, 0)
	var flags uint32
	normal, hasNormals := in.Find(UsageNormal, 0)
	if hasNormals {
		flags |= platform.FlagNormals
	}
	colour, hasColors := in.Find(UsageColor, 0)
	if hasColors {
		flags |= platform.FlagColors
	}
	var uvs []Element
	for {
		el, ok := in.Find(UsageTexCoord, uint8(len(uvs)))
		if !ok {
			break
		}
		uvs = append(uvs, el)
	}
	prim := mesh.TriList
	if in.PrimType == PrimTriangleStrip {
		prim = mesh.TriStrip
	}
	m := platform.NewShell(prim, int(in.NumVertices), flags, len(uvs))

	for v := 0; v < int(in.NumVertices); v++ {
		vert := in.Vertices[v*int(in.Stride) : (v+1)*int(in.Stride)]
		at := func(el Element) *binbuf.Decoder { return binbuf.NewDecoder(vert[el.Offset:]) }

		sub := at(pos)
		m.Positions[v] = mesh.Vec3{sub.F32(), sub.F32(), sub.F32()}
		for s, el := range uvs {
			sub = at(el)
			m.TexCoords[s][v] = mesh.Vec2{sub.F32(), sub.F32()}
		}
		if hasNormals {
			sub = at(normal)
			m.Normals[v] = mesh.Vec3{sub.F32(), sub.F32(), sub.F32()}
		}
		if hasColors {
			sub = at(colour)
			b, g, r, a := sub.U8(), sub.U8(), sub.U8(), sub.U8()
			m.Colors[v] = mesh.RGBA{R: r, G: g, B: b, A: a}
		}
	}

	for _, s := range in.Splits {
		g := mesh.Group{Material: s.Material, Indices: make([]uint32, s.NumIndices)}
		for k, idx := range in.Indices[s.StartIndex : s.StartIndex+s.NumIndices] {
			g.Indices[k] = uint32(idx) + s.MinVert
		}
		m.Groups = append(m.Groups, g)
	}
	return m, nil
}
