// Package ps2 is the PlayStation 2 back-end: a mesh codec that cuts geometry
// into VU1 batches behind DMA and VIF unpack descriptors, and the raster
// layout engine that places texture levels and palettes in GS local memory.
package ps2

import (
	"encoding/binary"
	"fmt"

	"github.com/samcharles93/strata/internal/mesh"
	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/binbuf"
)

// BatchSize is the number of vertices VU1 memory holds per batch.
const BatchSize = 48

// stripAdvance is how far consecutive strip batches move; the two vertices
// in between are repeated so every triangle lands in some batch.
const stripAdvance = BatchSize - 2

// VU memory slots, one per attribute, BatchSize qwords apart.
const (
	slotPosition = 0
	slotNormal   = 1
	slotColor    = 2
	slotTexCoord = 3
	maxTexSets   = 8
)

// VIF commands.
const (
	vifNop      = 0x00
	vifStcycl   = 0x01
	vifItop     = 0x04
	vifMscnt    = 0x17
	unpackV2x32 = 0x64
	unpackV3x32 = 0x68
	unpackV4x8  = 0x6E

	unpackUnsigned = 0x4000
)

// Codec implements platform.Codec for the PS2.
type Codec struct{}

func New() *Codec { return &Codec{} }

func (*Codec) Platform() platform.Tag { return platform.PS2 }

// batches cuts a de-indexed vertex sequence into VU1 batches.
func batches(prim mesh.PrimType, n int) [][2]int {
	var out [][2]int
	if prim == mesh.TriList {
		for s := 0; s < n; s += BatchSize {
			out = append(out, [2]int{s, min(s+BatchSize, n)})
		}
		return out
	}
	for s := 0; s < n; s += stripAdvance {
		end := min(s+BatchSize, n)
		out = append(out, [2]int{s, end})
		if end == n {
			break
		}
	}
	return out
}

func unpackCode(cmd uint32, num, slot int, unsigned bool) uint32 {
	c := cmd<<24 | uint32(num)<<16 | uint32(slot*BatchSize)
	if unsigned {
		c |= unpackUnsigned
	}
	return c
}

func (*Codec) Instance(m *mesh.Mesh) (platform.NativeBuffer, error) {
	if err := m.Validate(); err != nil {
		return platform.NativeBuffer{}, err
	}
	if len(m.TexCoords) > maxTexSets {
		return platform.NativeBuffer{}, fmt.Errorf("ps2: %d texture coordinate sets, at most %d", len(m.TexCoords), maxTexSets)
	}
	var normals [][3]int8
	if m.HasNormals() {
		normals = make([][3]int8, len(m.Normals))
		for i, n := range m.Normals {
			normals[i] = mesh.QuantizeNormal(n)
		}
	}

	e := binbuf.NewEncoder(64 + m.NumIndices()*32)
	e.U32(uint32(m.Prim))
	e.U32(uint32(m.NumVertices()))
	e.U32(uint32(len(m.TexCoords)))
	e.U32(platform.AttribFlags(m))
	e.U32(uint32(len(m.Groups)))
	for _, g := range m.Groups {
		e.U32(g.Material)
		e.U32(uint32(len(g.Indices)))
		sizeAt := e.Len()
		e.U32(0)
		start := e.Len()
		bs := batches(m.Prim, len(g.Indices))
		for bi, b := range bs {
			writeBatch(e, m, normals, g.Indices[b[0]:b[1]], bi == len(bs)-1)
		}
		e.PutU32(sizeAt, uint32(e.Len()-start))
	}
	return platform.NativeBuffer{Platform: platform.PS2, Payload: e.Bytes()}, nil
}

func writeBatch(e *binbuf.Encoder, m *mesh.Mesh, normals [][3]int8, idx []uint32, last bool) {
	n := len(idx)
	body := binbuf.NewEncoder(n*40 + 64)

	body.U32(unpackCode(unpackV3x32, n, slotPosition, false))
	for _, v := range idx {
		p := m.Positions[v]
		body.F32(p[0])
		body.F32(p[1])
		body.F32(p[2])
	}
	if normals != nil {
		body.U32(unpackCode(unpackV4x8, n, slotNormal, false))
		for _, v := range idx {
			q := normals[v]
			body.U8(uint8(q[0]))
			body.U8(uint8(q[1]))
			body.U8(uint8(q[2]))
			body.U8(0)
		}
	}
	if m.HasColors() {
		body.U32(unpackCode(unpackV4x8, n, slotColor, true))
		for _, v := range idx {
			c := m.Colors[v]
			body.U8(c.R)
			body.U8(c.G)
			body.U8(c.B)
			body.U8(c.A)
		}
	}
	for s, set := range m.TexCoords {
		body.U32(unpackCode(unpackV2x32, n, slotTexCoord+s, false))
		for _, v := range idx {
			body.F32(set[v][0])
			body.F32(set[v][1])
		}
	}
	body.U32(vifMscnt << 24)
	body.Pad(16)

	id := dmaCnt
	if last {
		id = dmaEnd
	}
	var tag [16]byte
	binary.LittleEndian.PutUint64(tag[0:], dmaTag(body.Len()/16, id, 0))
	binary.LittleEndian.PutUint32(tag[8:], vifStcycl<<24|0x0101)
	binary.LittleEndian.PutUint32(tag[12:], vifItop<<24|uint32(n))
	e.Raw(tag[:])
	e.Raw(body.Bytes())
}

// Batch is one decoded VU1 batch: the unpacked bytes of every attribute slot.
type Batch struct {
	Count int
	Slots map[int][]byte
}

// Group is one material's decoded DMA chain.
type Group struct {
	Material   uint32
	NumIndices uint32
	Batches    []Batch
}

// Instances is the platform view of a PS2 native payload.
type Instances struct {
	Prim        mesh.PrimType
	NumVertices uint32
	NumTexSets  uint32
	Flags       uint32
	Groups      []Group
}

func (in *Instances) slots() []int {
	s := []int{slotPosition}
	if in.Flags&platform.FlagNormals != 0 {
		s = append(s, slotNormal)
	}
	if in.Flags&platform.FlagColors != 0 {
		s = append(s, slotColor)
	}
	for k := 0; k < int(in.NumTexSets); k++ {
		s = append(s, slotTexCoord+k)
	}
	return s
}

func slotStride(slot int) int {
	switch {
	case slot == slotPosition:
		return 12
	case slot >= slotTexCoord:
		return 8
	}
	return 4
}

// Parse builds the platform view of a payload.
func Parse(payload []byte) (*Instances, error) {
	d := binbuf.NewDecoder(payload)
	in := &Instances{
		Prim:        mesh.PrimType(d.U32()),
		NumVertices: d.U32(),
		NumTexSets:  d.U32(),
		Flags:       d.U32(),
	}
	if d.Err() == nil && in.Prim != mesh.TriList && in.Prim != mesh.TriStrip {
		d.Fail("primitive %d", in.Prim)
	}
	if d.Err() == nil && in.NumTexSets > maxTexSets {
		d.Fail("%d texture coordinate sets", in.NumTexSets)
	}
	n := d.Count(12)
	for i := 0; i < n && d.Err() == nil; i++ {
		g := Group{Material: d.U32(), NumIndices: d.U32()}
		size := int(d.U32())
		chain := d.Raw(size)
		if d.Err() != nil {
			break
		}
		if err := parseChain(in, &g, chain); err != nil {
			return nil, fmt.Errorf("ps2: group %d: %w", i, err)
		}
		in.Groups = append(in.Groups, g)
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("ps2: %w", err)
	}
	return in, nil
}

func parseChain(in *Instances, g *Group, chain []byte) error {
	d := binbuf.NewDecoder(chain)
	want := in.slots()
	ended := len(chain) == 0
	for d.Remaining() > 0 && d.Err() == nil {
		if ended {
			d.Fail("data after end tag")
			break
		}
		hdr := d.Raw(16)
		if hdr == nil {
			break
		}
		tag := binary.LittleEndian.Uint64(hdr[0:])
		stcycl := binary.LittleEndian.Uint32(hdr[8:])
		itop := binary.LittleEndian.Uint32(hdr[12:])
		qwc := int(tag & 0xFFFF)
		id := int(tag >> 28 & 7)
		if stcycl>>24 != vifStcycl || itop>>24 != vifItop {
			d.Fail("batch header codes 0x%08x 0x%08x", stcycl, itop)
			break
		}
		count := int(itop & 0x3FF)
		if count == 0 || count > BatchSize {
			d.Fail("batch of %d vertices", count)
			break
		}
		body := d.Raw(qwc * 16)
		if d.Err() != nil {
			break
		}
		b, err := parseBatch(body, count)
		if err != nil {
			return err
		}
		for _, s := range want {
			if len(b.Slots[s]) != count*slotStride(s) {
				return fmt.Errorf("%w: batch is missing attribute slot %d", platform.ErrCorruptNative, s)
			}
		}
		g.Batches = append(g.Batches, b)
		switch id {
		case dmaEnd:
			ended = true
		case dmaCnt:
		default:
			d.Fail("dma tag id %d", id)
		}
	}
	if err := d.Err(); err != nil {
		return err
	}
	if !ended {
		return fmt.Errorf("%w: chain has no end tag", platform.ErrCorruptNative)
	}
	if got := sequenceLength(in.Prim, g.Batches); got != int(g.NumIndices) {
		return fmt.Errorf("%w: batches hold %d vertices, group declares %d", platform.ErrCorruptNative, got, g.NumIndices)
	}
	return nil
}

func parseBatch(body []byte, count int) (Batch, error) {
	b := Batch{Count: count, Slots: make(map[int][]byte)}
	d := binbuf.NewDecoder(body)
	for d.Remaining() >= 4 && d.Err() == nil {
		code := d.U32()
		cmd := code >> 24
		switch {
		case cmd == vifNop:
		case cmd == vifMscnt:
			for d.Remaining() >= 4 && d.Err() == nil {
				if d.U32() != 0 {
					d.Fail("codes after MSCNT")
				}
			}
			return b, d.Err()
		case cmd&0x60 == 0x60:
			vl, vn := cmd&3, cmd>>2&3
			num := int(code >> 16 & 0xFF)
			if num != count {
				d.Fail("unpack of %d vertices in a batch of %d", num, count)
				break
			}
			size := num * int(vn+1) * int(32>>vl) / 8
			data := d.Raw((size + 3) &^ 3)
			slot := int(code&0x3FF) / BatchSize
			if data != nil {
				b.Slots[slot] = data[:size]
			}
		default:
			d.Fail("vif command 0x%02x", cmd)
		}
	}
	if err := d.Err(); err != nil {
		return b, err
	}
	return b, fmt.Errorf("%w: batch has no MSCNT", platform.ErrCorruptNative)
}

func sequenceLength(prim mesh.PrimType, bs []Batch) int {
	n := 0
	for i, b := range bs {
		n += b.Count
		if prim == mesh.TriStrip && i > 0 {
			n -= 2
		}
	}
	return n
}

func (*Codec) Validate(payload []byte) error {
	_, err := Parse(payload)
	return err
}

// Uninstance rebuilds an indexed mesh. Batches hold de-indexed vertices, so
// vertices are merged by their packed bytes and numbered in order of first
// appearance across the whole geometry.
func (*Codec) Uninstance(buf platform.NativeBuffer) (*mesh.Mesh, error) {
	if buf.Platform != platform.PS2 {
		return nil, fmt.Errorf("ps2: %w: %s", platform.ErrUnsupportedPlatform, buf.Platform)
	}
	in, err := Parse(buf.Payload)
	if err != nil {
		return nil, err
	}
	slots := in.slots()
	m := platform.NewShell(in.Prim, 0, in.Flags, int(in.NumTexSets))
	seen := make(map[string]uint32)
	key := make([]byte, 0, 64)

	for _, g := range in.Groups {
		grp := mesh.Group{Material: g.Material, Indices: make([]uint32, 0, g.NumIndices)}
		for bi, b := range g.Batches {
			first := 0
			if in.Prim == mesh.TriStrip && bi > 0 {
				first = 2
			}
			for k := first; k < b.Count; k++ {
				key = key[:0]
				for _, s := range slots {
					st := slotStride(s)
					key = append(key, b.Slots[s][k*st:(k+1)*st]...)
				}
				idx, ok := seen[string(key)]
				if !ok {
					idx = uint32(len(m.Positions))
					seen[string(key)] = idx
					appendVertex(m, b, k)
				}
				grp.Indices = append(grp.Indices, idx)
			}
		}
		m.Groups = append(m.Groups, grp)
	}
	return m, nil
}

func appendVertex(m *mesh.Mesh, b Batch, k int) {
	f32 := func(p []byte, i int) float32 {
		return binbuf.NewDecoder(p[4*i:]).F32()
	}
	p := b.Slots[slotPosition][k*12:]
	m.Positions = append(m.Positions, mesh.Vec3{f32(p, 0), f32(p, 1), f32(p, 2)})
	if m.Normals != nil {
		n := b.Slots[slotNormal][k*4:]
		m.Normals = append(m.Normals, mesh.DequantizeNormal([3]int8{int8(n[0]), int8(n[1]), int8(n[2])}))
	}
	if m.Colors != nil {
		c := b.Slots[slotColor][k*4:]
		m.Colors = append(m.Colors, mesh.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]})
	}
	for s := range m.TexCoords {
		uv := b.Slots[slotTexCoord+s][k*8:]
		m.TexCoords[s] = append(m.TexCoords[s], mesh.Vec2{f32(uv, 0), f32(uv, 1)})
	}
}
