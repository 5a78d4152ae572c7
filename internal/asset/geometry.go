package asset

import (
	"fmt"
	"sort"

	"github.com/samcharles93/strata/internal/mesh"
	"github.com/samcharles93/strata/pkg/chunk"
	"github.com/samcharles93/strata/pkg/plugin"
)

// Geometry format flags.
const (
	GeoTriStrip  uint32 = 0x01
	GeoPositions uint32 = 0x02
	GeoTextured  uint32 = 0x04
	GeoPrelit    uint32 = 0x08
	GeoNormals   uint32 = 0x10
	GeoLight     uint32 = 0x20
	GeoModulate  uint32 = 0x40
	GeoTextured2 uint32 = 0x80
	GeoNative    uint32 = 0x01000000

	geoAttribMask = GeoTriStrip | GeoPositions | GeoTextured | GeoPrelit | GeoNormals | GeoTextured2
	geoTexSetMask = 0x00FF0000
)

// legacySurfaceVersion is the first version whose geometry structs no longer
// carry surface properties.
const legacySurfaceVersion = 0x34000

// Triangle is one face of the geometry's triangle list.
type Triangle struct {
	V        [3]uint16
	Material uint16
}

// MorphTarget is one key shape. Target 0's vertex data lives in the
// geometry's mesh; later targets carry their own positions and normals.
type MorphTarget struct {
	Center    mesh.Vec3
	Radius    float32
	Positions []mesh.Vec3
	Normals   []mesh.Vec3
}

// Geometry is a geometry record. A generic geometry holds its vertices in
// Mesh; an instanced one holds a native buffer in its NativeData plugin and
// has Mesh and Triangles cleared.
type Geometry struct {
	// Flags is the format word: attribute flags, the texture set count in
	// bits 16..23 and GeoNative.
	Flags     uint32
	Surface   SurfaceProps
	Triangles []Triangle
	Morphs    []MorphTarget
	Materials []*Material
	Mesh      *mesh.Mesh

	// vertex and triangle counts of the generic data, kept for native geometries
	numVerts int
	numTris  int

	plugins plugin.Block
}

// Plugins implements plugin.Extensible.
func (g *Geometry) Plugins() *plugin.Block { return &g.plugins }

// IsNative reports whether the geometry's vertex data lives in a native buffer.
func (g *Geometry) IsNative() bool { return g.Flags&GeoNative != 0 }

// NumTexSets returns the number of texture coordinate sets.
func (g *Geometry) NumTexSets() int {
	if g.Mesh != nil {
		return len(g.Mesh.TexCoords)
	}
	return numTexSets(g.Flags)
}

// NumVertices returns the vertex count, also for native geometries.
func (g *Geometry) NumVertices() int {
	if g.Mesh != nil {
		return g.Mesh.NumVertices()
	}
	return g.numVerts
}

func numTexSets(flags uint32) int {
	if n := int(flags&geoTexSetMask) >> 16; n != 0 {
		return n
	}
	switch {
	case flags&GeoTextured2 != 0:
		return 2
	case flags&GeoTextured != 0:
		return 1
	}
	return 0
}

// attribFlags returns the attribute bits and texture set count of m.
func attribFlags(m *mesh.Mesh) uint32 {
	f := uint32(len(m.TexCoords)) << 16
	if m.Prim == mesh.TriStrip {
		f |= GeoTriStrip
	}
	if len(m.Positions) > 0 {
		f |= GeoPositions
	}
	if m.HasNormals() {
		f |= GeoNormals
	}
	if m.HasColors() {
		f |= GeoPrelit
	}
	switch n := len(m.TexCoords); {
	case n >= 2:
		f |= GeoTextured2
	case n == 1:
		f |= GeoTextured
	}
	return f
}

// binMesh returns the index split to write for g.
func (g *Geometry) binMesh(stored *BinMesh) (BinMesh, bool) {
	if g.Mesh != nil {
		return binMeshOf(g.Mesh), true
	}
	if g.IsNative() && stored != nil && stored.Groups != nil {
		return *stored, true
	}
	return BinMesh{}, false
}

// trianglesOf lists every triangle of m tagged with its group's material.
func trianglesOf(m *mesh.Mesh) []Triangle {
	var tris []Triangle
	for _, grp := range m.Groups {
		for _, t := range m.Triangles(grp) {
			tris = append(tris, Triangle{
				V:        [3]uint16{uint16(t[0]), uint16(t[1]), uint16(t[2])},
				Material: uint16(grp.Material),
			})
		}
	}
	return tris
}

// groupsOf splits a triangle list into one list group per material, in
// ascending material order.
func groupsOf(tris []Triangle) []mesh.Group {
	byMat := map[uint32][]uint32{}
	for _, t := range tris {
		mat := uint32(t.Material)
		byMat[mat] = append(byMat[mat], uint32(t.V[0]), uint32(t.V[1]), uint32(t.V[2]))
	}
	mats := make([]uint32, 0, len(byMat))
	for mat := range byMat {
		mats = append(mats, mat)
	}
	sort.Slice(mats, func(i, j int) bool { return mats[i] < mats[j] })
	groups := make([]mesh.Group, len(mats))
	for i, mat := range mats {
		groups[i] = mesh.Group{Material: mat, Indices: byMat[mat]}
	}
	return groups
}

// NewGeometry builds a generic geometry around m. The triangle list and
// bounding sphere are derived from the mesh.
func (e *Engine) NewGeometry(m *mesh.Mesh, materials []*Material) (*Geometry, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	for _, grp := range m.Groups {
		if int(grp.Material) >= len(materials) {
			return nil, fmt.Errorf("%w: group material %d of %d", mesh.ErrInvalidMesh, grp.Material, len(materials))
		}
	}
	centre, radius := m.Sphere()
	g := &Geometry{
		Flags:     attribFlags(m),
		Surface:   SurfaceProps{Ambient: 1, Specular: 1, Diffuse: 1},
		Triangles: trianglesOf(m),
		Morphs:    []MorphTarget{{Center: centre, Radius: radius}},
		Materials: materials,
		Mesh:      m,
	}
	if m.HasNormals() {
		g.Flags |= GeoLight
	}
	if err := e.construct(g); err != nil {
		return nil, err
	}
	return g, nil
}

// ReadGeometry reads a GEOMETRY chunk with its material list. With
// InstanceOnLoad set, generic geometries are instanced for the configured
// platform before they are returned.
func (e *Engine) ReadGeometry(r *chunk.Reader) (*Geometry, error) {
	g := &Geometry{}
	if err := e.construct(g); err != nil {
		return nil, err
	}
	if err := e.readGeometry(r, g); err != nil {
		e.Destroy(g)
		return nil, err
	}
	if e.opts.InstanceOnLoad && !g.IsNative() {
		if err := e.Instance(g, e.opts.Platform); err != nil {
			e.Destroy(g)
			return nil, err
		}
	}
	return g, nil
}

func (e *Engine) readGeometry(r *chunk.Reader, g *Geometry) error {
	h, err := r.Expect(chunk.TypeGeometry)
	if err != nil {
		return err
	}
	end := r.Pos() + int64(h.Length)

	if err := e.readGeometryStruct(r, g); err != nil {
		return err
	}
	if g.Materials, err = e.readMatList(r); err != nil {
		return err
	}
	if err := e.readExtension(r, g, e.geometries); err != nil {
		return err
	}

	if g.Mesh != nil {
		if bm := e.BinMesh(g); bm != nil && bm.Groups != nil {
			g.Mesh.Prim = bm.Prim
			g.Mesh.Groups = make([]mesh.Group, len(bm.Groups))
			for i, grp := range bm.Groups {
				g.Mesh.Groups[i] = mesh.Group{Material: grp.Material, Indices: grp.Indices}
			}
			bm.Groups = nil
		} else {
			g.Mesh.Prim = mesh.TriList
			g.Mesh.Groups = groupsOf(g.Triangles)
		}
		if err := g.Mesh.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptAsset, err)
		}
	} else if e.Native(g) == nil {
		return fmt.Errorf("%w: native geometry without native data", ErrCorruptAsset)
	}
	return r.SeekTo(end)
}

// need fails unless n more bytes fit before end.
func need(r *chunk.Reader, end int64, n int64, what string) error {
	if n < 0 || r.Pos()+n > end {
		return fmt.Errorf("%w: geometry %s overruns its struct", ErrCorruptAsset, what)
	}
	return nil
}

func readVec3s(r *chunk.Reader, n int) ([]mesh.Vec3, error) {
	out := make([]mesh.Vec3, n)
	for i := range out {
		for k := 0; k < 3; k++ {
			v, err := r.ReadF32()
			if err != nil {
				return nil, err
			}
			out[i][k] = v
		}
	}
	return out, nil
}

func (e *Engine) readGeometryStruct(r *chunk.Reader, g *Geometry) error {
	sh, err := r.Expect(chunk.TypeStruct)
	if err != nil {
		return err
	}
	end := r.Pos() + int64(sh.Length)
	if err := need(r, end, 16, "header"); err != nil {
		return err
	}
	g.Flags, _ = r.ReadU32()
	numTris, _ := r.ReadI32()
	numVerts, _ := r.ReadI32()
	numMorphs, err := r.ReadI32()
	if err != nil {
		return err
	}
	if numTris < 0 || numVerts < 0 || numMorphs < 0 {
		return fmt.Errorf("%w: geometry counts %d/%d/%d", ErrCorruptAsset, numTris, numVerts, numMorphs)
	}
	g.numTris, g.numVerts = int(numTris), int(numVerts)
	nv := int64(numVerts)

	if sh.Version() < legacySurfaceVersion {
		if err := need(r, end, 12, "surface properties"); err != nil {
			return err
		}
		g.Surface.Ambient, _ = r.ReadF32()
		g.Surface.Specular, _ = r.ReadF32()
		g.Surface.Diffuse, _ = r.ReadF32()
	}

	if !g.IsNative() {
		g.Mesh = &mesh.Mesh{}
		if g.Flags&GeoPrelit != 0 {
			if err := need(r, end, 4*nv, "prelit colours"); err != nil {
				return err
			}
			raw, err := r.ReadBytes(4 * int(nv))
			if err != nil {
				return err
			}
			g.Mesh.Colors = make([]mesh.RGBA, nv)
			for i := range g.Mesh.Colors {
				g.Mesh.Colors[i] = mesh.RGBA{R: raw[4*i], G: raw[4*i+1], B: raw[4*i+2], A: raw[4*i+3]}
			}
		}
		for s := 0; s < numTexSets(g.Flags); s++ {
			if err := need(r, end, 8*nv, "texture coordinates"); err != nil {
				return err
			}
			set := make([]mesh.Vec2, nv)
			for i := range set {
				set[i][0], _ = r.ReadF32()
				if set[i][1], err = r.ReadF32(); err != nil {
					return err
				}
			}
			g.Mesh.TexCoords = append(g.Mesh.TexCoords, set)
		}
		if err := need(r, end, 8*int64(numTris), "triangles"); err != nil {
			return err
		}
		g.Triangles = make([]Triangle, numTris)
		for i := range g.Triangles {
			w0, _ := r.ReadU32()
			w1, err := r.ReadU32()
			if err != nil {
				return err
			}
			g.Triangles[i] = Triangle{
				V:        [3]uint16{uint16(w0 >> 16), uint16(w0), uint16(w1 >> 16)},
				Material: uint16(w1),
			}
		}
	}

	g.Morphs = make([]MorphTarget, 0, min(int(numMorphs), 16))
	for i := 0; i < int(numMorphs); i++ {
		if err := need(r, end, 24, "morph target"); err != nil {
			return err
		}
		var mt MorphTarget
		for k := 0; k < 3; k++ {
			mt.Center[k], _ = r.ReadF32()
		}
		mt.Radius, _ = r.ReadF32()
		hasVerts, _ := r.ReadI32()
		hasNormals, err := r.ReadI32()
		if err != nil {
			return err
		}
		if hasVerts != 0 {
			if err := need(r, end, 12*nv, "morph positions"); err != nil {
				return err
			}
			if mt.Positions, err = readVec3s(r, int(nv)); err != nil {
				return err
			}
		}
		if hasNormals != 0 {
			if err := need(r, end, 12*nv, "morph normals"); err != nil {
				return err
			}
			if mt.Normals, err = readVec3s(r, int(nv)); err != nil {
				return err
			}
		}
		if i == 0 && g.Mesh != nil {
			g.Mesh.Positions, g.Mesh.Normals = mt.Positions, mt.Normals
			mt.Positions, mt.Normals = nil, nil
		}
		g.Morphs = append(g.Morphs, mt)
	}
	if g.Mesh != nil && len(g.Mesh.Positions) != int(nv) {
		g.Mesh.Positions = make([]mesh.Vec3, nv)
	}
	return r.SeekTo(end)
}

func (e *Engine) readMatList(r *chunk.Reader) ([]*Material, error) {
	h, err := r.Expect(chunk.TypeMatList)
	if err != nil {
		return nil, err
	}
	end := r.Pos() + int64(h.Length)
	sh, err := r.Expect(chunk.TypeStruct)
	if err != nil {
		return nil, err
	}
	n, err := r.ReadI32()
	if err != nil {
		return nil, err
	}
	if n < 0 || int64(n)*4 > int64(sh.Length)-4 {
		return nil, fmt.Errorf("%w: material list of %d entries", ErrCorruptAsset, n)
	}
	refs := make([]int32, n)
	for i := range refs {
		if refs[i], err = r.ReadI32(); err != nil {
			return nil, err
		}
	}

	mats := make([]*Material, n)
	for i, ref := range refs {
		if ref >= 0 {
			if int(ref) >= i {
				return mats, fmt.Errorf("%w: material %d references %d", ErrCorruptAsset, i, ref)
			}
			mats[i] = mats[ref]
			continue
		}
		if mats[i], err = e.ReadMaterial(r); err != nil {
			return mats, fmt.Errorf("material %d: %w", i, err)
		}
	}
	return mats, r.SeekTo(end)
}

// matListRefs returns, per material, the index of its first occurrence or
// -1 when the material is written in place.
func matListRefs(mats []*Material) []int32 {
	refs := make([]int32, len(mats))
	first := map[*Material]int32{}
	for i, m := range mats {
		if j, ok := first[m]; ok {
			refs[i] = j
			continue
		}
		first[m] = int32(i)
		refs[i] = -1
	}
	return refs
}

func (e *Engine) matListSize(mats []*Material, version uint32) uint32 {
	n := 2*chunk.HeaderSize + 4 + 4*uint32(len(mats))
	for i, ref := range matListRefs(mats) {
		if ref < 0 {
			n += e.materialSize(mats[i], version)
		}
	}
	return n
}

func (e *Engine) geometryStructSize(g *Geometry, version uint32) uint32 {
	n := uint32(16)
	if version < legacySurfaceVersion {
		n += 12
	}
	nv := uint32(g.NumVertices())
	if g.Mesh != nil {
		if g.Mesh.HasColors() {
			n += 4 * nv
		}
		n += 8 * nv * uint32(len(g.Mesh.TexCoords))
		n += 8 * uint32(len(g.Triangles))
	}
	for i, mt := range g.morphs() {
		n += 24
		pos, nrm := mt.Positions, mt.Normals
		if i == 0 && g.Mesh != nil {
			pos, nrm = g.Mesh.Positions, g.Mesh.Normals
		}
		if len(pos) > 0 {
			n += 12 * nv
		}
		if len(nrm) > 0 {
			n += 12 * nv
		}
	}
	return n
}

// morphs returns the morph targets to write; a geometry always has one.
func (g *Geometry) morphs() []MorphTarget {
	if len(g.Morphs) == 0 {
		return []MorphTarget{{}}
	}
	return g.Morphs
}

func (e *Engine) geometrySize(g *Geometry, version uint32) uint32 {
	return 2*chunk.HeaderSize + e.geometryStructSize(g, version) +
		e.matListSize(g.Materials, version) + e.geometries.ExtensionChunkSize(g)
}

// GeometrySize returns the encoded size of g as a GEOMETRY chunk.
func (e *Engine) GeometrySize(g *Geometry) uint32 { return e.geometrySize(g, e.opts.Version) }

// WriteGeometry writes g as a GEOMETRY chunk with its material list.
func (e *Engine) WriteGeometry(w *chunk.Writer, g *Geometry) error {
	if g.Mesh == nil && !g.IsNative() {
		return ErrNoGeometry
	}
	version := w.Version()
	if err := w.WriteHeader(chunk.TypeGeometry, e.geometrySize(g, version)-chunk.HeaderSize); err != nil {
		return err
	}
	if err := e.writeGeometryStruct(w, g, version); err != nil {
		return err
	}
	if err := e.writeMatList(w, g.Materials, version); err != nil {
		return err
	}
	if err := e.geometries.WriteExtension(w, g); err != nil {
		return err
	}
	return w.Err()
}

func writeVec3s(w *chunk.Writer, vs []mesh.Vec3) {
	for _, v := range vs {
		_ = w.WriteF32(v[0])
		_ = w.WriteF32(v[1])
		_ = w.WriteF32(v[2])
	}
}

func (e *Engine) writeGeometryStruct(w *chunk.Writer, g *Geometry, version uint32) error {
	flags := g.Flags
	numTris := g.numTris
	if g.Mesh != nil {
		flags = flags&^(geoAttribMask|geoTexSetMask|GeoNative) | attribFlags(g.Mesh)
		numTris = len(g.Triangles)
	}
	morphs := g.morphs()

	_ = w.WriteHeader(chunk.TypeStruct, e.geometryStructSize(g, version))
	_ = w.WriteU32(flags)
	_ = w.WriteI32(int32(numTris))
	_ = w.WriteI32(int32(g.NumVertices()))
	_ = w.WriteI32(int32(len(morphs)))
	if version < legacySurfaceVersion {
		_ = w.WriteF32(g.Surface.Ambient)
		_ = w.WriteF32(g.Surface.Specular)
		_ = w.WriteF32(g.Surface.Diffuse)
	}
	if m := g.Mesh; m != nil {
		for _, c := range m.Colors {
			_, _ = w.Write([]byte{c.R, c.G, c.B, c.A})
		}
		for _, set := range m.TexCoords {
			for _, uv := range set {
				_ = w.WriteF32(uv[0])
				_ = w.WriteF32(uv[1])
			}
		}
		for _, t := range g.Triangles {
			_ = w.WriteU32(uint32(t.V[0])<<16 | uint32(t.V[1]))
			_ = w.WriteU32(uint32(t.V[2])<<16 | uint32(t.Material))
		}
	}
	for i, mt := range morphs {
		pos, nrm := mt.Positions, mt.Normals
		if i == 0 && g.Mesh != nil {
			pos, nrm = g.Mesh.Positions, g.Mesh.Normals
		}
		_ = w.WriteF32(mt.Center[0])
		_ = w.WriteF32(mt.Center[1])
		_ = w.WriteF32(mt.Center[2])
		_ = w.WriteF32(mt.Radius)
		_ = w.WriteI32(boolI32(len(pos) > 0))
		_ = w.WriteI32(boolI32(len(nrm) > 0))
		writeVec3s(w, pos)
		writeVec3s(w, nrm)
	}
	return w.Err()
}

func boolI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (e *Engine) writeMatList(w *chunk.Writer, mats []*Material, version uint32) error {
	refs := matListRefs(mats)
	_ = w.WriteHeader(chunk.TypeMatList, e.matListSize(mats, version)-chunk.HeaderSize)
	_ = w.WriteHeader(chunk.TypeStruct, 4+4*uint32(len(mats)))
	_ = w.WriteI32(int32(len(mats)))
	for _, ref := range refs {
		_ = w.WriteI32(ref)
	}
	for i, ref := range refs {
		if ref >= 0 {
			continue
		}
		if err := e.WriteMaterial(w, mats[i]); err != nil {
			return err
		}
	}
	return w.Err()
}
