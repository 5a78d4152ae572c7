package asset

import (
	"fmt"

	"github.com/samcharles93/strata/internal/platform"
)

// Instance packs g's generic mesh into a native buffer for tag and drops the
// generic vertex data. Instancing a native geometry is a no-op, whatever
// platform it was instanced for.
func (e *Engine) Instance(g *Geometry, tag platform.Tag) error {
	if g.IsNative() {
		return nil
	}
	if g.Mesh == nil {
		return ErrNoGeometry
	}
	codec, err := e.codecs.Codec(tag)
	if err != nil {
		return err
	}
	slot := e.nativeData.Get(g)
	if slot == nil {
		return fmt.Errorf("asset: instance: geometry not constructed")
	}
	buf, err := codec.Instance(g.Mesh)
	if err != nil {
		return fmt.Errorf("asset: instance for %s: %w", tag, err)
	}

	m := g.Mesh
	slot.Buffer = &buf
	if bm := e.BinMesh(g); bm != nil {
		*bm = binMeshOf(m)
		for i := range bm.Groups {
			bm.Groups[i].Indices = nil
		}
	}
	g.Flags = g.Flags&^(geoAttribMask|geoTexSetMask) | attribFlags(m) | GeoNative
	g.numVerts = m.NumVertices()
	g.numTris = len(g.Triangles)
	g.Mesh = nil
	g.Triangles = nil
	for i := range g.Morphs {
		g.Morphs[i].Positions = nil
		g.Morphs[i].Normals = nil
	}
	e.log.Debug("instanced geometry", "platform", tag.String(), "vertices", g.numVerts, "bytes", len(buf.Payload))
	return nil
}

// Uninstance rebuilds g's generic mesh from its native buffer and releases
// the buffer. Uninstancing a generic geometry is a no-op.
func (e *Engine) Uninstance(g *Geometry) error {
	if !g.IsNative() {
		return nil
	}
	buf := e.Native(g)
	if buf == nil {
		return ErrNoGeometry
	}
	codec, err := e.codecs.Codec(buf.Platform)
	if err != nil {
		return err
	}
	m, err := codec.Uninstance(*buf)
	if err != nil {
		return fmt.Errorf("asset: uninstance from %s: %w", buf.Platform, err)
	}

	e.nativeData.Get(g).Buffer = nil
	if bm := e.BinMesh(g); bm != nil {
		bm.Groups = nil
	}
	g.Mesh = m
	g.Triangles = trianglesOf(m)
	g.Flags = g.Flags&^(geoAttribMask|geoTexSetMask|GeoNative) | attribFlags(m)
	g.numVerts = m.NumVertices()
	g.numTris = len(g.Triangles)
	e.log.Debug("uninstanced geometry", "platform", buf.Platform.String(), "vertices", g.numVerts)
	return nil
}
