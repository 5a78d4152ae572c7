package asset

import (
	"github.com/samcharles93/strata/internal/mesh"
)

// CopyTexture returns a deep copy of t with its plugin data copied through
// the texture registry.
func (e *Engine) CopyTexture(t *Texture) (*Texture, error) {
	out := &Texture{
		Name:       t.Name,
		Mask:       t.Mask,
		Filter:     t.Filter,
		AddressU:   t.AddressU,
		AddressV:   t.AddressV,
		AutoMipmap: t.AutoMipmap,
	}
	if n := t.Native; n != nil {
		cp := &NativeTexture{Platform: n.Platform, Raw: append([]byte(nil), n.Raw...)}
		if n.PS2 != nil {
			raster := *n.PS2
			raster.Palette = append([]byte(nil), n.PS2.Palette...)
			raster.Levels = make([][]byte, len(n.PS2.Levels))
			for i, lvl := range n.PS2.Levels {
				raster.Levels[i] = append([]byte(nil), lvl...)
			}
			cp.PS2 = &raster
		}
		out.Native = cp
	}
	if err := e.construct(out); err != nil {
		return nil, err
	}
	if err := e.textures.Copy(out, t); err != nil {
		e.Destroy(out)
		return nil, err
	}
	return out, nil
}

// CopyMaterial returns a deep copy of m, texture included.
func (e *Engine) CopyMaterial(m *Material) (*Material, error) {
	out := &Material{Flags: m.Flags, Color: m.Color, Surface: m.Surface}
	if err := e.construct(out); err != nil {
		return nil, err
	}
	if m.Texture != nil {
		tex, err := e.CopyTexture(m.Texture)
		if err != nil {
			e.Destroy(out)
			return nil, err
		}
		out.Texture = tex
	}
	if err := e.materials.Copy(out, m); err != nil {
		e.Destroy(out)
		return nil, err
	}
	return out, nil
}

// CopyGeometry returns a deep copy of g. Materials shared within g stay
// shared within the copy.
func (e *Engine) CopyGeometry(g *Geometry) (*Geometry, error) {
	out := &Geometry{
		Flags:     g.Flags,
		Surface:   g.Surface,
		Triangles: append([]Triangle(nil), g.Triangles...),
		numVerts:  g.numVerts,
		numTris:   g.numTris,
	}
	if g.Mesh != nil {
		out.Mesh = g.Mesh.Clone()
	}
	for _, mt := range g.Morphs {
		out.Morphs = append(out.Morphs, MorphTarget{
			Center:    mt.Center,
			Radius:    mt.Radius,
			Positions: append([]mesh.Vec3(nil), mt.Positions...),
			Normals:   append([]mesh.Vec3(nil), mt.Normals...),
		})
	}
	if err := e.construct(out); err != nil {
		return nil, err
	}
	copied := map[*Material]*Material{}
	for _, m := range g.Materials {
		cp, ok := copied[m]
		if !ok {
			var err error
			if cp, err = e.CopyMaterial(m); err != nil {
				e.Destroy(out)
				return nil, err
			}
			copied[m] = cp
		}
		out.Materials = append(out.Materials, cp)
	}
	if err := e.geometries.Copy(out, g); err != nil {
		e.Destroy(out)
		return nil, err
	}
	return out, nil
}
