package asset

import (
	"fmt"

	"github.com/samcharles93/strata/internal/mesh"
	"github.com/samcharles93/strata/pkg/chunk"
	"github.com/samcharles93/strata/pkg/plugin"
)

// surfacePropsVersion is the last version whose material structs lack
// surface properties.
const surfacePropsVersion = 0x30400

// SurfaceProps are the lighting coefficients of a material.
type SurfaceProps struct {
	Ambient  float32
	Specular float32
	Diffuse  float32
}

// Material is a material record: colour, lighting and an optional texture.
type Material struct {
	Flags   uint32
	Color   mesh.RGBA
	Surface SurfaceProps
	Texture *Texture

	plugins plugin.Block
}

// Plugins implements plugin.Extensible.
func (m *Material) Plugins() *plugin.Block { return &m.plugins }

// NewMaterial allocates and constructs a white, untextured material.
func (e *Engine) NewMaterial() (*Material, error) {
	m := &Material{
		Color:   mesh.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
		Surface: SurfaceProps{Ambient: 1, Specular: 1, Diffuse: 1},
	}
	if err := e.construct(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadMaterial reads a MATERIAL chunk and the texture it references.
func (e *Engine) ReadMaterial(r *chunk.Reader) (*Material, error) {
	m := &Material{}
	if err := e.construct(m); err != nil {
		return nil, err
	}
	if err := e.readMaterial(r, m); err != nil {
		e.Destroy(m)
		return nil, err
	}
	return m, nil
}

func (e *Engine) readMaterial(r *chunk.Reader, m *Material) error {
	h, err := r.Expect(chunk.TypeMaterial)
	if err != nil {
		return err
	}
	end := r.Pos() + int64(h.Length)

	sh, err := r.Expect(chunk.TypeStruct)
	if err != nil {
		return err
	}
	structEnd := r.Pos() + int64(sh.Length)
	if m.Flags, err = r.ReadU32(); err != nil {
		return err
	}
	var rgba [4]byte
	if err := r.ReadFull(rgba[:]); err != nil {
		return err
	}
	m.Color = mesh.RGBA{R: rgba[0], G: rgba[1], B: rgba[2], A: rgba[3]}
	if _, err := r.ReadI32(); err != nil {
		return err
	}
	textured, err := r.ReadI32()
	if err != nil {
		return err
	}
	if sh.Version() > surfacePropsVersion {
		m.Surface.Ambient, _ = r.ReadF32()
		m.Surface.Specular, _ = r.ReadF32()
		if m.Surface.Diffuse, err = r.ReadF32(); err != nil {
			return err
		}
	}
	if err := r.SeekTo(structEnd); err != nil {
		return err
	}

	if textured != 0 {
		if m.Texture, err = e.ReadTexture(r); err != nil {
			return fmt.Errorf("material texture: %w", err)
		}
	}
	if err := e.readExtension(r, m, e.materials); err != nil {
		return err
	}
	return r.SeekTo(end)
}

func materialStructSize(version uint32) uint32 {
	if version > surfacePropsVersion {
		return 28
	}
	return 16
}

func (e *Engine) materialSize(m *Material, version uint32) uint32 {
	n := 2*chunk.HeaderSize + materialStructSize(version) + e.materials.ExtensionChunkSize(m)
	if m.Texture != nil {
		n += e.TextureSize(m.Texture)
	}
	return n
}

// MaterialSize returns the encoded size of m as a MATERIAL chunk.
func (e *Engine) MaterialSize(m *Material) uint32 { return e.materialSize(m, e.opts.Version) }

// WriteMaterial writes m as a MATERIAL chunk.
func (e *Engine) WriteMaterial(w *chunk.Writer, m *Material) error {
	version := w.Version()
	if err := w.WriteHeader(chunk.TypeMaterial, e.materialSize(m, version)-chunk.HeaderSize); err != nil {
		return err
	}
	_ = w.WriteHeader(chunk.TypeStruct, materialStructSize(version))
	_ = w.WriteU32(m.Flags)
	_, _ = w.Write([]byte{m.Color.R, m.Color.G, m.Color.B, m.Color.A})
	_ = w.WriteI32(0)
	if m.Texture != nil {
		_ = w.WriteI32(1)
	} else {
		_ = w.WriteI32(0)
	}
	if version > surfacePropsVersion {
		_ = w.WriteF32(m.Surface.Ambient)
		_ = w.WriteF32(m.Surface.Specular)
		_ = w.WriteF32(m.Surface.Diffuse)
	}
	if m.Texture != nil {
		if err := e.WriteTexture(w, m.Texture); err != nil {
			return err
		}
	}
	if err := e.materials.WriteExtension(w, m); err != nil {
		return err
	}
	return w.Err()
}
