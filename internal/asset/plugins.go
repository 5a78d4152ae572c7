package asset

import (
	"fmt"

	"github.com/samcharles93/strata/internal/mesh"
	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/pkg/chunk"
	"github.com/samcharles93/strata/pkg/plugin"
)

// SkyMipmap holds the PS2 mipmap selection constants of a texture: K is the
// LOD bias in 8.4 fixed point and L the LOD shift.
type SkyMipmap struct {
	K float32
	L uint8

	stored bool
}

func (s SkyMipmap) word() uint32 {
	return uint32(s.L&3)<<12 | uint32(int32(s.K*16))&0xFFF
}

func (s *SkyMipmap) setWord(v uint32) {
	s.L = uint8(v>>12) & 3
	s.K = float32(int32(v<<20)>>20) / 16
}

// Anisotropy is the anisotropic filtering level of a texture. Levels of one
// and below mean off and are not written.
type Anisotropy struct {
	Level int32
}

// BinMeshGroup is one material's index list as stored in the BinMesh
// extension. Native geometries record only the count.
type BinMeshGroup struct {
	Material   uint32
	NumIndices uint32
	Indices    []uint32
}

// BinMesh is the material-grouped index split of a geometry.
type BinMesh struct {
	Prim   mesh.PrimType
	Groups []BinMeshGroup
}

func binMeshOf(m *mesh.Mesh) BinMesh {
	b := BinMesh{Prim: m.Prim, Groups: make([]BinMeshGroup, len(m.Groups))}
	for i, g := range m.Groups {
		b.Groups[i] = BinMeshGroup{Material: g.Material, NumIndices: uint32(len(g.Indices)), Indices: g.Indices}
	}
	return b
}

// NativeData holds the platform buffer of an instanced geometry.
type NativeData struct {
	Buffer *platform.NativeBuffer
}

func (e *Engine) registerTexturePlugins() error {
	var err error
	e.skyMipmap, err = plugin.Register(e.textures, chunk.TypeSkyMipmap, 4, plugin.Hooks[SkyMipmap]{
		Copy: func(dst, src *SkyMipmap) error { *dst = *src; return nil },
	})
	if err != nil {
		return err
	}
	_, err = plugin.RegisterStream(e.textures, chunk.TypeSkyMipmap, plugin.StreamHooks[SkyMipmap]{
		Read: func(r *chunk.Reader, length uint32, _ plugin.Extensible, v *SkyMipmap) error {
			word, err := r.ReadU32()
			if err != nil {
				return err
			}
			v.setWord(word)
			v.stored = true
			return nil
		},
		Write: func(w *chunk.Writer, _ plugin.Extensible, v *SkyMipmap) error {
			return w.WriteU32(v.word())
		},
		Size: func(owner plugin.Extensible, v *SkyMipmap) int32 {
			if v.stored {
				return 4
			}
			if t, ok := owner.(*Texture); ok && t.Native != nil && t.Native.Platform == platform.PS2 {
				return 4
			}
			return -1
		},
	})
	if err != nil {
		return err
	}

	e.anisotropy, err = plugin.Register(e.textures, chunk.TypeAnisotropy, 4, plugin.Hooks[Anisotropy]{
		Construct: func(_ plugin.Extensible, v *Anisotropy) error { v.Level = 1; return nil },
		Copy:      func(dst, src *Anisotropy) error { *dst = *src; return nil },
	})
	if err != nil {
		return err
	}
	_, err = plugin.RegisterStream(e.textures, chunk.TypeAnisotropy, plugin.StreamHooks[Anisotropy]{
		Read: func(r *chunk.Reader, length uint32, _ plugin.Extensible, v *Anisotropy) error {
			var err error
			v.Level, err = r.ReadI32()
			return err
		},
		Write: func(w *chunk.Writer, _ plugin.Extensible, v *Anisotropy) error {
			return w.WriteI32(v.Level)
		},
		Size: func(_ plugin.Extensible, v *Anisotropy) int32 {
			if v.Level <= 1 {
				return -1
			}
			return 4
		},
	})
	return err
}

func (e *Engine) registerGeometryPlugins() error {
	var err error
	e.binMesh, err = plugin.Register(e.geometries, chunk.TypeBinMesh, 12, plugin.Hooks[BinMesh]{
		Destruct: func(_ plugin.Extensible, v *BinMesh) { v.Groups = nil },
		Copy: func(dst, src *BinMesh) error {
			dst.Prim = src.Prim
			dst.Groups = make([]BinMeshGroup, len(src.Groups))
			for i, g := range src.Groups {
				g.Indices = append([]uint32(nil), g.Indices...)
				dst.Groups[i] = g
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	_, err = plugin.RegisterStream(e.geometries, chunk.TypeBinMesh, plugin.StreamHooks[BinMesh]{
		Read:  e.readBinMesh,
		Write: e.writeBinMesh,
		Size: func(owner plugin.Extensible, v *BinMesh) int32 {
			g, ok := owner.(*Geometry)
			if !ok {
				return -1
			}
			b, ok := g.binMesh(v)
			if !ok {
				return -1
			}
			n := 12 + 8*len(b.Groups)
			if !g.IsNative() {
				for _, grp := range b.Groups {
					n += 4 * int(grp.NumIndices)
				}
			}
			return int32(n)
		},
	})
	if err != nil {
		return err
	}

	e.nativeData, err = plugin.Register(e.geometries, chunk.TypeNativeData, 8, plugin.Hooks[NativeData]{
		Destruct: func(_ plugin.Extensible, v *NativeData) { v.Buffer = nil },
		Copy: func(dst, src *NativeData) error {
			if src.Buffer == nil {
				dst.Buffer = nil
				return nil
			}
			dst.Buffer = &platform.NativeBuffer{
				Platform: src.Buffer.Platform,
				Payload:  append([]byte(nil), src.Buffer.Payload...),
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	_, err = plugin.RegisterStream(e.geometries, chunk.TypeNativeData, plugin.StreamHooks[NativeData]{
		Read:  e.readNativeData,
		Write: writeNativeData,
		Size: func(_ plugin.Extensible, v *NativeData) int32 {
			if v.Buffer == nil {
				return -1
			}
			return int32(chunk.HeaderSize + 4 + len(v.Buffer.Payload))
		},
	})
	return err
}

func (e *Engine) readBinMesh(r *chunk.Reader, length uint32, owner plugin.Extensible, v *BinMesh) error {
	g, ok := owner.(*Geometry)
	if !ok {
		return fmt.Errorf("binmesh on %T", owner)
	}
	if length < 12 {
		return fmt.Errorf("%w: binmesh of %d bytes", ErrCorruptAsset, length)
	}
	flags, err := r.ReadU32()
	if err != nil {
		return err
	}
	numGroups, err := r.ReadU32()
	if err != nil {
		return err
	}
	total, err := r.ReadU32()
	if err != nil {
		return err
	}
	if uint64(numGroups)*8 > uint64(length-12) {
		return fmt.Errorf("%w: binmesh declares %d groups in %d bytes", ErrCorruptAsset, numGroups, length)
	}
	native := g.IsNative()
	budget := uint64(length-12) - uint64(numGroups)*8

	v.Prim = mesh.TriList
	if flags&1 != 0 {
		v.Prim = mesh.TriStrip
	}
	v.Groups = make([]BinMeshGroup, numGroups)
	var sum uint64
	for i := range v.Groups {
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		mat, err := r.ReadU32()
		if err != nil {
			return err
		}
		sum += uint64(n)
		grp := BinMeshGroup{Material: mat, NumIndices: n}
		if !native {
			if uint64(n)*4 > budget {
				return fmt.Errorf("%w: binmesh group %d declares %d indices", ErrCorruptAsset, i, n)
			}
			budget -= uint64(n) * 4
			grp.Indices = make([]uint32, n)
			for k := range grp.Indices {
				if grp.Indices[k], err = r.ReadU32(); err != nil {
					return err
				}
			}
		}
		v.Groups[i] = grp
	}
	if sum != uint64(total) {
		return fmt.Errorf("%w: binmesh holds %d indices, header says %d", ErrCorruptAsset, sum, total)
	}
	return nil
}

func (e *Engine) writeBinMesh(w *chunk.Writer, owner plugin.Extensible, v *BinMesh) error {
	g := owner.(*Geometry)
	b, _ := g.binMesh(v)
	var flags, total uint32
	if b.Prim == mesh.TriStrip {
		flags = 1
	}
	for _, grp := range b.Groups {
		total += grp.NumIndices
	}
	_ = w.WriteU32(flags)
	_ = w.WriteU32(uint32(len(b.Groups)))
	_ = w.WriteU32(total)
	for _, grp := range b.Groups {
		_ = w.WriteU32(grp.NumIndices)
		_ = w.WriteU32(grp.Material)
		if g.IsNative() {
			continue
		}
		for _, idx := range grp.Indices {
			_ = w.WriteU32(idx)
		}
	}
	return w.Err()
}

func (e *Engine) readNativeData(r *chunk.Reader, length uint32, _ plugin.Extensible, v *NativeData) error {
	sh, err := r.Expect(chunk.TypeStruct)
	if err != nil {
		return err
	}
	if sh.Length < 4 || uint64(sh.Length)+chunk.HeaderSize > uint64(length) {
		return fmt.Errorf("%w: native data struct of %d bytes in %d", ErrCorruptAsset, sh.Length, length)
	}
	tag, err := r.ReadU32()
	if err != nil {
		return err
	}
	payload, err := r.ReadBytes(int(sh.Length) - 4)
	if err != nil {
		return err
	}
	buf := &platform.NativeBuffer{Platform: platform.Tag(tag), Payload: payload}
	codec, err := e.codecs.Codec(buf.Platform)
	if err != nil {
		e.log.Warn("passing through native geometry", "platform", buf.Platform.String(), "bytes", len(payload))
	} else if err := codec.Validate(payload); err != nil {
		return fmt.Errorf("%w: %s native data: %w", ErrCorruptAsset, buf.Platform, err)
	}
	v.Buffer = buf
	return nil
}

func writeNativeData(w *chunk.Writer, _ plugin.Extensible, v *NativeData) error {
	_ = w.WriteHeader(chunk.TypeStruct, uint32(4+len(v.Buffer.Payload)))
	_ = w.WriteU32(uint32(v.Buffer.Platform))
	_, _ = w.Write(v.Buffer.Payload)
	return w.Err()
}

// SkyMipmap returns t's PS2 mipmap constants.
func (e *Engine) SkyMipmap(t *Texture) *SkyMipmap { return e.skyMipmap.Get(t) }

// Anisotropy returns t's anisotropic filtering level.
func (e *Engine) Anisotropy(t *Texture) *Anisotropy { return e.anisotropy.Get(t) }

// BinMesh returns g's stored index split. For generic geometries the split
// written out is always rebuilt from the mesh.
func (e *Engine) BinMesh(g *Geometry) *BinMesh { return e.binMesh.Get(g) }

// Native returns g's native buffer, or nil for a generic geometry.
func (e *Engine) Native(g *Geometry) *platform.NativeBuffer {
	if v := e.nativeData.Get(g); v != nil {
		return v.Buffer
	}
	return nil
}
