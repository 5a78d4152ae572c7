package asset

import (
	"encoding/binary"
	"fmt"

	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/ps2"
	"github.com/samcharles93/strata/pkg/chunk"
	"github.com/samcharles93/strata/pkg/plugin"
)

// Texture filter modes.
const (
	FilterNone    uint8 = 0
	FilterNearest uint8 = 1
	FilterLinear  uint8 = 2
)

// Texture addressing modes, one nibble each for U and V.
const (
	AddressNone   uint8 = 0
	AddressWrap   uint8 = 1
	AddressMirror uint8 = 2
	AddressClamp  uint8 = 3
	AddressBorder uint8 = 4
)

// textureAutoMipmap marks a generic texture whose raster builds its own mips.
const textureAutoMipmap = 1 << 16

// Texture is a texture record: the sampler state plus either a reference by
// name (generic form) or the platform raster itself (native form).
type Texture struct {
	Name       string
	Mask       string
	Filter     uint8
	AddressU   uint8
	AddressV   uint8
	AutoMipmap bool

	// Native is set for textures read from or built as a TEXTURENATIVE chunk.
	Native *NativeTexture

	plugins plugin.Block
}

// Plugins implements plugin.Extensible.
func (t *Texture) Plugins() *plugin.Block { return &t.plugins }

// NativeTexture is a platform raster. PS2 rasters are decoded; every other
// platform keeps its struct payload untouched so it can be written back.
type NativeTexture struct {
	Platform platform.Tag
	PS2      *ps2.Texture
	Raw      []byte
}

func (t *Texture) filterWord() uint32 {
	return uint32(t.Filter) | uint32(t.AddressU&0xF)<<8 | uint32(t.AddressV&0xF)<<12
}

func (t *Texture) setFilterWord(v uint32) {
	t.Filter = uint8(v)
	t.AddressU = uint8(v>>8) & 0xF
	t.AddressV = uint8(v>>12) & 0xF
}

// NewTexture allocates and constructs an empty texture.
func (e *Engine) NewTexture(name string) (*Texture, error) {
	t := &Texture{Name: name, Filter: FilterLinear, AddressU: AddressWrap, AddressV: AddressWrap}
	if err := e.construct(t); err != nil {
		return nil, err
	}
	return t, nil
}

// NewPS2Texture wraps a PS2 raster into a native texture record.
func (e *Engine) NewPS2Texture(raster *ps2.Texture) (*Texture, error) {
	t, err := e.NewTexture(raster.Name)
	if err != nil {
		return nil, err
	}
	t.Mask = raster.Mask
	t.setFilterWord(raster.FilterAddressing)
	t.Native = &NativeTexture{Platform: platform.PS2, PS2: raster}
	return t, nil
}

// ReadTexture reads a generic TEXTURE chunk.
func (e *Engine) ReadTexture(r *chunk.Reader) (*Texture, error) {
	t := &Texture{}
	if err := e.construct(t); err != nil {
		return nil, err
	}
	if err := e.readTexture(r, t); err != nil {
		e.Destroy(t)
		return nil, err
	}
	return t, nil
}

func (e *Engine) readTexture(r *chunk.Reader, t *Texture) error {
	h, err := r.Expect(chunk.TypeTexture)
	if err != nil {
		return err
	}
	end := r.Pos() + int64(h.Length)

	if _, err := r.Expect(chunk.TypeStruct); err != nil {
		return err
	}
	word, err := r.ReadU32()
	if err != nil {
		return err
	}
	t.AutoMipmap = word&textureAutoMipmap != 0
	t.setFilterWord(word)
	if t.Name, err = r.ReadString(); err != nil {
		return err
	}
	if t.Mask, err = r.ReadString(); err != nil {
		return err
	}
	if err := e.readExtension(r, t, e.textures); err != nil {
		return err
	}
	return r.SeekTo(end)
}

// TextureSize returns the encoded size of t as a TEXTURE chunk, header included.
func (e *Engine) TextureSize(t *Texture) uint32 {
	return chunk.HeaderSize + chunk.HeaderSize + 4 +
		chunk.StringSize(t.Name) + chunk.StringSize(t.Mask) +
		e.textures.ExtensionChunkSize(t)
}

// WriteTexture writes t as a generic TEXTURE chunk.
func (e *Engine) WriteTexture(w *chunk.Writer, t *Texture) error {
	if err := w.WriteHeader(chunk.TypeTexture, e.TextureSize(t)-chunk.HeaderSize); err != nil {
		return err
	}
	word := t.filterWord()
	if t.AutoMipmap {
		word |= textureAutoMipmap
	}
	_ = w.WriteHeader(chunk.TypeStruct, 4)
	_ = w.WriteU32(word)
	_ = w.WriteString(t.Name)
	_ = w.WriteString(t.Mask)
	if err := e.textures.WriteExtension(w, t); err != nil {
		return err
	}
	return w.Err()
}

// ReadTextureNative reads a TEXTURENATIVE chunk. PS2 rasters are decoded for
// the version they were written with; other platforms are kept as raw bytes.
func (e *Engine) ReadTextureNative(r *chunk.Reader) (*Texture, error) {
	t := &Texture{}
	if err := e.construct(t); err != nil {
		return nil, err
	}
	if err := e.readTextureNative(r, t); err != nil {
		e.Destroy(t)
		return nil, err
	}
	return t, nil
}

func (e *Engine) readTextureNative(r *chunk.Reader, t *Texture) error {
	h, err := r.Expect(chunk.TypeTextureNative)
	if err != nil {
		return err
	}
	end := r.Pos() + int64(h.Length)

	sh, err := r.Expect(chunk.TypeStruct)
	if err != nil {
		return err
	}
	payload, err := r.ReadBytes(int(sh.Length))
	if err != nil {
		return err
	}
	if len(payload) < 8 {
		return fmt.Errorf("%w: native texture struct of %d bytes", ErrCorruptAsset, len(payload))
	}

	tag := platform.Tag(binary.LittleEndian.Uint32(payload))
	switch tag {
	case platform.PS2:
		raster, err := ps2.DecodeTexture(payload, sh.Version())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptAsset, err)
		}
		t.Name = raster.Name
		t.Mask = raster.Mask
		t.setFilterWord(raster.FilterAddressing)
		t.Native = &NativeTexture{Platform: tag, PS2: raster}
	default:
		e.log.Warn("passing through native texture", "platform", tag.String(), "bytes", len(payload))
		t.setFilterWord(binary.LittleEndian.Uint32(payload[4:]))
		t.Native = &NativeTexture{Platform: tag, Raw: payload}
	}
	if err := e.readExtension(r, t, e.textures); err != nil {
		return err
	}
	return r.SeekTo(end)
}

// nativePayload returns the TEXTURENATIVE struct payload of t as a writer
// stamping version expects it.
func (e *Engine) nativePayload(t *Texture, version uint32) ([]byte, error) {
	n := t.Native
	if n == nil {
		return nil, fmt.Errorf("asset: texture %q has no native raster", t.Name)
	}
	if n.PS2 == nil {
		return n.Raw, nil
	}
	raster, err := n.PS2.Restamp(version)
	if err != nil {
		return nil, fmt.Errorf("asset: texture %q: %w", t.Name, err)
	}
	out := *raster
	out.Name = t.Name
	out.Mask = t.Mask
	out.FilterAddressing = t.filterWord()
	return out.Encode(), nil
}

func (e *Engine) textureNativeSize(t *Texture, payload []byte) uint32 {
	return chunk.HeaderSize + chunk.HeaderSize + uint32(len(payload)) + e.textures.ExtensionChunkSize(t)
}

// TextureNativeSize returns the encoded size of t as a TEXTURENATIVE chunk.
func (e *Engine) TextureNativeSize(t *Texture) (uint32, error) {
	payload, err := e.nativePayload(t, e.opts.Version)
	if err != nil {
		return 0, err
	}
	return e.textureNativeSize(t, payload), nil
}

// WriteTextureNative writes t as a TEXTURENATIVE chunk.
func (e *Engine) WriteTextureNative(w *chunk.Writer, t *Texture) error {
	payload, err := e.nativePayload(t, w.Version())
	if err != nil {
		return err
	}
	return e.writeTextureNative(w, t, payload)
}

func (e *Engine) writeTextureNative(w *chunk.Writer, t *Texture, payload []byte) error {
	if err := w.WriteHeader(chunk.TypeTextureNative, e.textureNativeSize(t, payload)-chunk.HeaderSize); err != nil {
		return err
	}
	_ = w.WriteHeader(chunk.TypeStruct, uint32(len(payload)))
	_, _ = w.Write(payload)
	if err := e.textures.WriteExtension(w, t); err != nil {
		return err
	}
	return w.Err()
}

// readExtension reads rec's EXTENSION chunk and logs the plugins skipped.
func (e *Engine) readExtension(r *chunk.Reader, rec plugin.Extensible, reg *plugin.Registry) error {
	skipped, err := reg.ReadExtension(r, rec)
	e.skipped(reg.Kind(), skipped)
	return err
}
