package asset

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/ps2"
	"github.com/samcharles93/strata/internal/raster"
	"github.com/samcharles93/strata/pkg/chunk"
)

func palettedImage(w, h, levels int) *raster.Image {
	img := &raster.Image{Width: w, Height: h, Depth: 8, Format: raster.Format8888 | raster.FormatPal8}
	for i := 0; i < 256; i++ {
		img.Palette = append(img.Palette, raster.RGBA{R: uint8(i), G: uint8(i * 3), B: uint8(255 - i), A: 0xFF})
	}
	for l := 0; l < levels; l++ {
		lw, lh := raster.LevelSize(w, h, l)
		px := make([]byte, lw*lh)
		for i := range px {
			px[i] = uint8(i*7 + l)
		}
		img.Levels = append(img.Levels, px)
	}
	if levels > 1 {
		img.Format |= raster.FormatMipmap
	}
	return img
}

func u32s(vs ...uint32) []byte {
	out := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		out = binary.LittleEndian.AppendUint32(out, v)
	}
	return out
}

func rawChunk(t *testing.T, e *Engine, typ chunk.Type, parts ...[]byte) []byte {
	t.Helper()
	payload := bytes.Join(parts, nil)
	return encode(t, e, func(w *chunk.Writer) error { return writeRaw(w, RawChunk{Type: typ, Payload: payload}) })
}

func ps2Texture(t *testing.T, e *Engine, name string, img *raster.Image) *Texture {
	t.Helper()
	r, err := ps2.FromImage(img, name, true)
	require.NoError(t, err)
	tex, err := e.NewPS2Texture(r)
	require.NoError(t, err)
	return tex
}

func TestTexDictionaryRoundTrip(t *testing.T) {
	t.Parallel()
	e := newEngine(t, Options{})
	img := palettedImage(64, 64, 2)
	tex := ps2Texture(t, e, "grass", img)
	*e.SkyMipmap(tex) = SkyMipmap{K: -1.5, L: 2}

	d, err := e.NewTexDictionary()
	require.NoError(t, err)
	d.DeviceID = 6
	d.Textures = []*Texture{tex}

	b := encode(t, e, func(w *chunk.Writer) error { return e.WriteTexDictionary(w, d) })
	got, errs, err := e.ReadTexDictionary(reader(t, b))
	require.NoError(t, err)
	require.Empty(t, errs)
	assert.Equal(t, uint16(6), got.DeviceID)

	gt := got.Find("grass")
	require.NotNil(t, gt)
	assert.Nil(t, got.Find("sand"))
	assert.Equal(t, platform.PS2, gt.Native.Platform)
	assert.Equal(t, FilterLinear, gt.Filter)
	assert.Equal(t, AddressWrap, gt.AddressU)
	sky := e.SkyMipmap(gt)
	assert.Equal(t, float32(-1.5), sky.K)
	assert.Equal(t, uint8(2), sky.L)
	assert.True(t, gt.Native.PS2.Layout.Levels[0].Swizzled)

	decoded, err := gt.Native.PS2.Image()
	require.NoError(t, err)
	assert.Equal(t, img, decoded)

	again := encode(t, e, func(w *chunk.Writer) error { return e.WriteTexDictionary(w, got) })
	assert.Equal(t, b, again)
}

func TestTexDictionaryRestampsForOldWriters(t *testing.T) {
	t.Parallel()
	old := newEngine(t, Options{Version: 0x34003, Build: 0})
	img := palettedImage(64, 64, 1)
	tex := ps2Texture(t, old, "grass", img)
	require.True(t, tex.Native.PS2.Layout.Levels[0].Swizzled)

	d, err := old.NewTexDictionary()
	require.NoError(t, err)
	d.Textures = []*Texture{tex}
	b := encode(t, old, func(w *chunk.Writer) error { return old.WriteTexDictionary(w, d) })

	got, errs, err := old.ReadTexDictionary(reader(t, b))
	require.NoError(t, err)
	require.Empty(t, errs)
	native := got.Textures[0].Native.PS2
	assert.False(t, native.Layout.Levels[0].Swizzled)
	decoded, err := native.Image()
	require.NoError(t, err)
	assert.Equal(t, img, decoded)
}

func TestForeignNativeTexturePassesThrough(t *testing.T) {
	t.Parallel()
	e, logs := captureEngine(t, Options{})
	payload := append(u32s(uint32(platform.D3D8), 0x3302), bytes.Repeat([]byte{0xAB}, 20)...)
	b := rawChunk(t, e, chunk.TypeTextureNative,
		rawChunk(t, e, chunk.TypeStruct, payload),
		rawChunk(t, e, chunk.TypeExtension))

	tex, err := e.ReadTextureNative(reader(t, b))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "passing through native texture")
	assert.Equal(t, platform.D3D8, tex.Native.Platform)
	assert.Equal(t, payload, tex.Native.Raw)
	assert.Equal(t, FilterLinear, tex.Filter)
	assert.Equal(t, AddressClamp, tex.AddressU)
	assert.Equal(t, AddressClamp, tex.AddressV)

	size, err := e.TextureNativeSize(tex)
	require.NoError(t, err)
	require.Equal(t, len(b), int(size))
	again := encode(t, e, func(w *chunk.Writer) error { return e.WriteTextureNative(w, tex) })
	assert.Equal(t, b, again)
}

func TestTexDictionarySkipsBrokenTexture(t *testing.T) {
	t.Parallel()
	e := newEngine(t, Options{})
	good := ps2Texture(t, e, "good", palettedImage(32, 32, 1))
	goodBytes := encode(t, e, func(w *chunk.Writer) error { return e.WriteTextureNative(w, good) })
	broken := rawChunk(t, e, chunk.TypeTextureNative,
		rawChunk(t, e, chunk.TypeStruct, u32s(uint32(platform.PS2), 0x1102)),
		rawChunk(t, e, chunk.TypeExtension))

	b := rawChunk(t, e, chunk.TypeTexDictionary,
		rawChunk(t, e, chunk.TypeStruct, u32s(2)),
		broken, goodBytes,
		rawChunk(t, e, chunk.TypeExtension))

	d, errs, err := e.ReadTexDictionary(reader(t, b))
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "texture", errs[0].Kind)
	assert.Equal(t, 0, errs[0].Index)
	require.ErrorIs(t, errs[0], ErrCorruptAsset)
	require.Len(t, d.Textures, 1)
	assert.Equal(t, "good", d.Textures[0].Name)
}
