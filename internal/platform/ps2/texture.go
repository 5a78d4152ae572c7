package ps2

import (
	"fmt"

	"github.com/samcharles93/strata/internal/platform"
	"github.com/samcharles93/strata/internal/platform/binbuf"
	"github.com/samcharles93/strata/internal/raster"
)

// SwizzleVersion is the first library version whose PS2 native textures
// store 8-bit and 4-bit levels swizzled.
const SwizzleVersion = 0x35000

const nameLen = 32

// Texture is a PS2 native texture: the fields of a TEXTURENATIVE struct and
// its texels in upload order.
type Texture struct {
	Name             string
	Mask             string
	FilterAddressing uint32
	Format           raster.Format
	HasAlpha         bool
	Width, Height    int
	Depth            int
	Type             raster.Type
	Compression      uint8

	Layout  *Layout
	Palette []byte
	Levels  [][]byte
}

// DecodeTexture parses a TEXTURENATIVE struct payload written by library
// version version.
func DecodeTexture(payload []byte, version uint32) (*Texture, error) {
	d := binbuf.NewDecoder(payload)
	if tag := platform.Tag(d.U32()); d.Err() == nil && tag != platform.PS2 {
		return nil, fmt.Errorf("ps2: texture: %w: %s", platform.ErrUnsupportedPlatform, tag)
	}
	t := &Texture{FilterAddressing: d.U32()}
	t.Name = fixedString(d.Raw(nameLen))
	t.Mask = fixedString(d.Raw(nameLen))
	t.Format = raster.Format(d.U32())
	t.HasAlpha = d.U32() != 0
	t.Width = int(d.U16())
	t.Height = int(d.U16())
	t.Depth = int(d.U8())
	numLevels := int(d.U8())
	t.Type = raster.Type(d.U8())
	t.Compression = d.U8()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("ps2: texture header: %w", err)
	}

	l, err := Compute(Request{
		Width:   t.Width,
		Height:  t.Height,
		Depth:   t.Depth,
		Format:  t.Format,
		Type:    t.Type,
		Levels:  numLevels,
		Swizzle: version >= SwizzleVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("ps2: texture %q: %w", t.Name, err)
	}
	t.Layout = l
	if l.Palette != nil {
		t.Palette = d.Raw(l.Palette.Size)
	}
	for i, lv := range l.Levels {
		n := int(d.U32())
		if d.Err() == nil && n != lv.Size {
			d.Fail("texture %q level %d: %d bytes, layout needs %d", t.Name, i, n, lv.Size)
		}
		t.Levels = append(t.Levels, d.Raw(n))
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("ps2: %w", err)
	}
	return t, nil
}

func fixedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Size returns the encoded struct payload size.
func (t *Texture) Size() int {
	n := 4 + 4 + 2*nameLen + 16 + len(t.Palette)
	for _, lvl := range t.Levels {
		n += 4 + len(lvl)
	}
	return n
}

// Encode returns the TEXTURENATIVE struct payload.
func (t *Texture) Encode() []byte {
	e := binbuf.NewEncoder(t.Size())
	e.U32(uint32(platform.PS2))
	e.U32(t.FilterAddressing)
	e.Raw(fixedBytes(t.Name))
	e.Raw(fixedBytes(t.Mask))
	e.U32(uint32(t.Format))
	if t.HasAlpha {
		e.U32(1)
	} else {
		e.U32(0)
	}
	e.U16(uint16(t.Width))
	e.U16(uint16(t.Height))
	e.U8(uint8(t.Depth))
	e.U8(uint8(len(t.Levels)))
	e.U8(uint8(t.Type))
	e.U8(t.Compression)
	e.Raw(t.Palette)
	for _, lvl := range t.Levels {
		e.U32(uint32(len(lvl)))
		e.Raw(lvl)
	}
	return e.Bytes()
}

func fixedBytes(s string) []byte {
	b := make([]byte, nameLen)
	copy(b[:nameLen-1], s)
	return b
}

// FromImage builds a native texture from a decoded image. Paletted images
// must be 8-bit (256 entries) or 4-bit (16 entries); direct colour images
// are stored as PSMCT32.
func FromImage(img *raster.Image, name string, swizzle bool) (*Texture, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	t := &Texture{
		Name:             name,
		FilterAddressing: 0x1102, // linear, wrap in U and V
		Format:           img.Format,
		HasAlpha:         img.HasAlpha(),
		Width:            img.Width,
		Height:           img.Height,
		Depth:            img.Depth,
		Type:             raster.TypeTexture,
	}
	if len(img.Levels) > 1 {
		t.Format |= raster.FormatMipmap
	}
	switch {
	case t.Format&raster.FormatPal8 != 0:
		t.Depth = 8
	case t.Format&raster.FormatPal4 != 0:
		t.Depth = 4
	default:
		t.Depth = 32
		if t.Format.Pixel() == raster.FormatDefault {
			t.Format |= raster.Format8888
		}
	}
	l, err := Compute(Request{
		Width:   img.Width,
		Height:  img.Height,
		Depth:   t.Depth,
		Format:  t.Format,
		Type:    t.Type,
		Levels:  len(img.Levels),
		Swizzle: swizzle,
	})
	if err != nil {
		return nil, fmt.Errorf("ps2: texture %q: %w", name, err)
	}
	if l.NoBacking {
		return nil, fmt.Errorf("ps2: texture %q: %w: %dx%d has no texels", name, ErrInvalidRasterFormat, img.Width, img.Height)
	}
	t.Layout = l

	if l.Palette != nil {
		t.Palette = encodePalette(img.Palette, l.Palette.PSM, l.PSM == PSMT8)
	}
	for i, lv := range l.Levels {
		t.Levels = append(t.Levels, encodeLevel(lv, img.Levels[i], imageBPP(img)))
	}
	return t, nil
}

func imageBPP(img *raster.Image) int {
	if img.Format.Paletted() {
		return 1
	}
	return 4
}

// Restamp returns t in the texel order a reader expects from a file stamped
// with version. Textures read from files on the other side of SwizzleVersion
// are transcoded; everything else is returned as is.
func (t *Texture) Restamp(version uint32) (*Texture, error) {
	if t.Layout == nil || t.Layout.NoBacking {
		return t, nil
	}
	want, err := Compute(Request{
		Width:   t.Width,
		Height:  t.Height,
		Depth:   t.Depth,
		Format:  t.Format,
		Type:    t.Type,
		Levels:  len(t.Levels),
		Swizzle: version >= SwizzleVersion,
	})
	if err != nil {
		return nil, err
	}
	same := true
	for i, lv := range want.Levels {
		if lv.Swizzled != t.Layout.Levels[i].Swizzled {
			same = false
		}
	}
	if same {
		return t, nil
	}
	img, err := t.Image()
	if err != nil {
		return nil, err
	}
	out, err := FromImage(img, t.Name, version >= SwizzleVersion)
	if err != nil {
		return nil, err
	}
	out.Mask = t.Mask
	out.FilterAddressing = t.FilterAddressing
	out.Format = t.Format
	out.HasAlpha = t.HasAlpha
	out.Type = t.Type
	out.Compression = t.Compression
	return out, nil
}

// Image decodes the texels back into a linear image.
func (t *Texture) Image() (*raster.Image, error) {
	if t.Layout == nil {
		return nil, fmt.Errorf("ps2: texture %q has no layout", t.Name)
	}
	img := &raster.Image{
		Width:  t.Width,
		Height: t.Height,
		Depth:  t.Depth,
		Format: t.Format &^ raster.FormatMipmap &^ raster.FormatAutoMipmap,
	}
	if len(t.Levels) > 1 {
		img.Format |= raster.FormatMipmap
	}
	bpp := 4
	if p := t.Layout.Palette; p != nil {
		bpp = 1
		img.Palette = decodePalette(t.Palette, p.PSM, p.Entries, t.Layout.PSM == PSMT8)
	}
	for i, lv := range t.Layout.Levels {
		if len(t.Levels[i]) != lv.Size {
			return nil, fmt.Errorf("ps2: texture %q level %d: %w", t.Name, i, platform.ErrCorruptNative)
		}
		img.Levels = append(img.Levels, decodeLevel(lv, t.Levels[i], bpp))
	}
	return img, nil
}

// encodeLevel converts logical pixels (one index byte or four RGBA bytes per
// pixel) into the level's upload bytes.
func encodeLevel(lv Level, px []byte, bpp int) []byte {
	up := UploadOf(lv)
	var data []byte
	if lv.Swizzled {
		native := encodeTexels(lv.PSM, px)
		if lv.PSM == PSMT4 {
			data = Swizzle4(native, lv.Width, lv.Height)
		} else {
			data = Swizzle8(native, lv.Width, lv.Height)
		}
	} else {
		data = encodeTexels(lv.PSM, padRows(px, lv.Width, lv.Height, up.Width, bpp))
	}
	if PageTiled(lv) {
		data = tilePages(data, up.Width, up.Height)
	}
	out := make([]byte, lv.Size)
	copy(out, data)
	return out
}

func decodeLevel(lv Level, data []byte, bpp int) []byte {
	up := UploadOf(lv)
	if PageTiled(lv) {
		data = untilePages(data, up.Width, up.Height)
	}
	if lv.Swizzled {
		var native []byte
		if lv.PSM == PSMT4 {
			native = Unswizzle4(data[:lv.Width*lv.Height/2], lv.Width, lv.Height)
		} else {
			native = Unswizzle8(data[:lv.Width*lv.Height], lv.Width, lv.Height)
		}
		return decodeTexels(lv.PSM, native, lv.Width*lv.Height)
	}
	px := decodeTexels(lv.PSM, data, up.Width*lv.Height)
	return cropRows(px, up.Width, lv.Width, lv.Height, bpp)
}

func padRows(px []byte, w, h, tw, bpp int) []byte {
	if tw == w {
		return px
	}
	out := make([]byte, tw*h*bpp)
	for y := 0; y < h; y++ {
		copy(out[y*tw*bpp:], px[y*w*bpp:(y+1)*w*bpp])
	}
	return out
}

func cropRows(px []byte, tw, w, h, bpp int) []byte {
	if tw == w {
		return px
	}
	out := make([]byte, w*h*bpp)
	for y := 0; y < h; y++ {
		copy(out[y*w*bpp:], px[y*tw*bpp:y*tw*bpp+w*bpp])
	}
	return out
}

// alphaToGS maps 0..255 alpha onto the GS range where 0x80 is opaque.
func alphaToGS(a uint8) uint8 { return uint8((uint16(a) + 1) >> 1) }

func alphaFromGS(a uint8) uint8 {
	if a >= 0x80 {
		return 0xFF
	}
	return a << 1
}

func encodeTexels(p PSM, px []byte) []byte {
	switch p {
	case PSMT8:
		return append([]byte(nil), px...)
	case PSMT4:
		return packNibbles(px)
	case PSMCT24:
		out := make([]byte, 0, len(px)/4*3)
		for i := 0; i+3 < len(px); i += 4 {
			out = append(out, px[i], px[i+1], px[i+2])
		}
		return out
	case PSMCT16, PSMCT16S:
		out := make([]byte, 0, len(px)/2)
		for i := 0; i+3 < len(px); i += 4 {
			v := rgba5551(raster.RGBA{R: px[i], G: px[i+1], B: px[i+2], A: px[i+3]})
			out = append(out, uint8(v), uint8(v>>8))
		}
		return out
	}
	out := make([]byte, len(px))
	for i := 0; i+3 < len(px); i += 4 {
		out[i], out[i+1], out[i+2], out[i+3] = px[i], px[i+1], px[i+2], alphaToGS(px[i+3])
	}
	return out
}

// decodeTexels returns n logical pixels from native bytes.
func decodeTexels(p PSM, data []byte, n int) []byte {
	switch p {
	case PSMT8:
		return append([]byte(nil), data[:n]...)
	case PSMT4:
		return unpackNibbles(data, n)
	case PSMCT24:
		out := make([]byte, n*4)
		for i := 0; i < n; i++ {
			out[4*i], out[4*i+1], out[4*i+2], out[4*i+3] = data[3*i], data[3*i+1], data[3*i+2], 0xFF
		}
		return out
	case PSMCT16, PSMCT16S:
		out := make([]byte, n*4)
		for i := 0; i < n; i++ {
			c := from5551(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
			out[4*i], out[4*i+1], out[4*i+2], out[4*i+3] = c.R, c.G, c.B, c.A
		}
		return out
	}
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		out[4*i], out[4*i+1], out[4*i+2], out[4*i+3] = data[4*i], data[4*i+1], data[4*i+2], alphaFromGS(data[4*i+3])
	}
	return out
}

func rgba5551(c raster.RGBA) uint16 {
	v := uint16(c.R>>3) | uint16(c.G>>3)<<5 | uint16(c.B>>3)<<10
	if c.A >= 0x80 {
		v |= 0x8000
	}
	return v
}

func from5551(v uint16) raster.RGBA {
	expand := func(x uint16) uint8 { return uint8(x<<3 | x>>2) }
	c := raster.RGBA{R: expand(v & 0x1F), G: expand(v >> 5 & 0x1F), B: expand(v >> 10 & 0x1F)}
	if v&0x8000 != 0 {
		c.A = 0xFF
	}
	return c
}

// clutIndex maps a palette index to its CSM1 storage slot: within every 32
// entries the second and third runs of 8 trade places. The mapping is its
// own inverse.
func clutIndex(i int) int {
	return i&^0x18 | (i&0x08)<<1 | (i&0x10)>>1
}

func encodePalette(pal []raster.RGBA, p PSM, shuffle bool) []byte {
	stored := make([]raster.RGBA, len(pal))
	for i, c := range pal {
		j := i
		if shuffle {
			j = clutIndex(i)
		}
		stored[j] = c
	}
	var out []byte
	for _, c := range stored {
		if p == PSMCT16 {
			v := rgba5551(c)
			out = append(out, uint8(v), uint8(v>>8))
			continue
		}
		out = append(out, c.R, c.G, c.B, alphaToGS(c.A))
	}
	return out
}

func decodePalette(data []byte, p PSM, entries int, shuffle bool) []raster.RGBA {
	out := make([]raster.RGBA, entries)
	for i := 0; i < entries; i++ {
		var c raster.RGBA
		if p == PSMCT16 {
			c = from5551(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
		} else {
			c = raster.RGBA{R: data[4*i], G: data[4*i+1], B: data[4*i+2], A: alphaFromGS(data[4*i+3])}
		}
		j := i
		if shuffle {
			j = clutIndex(i)
		}
		out[j] = c
	}
	return out
}
