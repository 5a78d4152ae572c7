// Package raster holds the back-end independent description of a texture:
// the engine's raster format word and the decoded GenericTexture value that
// image loaders produce and native raster codecs consume.
package raster

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidImage means a GenericTexture is internally inconsistent.
var ErrInvalidImage = errors.New("invalid image")

// Format is the raster format word stored with every texture. The low byte is
// unused, bits 8-11 hold the pixel format and the top bits are modifiers.
type Format uint32

const (
	FormatDefault Format = 0x0000
	Format1555    Format = 0x0100
	Format565     Format = 0x0200
	Format4444    Format = 0x0300
	FormatLUM8    Format = 0x0400
	Format8888    Format = 0x0500
	Format888     Format = 0x0600
	Format555     Format = 0x0A00

	FormatAutoMipmap Format = 0x1000
	FormatPal8       Format = 0x2000
	FormatPal4       Format = 0x4000
	FormatMipmap     Format = 0x8000

	pixelMask Format = 0x0F00
)

// Pixel returns the pixel format with modifiers stripped.
func (f Format) Pixel() Format { return f & pixelMask }

// Paletted reports whether either palette modifier is set.
func (f Format) Paletted() bool { return f&(FormatPal8|FormatPal4) != 0 }

// Mipmapped reports whether the raster carries a mip chain.
func (f Format) Mipmapped() bool { return f&FormatMipmap != 0 }

// PaletteSize returns the number of palette entries the format implies.
func (f Format) PaletteSize() int {
	switch {
	case f&FormatPal8 != 0:
		return 256
	case f&FormatPal4 != 0:
		return 16
	}
	return 0
}

var pixelNames = map[Format]string{
	FormatDefault: "default",
	Format1555:    "1555",
	Format565:     "565",
	Format4444:    "4444",
	FormatLUM8:    "lum8",
	Format8888:    "8888",
	Format888:     "888",
	Format555:     "555",
}

func (f Format) String() string {
	parts := []string{}
	if name, ok := pixelNames[f.Pixel()]; ok {
		parts = append(parts, name)
	} else {
		parts = append(parts, fmt.Sprintf("pixel(0x%x)", uint32(f.Pixel())))
	}
	if f&FormatPal8 != 0 {
		parts = append(parts, "pal8")
	}
	if f&FormatPal4 != 0 {
		parts = append(parts, "pal4")
	}
	if f&FormatMipmap != 0 {
		parts = append(parts, "mipmap")
	}
	if f&FormatAutoMipmap != 0 {
		parts = append(parts, "automipmap")
	}
	return strings.Join(parts, "|")
}

// Type is the raster type byte.
type Type uint8

const (
	TypeNormal       Type = 0
	TypeZBuffer      Type = 1
	TypeCamera       Type = 2
	TypeTexture      Type = 4
	TypeCameraTex    Type = 5
	TypeDontAllocate Type = 0x80
)

// Image is a decoded texture: a base level plus optional mip levels, either
// direct colour (8888 RGBA bytes) or palette indices with an RGBA palette.
// 4-bit indices are stored one per byte.
type Image struct {
	Width, Height int
	Depth         int
	Format        Format
	Palette       []RGBA
	Levels        [][]byte
}

// RGBA is one palette entry or direct-colour pixel.
type RGBA struct {
	R, G, B, A uint8
}

// LevelSize returns the dimensions of mip level i.
func LevelSize(width, height, i int) (int, int) {
	w, h := width>>i, height>>i
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Validate checks level sizes against the dimensions and format.
func (img *Image) Validate() error {
	if img.Width < 0 || img.Height < 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidImage, img.Width, img.Height)
	}
	bpp := 4
	if img.Format.Paletted() {
		bpp = 1
		if n := img.Format.PaletteSize(); len(img.Palette) != n {
			return fmt.Errorf("%w: %d palette entries, want %d", ErrInvalidImage, len(img.Palette), n)
		}
	}
	for i, lvl := range img.Levels {
		w, h := LevelSize(img.Width, img.Height, i)
		if len(lvl) != w*h*bpp {
			return fmt.Errorf("%w: level %d has %d bytes, want %d", ErrInvalidImage, i, len(lvl), w*h*bpp)
		}
		if img.Format.Paletted() {
			for _, idx := range lvl {
				if int(idx) >= len(img.Palette) {
					return fmt.Errorf("%w: level %d index %d outside palette", ErrInvalidImage, i, idx)
				}
			}
		}
	}
	return nil
}

// HasAlpha reports whether any pixel or palette entry is not fully opaque.
func (img *Image) HasAlpha() bool {
	if img.Format.Paletted() {
		for _, c := range img.Palette {
			if c.A != 0xFF {
				return true
			}
		}
		return false
	}
	for _, lvl := range img.Levels {
		for i := 3; i < len(lvl); i += 4 {
			if lvl[i] != 0xFF {
				return true
			}
		}
	}
	return false
}
