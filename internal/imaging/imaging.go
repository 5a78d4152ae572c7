// Package imaging turns ordinary image files into raster.Image values ready
// for a native texture codec: decode, fit to power-of-two dimensions, build a
// mip chain and either keep direct 8888 colour or quantise to a palette.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/samcharles93/strata/internal/raster"
)

// MaxLevels is the longest mip chain a native raster can address: the base
// level plus six reductions.
const MaxLevels = 7

// ErrUnsupportedDepth means a conversion was asked for a depth other than
// 32, 8 or 4 bits.
var ErrUnsupportedDepth = errors.New("unsupported depth")

// Options controls ToRaster.
type Options struct {
	// Depth is 32 for direct colour, 8 or 4 for a paletted raster.
	Depth int
	// Mipmaps builds a reduced chain down to MinLevelSize.
	Mipmaps bool
	// MaxSize clamps each side of the base level. Zero means 1024.
	MaxSize int
	// MinLevelSize stops the mip chain before either side drops below it.
	// Zero means 8.
	MinLevelSize int
	// Dither applies Floyd-Steinberg error diffusion when quantising.
	Dither bool
	// Quantizer picks the palette of the base level. Nil means MedianCut.
	Quantizer xdraw.Quantizer
}

// DefaultOptions returns an 8-bit paletted conversion with mipmaps.
func DefaultOptions() Options {
	return Options{Depth: 8, Mipmaps: true, MaxSize: 1024, MinLevelSize: 8, Dither: true}
}

// Decode decodes any registered format: png, gif, jpeg, bmp, tiff and webp.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Load decodes the image file at path.
func Load(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	return Decode(f)
}

// PowerOfTwo returns the power of two nearest to n, clamped to [1, limit].
// Ties round up.
func PowerOfTwo(n, limit int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	if p > n && p-n > n-p/2 {
		p >>= 1
	}
	for limit > 0 && p > limit {
		p >>= 1
	}
	return p
}

// Resize scales img to w×h with Catmull-Rom filtering, or copies it when the
// size already matches.
func Resize(img image.Image, w, h int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
		return dst
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// MipChain returns base followed by successive half-size reductions. The
// chain stops before either side drops below minSize or at MaxLevels.
func MipChain(base *image.NRGBA, minSize int) []*image.NRGBA {
	if minSize < 1 {
		minSize = 1
	}
	chain := []*image.NRGBA{base}
	cur := base
	for len(chain) < MaxLevels {
		w, h := cur.Bounds().Dx()/2, cur.Bounds().Dy()/2
		if w < minSize || h < minSize {
			break
		}
		next := image.NewNRGBA(image.Rect(0, 0, w, h))
		xdraw.BiLinear.Scale(next, next.Bounds(), cur, cur.Bounds(), xdraw.Src, nil)
		chain = append(chain, next)
		cur = next
	}
	return chain
}

// ToRaster converts img into a raster.Image following opts.
func ToRaster(img image.Image, opts Options) (*raster.Image, error) {
	if opts.MaxSize == 0 {
		opts.MaxSize = 1024
	}
	if opts.MinLevelSize == 0 {
		opts.MinLevelSize = 8
	}
	var format raster.Format
	switch opts.Depth {
	case 32:
		format = raster.Format8888
	case 8:
		format = raster.Format8888 | raster.FormatPal8
	case 4:
		format = raster.Format8888 | raster.FormatPal4
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDepth, opts.Depth)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", raster.ErrInvalidImage)
	}

	w, h := PowerOfTwo(b.Dx(), opts.MaxSize), PowerOfTwo(b.Dy(), opts.MaxSize)
	chain := []*image.NRGBA{Resize(img, w, h)}
	if opts.Mipmaps {
		chain = MipChain(chain[0], opts.MinLevelSize)
	}

	out := &raster.Image{Width: w, Height: h, Depth: opts.Depth, Format: format}
	if !format.Paletted() {
		for _, lvl := range chain {
			out.Levels = append(out.Levels, directLevel(lvl))
		}
		return out, nil
	}

	var pal color.Palette
	if opts.Quantizer != nil {
		pal = palette(opts.Quantizer, chain[0], format.PaletteSize())
	} else {
		pal = MedianCut(chain[0], format.PaletteSize())
	}
	out.Palette = make([]raster.RGBA, format.PaletteSize())
	for i, c := range pal {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		out.Palette[i] = raster.RGBA{R: n.R, G: n.G, B: n.B, A: n.A}
	}
	for _, lvl := range chain {
		out.Levels = append(out.Levels, indexLevel(lvl, pal, opts.Dither))
	}
	return out, nil
}

func directLevel(img *image.NRGBA) []byte {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	buf := make([]byte, 0, w*h*4)
	for y := 0; y < h; y++ {
		off := y * img.Stride
		buf = append(buf, img.Pix[off:off+w*4]...)
	}
	return buf
}

func indexLevel(img *image.NRGBA, pal color.Palette, dither bool) []byte {
	b := img.Bounds()
	dst := image.NewPaletted(b, pal)
	if dither {
		xdraw.FloydSteinberg.Draw(dst, b, img, b.Min)
	} else {
		xdraw.Draw(dst, b, img, b.Min, xdraw.Src)
	}
	w, h := b.Dx(), b.Dy()
	buf := make([]byte, 0, w*h)
	for y := 0; y < h; y++ {
		off := y * dst.Stride
		buf = append(buf, dst.Pix[off:off+w]...)
	}
	return buf
}

// Image converts a raster.Image level back into an image for previews.
func Image(img *raster.Image, level int) (image.Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if level < 0 || level >= len(img.Levels) {
		return nil, fmt.Errorf("%w: level %d of %d", raster.ErrInvalidImage, level, len(img.Levels))
	}
	w, h := raster.LevelSize(img.Width, img.Height, level)
	src := img.Levels[level]
	if !img.Format.Paletted() {
		out := image.NewNRGBA(image.Rect(0, 0, w, h))
		copy(out.Pix, src)
		return out, nil
	}
	pal := make(color.Palette, len(img.Palette))
	for i, c := range img.Palette {
		pal[i] = color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}
	}
	out := image.NewPaletted(image.Rect(0, 0, w, h), pal)
	copy(out.Pix, src)
	return out, nil
}
