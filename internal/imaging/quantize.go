package imaging

import (
	"image"
	"image/color"

	"github.com/ericpauley/go-quantize/quantize"
	xdraw "golang.org/x/image/draw"
)

// MedianCut builds a palette of exactly n entries for img. Each box keeps its
// most common colour, so images with few distinct colours keep them exactly.
// A fully transparent pixel reserves a transparent entry. Unused entries are
// transparent black.
func MedianCut(img *image.NRGBA, n int) color.Palette {
	q := quantize.MedianCutQuantizer{AddTransparent: hasTransparent(img)}
	return palette(q, img, n)
}

// palette runs q over img and normalises the result to n NRGBA entries.
func palette(q xdraw.Quantizer, img image.Image, n int) color.Palette {
	got := q.Quantize(make(color.Palette, 0, n), img)
	pal := make(color.Palette, n)
	for i := range pal {
		if i < len(got) {
			pal[i] = color.NRGBAModel.Convert(got[i])
		} else {
			pal[i] = color.NRGBA{}
		}
	}
	return pal
}

func hasTransparent(img *image.NRGBA) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y).A == 0 {
				return true
			}
		}
	}
	return false
}
