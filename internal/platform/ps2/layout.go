package ps2

import (
	"errors"
	"fmt"

	"github.com/samcharles93/strata/internal/raster"
)

// ErrInvalidRasterFormat means no storage mode exists for a depth and format.
var ErrInvalidRasterFormat = errors.New("invalid raster format")

// Request describes a raster to lay out in GS local memory. Width and height
// are expected to be powers of two already.
type Request struct {
	Width, Height int
	Depth         int
	Format        raster.Format
	Type          raster.Type
	Levels        int

	// Swizzle uploads 8-bit and 4-bit levels through the wider 32-bit and
	// 16-bit modes. Files written by older engine versions are unswizzled.
	Swizzle bool
}

// Level is the placement of one mip level.
type Level struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	TBP      uint32 `json:"tbp"`
	TBW      uint32 `json:"tbw"`
	PSM      PSM    `json:"psm"`
	BlocksW  int    `json:"blocks_w"`
	BlocksH  int    `json:"blocks_h"`
	Swizzled bool   `json:"swizzled"`

	// Size is the number of texel bytes uploaded for the level.
	Size int `json:"size"`
}

// Palette is the placement of the colour lookup table.
type Palette struct {
	CBP     uint32 `json:"cbp"`
	PSM     PSM    `json:"psm"`
	Entries int    `json:"entries"`
	Blocks  int    `json:"blocks"`
	Size    int    `json:"size"`
}

// Layout is the deterministic placement of a raster's levels and palette.
type Layout struct {
	PSM       PSM        `json:"psm"`
	Levels    []Level    `json:"levels"`
	Palette   *Palette   `json:"palette,omitempty"`
	Pages     int        `json:"pages"`
	NoBacking bool       `json:"no_backing,omitempty"`
	Transfers []Transfer `json:"transfers"`
}

// TexelSize returns the summed upload size of every level.
func (l *Layout) TexelSize() int {
	n := 0
	for _, lv := range l.Levels {
		n += lv.Size
	}
	return n
}

// SelectPSM returns the texel and palette storage modes for a depth and format.
func SelectPSM(depth int, format raster.Format, typ raster.Type) (texel, clut PSM, err error) {
	pix := format.Pixel()
	bad := func() (PSM, PSM, error) {
		return 0, 0, fmt.Errorf("%w: depth %d format %s", ErrInvalidRasterFormat, depth, format)
	}
	if typ&^raster.TypeDontAllocate == raster.TypeZBuffer {
		switch depth {
		case 32:
			return PSMZ32, 0, nil
		case 24:
			return PSMZ24, 0, nil
		case 16:
			return PSMZ16, 0, nil
		}
		return bad()
	}

	clut = PSMCT32
	switch pix {
	case raster.Format1555, raster.Format555:
		clut = PSMCT16
	case raster.Format8888, raster.Format888:
	default:
		return bad()
	}

	switch {
	case format&raster.FormatPal8 != 0:
		if depth != 8 {
			return bad()
		}
		return PSMT8, clut, nil
	case format&raster.FormatPal4 != 0:
		if depth != 4 {
			return bad()
		}
		return PSMT4, clut, nil
	}

	switch {
	case depth == 32 && pix == raster.Format8888:
		return PSMCT32, 0, nil
	case (depth == 32 || depth == 24) && pix == raster.Format888:
		return PSMCT24, 0, nil
	case depth == 16:
		return PSMCT16, 0, nil
	}
	return bad()
}

// region is a run of whole pages allocated together; free rectangles inside
// it are tracked in block units.
type region struct {
	page int
	pw   int
	ph   int
	tbw  uint32
}

type rect struct {
	reg        int
	x, y, w, h int
}

type allocator struct {
	psm      PSM
	geom     Geometry
	nextPage int
	regions  []region
	free     []rect
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func (a *allocator) fresh(bw, bh int) rect {
	pw := ceilDiv(bw, a.geom.Cols())
	ph := ceilDiv(bh, a.geom.Rows())
	a.regions = append(a.regions, region{
		page: a.nextPage,
		pw:   pw,
		ph:   ph,
		tbw:  uint32(pw * a.geom.PageW / 64),
	})
	a.nextPage += pw * ph
	return rect{reg: len(a.regions) - 1, w: pw * a.geom.Cols(), h: ph * a.geom.Rows()}
}

func (a *allocator) fits(r rect, bw, bh int) bool {
	if r.w < bw || r.h < bh {
		return false
	}
	return r.x%min(bw, a.geom.Cols()) == 0 && r.y%min(bh, a.geom.Rows()) == 0
}

// place finds room for a bw x bh block rectangle. Leftovers go on a stack,
// the right part pushed before the part below, and the stack is searched
// from the top so the most recent leftover is reused first.
func (a *allocator) place(bw, bh int, wholePages bool) rect {
	var r rect
	found := false
	if !wholePages {
		for i := len(a.free) - 1; i >= 0; i-- {
			if a.fits(a.free[i], bw, bh) {
				r = a.free[i]
				a.free = append(a.free[:i], a.free[i+1:]...)
				found = true
				break
			}
		}
	}
	if !found {
		r = a.fresh(bw, bh)
	}
	if wholePages {
		return rect{reg: r.reg, x: r.x, y: r.y, w: r.w, h: r.h}
	}
	if r.w > bw {
		a.free = append(a.free, rect{reg: r.reg, x: r.x + bw, y: r.y, w: r.w - bw, h: bh})
	}
	if r.h > bh {
		a.free = append(a.free, rect{reg: r.reg, x: r.x, y: r.y + bh, w: r.w, h: r.h - bh})
	}
	return rect{reg: r.reg, x: r.x, y: r.y, w: bw, h: bh}
}

// address converts a placed rectangle origin to a GS block address.
func (a *allocator) address(r rect) (tbp, tbw uint32) {
	reg := a.regions[r.reg]
	cols, rows := a.geom.Cols(), a.geom.Rows()
	page := reg.page + (r.y/rows)*reg.pw + r.x/cols
	tbp = uint32(page * BlocksPerPage)
	if !a.psm.IsDepth() {
		tbp += BlockIndex(a.psm, r.x%cols, r.y%rows)
	}
	return tbp, reg.tbw
}

// Compute lays out req. Degenerate rasters get an empty layout marked
// NoBacking.
func Compute(req Request) (*Layout, error) {
	texel, clut, err := SelectPSM(req.Depth, req.Format, req.Type)
	if err != nil {
		return nil, err
	}
	out := &Layout{PSM: texel}
	if req.Width <= 0 || req.Height <= 0 || req.Type&raster.TypeDontAllocate != 0 {
		out.NoBacking = true
		return out, nil
	}
	levels := req.Levels
	if levels < 1 {
		levels = 1
	}

	a := &allocator{psm: texel, geom: GeometryOf(texel)}
	g := a.geom
	for i := 0; i < levels; i++ {
		w, h := raster.LevelSize(req.Width, req.Height, i)
		bw, bh := ceilDiv(w, g.BlockW), ceilDiv(h, g.BlockH)
		r := a.place(bw, bh, texel.IsDepth())
		tbp, tbw := a.address(r)
		lv := Level{
			Width:    w,
			Height:   h,
			TBP:      tbp,
			TBW:      tbw,
			PSM:      texel,
			BlocksW:  bw,
			BlocksH:  bh,
			Swizzled: req.Swizzle && swizzlable(texel, w, h),
		}
		lv.Size = levelUploadSize(lv)
		out.Levels = append(out.Levels, lv)
	}
	out.Pages = a.nextPage

	if n := req.Format.PaletteSize(); n > 0 {
		out.Palette = placePalette(out, clut, n)
		if end := int(out.Palette.CBP)/BlocksPerPage + 1; end > out.Pages {
			out.Pages = end
		}
	}
	out.Transfers = buildTransfers(out)
	return out, nil
}

// BlockAddrs returns every GS block address the level occupies.
func (lv Level) BlockAddrs() []uint32 {
	out := make([]uint32, 0, lv.BlocksW*lv.BlocksH)
	for row := 0; row < lv.BlocksH; row++ {
		for col := 0; col < lv.BlocksW; col++ {
			out = append(out, BlockAddress(lv.PSM, lv.TBP, lv.TBW, col, row))
		}
	}
	return out
}

// BlockAddrs returns the block addresses of the palette.
func (p *Palette) BlockAddrs() []uint32 {
	out := make([]uint32, p.Blocks)
	for i := range out {
		out[i] = p.CBP + uint32(i)
	}
	return out
}

func paletteBlocks(clut PSM, entries int) int {
	switch {
	case entries <= 16:
		return 1
	case clut == PSMCT16:
		return 2
	}
	return 4
}

// placePalette puts the CLUT in the lowest aligned free run of the last
// level's page, or on the page after all levels when that page is full.
func placePalette(l *Layout, clut PSM, entries int) *Palette {
	n := paletteBlocks(clut, entries)
	p := &Palette{PSM: clut, Entries: entries, Blocks: n, Size: entries * clut.Depth() / 8}

	last := l.Levels[len(l.Levels)-1]
	page := last.TBP / BlocksPerPage
	var used [BlocksPerPage]bool
	for _, lv := range l.Levels {
		for _, b := range lv.BlockAddrs() {
			if b/BlocksPerPage == page {
				used[b%BlocksPerPage] = true
			}
		}
	}
	for start := 0; start+n <= BlocksPerPage; start += n {
		ok := true
		for k := start; k < start+n; k++ {
			if used[k] {
				ok = false
				break
			}
		}
		if ok {
			p.CBP = page*BlocksPerPage + uint32(start)
			return p
		}
	}
	p.CBP = uint32(l.Pages * BlocksPerPage)
	return p
}
