package ps2

import "encoding/binary"

// Transfer is one host to local GS upload.
type Transfer struct {
	// Levels lists the mip levels whose texels the transfer carries, in order.
	Levels  []int  `json:"levels,omitempty"`
	Palette bool   `json:"palette,omitempty"`
	DBP     uint32 `json:"dbp"`
	Page    uint32 `json:"page"`
	Offset  uint32 `json:"offset"`
	DBW     uint32 `json:"dbw"`
	PSM     PSM    `json:"psm"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	QWC     int    `json:"qwc"`
}

// Upload is the shape a level is transferred in.
type Upload struct {
	PSM    PSM
	Width  int
	Height int
	DBW    uint32
}

// transferBits is the host-side pixel size of a transfer in mode p.
func transferBits(p PSM) int {
	if p == PSMCT24 || p == PSMZ24 {
		return 24
	}
	return p.Depth()
}

func swizzlable(p PSM, w, h int) bool {
	return (p == PSMT8 || p == PSMT4) && w%16 == 0 && h%4 == 0
}

// UploadOf returns the transfer shape of lv. Swizzled 8-bit and 4-bit levels
// go up at half size through PSMCT32 and PSMCT16; everything else goes up in
// its own mode, widened to the minimum transfer width.
func UploadOf(lv Level) Upload {
	if lv.Swizzled {
		up := Upload{PSM: PSMCT32, Width: lv.Width / 2, Height: lv.Height / 2, DBW: lv.TBW / 2}
		if lv.PSM == PSMT4 {
			up.PSM = PSMCT16
		}
		if up.DBW < 1 {
			up.DBW = 1
		}
		return up
	}
	g := GeometryOf(lv.PSM)
	minW := g.BlockW
	if lv.PSM == PSMT4 {
		minW /= 2
	}
	return Upload{PSM: lv.PSM, Width: max(lv.Width, minW), Height: lv.Height, DBW: lv.TBW}
}

// RowBytes is the host-side size of one upload row.
func (u Upload) RowBytes() int { return u.Width * transferBits(u.PSM) / 8 }

func levelUploadSize(lv Level) int {
	up := UploadOf(lv)
	n := up.RowBytes() * up.Height
	return (n + 15) &^ 15
}

// PageTiled reports whether lv is uploaded as whole 32-bit pages, which lets
// it share one transfer with neighbouring whole-page levels. Its texels are
// then stored page by page.
func PageTiled(lv Level) bool {
	up := UploadOf(lv)
	return up.PSM == PSMCT32 && lv.TBP%BlocksPerPage == 0 && up.Width%64 == 0 && up.Height%32 == 0
}

func tiledPages(lv Level) int {
	up := UploadOf(lv)
	return up.Width / 64 * up.Height / 32
}

func newTransfer(dbp, dbw uint32, psm PSM, w, h, bytes int) Transfer {
	return Transfer{
		DBP:    dbp,
		Page:   dbp / BlocksPerPage,
		Offset: dbp % BlocksPerPage * BlockBytes,
		DBW:    dbw,
		PSM:    psm,
		Width:  w,
		Height: h,
		QWC:    (bytes + 15) / 16,
	}
}

func buildTransfers(l *Layout) []Transfer {
	var out []Transfer
	for i := 0; i < len(l.Levels); {
		lv := l.Levels[i]
		if !PageTiled(lv) {
			up := UploadOf(lv)
			t := newTransfer(lv.TBP, up.DBW, up.PSM, up.Width, up.Height, lv.Size)
			t.Levels = []int{i}
			out = append(out, t)
			i++
			continue
		}
		pages := tiledPages(lv)
		t := Transfer{Levels: []int{i}}
		j := i + 1
		for ; j < len(l.Levels); j++ {
			next := l.Levels[j]
			if !PageTiled(next) || next.TBP != lv.TBP+uint32(pages*BlocksPerPage) {
				break
			}
			pages += tiledPages(next)
			t.Levels = append(t.Levels, j)
		}
		levels := t.Levels
		t = newTransfer(lv.TBP, 1, PSMCT32, 64, 32*pages, pages*PageBytes)
		t.Levels = levels
		out = append(out, t)
		i = j
	}
	if p := l.Palette; p != nil {
		w, h := 16, 16
		if p.Entries <= 16 {
			w, h = 8, 2
		}
		t := newTransfer(p.CBP, 1, p.PSM, w, h, p.Size)
		t.Palette = true
		out = append(out, t)
	}
	return out
}

// DMA tag ids.
const (
	dmaCnt = 1
	dmaRef = 3
	dmaEnd = 7
)

// GS registers written through A+D.
const (
	regBITBLTBUF = 0x50
	regTRXPOS    = 0x51
	regTRXREG    = 0x52
	regTRXDIR    = 0x53
	regAD        = 0x0E
)

func dmaTag(qwc, id int, addr uint32) uint64 {
	return uint64(qwc)&0xFFFF | uint64(id&7)<<28 | uint64(addr)<<32
}

func gifTag(nloop int, eop bool, flg, nreg int) uint64 {
	t := uint64(nloop)&0x7FFF | uint64(flg&3)<<58 | uint64(nreg&0xF)<<60
	if eop {
		t |= 1 << 15
	}
	return t
}

// Chain encodes the DMA chain that uploads every transfer. Each transfer is a
// cnt tag carrying the GIF register setup followed by a ref tag pointing at
// its bytes; addresses are byte offsets into the texel data with the palette
// appended after the last level.
func (l *Layout) Chain() []byte {
	var buf []byte
	qw := func(lo, hi uint64) {
		buf = binary.LittleEndian.AppendUint64(buf, lo)
		buf = binary.LittleEndian.AppendUint64(buf, hi)
	}

	offsets := make([]uint32, len(l.Levels)+1)
	for i, lv := range l.Levels {
		offsets[i+1] = offsets[i] + uint32(lv.Size)
	}
	for _, t := range l.Transfers {
		addr := offsets[len(l.Levels)]
		if !t.Palette {
			addr = offsets[t.Levels[0]]
		}
		qw(dmaTag(6, dmaCnt, 0), 0)
		qw(gifTag(4, false, 0, 1), regAD)
		qw(uint64(t.DBP)<<32|uint64(t.DBW)<<48|uint64(t.PSM)<<56, regBITBLTBUF)
		qw(0, regTRXPOS)
		qw(uint64(t.Width)|uint64(t.Height)<<32, regTRXREG)
		qw(0, regTRXDIR)
		qw(gifTag(t.QWC, true, 2, 0), 0)
		qw(dmaTag(t.QWC, dmaRef, addr), 0)
	}
	qw(dmaTag(0, dmaEnd, 0), 0)
	return buf
}
