package ps2

import "fmt"

// PSM is a GS pixel storage mode.
type PSM uint8

const (
	PSMCT32  PSM = 0x00
	PSMCT24  PSM = 0x01
	PSMCT16  PSM = 0x02
	PSMCT16S PSM = 0x0A
	PSMT8    PSM = 0x13
	PSMT4    PSM = 0x14
	PSMZ32   PSM = 0x30
	PSMZ24   PSM = 0x31
	PSMZ16   PSM = 0x32
	PSMZ16S  PSM = 0x3A
)

var psmNames = map[PSM]string{
	PSMCT32:  "PSMCT32",
	PSMCT24:  "PSMCT24",
	PSMCT16:  "PSMCT16",
	PSMCT16S: "PSMCT16S",
	PSMT8:    "PSMT8",
	PSMT4:    "PSMT4",
	PSMZ32:   "PSMZ32",
	PSMZ24:   "PSMZ24",
	PSMZ16:   "PSMZ16",
	PSMZ16S:  "PSMZ16S",
}

func (p PSM) String() string {
	if n, ok := psmNames[p]; ok {
		return n
	}
	return fmt.Sprintf("PSM(0x%02x)", uint8(p))
}

// MarshalText lets layouts render mode names in JSON.
func (p PSM) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Depth returns bits per pixel.
func (p PSM) Depth() int {
	switch p {
	case PSMCT32, PSMCT24, PSMZ32, PSMZ24:
		return 32
	case PSMCT16, PSMCT16S, PSMZ16, PSMZ16S:
		return 16
	case PSMT8:
		return 8
	case PSMT4:
		return 4
	}
	return 0
}

// IsDepth reports whether p is a depth-buffer mode.
func (p PSM) IsDepth() bool { return p&0x30 == 0x30 }

// Hardware memory units.
const (
	BlockBytes    = 256
	BlocksPerPage = 32
	PageBytes     = BlockBytes * BlocksPerPage
)

// Geometry is the pixel size of a page and a block for one storage mode.
type Geometry struct {
	PageW, PageH   int
	BlockW, BlockH int
}

// Cols returns the number of block columns in a page.
func (g Geometry) Cols() int { return g.PageW / g.BlockW }

// Rows returns the number of block rows in a page.
func (g Geometry) Rows() int { return g.PageH / g.BlockH }

var (
	geom32 = Geometry{PageW: 64, PageH: 32, BlockW: 8, BlockH: 8}
	geom16 = Geometry{PageW: 64, PageH: 64, BlockW: 16, BlockH: 8}
	geom8  = Geometry{PageW: 128, PageH: 64, BlockW: 16, BlockH: 16}
	geom4  = Geometry{PageW: 128, PageH: 128, BlockW: 32, BlockH: 16}
)

// GeometryOf returns the page and block dimensions of p.
func GeometryOf(p PSM) Geometry {
	switch p.Depth() {
	case 16:
		return geom16
	case 8:
		return geom8
	case 4:
		return geom4
	}
	return geom32
}

// Page-internal block permutations, indexed [row][column].
var (
	blockCT32 = [4][8]uint32{
		{0, 1, 4, 5, 16, 17, 20, 21},
		{2, 3, 6, 7, 18, 19, 22, 23},
		{8, 9, 12, 13, 24, 25, 28, 29},
		{10, 11, 14, 15, 26, 27, 30, 31},
	}
	blockCT16 = [8][4]uint32{
		{0, 2, 8, 10},
		{1, 3, 9, 11},
		{4, 6, 12, 14},
		{5, 7, 13, 15},
		{16, 18, 24, 26},
		{17, 19, 25, 27},
		{20, 22, 28, 30},
		{21, 23, 29, 31},
	}
	blockCT16S = [8][4]uint32{
		{0, 2, 16, 18},
		{1, 3, 17, 19},
		{8, 10, 24, 26},
		{9, 11, 25, 27},
		{4, 6, 20, 22},
		{5, 7, 21, 23},
		{12, 14, 28, 30},
		{13, 15, 29, 31},
	}
	blockZ16 = [8][4]uint32{
		{24, 26, 16, 18},
		{25, 27, 17, 19},
		{28, 30, 20, 22},
		{29, 31, 21, 23},
		{8, 10, 0, 2},
		{9, 11, 1, 3},
		{12, 14, 4, 6},
		{13, 15, 5, 7},
	}
	blockZ16S = [8][4]uint32{
		{24, 26, 8, 10},
		{25, 27, 9, 11},
		{28, 30, 12, 14},
		{29, 31, 13, 15},
		{16, 18, 0, 2},
		{17, 19, 1, 3},
		{20, 22, 4, 6},
		{21, 23, 5, 7},
	}
)

// BlockIndex returns the page-internal block number of block column col and
// block row row for storage mode p.
func BlockIndex(p PSM, col, row int) uint32 {
	switch p {
	case PSMCT32, PSMCT24, PSMT8:
		return blockCT32[row][col]
	case PSMZ32, PSMZ24:
		return blockCT32[row][col] ^ 24
	case PSMCT16, PSMT4:
		return blockCT16[row][col]
	case PSMCT16S:
		return blockCT16S[row][col]
	case PSMZ16:
		return blockZ16[row][col]
	case PSMZ16S:
		return blockZ16S[row][col]
	}
	panic(fmt.Sprintf("ps2: no block table for %s", p))
}

// BlockAddress returns the GS block address of block (col, row) of a buffer
// starting at tbp with width tbw (in 64-pixel units), the way the GS
// addresses it.
func BlockAddress(p PSM, tbp, tbw uint32, col, row int) uint32 {
	g := GeometryOf(p)
	pagesPerRow := int(tbw) * 64 / g.PageW
	if pagesPerRow < 1 {
		pagesPerRow = 1
	}
	page := (row/g.Rows())*pagesPerRow + col/g.Cols()
	return tbp + uint32(page)*BlocksPerPage + BlockIndex(p, col%g.Cols(), row%g.Rows())
}
