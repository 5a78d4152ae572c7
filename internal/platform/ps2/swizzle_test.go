package ps2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func TestSwizzle8IsPermutation(t *testing.T) {
	t.Parallel()

	for _, dim := range [][2]int{{16, 4}, {16, 16}, {32, 8}, {64, 64}, {128, 32}} {
		w, h := dim[0], dim[1]
		seen := make(map[int]bool)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := swizzle8Index(x, y, w)
				require.True(t, i >= 0 && i < w*h, "%dx%d (%d,%d) -> %d", w, h, x, y, i)
				require.False(t, seen[i], "%dx%d (%d,%d) collides at %d", w, h, x, y, i)
				seen[i] = true
			}
		}

		src := sequence(w * h)
		assert.Equal(t, src, Unswizzle8(Swizzle8(src, w, h), w, h))
	}
}

func TestSwizzle8FirstColumn(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, swizzle8Index(0, 0, 16))
	assert.Equal(t, 32, swizzle8Index(0, 1, 16))
	assert.Equal(t, 17, swizzle8Index(0, 2, 16), "row 2 is swapped by four columns")
	assert.Equal(t, 16, swizzle8Index(4, 0, 16))
	assert.Equal(t, 2, swizzle8Index(8, 0, 16))
}

func TestSwizzle4RoundTrip(t *testing.T) {
	t.Parallel()

	w, h := 32, 16
	src := sequence(w * h / 2)
	sw := Swizzle4(src, w, h)
	assert.Len(t, sw, len(src))
	assert.NotEqual(t, src, sw)
	assert.Equal(t, src, Unswizzle4(sw, w, h))
}

func TestNibbles(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte{1, 2, 3, 4}, unpackNibbles([]byte{0x21, 0x43}, 4))
	assert.Equal(t, []byte{0x21, 0x03}, packNibbles([]byte{1, 2, 3}))
}

func TestPageTiling(t *testing.T) {
	t.Parallel()

	w, h := 128, 64
	src := make([]byte, w*h*4)
	for i := range src {
		src[i] = byte(i / (64 * 4))
	}
	tiled := tilePages(src, w, h)
	require.Len(t, tiled, len(src))
	// the second 64-pixel row of the tiled stream is row 1 of page 0
	assert.Equal(t, src[w*4:w*4+64*4], tiled[64*4:2*64*4])
	assert.Equal(t, src, untilePages(tiled, w, h))
}
