package ps2

// swizzle8Index returns where texel (x, y) of a w-wide 8-bit level lands when
// the level is reinterpreted as 32-bit texels of half the width and height.
func swizzle8Index(x, y, w int) int {
	blockLoc := (y&^15)*w + (x&^15)*2
	swap := (((y + 2) >> 2) & 1) * 4
	ypos := (((y&^3)>>1)+(y&1))&7
	col := ypos*w*2 + ((x+swap)&7)*4
	b := ((y >> 1) & 1) + ((x >> 2) & 2)
	return blockLoc + col + b
}

// Swizzle8 reorders a w x h 8-bit level for upload through PSMCT32. w must be
// a multiple of 16 and h a multiple of 4.
func Swizzle8(src []byte, w, h int) []byte {
	dst := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst[swizzle8Index(x, y, w)] = src[y*w+x]
		}
	}
	return dst
}

// Unswizzle8 is the inverse of Swizzle8.
func Unswizzle8(src []byte, w, h int) []byte {
	dst := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst[y*w+x] = src[swizzle8Index(x, y, w)]
		}
	}
	return dst
}

// Swizzle4 reorders a packed 4-bit level (low nibble first) by expanding it
// to bytes, swizzling those, and packing the result again.
func Swizzle4(src []byte, w, h int) []byte {
	return packNibbles(Swizzle8(unpackNibbles(src, w*h), w, h))
}

// Unswizzle4 is the inverse of Swizzle4.
func Unswizzle4(src []byte, w, h int) []byte {
	return packNibbles(Unswizzle8(unpackNibbles(src, w*h), w, h))
}

func unpackNibbles(src []byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		b := src[i/2]
		if i&1 == 0 {
			out[i] = b & 0xF
		} else {
			out[i] = b >> 4
		}
	}
	return out
}

func packNibbles(src []byte) []byte {
	out := make([]byte, (len(src)+1)/2)
	for i, v := range src {
		if i&1 == 0 {
			out[i/2] |= v & 0xF
		} else {
			out[i/2] |= (v & 0xF) << 4
		}
	}
	return out
}

// tilePages rearranges a linear 32-bit image w pixels wide into consecutive
// 64x32 pages, the order a DBW=1 upload fills them in.
func tilePages(src []byte, w, h int) []byte {
	dst := make([]byte, 0, len(src))
	const rowBytes = 64 * 4
	for py := 0; py < h/32; py++ {
		for px := 0; px < w/64; px++ {
			for row := 0; row < 32; row++ {
				off := ((py*32+row)*w + px*64) * 4
				dst = append(dst, src[off:off+rowBytes]...)
			}
		}
	}
	return dst
}

func untilePages(src []byte, w, h int) []byte {
	dst := make([]byte, len(src))
	const rowBytes = 64 * 4
	k := 0
	for py := 0; py < h/32; py++ {
		for px := 0; px < w/64; px++ {
			for row := 0; row < 32; row++ {
				off := ((py*32+row)*w + px*64) * 4
				copy(dst[off:off+rowBytes], src[k:k+rowBytes])
				k += rowBytes
			}
		}
	}
	return dst
}
