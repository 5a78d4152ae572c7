package mesh

import "github.com/chewxy/math32"

// QuantizeNormal packs a unit normal into three signed bytes scaled by 127.
func QuantizeNormal(n Vec3) [3]int8 {
	var out [3]int8
	for k := 0; k < 3; k++ {
		v := math32.Max(-1, math32.Min(1, n[k])) * 127
		if v >= 0 {
			out[k] = int8(math32.Floor(v + 0.5))
		} else {
			out[k] = int8(-math32.Floor(-v + 0.5))
		}
	}
	return out
}

// DequantizeNormal is the inverse of QuantizeNormal.
func DequantizeNormal(q [3]int8) Vec3 {
	return Vec3{float32(q[0]) / 127, float32(q[1]) / 127, float32(q[2]) / 127}
}

// QuantizedNormals returns the normals as they survive an 8-bit round trip,
// which is what a lossy back-end gives back.
func QuantizedNormals(ns []Vec3) []Vec3 {
	out := make([]Vec3, len(ns))
	for i, n := range ns {
		out[i] = DequantizeNormal(QuantizeNormal(n))
	}
	return out
}
