// Package vecops wraps the dense float32 vector primitives the forward
// kernels lean on for their inner loops, backed by gorgonia's vecf32 and
// chewxy/math32 rather than hand-rolled loops.
package vecops

import (
	"github.com/chewxy/math32"
	"gorgonia.org/vecf32"
)

// Dot returns the dot product of a and b, which must have equal length.
func Dot(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("vecops: Dot length mismatch")
	}
	if len(a) == 0 {
		return 0
	}
	prod := make([]float32, len(a))
	copy(prod, a)
	vecf32.Mul(prod, b)
	var sum float32
	for _, v := range prod {
		sum += v
	}
	return sum
}

// AXPY computes y += alpha*x in place, x and y must have equal length.
func AXPY(alpha float32, x, y []float32) {
	scaled := make([]float32, len(x))
	copy(scaled, x)
	vecf32.Scale(scaled, alpha)
	vecf32.Add(y, scaled)
}

// Scale multiplies every element of x by alpha in place.
func Scale(x []float32, alpha float32) {
	vecf32.Scale(x, alpha)
}

// Norm2 returns the Euclidean norm of x.
func Norm2(x []float32) float32 {
	var sum float32
	for _, v := range x {
		sum += v * v
	}
	return math32.Sqrt(sum)
}
