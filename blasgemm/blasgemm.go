// Package blasgemm dispatches the large MUL_MAT kernels to a real BLAS
// implementation (gonum's pure-Go blas/gonum) instead of a hand-rolled
// triple loop, for the shapes large enough to amortize the call overhead.
package blasgemm

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/gonum"
)

var impl = gonum.Implementation{}

// MinDim is the smallest M/N/K for which dispatching to BLAS pays off over
// the kernel's own row-partitioned loop.
const MinDim = 32

// Sgemm computes C = alpha*A*B^T + beta*C, where A is M x K and B is N x K
// (both row-major, as tengraph tensors store them), matching the
// transposed-B convention MUL_MAT's shape rule implies.
func Sgemm(m, n, k int, alpha float32, a []float32, lda int, b []float32, ldb int, beta float32, c []float32, ldc int) {
	impl.Sgemm(blas.NoTrans, blas.Trans, m, n, k, alpha, a, lda, b, ldb, beta, c, ldc)
}
