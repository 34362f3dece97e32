package tengraph

import (
	"github.com/EchoCog/tengraph/blasgemm"
	"github.com/EchoCog/tengraph/vecops"
)

// kernelMulMat implements the MUL_MAT transpose heuristic: when a is
// row-major (nb[1]>=nb[0], the common case for a freshly allocated
// weight matrix) the result is parallelized by output row, each row a
// dense dot product; otherwise each thread computes the full M-length
// outputs for its own disjoint range of output rows with a scalar loop, so
// there is no per-thread accumulator and nothing is merged in FINALIZE.
//
// Large, contiguous F32 operands are dispatched to blasgemm instead, which
// wraps gonum's pure-Go BLAS, the same threshold ggml uses BLAS gemm for.
func kernelMulMat(ctx *Context, p *ComputeParams, node *Tensor) {
	a, b := node.Src0, node.Src1
	m, n, k := a.NE[1], b.NE[1], a.NE[0]

	blasEligible := a.Type == TypeF32 && b.Type == TypeF32 &&
		a.IsContiguous() && b.IsContiguous() &&
		m >= blasgemm.MinDim && n >= blasgemm.MinDim && k >= blasgemm.MinDim &&
		a.NE[2] == 1 && a.NE[3] == 1 && b.NE[2] == 1 && b.NE[3] == 1
	if blasEligible {
		// Only one worker issues the (internally parallel) BLAS call; the
		// rest have nothing to do this round.
		//
		// node's layout is column-major in (i0=row, i1=col): nb0=4, nb1=4*m,
		// so element (i,j) sits at flat index i+j*m. A plain
		// Sgemm(m,n,k,...,ldc=n) would fill row-major C[i,j]=i*n+j instead,
		// transposing the result for any non-square, non-symmetric shape.
		// Swapping the operands (compute B*A^T row-major with ldc=m) lands
		// each dot product at i+j*m, matching the scalar kernels exactly.
		if p.Phase == PhaseCompute && p.Ith == 0 {
			blasgemm.Sgemm(int(n), int(m), int(k), 1.0, b.Float32s(), int(k), a.Float32s(), int(k), 0.0, node.Float32s(), int(m))
		}
		return
	}

	if a.NB[1] >= a.NB[0] {
		kernelMulMatRowMajor(p, node, a, b, m, n, k)
		return
	}
	kernelMulMatColMajor(p, node, a, b, m, n, k)
}

func kernelMulMatRowMajor(p *ComputeParams, node, a, b *Tensor, m, n, k int64) {
	if p.Phase != PhaseCompute {
		return
	}
	forEachRow(node, p, func(i1, i2, i3 int64) {
		brow := extractRow(b, i1, i2, i3, k)
		for i0 := int64(0); i0 < m; i0++ {
			arow := extractRow(a, i0, i2, i3, k)
			setF32(node, elemOffset(node, i0, i1, i2, i3), vecops.Dot(arow, brow))
		}
	})
}

// kernelMulMatColMajor handles a non-row-major (e.g. permuted/transposed)
// first operand: each thread owns a contiguous slab of N columns and
// accumulates the full M-length output for them; no cross-thread merge is
// needed because columns are disjoint, so FINALIZE is a no-op.
func kernelMulMatColMajor(p *ComputeParams, node, a, b *Tensor, m, n, k int64) {
	if p.Phase != PhaseCompute {
		return
	}
	start, end := rowRange(n*a.NE[2]*b.NE[3], p.Ith, p.Nth)
	for idx := start; idx < end; idx++ {
		i1, i2, i3 := rowIndices(node, idx)
		for i0 := int64(0); i0 < m; i0++ {
			var acc float32
			for kk := int64(0); kk < k; kk++ {
				av := getF32(a, elemOffset(a, kk, i0, i2, i3))
				bv := getF32(b, elemOffset(b, kk, i1, i2, i3))
				acc += av * bv
			}
			setF32(node, elemOffset(node, i0, i1, i2, i3), acc)
		}
	}
}

// extractRow materializes the k-length row (i1,i2,i3) of t as a contiguous
// []float32, copying through getF32 so it works regardless of t's strides.
func extractRow(t *Tensor, i1, i2, i3, k int64) []float32 {
	row := make([]float32, k)
	for i0 := int64(0); i0 < k; i0++ {
		row[i0] = getF32(t, elemOffset(t, i0, i1, i2, i3))
	}
	return row
}
