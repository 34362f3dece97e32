package tengraph

import "github.com/chewxy/math32"

// Phase names one of the three stages every kernel is invoked with.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseCompute
	PhaseFinalize
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseCompute:
		return "COMPUTE"
	case PhaseFinalize:
		return "FINALIZE"
	default:
		return "?"
	}
}

// ComputeParams is the per-call context every kernel receives: phase, ith,
// nth, and a scratch workspace (wsize, wdata).
type ComputeParams struct {
	Phase Phase
	Ith   int
	Nth   int
	Wsize int64
	Wdata []byte
}

// kernelFunc is the shape every forward kernel implements.
type kernelFunc func(ctx *Context, p *ComputeParams, node *Tensor)

var kernels [opCount]kernelFunc

func init() {
	kernels[OpDup] = kernelDup
	kernels[OpAdd] = kernelBinary(func(a, b float32) float32 { return a + b })
	kernels[OpSub] = kernelBinary(func(a, b float32) float32 { return a - b })
	kernels[OpMul] = kernelBinary(func(a, b float32) float32 { return a * b })
	kernels[OpDiv] = kernelBinary(func(a, b float32) float32 { return a / b })
	kernels[OpSqr] = kernelUnary(func(x float32) float32 { return x * x })
	kernels[OpSqrt] = kernelUnary(math32.Sqrt)
	kernels[OpAbs] = kernelUnary(math32.Abs)
	kernels[OpSgn] = kernelUnary(func(x float32) float32 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		default:
			return 0
		}
	})
	kernels[OpNeg] = kernelUnary(func(x float32) float32 { return -x })
	kernels[OpStep] = kernelUnary(func(x float32) float32 {
		if x > 0 {
			return 1
		}
		return 0
	})
	kernels[OpRelu] = kernelUnary(func(x float32) float32 {
		if x > 0 {
			return x
		}
		return 0
	})
	kernels[OpGelu] = kernelUnary(geluTableLookup)
	kernels[OpSum] = kernelSum
	kernels[OpMean] = kernelMean
	kernels[OpRepeat] = kernelRepeat
	kernels[OpNorm] = kernelNorm
	kernels[OpScale] = kernelScale
	kernels[OpCpy] = kernelCpy
	kernels[OpReshape] = kernelNoop
	kernels[OpView1D] = kernelNoop
	kernels[OpView2D] = kernelNoop
	kernels[OpPermute] = kernelNoop
	kernels[OpTranspose] = kernelNoop
	kernels[OpGetRows] = kernelGetRows
	kernels[OpDiagMaskInf] = kernelDiagMaskInf
	kernels[OpSoftMax] = kernelSoftMax
	kernels[OpRope] = kernelRope
	kernels[OpMulMat] = kernelMulMat
	kernels[OpConv1D1S] = kernelConv1D(1)
	kernels[OpConv1D2S] = kernelConv1D(2)
	kernels[OpFlashAttn] = kernelFlashAttn
	kernels[OpFlashFF] = kernelFlashFF
}

func kernelNoop(ctx *Context, p *ComputeParams, node *Tensor) {}

// --- elementwise ------------------------------------------------------

func forEachRow(node *Tensor, p *ComputeParams, f func(i1, i2, i3 int64)) {
	start, end := rowRange(node.NRows(), p.Ith, p.Nth)
	for row := start; row < end; row++ {
		i1, i2, i3 := rowIndices(node, row)
		f(i1, i2, i3)
	}
}

func kernelUnary(fn func(float32) float32) kernelFunc {
	return func(ctx *Context, p *ComputeParams, node *Tensor) {
		if p.Phase != PhaseCompute {
			return
		}
		a := node.Src0
		forEachRow(node, p, func(i1, i2, i3 int64) {
			for i0 := int64(0); i0 < node.NE[0]; i0++ {
				av := getF32(a, elemOffset(a, i0, i1, i2, i3))
				setF32(node, elemOffset(node, i0, i1, i2, i3), fn(av))
			}
		})
	}
}

func kernelBinary(fn func(a, b float32) float32) kernelFunc {
	return func(ctx *Context, p *ComputeParams, node *Tensor) {
		if p.Phase != PhaseCompute {
			return
		}
		a, b := node.Src0, node.Src1
		forEachRow(node, p, func(i1, i2, i3 int64) {
			for i0 := int64(0); i0 < node.NE[0]; i0++ {
				av := getF32(a, elemOffset(a, i0, i1, i2, i3))
				bv := getF32(b, elemOffset(b, i0, i1, i2, i3))
				setF32(node, elemOffset(node, i0, i1, i2, i3), fn(av, bv))
			}
		})
	}
}

func kernelDup(ctx *Context, p *ComputeParams, node *Tensor) {
	if p.Phase != PhaseCompute {
		return
	}
	a := node.Src0
	forEachRow(node, p, func(i1, i2, i3 int64) {
		for i0 := int64(0); i0 < node.NE[0]; i0++ {
			setF32(node, elemOffset(node, i0, i1, i2, i3), getF32(a, elemOffset(a, i0, i1, i2, i3)))
		}
	})
}

// --- reductions ---------------------------------------------------------

// kernelSum runs single-threaded (n_tasks==1, see nTasks): it is a full
// reduction, and cross-thread reduction is reserved for FINALIZE only for
// the ops that declare one.
func kernelSum(ctx *Context, p *ComputeParams, node *Tensor) {
	if p.Phase != PhaseCompute || p.Ith != 0 {
		return
	}
	a := node.Src0
	var acc float32
	for row := int64(0); row < a.NRows(); row++ {
		i1, i2, i3 := rowIndices(a, row)
		for i0 := int64(0); i0 < a.NE[0]; i0++ {
			acc += getF32(a, elemOffset(a, i0, i1, i2, i3))
		}
	}
	setF32(node, 0, acc)
}

func kernelMean(ctx *Context, p *ComputeParams, node *Tensor) {
	if p.Phase != PhaseCompute {
		return
	}
	a := node.Src0
	forEachRow(node, p, func(i1, i2, i3 int64) {
		var acc float32
		for i0 := int64(0); i0 < a.NE[0]; i0++ {
			acc += getF32(a, elemOffset(a, i0, i1, i2, i3))
		}
		setF32(node, elemOffset(node, 0, i1, i2, i3), acc/float32(a.NE[0]))
	})
}

func kernelRepeat(ctx *Context, p *ComputeParams, node *Tensor) {
	if p.Phase != PhaseCompute {
		return
	}
	a := node.Src0
	forEachRow(node, p, func(i1, i2, i3 int64) {
		ai1, ai2, ai3 := i1%a.NE[1], i2%a.NE[2], i3%a.NE[3]
		for i0 := int64(0); i0 < node.NE[0]; i0++ {
			ai0 := i0 % a.NE[0]
			setF32(node, elemOffset(node, i0, i1, i2, i3), getF32(a, elemOffset(a, ai0, ai1, ai2, ai3)))
		}
	})
}

// kernelNorm implements per-row mean/variance normalization: compute mean
// mu, y = x-mu, variance from y, scale by 1/sqrt(var+eps).
func kernelNorm(ctx *Context, p *ComputeParams, node *Tensor) {
	if p.Phase != PhaseCompute {
		return
	}
	a := node.Src0
	n := a.NE[0]
	forEachRow(node, p, func(i1, i2, i3 int64) {
		var mean float32
		for i0 := int64(0); i0 < n; i0++ {
			mean += getF32(a, elemOffset(a, i0, i1, i2, i3))
		}
		mean /= float32(n)

		var variance float32
		for i0 := int64(0); i0 < n; i0++ {
			y := getF32(a, elemOffset(a, i0, i1, i2, i3)) - mean
			variance += y * y
			setF32(node, elemOffset(node, i0, i1, i2, i3), y)
		}
		variance /= float32(n)
		scale := 1.0 / math32.Sqrt(variance+NormEps)
		for i0 := int64(0); i0 < n; i0++ {
			off := elemOffset(node, i0, i1, i2, i3)
			setF32(node, off, getF32(node, off)*scale)
		}
	})
}

// --- view-aliased in-place ops -------------------------------------------

func kernelScale(ctx *Context, p *ComputeParams, node *Tensor) {
	if p.Phase != PhaseCompute {
		return
	}
	a, b := node.Src0, node.Src1
	s := getF32(b, 0)
	forEachRow(node, p, func(i1, i2, i3 int64) {
		for i0 := int64(0); i0 < node.NE[0]; i0++ {
			off := elemOffset(a, i0, i1, i2, i3)
			setF32(node, off, getF32(a, off)*s)
		}
	})
}

// kernelCpy copies by flat linear index rather than shared (i0,i1,i2,i3)
// coordinates: CPY only requires a and node (a view of b) to share an
// element count, not a shape.
func kernelCpy(ctx *Context, p *ComputeParams, node *Tensor) {
	if p.Phase != PhaseCompute {
		return
	}
	a := node.Src0
	n := node.NElements()
	start, end := rowRange(n, p.Ith, p.Nth)
	for idx := start; idx < end; idx++ {
		av0, av1, av2, av3 := linearCoords(a, idx)
		nv0, nv1, nv2, nv3 := linearCoords(node, idx)
		setF32(node, elemOffset(node, nv0, nv1, nv2, nv3), getF32(a, elemOffset(a, av0, av1, av2, av3)))
	}
}

func kernelGetRows(ctx *Context, p *ComputeParams, node *Tensor) {
	if p.Phase != PhaseCompute {
		return
	}
	a, b := node.Src0, node.Src1
	nc := a.NE[0]
	start, end := rowRange(b.NE[0], p.Ith, p.Nth)
	for r := start; r < end; r++ {
		idx := int64(getI32(b, elemOffset(b, r, 0, 0, 0)))
		for i0 := int64(0); i0 < nc; i0++ {
			v := getF32(a, elemOffset(a, i0, idx, 0, 0))
			setF32(node, elemOffset(node, i0, r, 0, 0), v)
		}
	}
}

func kernelDiagMaskInf(ctx *Context, p *ComputeParams, node *Tensor) {
	if p.Phase != PhaseCompute {
		return
	}
	a := node.Src0
	nPast := node.extra.(int)
	forEachRow(node, p, func(i1, i2, i3 int64) {
		for i0 := int64(0); i0 < node.NE[0]; i0++ {
			v := getF32(a, elemOffset(a, i0, i1, i2, i3))
			if i0 > i1+int64(nPast) {
				v = float32(math32.Inf(-1))
			}
			setF32(node, elemOffset(node, i0, i1, i2, i3), v)
		}
	})
}

// kernelSoftMax subtracts the per-row max, looks up FP16-table exp, zeros
// out -Inf entries, asserts a positive row sum, and scales by 1/sum.
func kernelSoftMax(ctx *Context, p *ComputeParams, node *Tensor) {
	if p.Phase != PhaseCompute {
		return
	}
	a := node.Src0
	n := a.NE[0]
	forEachRow(node, p, func(i1, i2, i3 int64) {
		max := float32(math32.Inf(-1))
		for i0 := int64(0); i0 < n; i0++ {
			v := getF32(a, elemOffset(a, i0, i1, i2, i3))
			if v > max {
				max = v
			}
		}

		var sum float32
		for i0 := int64(0); i0 < n; i0++ {
			v := getF32(a, elemOffset(a, i0, i1, i2, i3))
			var e float32
			if math32.IsInf(v, -1) {
				e = 0
			} else {
				e = expTableLookup(v - max)
			}
			sum += e
			setF32(node, elemOffset(node, i0, i1, i2, i3), e)
		}
		if sum <= 0 {
			panic(shapeErrorf(OpSoftMax, "softmax row sum must be positive, got %v", sum))
		}
		inv := 1.0 / sum
		for i0 := int64(0); i0 < n; i0++ {
			off := elemOffset(node, i0, i1, i2, i3)
			setF32(node, off, getF32(node, off)*inv)
		}
	})
}

// kernelRope implements rotary position embedding: for position
// p = n_past+row, for each even index i0 in [0,n_dims), rotate the pair
// (x[i0],x[i0+1]) by angle p*10000^(-i0/n_dims). rp.Mode is unused; only
// the mode-0 pairing is implemented.
const RopeFreqBase = 10000.0

func kernelRope(ctx *Context, p *ComputeParams, node *Tensor) {
	if p.Phase != PhaseCompute {
		return
	}
	a := node.Src0
	rp := node.extra.(RopeParams)
	forEachRow(node, p, func(i1, i2, i3 int64) {
		pos := float32(rp.NPast) + float32(i1)
		for i0 := int64(0); i0 < int64(rp.NDims); i0 += 2 {
			theta := pos * math32.Pow(RopeFreqBase, -float32(i0)/float32(rp.NDims))
			cosT, sinT := math32.Cos(theta), math32.Sin(theta)
			x0 := getF32(a, elemOffset(a, i0, i1, i2, i3))
			x1 := getF32(a, elemOffset(a, i0+1, i1, i2, i3))
			setF32(node, elemOffset(node, i0, i1, i2, i3), x0*cosT-x1*sinT)
			setF32(node, elemOffset(node, i0+1, i1, i2, i3), x0*sinT+x1*cosT)
		}
		for i0 := int64(rp.NDims); i0 < node.NE[0]; i0++ {
			off := elemOffset(a, i0, i1, i2, i3)
			setF32(node, elemOffset(node, i0, i1, i2, i3), getF32(a, off))
		}
	})
}
