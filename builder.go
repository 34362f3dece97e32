package tengraph

// isNode reports whether t participates in the differentiable graph: either
// it is itself a parameter leaf, or it already has a gradient tensor
// allocated (meaning some earlier, differentiable ancestor feeds it).
func isNode(t *Tensor) bool {
	return t != nil && (t.IsParam || t.Grad != nil)
}

// maybeAllocGrad allocates result.Grad, shaped like result, if any source
// participates in the differentiable graph and the op is not in-place.
// Gradient tensors are allocated lazily rather than eagerly for every node.
func maybeAllocGrad(ctx *Context, result *Tensor, inplace bool, srcs ...*Tensor) {
	if inplace {
		return
	}
	for _, s := range srcs {
		if isNode(s) {
			result.Grad = DupTensor(ctx, result)
			return
		}
	}
}

func assertSameShape(op Op, a, b *Tensor) {
	if !SameShape(a, b) {
		panic(shapeErrorf(op, "shape mismatch: a=%v b=%v", a.NE, b.NE))
	}
}

// --- binary elementwise -------------------------------------------------

func binaryOp(ctx *Context, op Op, a, b *Tensor) *Tensor {
	assertSameShape(op, a, b)
	result := DupTensor(ctx, a)
	result.Op = op
	result.Src0 = a
	result.Src1 = b
	maybeAllocGrad(ctx, result, false, a, b)
	return result
}

func Add(ctx *Context, a, b *Tensor) *Tensor { return binaryOp(ctx, OpAdd, a, b) }
func Sub(ctx *Context, a, b *Tensor) *Tensor { return binaryOp(ctx, OpSub, a, b) }
func Mul(ctx *Context, a, b *Tensor) *Tensor { return binaryOp(ctx, OpMul, a, b) }
func Div(ctx *Context, a, b *Tensor) *Tensor { return binaryOp(ctx, OpDiv, a, b) }

// --- unary elementwise ----------------------------------------------------

func unaryOp(ctx *Context, op Op, a *Tensor) *Tensor {
	result := DupTensor(ctx, a)
	result.Op = op
	result.Src0 = a
	maybeAllocGrad(ctx, result, false, a)
	return result
}

func Dup(ctx *Context, a *Tensor) *Tensor   { return unaryOp(ctx, OpDup, a) }
func Sqr(ctx *Context, a *Tensor) *Tensor   { return unaryOp(ctx, OpSqr, a) }
func Sqrt(ctx *Context, a *Tensor) *Tensor  { return unaryOp(ctx, OpSqrt, a) }
func Abs(ctx *Context, a *Tensor) *Tensor   { return unaryOp(ctx, OpAbs, a) }
func Sgn(ctx *Context, a *Tensor) *Tensor   { return unaryOp(ctx, OpSgn, a) }
func Neg(ctx *Context, a *Tensor) *Tensor   { return unaryOp(ctx, OpNeg, a) }
func Step(ctx *Context, a *Tensor) *Tensor  { return unaryOp(ctx, OpStep, a) }
func Relu(ctx *Context, a *Tensor) *Tensor  { return unaryOp(ctx, OpRelu, a) }
func Gelu(ctx *Context, a *Tensor) *Tensor  { return unaryOp(ctx, OpGelu, a) }

// --- reductions -----------------------------------------------------------

// Sum reduces a to a single scalar.
func Sum(ctx *Context, a *Tensor) *Tensor {
	result := NewTensor1D(ctx, a.Type, 1)
	result.Op = OpSum
	result.Src0 = a
	maybeAllocGrad(ctx, result, false, a)
	return result
}

// Mean reduces a along ne[0], keeping other dims; F32 only.
func Mean(ctx *Context, a *Tensor) *Tensor {
	if a.Type != TypeF32 {
		panic(shapeErrorf(OpMean, "MEAN requires F32 input, got %v", a.Type))
	}
	ne := a.NE
	ne[0] = 1
	result := NewTensor(ctx, TypeF32, a.NDims, ne[:])
	result.Op = OpMean
	result.Src0 = a
	// Backward rules are defined only through SUM; MEAN has no rule, so it
	// never gets a gradient tensor even if a is a node.
	return result
}

// Repeat broadcasts a up to b's shape. If a and b already have the same
// shape, returns a unchanged: repeat is idempotent on an already-matching
// shape, returning the same handle with no copy.
func Repeat(ctx *Context, a, b *Tensor) *Tensor {
	if SameShape(a, b) {
		return a
	}
	if !CanRepeat(a, b) {
		panic(shapeErrorf(OpRepeat, "cannot repeat %v into %v", a.NE, b.NE))
	}
	result := NewTensor(ctx, a.Type, b.NDims, b.NE[:])
	result.Op = OpRepeat
	result.Src0 = a
	result.Src1 = b
	maybeAllocGrad(ctx, result, false, a)
	return result
}

// Norm computes per-row mean/variance normalization with a fixed eps of
// 1e-5; eps is not exposed as a parameter.
const NormEps = 1e-5

func Norm(ctx *Context, a *Tensor) *Tensor {
	result := DupTensor(ctx, a)
	result.Op = OpNorm
	result.Src0 = a
	// NORM has no backward rule; never a node.
	return result
}

// MulMat computes a matrix product whose result shape is
// {a.ne[1], b.ne[1], a.ne[2], b.ne[3]}, always F32, requiring
// CanMulMat(a,b).
func MulMat(ctx *Context, a, b *Tensor) *Tensor {
	if !CanMulMat(a, b) {
		panic(shapeErrorf(OpMulMat, "cannot mul_mat %v x %v", a.NE, b.NE))
	}
	result := NewTensor4D(ctx, TypeF32, a.NE[1], b.NE[1], a.NE[2], b.NE[3])
	result.Op = OpMulMat
	result.Src0 = a
	result.Src1 = b
	maybeAllocGrad(ctx, result, false, a, b)
	return result
}

// Scale multiplies a by scalar b, producing a view of a: the result
// aliases a's payload and the kernel writes the scaled values back into
// that same buffer.
func Scale(ctx *Context, a, b *Tensor) *Tensor {
	if b.NElements() != 1 {
		panic(shapeErrorf(OpScale, "scale factor must be scalar, got %v elements", b.NElements()))
	}
	result := ViewTensor(ctx, a)
	result.Op = OpScale
	result.Src0 = a
	result.Src1 = b
	return result
}

// Cpy copies a's data into b's layout, returning a view of b.
func Cpy(ctx *Context, a, b *Tensor) *Tensor {
	if a.NElements() != b.NElements() {
		panic(shapeErrorf(OpCpy, "element count mismatch: a=%d b=%d", a.NElements(), b.NElements()))
	}
	result := ViewTensor(ctx, b)
	result.Op = OpCpy
	result.Src0 = a
	result.Src1 = b
	return result
}

// Reshape reinterprets a's (contiguous) data under new extents.
func Reshape(ctx *Context, a *Tensor, ne []int64) *Tensor {
	if !a.IsContiguous() {
		panic(shapeErrorf(OpReshape, "RESHAPE requires a contiguous source"))
	}
	n := int64(1)
	for _, v := range ne {
		n *= v
	}
	if n != a.NElements() {
		panic(shapeErrorf(OpReshape, "RESHAPE element count mismatch: have %d want %d", a.NElements(), n))
	}
	result := &Tensor{ctx: ctx, Type: a.Type, NDims: len(ne), data: a.data}
	for i := 0; i < MaxDims; i++ {
		if i < len(ne) {
			result.NE[i] = ne[i]
		} else {
			result.NE[i] = 1
		}
	}
	result.setContiguousStrides()
	result.Op = OpReshape
	result.Src0 = a
	return result
}

func Reshape1D(ctx *Context, a *Tensor, ne0 int64) *Tensor { return Reshape(ctx, a, []int64{ne0}) }
func Reshape2D(ctx *Context, a *Tensor, ne0, ne1 int64) *Tensor {
	return Reshape(ctx, a, []int64{ne0, ne1})
}
func Reshape3D(ctx *Context, a *Tensor, ne0, ne1, ne2 int64) *Tensor {
	return Reshape(ctx, a, []int64{ne0, ne1, ne2})
}
func Reshape4D(ctx *Context, a *Tensor, ne0, ne1, ne2, ne3 int64) *Tensor {
	return Reshape(ctx, a, []int64{ne0, ne1, ne2, ne3})
}

// View1D creates a 1D view of ne0 elements starting at byte offset.
func View1D(ctx *Context, a *Tensor, ne0, offset int64) *Tensor {
	if offset+ne0*a.Type.Size() > int64(len(a.data)) {
		panic(shapeErrorf(OpView1D, "VIEW_1D out of range"))
	}
	result := &Tensor{ctx: ctx, Type: a.Type, NDims: 1, data: a.data[offset:]}
	result.NE[0], result.NE[1], result.NE[2], result.NE[3] = ne0, 1, 1, 1
	result.setContiguousStrides()
	result.Op = OpView1D
	result.Src0 = a
	return result
}

// View2D creates a 2D view with explicit row stride nb1, starting at byte
// offset into a's data.
func View2D(ctx *Context, a *Tensor, ne0, ne1, nb1, offset int64) *Tensor {
	if offset+nb1*ne1 > int64(len(a.data)) {
		panic(shapeErrorf(OpView2D, "VIEW_2D out of range"))
	}
	result := &Tensor{ctx: ctx, Type: a.Type, NDims: 2, data: a.data[offset:]}
	result.NE[0], result.NE[1], result.NE[2], result.NE[3] = ne0, ne1, 1, 1
	result.NB[0] = a.Type.Size()
	result.NB[1] = nb1
	result.NB[2] = nb1 * ne1
	result.NB[3] = result.NB[2]
	result.Op = OpView2D
	result.Src0 = a
	return result
}

// Permute reorders extents and strides: axis[i] gives the destination axis
// for source axis i (so result.NE[axis[i]] = a.NE[i]).
func Permute(ctx *Context, a *Tensor, axis0, axis1, axis2, axis3 int) *Tensor {
	axes := [MaxDims]int{axis0, axis1, axis2, axis3}
	var seen [MaxDims]bool
	for _, ax := range axes {
		if ax < 0 || ax >= MaxDims || seen[ax] {
			panic(shapeErrorf(OpPermute, "PERMUTE requires a permutation of 0..3, got %v", axes))
		}
		seen[ax] = true
	}
	result := &Tensor{ctx: ctx, Type: a.Type, NDims: a.NDims, data: a.data}
	for i := 0; i < MaxDims; i++ {
		result.NE[axes[i]] = a.NE[i]
		result.NB[axes[i]] = a.NB[i]
	}
	result.Op = OpPermute
	result.Src0 = a
	return result
}

// Transpose swaps the first two extents/strides.
func Transpose(ctx *Context, a *Tensor) *Tensor {
	result := &Tensor{ctx: ctx, Type: a.Type, NDims: a.NDims, data: a.data}
	result.NE = a.NE
	result.NB = a.NB
	result.NE[0], result.NE[1] = a.NE[1], a.NE[0]
	result.NB[0], result.NB[1] = a.NB[1], a.NB[0]
	result.Op = OpTranspose
	result.Src0 = a
	return result
}

// GetRows gathers rows of matrix a indexed by integer vector b, producing
// an (a.ne[0], b.ne[0]) F32 result.
func GetRows(ctx *Context, a, b *Tensor) *Tensor {
	if a.NDims != 2 {
		panic(shapeErrorf(OpGetRows, "GET_ROWS requires a 2D matrix, got %d dims", a.NDims))
	}
	if b.Type != TypeI32 {
		panic(shapeErrorf(OpGetRows, "GET_ROWS requires an I32 index vector"))
	}
	result := NewTensor2D(ctx, TypeF32, a.NE[0], b.NE[0])
	result.Op = OpGetRows
	result.Src0 = a
	result.Src1 = b
	maybeAllocGrad(ctx, result, false, a)
	return result
}

// DiagMaskInf returns a view of a whose entries above the n_past diagonal
// offset are set to -Inf in place at execute.
func DiagMaskInf(ctx *Context, a *Tensor, nPast int) *Tensor {
	result := ViewTensor(ctx, a)
	result.Op = OpDiagMaskInf
	result.Src0 = a
	result.extra = nPast
	return result
}

// SoftMax returns a row-wise, numerically-stabilized softmax view of a.
func SoftMax(ctx *Context, a *Tensor) *Tensor {
	result := ViewTensor(ctx, a)
	result.Op = OpSoftMax
	result.Src0 = a
	maybeAllocGrad(ctx, result, false, a)
	return result
}

// RopeParams bundles ROPE's immediate parameters.
type RopeParams struct {
	NPast int
	NDims int
	Mode  int
}

// Rope applies rotary positional embedding, returning a view of a. Mode is
// recorded but not yet consulted by the kernel, which only implements the
// mode-0 (GPT-NeoX style, pairs adjacent within the first NDims) rotation.
func Rope(ctx *Context, a *Tensor, nPast, nDims, mode int) *Tensor {
	result := ViewTensor(ctx, a)
	result.Op = OpRope
	result.Src0 = a
	result.extra = RopeParams{NPast: nPast, NDims: nDims, Mode: mode}
	return result
}

// conv1DOutLen computes the output length of a 1D convolution with odd
// kernel size nk, half-width padding, and the given stride.
func conv1DOutLen(inLen, nk, stride int64) int64 {
	nh := (nk - 1) / 2
	return (inLen+2*nh-nk)/stride + 1
}

func conv1D(ctx *Context, op Op, a, b *Tensor, stride int64) *Tensor {
	nk := a.NE[0]
	if nk%2 == 0 {
		panic(shapeErrorf(op, "CONV_1D requires an odd kernel size, got %d", nk))
	}
	outChannels := a.NE[2]
	outLen := conv1DOutLen(b.NE[0], nk, stride)
	result := NewTensor2D(ctx, TypeF32, outLen, outChannels)
	result.Op = op
	result.Src0 = a
	result.Src1 = b
	return result
}

// Conv1D1S convolves with stride 1.
func Conv1D1S(ctx *Context, a, b *Tensor) *Tensor { return conv1D(ctx, OpConv1D1S, a, b, 1) }

// Conv1D2S convolves with stride 2.
func Conv1D2S(ctx *Context, a, b *Tensor) *Tensor { return conv1D(ctx, OpConv1D2S, a, b, 2) }

// FlashAttn fuses scaled dot-product attention, softmax, and the V
// projection. Result shape equals q's shape.
func FlashAttn(ctx *Context, q, k, v *Tensor, masked bool) *Tensor {
	result := DupTensor(ctx, q)
	result.Op = OpFlashAttn
	result.Src0 = q
	result.Src1 = k
	result.Opt[0] = v
	result.extra = masked
	return result
}

// FlashFF fuses a feed-forward block: GELU(a*b0+b1)*c0+c1. Result shape
// equals a's shape.
func FlashFF(ctx *Context, a, b0, b1, c0, c1 *Tensor) *Tensor {
	result := DupTensor(ctx, a)
	result.Op = OpFlashFF
	result.Src0 = a
	result.Opt[0] = b0
	result.Opt[1] = b1
	result.Opt[2] = c0
	result.Opt[3] = c1
	return result
}
