package tengraph

import "unsafe"

// Tensor is the central entity of the data model: an n-dimensional array
// with element type, extents, byte strides, and a data range inside a
// Context's arena (or aliasing another tensor's payload, for views).
type Tensor struct {
	ctx *Context

	Type   Type
	NDims  int
	NE     [MaxDims]int64 // extents; trailing dims are 1
	NB     [MaxDims]int64 // byte strides

	Op      Op
	IsParam bool

	Grad *Tensor
	Src0 *Tensor
	Src1 *Tensor
	Opt  [4]*Tensor

	// data is the byte range backing this tensor's payload, either a fresh
	// arena allocation or a sub-slice/alias of another tensor's data.
	data []byte

	// perf counters
	PerfRuns    int64
	PerfCycles  int64
	PerfTimeUs  int64

	// extra carries op-specific immediate parameters set by builder.go
	// (e.g. n_past for DIAG_MASK_INF, RopeParams for ROPE, the masked flag
	// for FLASH_ATTN) that do not
	// belong in the fixed tensor-graph shape but are needed by the kernel.
	extra interface{}
}

// NElements returns the total element count, the product of NE[0..NDims).
func (t *Tensor) NElements() int64 {
	n := int64(1)
	for i := 0; i < MaxDims; i++ {
		n *= t.NE[i]
	}
	return n
}

// NRows returns the number of rows (product of all extents but NE[0]).
func (t *Tensor) NRows() int64 {
	n := int64(1)
	for i := 1; i < MaxDims; i++ {
		n *= t.NE[i]
	}
	return n
}

// NBytes returns the size in bytes spanned by the tensor's last dimension
// times its stride, i.e. the contiguous-equivalent byte footprint.
func (t *Tensor) NBytes() int64 {
	if t.NE[0] == 0 {
		return 0
	}
	return t.NB[MaxDims-1] * t.NE[MaxDims-1]
}

// IsContiguous reports the standard stride-from-extents invariant:
// nb[0]=sizeof(type), nb[i]=nb[i-1]*ne[i-1] for i>=1.
func (t *Tensor) IsContiguous() bool {
	expect := t.Type.Size()
	for i := 0; i < MaxDims; i++ {
		if t.NB[i] != expect {
			return false
		}
		expect *= t.NE[i]
	}
	return true
}

// IsPadded1D reports nb[0]==sizeof(type) but nb[1] possibly larger.
func (t *Tensor) IsPadded1D() bool {
	return t.NB[0] == t.Type.Size()
}

// SameShape reports whether a and b have identical extents.
func SameShape(a, b *Tensor) bool {
	for i := 0; i < MaxDims; i++ {
		if a.NE[i] != b.NE[i] {
			return false
		}
	}
	return true
}

// CanRepeat reports whether every b.NE[i] is divisible by a.NE[i].
func CanRepeat(a, b *Tensor) bool {
	for i := 0; i < MaxDims; i++ {
		if b.NE[i]%a.NE[i] != 0 {
			return false
		}
	}
	return true
}

// CanMulMat reports the shared-dimension constraint MUL_MAT requires.
func CanMulMat(a, b *Tensor) bool {
	return a.NE[0] == b.NE[0] && a.NE[2] == b.NE[2] && a.NE[3] == b.NE[3]
}

// setContiguousStrides fills NB from NE assuming a fresh, packed layout.
func (t *Tensor) setContiguousStrides() {
	t.NB[0] = t.Type.Size()
	for i := 1; i < MaxDims; i++ {
		t.NB[i] = t.NB[i-1] * t.NE[i-1]
	}
}

// --- construction -----------------------------------------------------

// NewTensor allocates a tensor with nDims dims and the given extents,
// owning a fresh arena payload. Any extents beyond nDims default to 1.
func NewTensor(ctx *Context, typ Type, nDims int, ne []int64) *Tensor {
	if nDims < 1 || nDims > MaxDims {
		panic(shapeErrorf(OpNone, "invalid n_dims %d", nDims))
	}
	t := &Tensor{ctx: ctx, Type: typ, NDims: nDims}
	for i := 0; i < MaxDims; i++ {
		if i < len(ne) {
			t.NE[i] = ne[i]
		} else {
			t.NE[i] = 1
		}
	}
	t.setContiguousStrides()

	size := t.NElements() * typ.Size()
	off := ctx.mustAlloc(size)
	t.data = ctx.payload(off, size)
	return t
}

func NewTensor1D(ctx *Context, typ Type, ne0 int64) *Tensor {
	return NewTensor(ctx, typ, 1, []int64{ne0})
}

func NewTensor2D(ctx *Context, typ Type, ne0, ne1 int64) *Tensor {
	return NewTensor(ctx, typ, 2, []int64{ne0, ne1})
}

func NewTensor3D(ctx *Context, typ Type, ne0, ne1, ne2 int64) *Tensor {
	return NewTensor(ctx, typ, 3, []int64{ne0, ne1, ne2})
}

func NewTensor4D(ctx *Context, typ Type, ne0, ne1, ne2, ne3 int64) *Tensor {
	return NewTensor(ctx, typ, 4, []int64{ne0, ne1, ne2, ne3})
}

// NewI32 creates a scalar I32 tensor with the given value.
func NewI32(ctx *Context, v int32) *Tensor {
	t := NewTensor1D(ctx, TypeI32, 1)
	t.SetI32_1D(0, v)
	return t
}

// NewF32 creates a scalar F32 tensor with the given value.
func NewF32(ctx *Context, v float32) *Tensor {
	t := NewTensor1D(ctx, TypeF32, 1)
	t.SetF32_1D(0, v)
	return t
}

// DupTensor allocates a new tensor with the same type/shape as src, but an
// independent (uninitialized) payload and op=NONE.
func DupTensor(ctx *Context, src *Tensor) *Tensor {
	t := NewTensor(ctx, src.Type, src.NDims, src.NE[:])
	return t
}

// ViewTensor creates a new tensor header that aliases src's data, with
// identical shape and strides. Mutating the view mutates src.
func ViewTensor(ctx *Context, src *Tensor) *Tensor {
	t := &Tensor{ctx: ctx, Type: src.Type, NDims: src.NDims, NE: src.NE, NB: src.NB, data: src.data}
	return t
}

// --- mutation / access --------------------------------------------------

func (t *Tensor) SetZero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

func (t *Tensor) SetI32(v int32) {
	s := t.Int32s()
	for i := range s {
		s[i] = v
	}
}

func (t *Tensor) SetF32(v float32) {
	s := t.Float32s()
	for i := range s {
		s[i] = v
	}
}

func (t *Tensor) GetI32_1D(i int) int32    { return t.Int32s()[i] }
func (t *Tensor) SetI32_1D(i int, v int32) { t.Int32s()[i] = v }
func (t *Tensor) GetF32_1D(i int) float32  { return t.Float32s()[i] }
func (t *Tensor) SetF32_1D(i int, v float32) { t.Float32s()[i] = v }

// GetData returns the raw byte payload of the tensor.
func (t *Tensor) GetData() []byte { return t.data }

// GetDataF32 is an alias for Float32s, matching the external-interface
// naming other bindings expect.
func (t *Tensor) GetDataF32() []float32 { return t.Float32s() }

// Float32s reinterprets the tensor's payload as a []float32. Panics if the
// tensor's type is not F32. Uses the same unsafe.Slice reinterpretation
// idiom as a generic AllocSlice[T] helper.
func (t *Tensor) Float32s() []float32 {
	if t.Type != TypeF32 {
		panic(shapeErrorf(t.Op, "Float32s on non-F32 tensor (%v)", t.Type))
	}
	n := t.NElements()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), n)
}

// Int32s reinterprets the tensor's payload as a []int32.
func (t *Tensor) Int32s() []int32 {
	if t.Type != TypeI32 {
		panic(shapeErrorf(t.Op, "Int32s on non-I32 tensor (%v)", t.Type))
	}
	n := t.NElements()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&t.data[0])), n)
}

// Int16s reinterprets the tensor's payload as a []int16 (also used for F16
// bit patterns, since F16 elements are stored as their uint16 bits).
func (t *Tensor) Int16s() []int16 {
	n := t.NElements()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&t.data[0])), n)
}

// Int8s reinterprets the tensor's payload as a []int8.
func (t *Tensor) Int8s() []int8 {
	n := t.NElements()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(&t.data[0])), n)
}

// Float16Bits reinterprets an F16 tensor's payload as raw uint16 bit
// patterns, suitable for passing to github.com/x448/float16.Frombits.
func (t *Tensor) Float16Bits() []uint16 {
	if t.Type != TypeF16 {
		panic(shapeErrorf(t.Op, "Float16Bits on non-F16 tensor (%v)", t.Type))
	}
	n := t.NElements()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&t.data[0])), n)
}
