package tengraph

import (
	"unsafe"

	"github.com/x448/float16"
)

// getF32 reads the element of t at the given byte offset into its data,
// widening to float32 regardless of t's stored type. Kernels use this (and
// setF32) to stay correct over arbitrary strides, including the
// non-contiguous layouts VIEW/PERMUTE/TRANSPOSE produce.
func getF32(t *Tensor, offset int64) float32 {
	switch t.Type {
	case TypeF32:
		return *(*float32)(unsafe.Pointer(&t.data[offset]))
	case TypeI32:
		return float32(*(*int32)(unsafe.Pointer(&t.data[offset])))
	case TypeI16:
		return float32(*(*int16)(unsafe.Pointer(&t.data[offset])))
	case TypeI8:
		return float32(*(*int8)(unsafe.Pointer(&t.data[offset])))
	case TypeF16:
		bits := *(*uint16)(unsafe.Pointer(&t.data[offset]))
		return float16.Frombits(bits).Float32()
	default:
		panic(shapeErrorf(t.Op, "getF32: unsupported type %v", t.Type))
	}
}

func setF32(t *Tensor, offset int64, v float32) {
	switch t.Type {
	case TypeF32:
		*(*float32)(unsafe.Pointer(&t.data[offset])) = v
	case TypeI32:
		*(*int32)(unsafe.Pointer(&t.data[offset])) = int32(v)
	case TypeI16:
		*(*int16)(unsafe.Pointer(&t.data[offset])) = int16(v)
	case TypeI8:
		*(*int8)(unsafe.Pointer(&t.data[offset])) = int8(v)
	case TypeF16:
		*(*uint16)(unsafe.Pointer(&t.data[offset])) = float16.Fromfloat32(v).Bits()
	default:
		panic(shapeErrorf(t.Op, "setF32: unsupported type %v", t.Type))
	}
}

func getI32(t *Tensor, offset int64) int32 {
	if t.Type != TypeI32 {
		panic(shapeErrorf(t.Op, "getI32: expected I32, got %v", t.Type))
	}
	return *(*int32)(unsafe.Pointer(&t.data[offset]))
}

// rowIndices decomposes a flattened row index (over NE[1]*NE[2]*NE[3]) into
// per-axis indices, matching the row-major order NRows() counts in.
func rowIndices(t *Tensor, row int64) (i1, i2, i3 int64) {
	i1 = row % t.NE[1]
	row /= t.NE[1]
	i2 = row % t.NE[2]
	i3 = row / t.NE[2]
	return
}

// rowOffset returns the byte offset of the start of the given (i1,i2,i3)
// row within t's data.
func rowOffset(t *Tensor, i1, i2, i3 int64) int64 {
	return i1*t.NB[1] + i2*t.NB[2] + i3*t.NB[3]
}

// elemOffset returns the byte offset of element (i0,i1,i2,i3) within t's
// data, honoring arbitrary strides.
func elemOffset(t *Tensor, i0, i1, i2, i3 int64) int64 {
	return i0*t.NB[0] + i1*t.NB[1] + i2*t.NB[2] + i3*t.NB[3]
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// rowRange partitions [0,nRows) into nth equal chunks of size
// dr=ceil(nRows/nth), the row-partition policy every COMPUTE phase uses to
// split work across worker threads.
func rowRange(nRows int64, ith, nth int) (start, end int64) {
	dr := (nRows + int64(nth) - 1) / int64(nth)
	start = minI64(int64(ith)*dr, nRows)
	end = minI64(start+dr, nRows)
	return
}

// linearCoords decomposes a flat, row-major element index (i0 fastest)
// into t's 4D coordinates. Used where two tensors share an element count
// but not a shape (CPY's contract), so iteration must follow each
// tensor's own layout rather than a shared set of (i0,i1,i2,i3) indices.
func linearCoords(t *Tensor, idx int64) (i0, i1, i2, i3 int64) {
	i0 = idx % t.NE[0]
	idx /= t.NE[0]
	i1 = idx % t.NE[1]
	idx /= t.NE[1]
	i2 = idx % t.NE[2]
	i3 = idx / t.NE[2]
	return
}
