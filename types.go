// Package tengraph implements an embeddable, arena-backed tensor/graph
// computation engine: forward kernels, reverse-mode autodiff, and a
// multithreaded fork-join scheduler, without any dependency on a heavyweight
// runtime. All state lives in a caller-supplied (or self-owned) memory
// arena; all parallelism is an explicit worker pool.
package tengraph

import "fmt"

// Type is a tensor element type.
type Type int

const (
	TypeI8 Type = iota
	TypeI16
	TypeI32
	TypeF16
	TypeF32
	typeCount
)

func (t Type) String() string {
	switch t {
	case TypeI8:
		return "I8"
	case TypeI16:
		return "I16"
	case TypeI32:
		return "I32"
	case TypeF16:
		return "F16"
	case TypeF32:
		return "F32"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Size returns the size in bytes of a single element of this type.
func (t Type) Size() int64 {
	switch t {
	case TypeI8:
		return 1
	case TypeI16, TypeF16:
		return 2
	case TypeI32, TypeF32:
		return 4
	default:
		panic(fmt.Sprintf("tengraph: unknown type %v", t))
	}
}

// MaxDims is the fixed maximum tensor rank.
const MaxDims = 4

// Alignment all tensor payloads are aligned to within the arena.
const DataAlign = 16

// Op is a graph node opcode.
type Op int

const (
	OpNone Op = iota
	OpDup
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpSqr
	OpSqrt
	OpAbs
	OpSgn
	OpNeg
	OpStep
	OpRelu
	OpGelu
	OpSum
	OpMean
	OpRepeat
	OpNorm
	OpMulMat
	OpScale
	OpCpy
	OpReshape
	OpView1D
	OpView2D
	OpPermute
	OpTranspose
	OpGetRows
	OpDiagMaskInf
	OpSoftMax
	OpRope
	OpConv1D1S
	OpConv1D2S
	OpFlashAttn
	OpFlashFF
	opCount
)

var opNames = [...]string{
	OpNone:        "NONE",
	OpDup:         "DUP",
	OpAdd:         "ADD",
	OpSub:         "SUB",
	OpMul:         "MUL",
	OpDiv:         "DIV",
	OpSqr:         "SQR",
	OpSqrt:        "SQRT",
	OpAbs:         "ABS",
	OpSgn:         "SGN",
	OpNeg:         "NEG",
	OpStep:        "STEP",
	OpRelu:        "RELU",
	OpGelu:        "GELU",
	OpSum:         "SUM",
	OpMean:        "MEAN",
	OpRepeat:      "REPEAT",
	OpNorm:        "NORM",
	OpMulMat:      "MUL_MAT",
	OpScale:       "SCALE",
	OpCpy:         "CPY",
	OpReshape:     "RESHAPE",
	OpView1D:      "VIEW_1D",
	OpView2D:      "VIEW_2D",
	OpPermute:     "PERMUTE",
	OpTranspose:   "TRANSPOSE",
	OpGetRows:     "GET_ROWS",
	OpDiagMaskInf: "DIAG_MASK_INF",
	OpSoftMax:     "SOFT_MAX",
	OpRope:        "ROPE",
	OpConv1D1S:    "CONV_1D_1S",
	OpConv1D2S:    "CONV_1D_2S",
	OpFlashAttn:   "FLASH_ATTN",
	OpFlashFF:     "FLASH_FF",
}

func (o Op) String() string {
	if int(o) >= 0 && int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("OP(%d)", int(o))
}

// ShapeError reports a construction-time shape or type violation. These
// are fatal: every public constructor panics with a *ShapeError rather
// than returning one, but the concrete value survives the panic so a
// caller can recover and inspect it with errors.As.
type ShapeError struct {
	Op  Op
	Msg string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("tengraph: shape error in %v: %s", e.Op, e.Msg)
}

// ArenaError reports arena exhaustion. A full context table is not reported
// this way: NewContext returns nil instead.
type ArenaError struct {
	Msg string
}

func (e *ArenaError) Error() string {
	return "tengraph: arena error: " + e.Msg
}

func shapeErrorf(op Op, format string, args ...interface{}) *ShapeError {
	return &ShapeError{Op: op, Msg: fmt.Sprintf(format, args...)}
}
