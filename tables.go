package tengraph

import (
	"github.com/chewxy/math32"
	"github.com/x448/float16"
)

// geluCoeff and geluScale implement the exact GELU form:
// 0.5*x*(1+tanh(sqrt(2/pi)*x*(1+0.044715*x^2))).
const (
	geluScale = 0.7978845608028654 // sqrt(2/pi)
	geluCoeff = 0.044715
)

// geluTable and expTable are module-scope tables over all 65536 FP16 bit
// patterns, initialized exactly once on first Context creation. Indexing is
// by the uint16 bit pattern of the centered, FP16-rounded input; GELU/softmax
// promote their float32 input through FP16 before the lookup, trading a
// little precision for a table lookup instead of a transcendental call per
// element.
var (
	geluTable [1 << 16]float16.Float16
	expTable  [1 << 16]float16.Float16
)

func initGeluExpTables() {
	for i := 0; i < 1<<16; i++ {
		f := float16.Frombits(uint16(i)).Float32()
		geluTable[i] = float16.Fromfloat32(geluF32(f))
		expTable[i] = float16.Fromfloat32(math32.Exp(f))
	}
}

// geluF32 computes GELU directly in float32; it is used to build the table.
func geluF32(x float32) float32 {
	return 0.5 * x * (1.0 + math32.Tanh(geluScale*x*(1.0+geluCoeff*x*x)))
}

// geluTableLookup rounds x to its nearest FP16 representation and returns
// the precomputed table entry, widened back to float32. This is the
// table-driven GELU path used for F32 tensors.
func geluTableLookup(x float32) float32 {
	bits := float16.Fromfloat32(x).Bits()
	return geluTable[bits].Float32()
}

// expTableLookup is the FP16-table exponential used by SOFT_MAX: callers
// first subtract the per-row max, so x is always <= 0.
func expTableLookup(x float32) float32 {
	bits := float16.Fromfloat32(x).Bits()
	return expTable[bits].Float32()
}
