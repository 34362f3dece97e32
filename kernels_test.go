package tengraph

import (
	"math"
	"testing"
)

func approxEqual(a, b, eps float32) bool {
	return math.Abs(float64(a-b)) < float64(eps)
}

// TestAddScenario exercises a 2x3 elementwise add.
func TestAddScenario(t *testing.T) {
	ctx := newTestContext(t)
	a := NewTensor2D(ctx, TypeF32, 3, 2)
	b := NewTensor2D(ctx, TypeF32, 3, 2)
	copy(a.Float32s(), []float32{1, 2, 3, 4, 5, 6})
	copy(b.Float32s(), []float32{10, 20, 30, 40, 50, 60})

	sum := Add(ctx, a, b)
	g := BuildForward(sum)
	GraphCompute(ctx, g)

	want := []float32{11, 22, 33, 44, 55, 66}
	got := sum.Float32s()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("element %d: want %v got %v", i, want[i], got[i])
		}
	}
}

// TestMulMatScenario exercises a 3x2 by 3x4 matrix product.
func TestMulMatScenario(t *testing.T) {
	ctx := newTestContext(t)
	a := NewTensor2D(ctx, TypeF32, 3, 2)
	b := NewTensor2D(ctx, TypeF32, 3, 4)
	copy(a.Float32s(), []float32{1, 2, 3, 4, 5, 6})
	copy(b.Float32s(), []float32{1, 0, 0, 0, 1, 0, 0, 0, 1, 1, 1, 1})

	result := MulMat(ctx, a, b)
	g := BuildForward(result)
	GraphCompute(ctx, g)

	if result.NE[0] != 2 || result.NE[1] != 4 {
		t.Fatalf("unexpected result shape %v", result.NE)
	}
	want := []float32{1, 4, 2, 5, 3, 6, 6, 15}
	got := result.Float32s()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("element %d: want %v got %v", i, want[i], got[i])
		}
	}
}

func TestSoftMaxSumsToOne(t *testing.T) {
	ctx := newTestContext(t)
	a := NewTensor1D(ctx, TypeF32, 4)
	copy(a.Float32s(), []float32{1, 2, 3, 4})

	result := SoftMax(ctx, a)
	g := BuildForward(result)
	GraphCompute(ctx, g)

	var sum float32
	for _, v := range result.Float32s() {
		if v <= 0 {
			t.Fatalf("expected strictly positive softmax entries, got %v", v)
		}
		sum += v
	}
	if !approxEqual(sum, 1.0, 1e-3) {
		t.Fatalf("expected softmax row to sum to 1, got %v", sum)
	}
}

func TestRopePreservesPairNorm(t *testing.T) {
	ctx := newTestContext(t)
	a := NewTensor2D(ctx, TypeF32, 4, 1)
	copy(a.Float32s(), []float32{1, 0, 0, 1})

	result := Rope(ctx, a, 5, 4, 0)
	g := BuildForward(result)
	GraphCompute(ctx, g)

	before := math32Hypot(1, 0)
	out := result.Float32s()
	after := math32Hypot(out[0], out[1])
	if !approxEqual(before, after, 1e-3) {
		t.Fatalf("ROPE should preserve pair norm: before %v after %v", before, after)
	}
}

func math32Hypot(a, b float32) float32 {
	return float32(math.Hypot(float64(a), float64(b)))
}

// TestAutodiffSquare checks that d/dx (x^2) = 2x.
func TestAutodiffSquare(t *testing.T) {
	ctx := newTestContext(t)
	x := NewF32(ctx, 3.0)
	x.IsParam = true
	y := Sqr(ctx, x)

	gf := BuildForward(y)
	GraphCompute(ctx, gf)

	gb := BuildBackward(ctx, gf, true)
	y.Grad.SetF32(1.0)
	GraphCompute(ctx, gb)

	if got := x.Grad.GetF32_1D(0); !approxEqual(got, 6.0, 1e-4) {
		t.Fatalf("expected d/dx x^2 at x=3 to be 6, got %v", got)
	}
}

func TestBackwardUnsupportedOpPanics(t *testing.T) {
	ctx := newTestContext(t)
	a := NewTensor1D(ctx, TypeF32, 4)
	a.IsParam = true
	y := Norm(ctx, a)
	y.Grad = NewTensor1D(ctx, TypeF32, 4)
	y.Grad.SetF32(1.0)

	gf := &Graph{Nodes: []*Tensor{y}, Leafs: []*Tensor{a}}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic differentiating through NORM")
		}
		if _, ok := r.(*BackwardUnsupportedError); !ok {
			t.Fatalf("expected *BackwardUnsupportedError, got %T", r)
		}
	}()
	BuildBackward(ctx, gf, false)
}
