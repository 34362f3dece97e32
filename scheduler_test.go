package tengraph

import "testing"

func TestGraphComputeMatchesSingleThreaded(t *testing.T) {
	ctx := newTestContext(t)
	a := NewTensor2D(ctx, TypeF32, 8, 8)
	b := NewTensor2D(ctx, TypeF32, 8, 8)
	for i := range a.Float32s() {
		a.Float32s()[i] = float32(i)
		b.Float32s()[i] = float32(i) * 2
	}
	sum := Add(ctx, a, b)

	g1 := BuildForward(sum)
	g1.NThreads = 1
	GraphCompute(ctx, g1)
	single := append([]float32(nil), sum.Float32s()...)

	sum2 := Add(ctx, a, b)
	g4 := BuildForward(sum2)
	g4.NThreads = 4
	GraphCompute(ctx, g4)
	multi := sum2.Float32s()

	for i := range single {
		if single[i] != multi[i] {
			t.Fatalf("thread count changed result at %d: 1-thread=%v 4-thread=%v", i, single[i], multi[i])
		}
	}
}

func TestNTasksSkipsMetadataOnlyOps(t *testing.T) {
	ctx := newTestContext(t)
	a := NewTensor2D(ctx, TypeF32, 4, 4)
	view := Reshape1D(ctx, a, 16)
	if n := nTasks(view, 8); n != 1 {
		t.Fatalf("expected RESHAPE to declare n_tasks=1, got %d", n)
	}
}
