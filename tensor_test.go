package tengraph

import "testing"

func newTestContext(t *testing.T) *Context {
	t.Helper()
	ctx := NewContext(InitParams{MemSize: 1 << 20})
	if ctx == nil {
		t.Fatal("NewContext returned nil")
	}
	t.Cleanup(ctx.Free)
	return ctx
}

func TestArenaAllocIsMonotonic(t *testing.T) {
	ctx := newTestContext(t)

	a := NewTensor1D(ctx, TypeF32, 16)
	used1 := ctx.UsedMem()
	b := NewTensor1D(ctx, TypeF32, 16)
	used2 := ctx.UsedMem()

	if used2 <= used1 {
		t.Fatalf("expected arena usage to grow, got %d then %d", used1, used2)
	}
	if a == nil || b == nil {
		t.Fatal("expected non-nil tensors")
	}
}

func TestArenaExhaustionPanics(t *testing.T) {
	ctx := NewContext(InitParams{MemSize: 64})
	defer ctx.Free()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on arena exhaustion")
		}
		if _, ok := r.(*ArenaError); !ok {
			t.Fatalf("expected *ArenaError, got %T: %v", r, r)
		}
	}()
	NewTensor1D(ctx, TypeF32, 1<<20)
}

func TestReshapeRequiresContiguous(t *testing.T) {
	ctx := newTestContext(t)
	a := NewTensor2D(ctx, TypeF32, 4, 4)
	view := Permute(ctx, a, 1, 0, 2, 3)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic reshaping a non-contiguous view")
		}
		if _, ok := r.(*ShapeError); !ok {
			t.Fatalf("expected *ShapeError, got %T", r)
		}
	}()
	Reshape1D(ctx, view, 16)
}

func TestViewAliasesPayload(t *testing.T) {
	ctx := newTestContext(t)
	a := NewTensor1D(ctx, TypeF32, 4)
	a.SetF32(1)

	view := View1D(ctx, a, 4, 0)
	view.Float32s()[0] = 42

	if a.Float32s()[0] != 42 {
		t.Fatalf("expected VIEW_1D to alias source payload, got %v", a.Float32s()[0])
	}
}

func TestRepeatIdempotence(t *testing.T) {
	ctx := newTestContext(t)
	a := NewTensor2D(ctx, TypeF32, 3, 2)
	same := Repeat(ctx, a, a)
	if same != a {
		t.Fatal("expected Repeat(a,a) to return the same handle (invariant 7)")
	}
}
