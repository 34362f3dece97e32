package optimize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EchoCog/tengraph"
)

func TestLBFGSQuadraticConverges(t *testing.T) {
	ctx := tengraph.NewContext(tengraph.InitParams{MemSize: 1 << 20})
	require.NotNil(t, ctx)
	defer ctx.Free()

	x := tengraph.NewTensor1D(ctx, tengraph.TypeF32, 2)
	x.IsParam = true
	x.SetF32(0)

	target := tengraph.NewF32(ctx, 3.0)
	diff := tengraph.Sub(ctx, x, tengraph.Repeat(ctx, target, x))
	loss := tengraph.Sum(ctx, tengraph.Sqr(ctx, diff))

	gf := tengraph.BuildForward(loss)
	gb := tengraph.BuildBackward(ctx, gf, true)

	oc := &Context{Ctx: ctx, Params: []*tengraph.Tensor{x}, F: loss, Gf: gf, Gb: gb}
	result := Run(oc, DefaultLBFGSParams())

	require.Equal(t, ResultOK, result)
	for i, v := range x.Float32s() {
		require.InDeltaf(t, 3.0, v, 0.01, "param %d did not converge", i)
	}
}

func TestAdamDecreasesLoss(t *testing.T) {
	ctx := tengraph.NewContext(tengraph.InitParams{MemSize: 1 << 20})
	require.NotNil(t, ctx)
	defer ctx.Free()

	x := tengraph.NewTensor1D(ctx, tengraph.TypeF32, 2)
	x.IsParam = true
	x.SetF32(0)

	target := tengraph.NewF32(ctx, 1.0)
	diff := tengraph.Sub(ctx, x, tengraph.Repeat(ctx, target, x))
	loss := tengraph.Sum(ctx, tengraph.Sqr(ctx, diff))

	gf := tengraph.BuildForward(loss)
	gb := tengraph.BuildBackward(ctx, gf, true)

	tengraph.GraphCompute(ctx, gf)
	initialLoss := loss.GetF32_1D(0)

	oc := &Context{Ctx: ctx, Params: []*tengraph.Tensor{x}, F: loss, Gf: gf, Gb: gb}
	params := DefaultAdamParams()
	params.MaxIterations = 500
	result := Run(oc, params)
	require.Equal(t, ResultOK, result)

	tengraph.GraphCompute(ctx, gf)
	finalLoss := loss.GetF32_1D(0)
	require.Less(t, finalLoss, initialLoss)
}
