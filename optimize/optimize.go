// Package optimize implements the Adam and L-BFGS parameter optimizers,
// driving a tengraph forward/backward graph to a local minimum of its
// scalar output.
package optimize

import "github.com/EchoCog/tengraph"

// Result is the outcome of a Run call.
type Result int

const (
	ResultOK Result = iota
	ResultDidNotConverge
	ResultNoContext
	ResultInvalidWolfe
	ResultLineSearchFailed
	ResultLineSearchInvalidStep
	ResultLineSearchMaximumIterations
	ResultLineSearchMaximumStep
	ResultLineSearchMinimumStep
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultDidNotConverge:
		return "DID_NOT_CONVERGE"
	case ResultNoContext:
		return "NO_CONTEXT"
	case ResultInvalidWolfe:
		return "INVALID_WOLFE"
	case ResultLineSearchFailed:
		return "LINESEARCH_FAILED"
	case ResultLineSearchInvalidStep:
		return "LINESEARCH_INVALID_STEP"
	case ResultLineSearchMaximumIterations:
		return "LINESEARCH_MAXIMUM_ITERATIONS"
	case ResultLineSearchMaximumStep:
		return "LINESEARCH_MAXIMUM_STEP"
	case ResultLineSearchMinimumStep:
		return "LINESEARCH_MINIMUM_STEP"
	default:
		return "UNKNOWN"
	}
}

// Type selects which optimizer Run drives.
type Type int

const (
	Adam Type = iota
	LBFGS
)

// Params bundles the shared and per-optimizer knobs.
type Params struct {
	Type Type

	MaxIterations int

	// Adam
	AdamAlpha float32
	AdamBeta1 float32
	AdamBeta2 float32
	AdamEps   float32

	// L-BFGS
	LBFGSM             int
	LBFGSWolfeC1       float32
	LBFGSWolfeC2       float32
	LBFGSMaxLineSearch int
}

// DefaultAdamParams returns the standard Adam hyperparameters.
func DefaultAdamParams() Params {
	return Params{
		Type:          Adam,
		MaxIterations: 100,
		AdamAlpha:     0.001,
		AdamBeta1:     0.9,
		AdamBeta2:     0.999,
		AdamEps:       1e-8,
	}
}

// DefaultLBFGSParams returns the standard L-BFGS hyperparameters.
func DefaultLBFGSParams() Params {
	return Params{
		Type:               LBFGS,
		MaxIterations:      100,
		LBFGSM:             6,
		LBFGSWolfeC1:       1e-4,
		LBFGSWolfeC2:       0.9,
		LBFGSMaxLineSearch: 20,
	}
}

// Context bundles the graphs and arena Run needs to re-evaluate the
// objective: Gf is the forward graph of F (the scalar loss node), recomputed
// on every evaluation, and Gb its already-constructed backward companion
// (see tengraph.BuildBackward).
type Context struct {
	Ctx    *tengraph.Context
	Params []*tengraph.Tensor // the IsParam leaves being optimized
	F      *tengraph.Tensor   // scalar loss node
	Gf     *tengraph.Graph
	Gb     *tengraph.Graph
}

// Run drives params.Type to MaxIterations or convergence, re-running the
// forward+backward graph once per step: reset gradients, recompute
// forward, recompute backward.
func Run(oc *Context, params Params) Result {
	if oc == nil || oc.Ctx == nil {
		return ResultNoContext
	}
	switch params.Type {
	case Adam:
		return runAdam(oc, params)
	case LBFGS:
		return runLBFGS(oc, params)
	default:
		return ResultInvalidWolfe
	}
}

func step(oc *Context) float32 {
	tengraph.GraphReset(oc.Gf)
	tengraph.GraphCompute(oc.Ctx, oc.Gf)
	oc.F.Grad.SetF32(1.0)
	tengraph.GraphCompute(oc.Ctx, oc.Gb)
	return oc.F.GetF32_1D(0)
}
