package optimize

import "github.com/EchoCog/tengraph/vecops"

// history is one L-BFGS correction pair.
type history struct {
	s, y []float32
	rho  float32
}

func paramVectorLen(oc *Context) int {
	n := 0
	for _, p := range oc.Params {
		n += int(p.NElements())
	}
	return n
}

func gatherGrad(oc *Context, dst []float32) {
	off := 0
	for _, p := range oc.Params {
		g := p.Grad.Float32s()
		copy(dst[off:], g)
		off += len(g)
	}
}

func gatherParams(oc *Context, dst []float32) {
	off := 0
	for _, p := range oc.Params {
		x := p.Float32s()
		copy(dst[off:], x)
		off += len(x)
	}
}

func scatterParams(oc *Context, src []float32) {
	off := 0
	for _, p := range oc.Params {
		x := p.Float32s()
		copy(x, src[off:off+len(x)])
		off += len(x)
	}
}

func addScaled(dst, src []float32, alpha float32) {
	for i := range dst {
		dst[i] += alpha * src[i]
	}
}

func dot(a, b []float32) float32 { return vecops.Dot(a, b) }

// runLBFGS implements two-loop-recursion L-BFGS: a limited history of m
// correction pairs, Wolfe-condition backtracking line search, and a
// result-code taxonomy for search failures.
func runLBFGS(oc *Context, params Params) Result {
	if params.LBFGSWolfeC1 <= 0 || params.LBFGSWolfeC2 <= params.LBFGSWolfeC1 || params.LBFGSWolfeC2 >= 1 {
		return ResultInvalidWolfe
	}

	n := paramVectorLen(oc)
	x := make([]float32, n)
	grad := make([]float32, n)
	prevX := make([]float32, n)
	prevGrad := make([]float32, n)

	fx := step(oc)
	gatherParams(oc, x)
	gatherGrad(oc, grad)

	hist := make([]history, 0, params.LBFGSM)

	for iter := 0; iter < params.MaxIterations; iter++ {
		if vecops.Norm2(grad) < 1e-5 {
			return ResultOK
		}

		// Two-loop recursion for the descent direction.
		q := append([]float32(nil), grad...)
		alphas := make([]float32, len(hist))
		for i := len(hist) - 1; i >= 0; i-- {
			alphas[i] = hist[i].rho * dot(hist[i].s, q)
			addScaled(q, hist[i].y, -alphas[i])
		}
		gamma := float32(1.0)
		if len(hist) > 0 {
			last := hist[len(hist)-1]
			gamma = dot(last.s, last.y) / dot(last.y, last.y)
		}
		dir := make([]float32, n)
		for i := range dir {
			dir[i] = gamma * q[i]
		}
		for i := 0; i < len(hist); i++ {
			beta := hist[i].rho * dot(hist[i].y, dir)
			addScaled(dir, hist[i].s, alphas[i]-beta)
		}
		for i := range dir {
			dir[i] = -dir[i]
		}

		copy(prevX, x)
		copy(prevGrad, grad)
		fPrev := fx

		step0 := float32(1.0)
		lsOK := false
		for ls := 0; ls < params.LBFGSMaxLineSearch; ls++ {
			for i := range x {
				x[i] = prevX[i] + step0*dir[i]
			}
			scatterParams(oc, x)
			fx = step(oc)
			gatherGrad(oc, grad)

			armijo := fx <= fPrev+params.LBFGSWolfeC1*step0*dot(prevGrad, dir)
			curvature := dot(grad, dir) >= params.LBFGSWolfeC2*dot(prevGrad, dir)
			if armijo && curvature {
				lsOK = true
				break
			}
			step0 *= 0.5
			if step0 < 1e-20 {
				return ResultLineSearchMinimumStep
			}
		}
		if !lsOK {
			return ResultLineSearchMaximumIterations
		}

		s := make([]float32, n)
		y := make([]float32, n)
		for i := range s {
			s[i] = x[i] - prevX[i]
			y[i] = grad[i] - prevGrad[i]
		}
		sy := dot(s, y)
		if sy > 1e-10 {
			if len(hist) == params.LBFGSM {
				hist = hist[1:]
			}
			hist = append(hist, history{s: s, y: y, rho: 1.0 / sy})
		}
	}
	return ResultDidNotConverge
}
