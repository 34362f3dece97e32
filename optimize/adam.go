package optimize

import "github.com/chewxy/math32"

// runAdam implements the Adam update rule with the standard defaults
// (alpha=0.001, beta1=0.9, beta2=0.999, eps=1e-8), maintaining
// per-parameter first/second moment estimates across iterations.
func runAdam(oc *Context, params Params) Result {
	m := make([][]float32, len(oc.Params))
	v := make([][]float32, len(oc.Params))
	for i, p := range oc.Params {
		m[i] = make([]float32, p.NElements())
		v[i] = make([]float32, p.NElements())
	}

	beta1, beta2, eps, alpha := params.AdamBeta1, params.AdamBeta2, params.AdamEps, params.AdamAlpha
	var beta1T, beta2T float32 = 1, 1

	for iter := 0; iter < params.MaxIterations; iter++ {
		step(oc)
		beta1T *= beta1
		beta2T *= beta2

		for i, p := range oc.Params {
			grad := p.Grad.Float32s()
			x := p.Float32s()
			for j := range x {
				g := grad[j]
				m[i][j] = beta1*m[i][j] + (1-beta1)*g
				v[i][j] = beta2*v[i][j] + (1-beta2)*g*g
				mHat := m[i][j] / (1 - beta1T)
				vHat := v[i][j] / (1 - beta2T)
				x[j] -= alpha * mHat / (math32.Sqrt(vHat) + eps)
			}
		}
	}
	return ResultOK
}
