package tengraph

// kernelConv1D implements 1D convolution by computing each output element
// directly from the input; no im2col buffer is built in the work area, and
// each thread handles a range of output channels. The kernel
// tensor a is [nk, inChannels, outChannels], the input b is
// [inLen, inChannels], padded symmetrically by (nk-1)/2 so the "same"
// stride-1 case preserves length.
func kernelConv1D(stride int64) kernelFunc {
	return func(ctx *Context, p *ComputeParams, node *Tensor) {
		if p.Phase != PhaseCompute {
			return
		}
		a, b := node.Src0, node.Src1
		nk := a.NE[0]
		inChannels := a.NE[1]
		outChannels := a.NE[2]
		inLen := b.NE[0]
		nh := (nk - 1) / 2
		outLen := node.NE[0]

		start, end := rowRange(outChannels, p.Ith, p.Nth)
		for oc := start; oc < end; oc++ {
			for t := int64(0); t < outLen; t++ {
				var acc float32
				base := t*stride - nh
				for kk := int64(0); kk < nk; kk++ {
					pos := base + kk
					if pos < 0 || pos >= inLen {
						continue
					}
					for ic := int64(0); ic < inChannels; ic++ {
						w := getF32(a, elemOffset(a, kk, ic, oc, 0))
						x := getF32(b, elemOffset(b, pos, ic, 0, 0))
						acc += w * x
					}
				}
				setF32(node, elemOffset(node, t, oc, 0, 0), acc)
			}
		}
	}
}
