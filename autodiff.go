package tengraph

import "fmt"

// BackwardUnsupportedError reports an attempt to differentiate through an
// operator with no backward rule. This is a deliberate fatal assertion, not
// a silent no-op: surfaced as a panic carrying this typed error so tests
// can assert on it with recover+errors.As.
type BackwardUnsupportedError struct {
	Op Op
}

func (e *BackwardUnsupportedError) Error() string {
	return fmt.Sprintf("tengraph: no backward rule for %v", e.Op)
}

// accumulate adds contribution into t.Grad, creating it if this is the
// first contribution to reach t. Sources are visited in reverse
// topological order so every contribution to a node has already landed by
// the time that node's own backward rule runs.
func accumulate(ctx *Context, t *Tensor, contribution *Tensor) {
	if t == nil || contribution == nil {
		return
	}
	if t.Grad == nil {
		t.Grad = contribution
	} else {
		t.Grad = Add(ctx, t.Grad, contribution)
	}
}

// constLike returns a tensor shaped like `like`, filled with constant v,
// built from the existing operator catalogue (a scalar F32 constant
// broadcast via REPEAT) rather than a hidden kernel.
func constLike(ctx *Context, like *Tensor, v float32) *Tensor {
	c := NewF32(ctx, v)
	if like.NElements() == 1 {
		return c
	}
	return Repeat(ctx, c, like)
}

// backward emits the gradient contributions of node into node.Src0.Grad /
// node.Src1.Grad (and so on), given node.Grad already holds the complete
// accumulated upstream gradient. Implements a fixed whitelist of
// differentiable operators; anything else panics.
func backward(ctx *Context, node *Tensor) {
	grad := node.Grad
	a, b := node.Src0, node.Src1

	switch node.Op {
	case OpDup:
		accumulate(ctx, a, grad)

	case OpAdd:
		accumulate(ctx, a, grad)
		accumulate(ctx, b, grad)

	case OpSub:
		accumulate(ctx, a, grad)
		accumulate(ctx, b, Neg(ctx, grad))

	case OpMul:
		accumulate(ctx, a, Mul(ctx, b, grad))
		accumulate(ctx, b, Mul(ctx, a, grad))

	case OpDiv:
		accumulate(ctx, a, Div(ctx, grad, b))
		// d/db (a/b) = -a/b^2
		num := Mul(ctx, a, grad)
		den := Mul(ctx, b, b)
		accumulate(ctx, b, Neg(ctx, Div(ctx, num, den)))

	case OpSqr:
		// d/dx x^2 = 2x
		accumulate(ctx, a, Mul(ctx, Mul(ctx, a, grad), constLike(ctx, a, 2.0)))

	case OpSqrt:
		// d/dx sqrt(x) = 1/(2*sqrt(x)); node == sqrt(x)
		accumulate(ctx, a, Div(ctx, grad, Mul(ctx, node, constLike(ctx, node, 2.0))))

	case OpSum:
		accumulate(ctx, a, Repeat(ctx, grad, a))

	case OpRepeat:
		// Only the common scalar-source case (broadcasting a bias) has a
		// backward rule here: reduce via SUM, the only reduction in the
		// operator catalogue. General axis-wise repeat-sum would need a
		// reduction op the catalogue does not name.
		if a.NElements() != 1 {
			panic(&BackwardUnsupportedError{Op: OpRepeat})
		}
		accumulate(ctx, a, Sum(ctx, grad))

	case OpAbs:
		accumulate(ctx, a, Mul(ctx, Sgn(ctx, a), grad))

	case OpSgn:
		// sgn'(x) == 0 almost everywhere: no contribution.

	case OpNeg:
		accumulate(ctx, a, Neg(ctx, grad))

	case OpStep:
		// step'(x) == 0 almost everywhere: no contribution.

	case OpRelu:
		accumulate(ctx, a, Mul(ctx, Step(ctx, a), grad))

	default:
		panic(&BackwardUnsupportedError{Op: node.Op})
	}
}

// BuildBackward returns a new graph computing the gradient of every
// parameter reachable from gf: walk gf.Nodes in reverse, applying per-op
// backward rules, then topologically compile the resulting parameter
// gradients into a new graph. That graph holds the gradient nodes and the
// forward nodes they read; it is not a copy of gf, and gf's node lists are
// left unchanged. If keep is true, every parameter's existing gradient tensor is
// replaced with a fresh zeroed one first, so a caller can still reuse gf
// for another forward pass without the two graphs' gradients aliasing.
func BuildBackward(ctx *Context, gf *Graph, keep bool) *Graph {
	if keep {
		for _, leaf := range gf.Leafs {
			if leaf.IsParam {
				leaf.Grad = DupTensor(ctx, leaf)
				leaf.Grad.SetZero()
			}
		}
	}

	for i := len(gf.Nodes) - 1; i >= 0; i-- {
		node := gf.Nodes[i]
		if node.Grad == nil {
			continue
		}
		backward(ctx, node)
	}

	gb := NewGraph()
	for _, leaf := range gf.Leafs {
		if leaf.IsParam && leaf.Grad != nil {
			BuildForwardExpand(gb, leaf.Grad)
		}
	}
	return gb
}
