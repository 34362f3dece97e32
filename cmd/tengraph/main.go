// Command tengraph is a small debug front door over the tengraph engine:
// it builds one of a handful of demo graphs, runs it, and prints either a
// per-node summary table (index, op, shape, whether it has a gradient; no
// timings) or a Graphviz DOT dump.
package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/EchoCog/tengraph"
	"github.com/EchoCog/tengraph/optimize"
)

var nThreads int

func main() {
	root := &cobra.Command{
		Use:   "tengraph",
		Short: "Debug CLI for the tengraph tensor engine",
	}
	root.PersistentFlags().IntVar(&nThreads, "threads", 8, "worker thread count")

	root.AddCommand(runCmd())
	root.AddCommand(dotCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <demo>",
		Short: "build and run a demo graph (add|matmul|softmax|mlp|lbfgs-quadratic)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(args[0])
		},
	}
}

func dotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dot <demo> <file>",
		Short: "build a demo graph and write its Graphviz DOT representation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dotDemo(args[0], args[1])
		},
	}
}

func newDemoContext() *tengraph.Context {
	return tengraph.NewContext(tengraph.InitParams{MemSize: 64 * 1024 * 1024})
}

func runDemo(name string) error {
	ctx := newDemoContext()
	defer ctx.Free()

	switch name {
	case "add":
		a := tengraph.NewTensor2D(ctx, tengraph.TypeF32, 3, 2)
		b := tengraph.NewTensor2D(ctx, tengraph.TypeF32, 3, 2)
		a.SetF32(1)
		b.SetF32(2)
		sum := tengraph.Add(ctx, a, b)
		g := tengraph.BuildForward(sum)
		g.NThreads = nThreads
		tengraph.GraphCompute(ctx, g)
		printSummary(g, sum)

	case "matmul":
		a := tengraph.NewTensor2D(ctx, tengraph.TypeF32, 3, 2)
		b := tengraph.NewTensor2D(ctx, tengraph.TypeF32, 3, 4)
		copy(a.Float32s(), []float32{1, 2, 3, 4, 5, 6})
		copy(b.Float32s(), []float32{1, 0, 0, 0, 1, 0, 0, 0, 1, 1, 1, 1})
		result := tengraph.MulMat(ctx, a, b)
		g := tengraph.BuildForward(result)
		g.NThreads = nThreads
		tengraph.GraphCompute(ctx, g)
		printSummary(g, result)

	case "softmax":
		a := tengraph.NewTensor1D(ctx, tengraph.TypeF32, 4)
		copy(a.Float32s(), []float32{1, 2, 3, 4})
		result := tengraph.SoftMax(ctx, a)
		g := tengraph.BuildForward(result)
		g.NThreads = nThreads
		tengraph.GraphCompute(ctx, g)
		printSummary(g, result)

	case "mlp":
		w := tengraph.NewTensor2D(ctx, tengraph.TypeF32, 4, 3)
		w.IsParam = true
		w.SetF32(0.1)
		x := tengraph.NewTensor2D(ctx, tengraph.TypeF32, 4, 2)
		x.SetF32(1)
		h := tengraph.MulMat(ctx, w, x)
		out := tengraph.Gelu(ctx, h)
		g := tengraph.BuildForward(out)
		g.NThreads = nThreads
		tengraph.GraphCompute(ctx, g)
		printSummary(g, out)

	case "lbfgs-quadratic":
		return runLBFGSQuadraticDemo(ctx)

	default:
		return fmt.Errorf("unknown demo %q", name)
	}
	return nil
}

// runLBFGSQuadraticDemo minimizes f(x) = sum((x-3)^2), the textbook convex
// sanity check for a quasi-Newton optimizer.
func runLBFGSQuadraticDemo(ctx *tengraph.Context) error {
	x := tengraph.NewTensor1D(ctx, tengraph.TypeF32, 4)
	x.IsParam = true
	x.SetF32(0)

	target := tengraph.NewF32(ctx, 3.0)
	diff := tengraph.Sub(ctx, x, tengraph.Repeat(ctx, target, x))
	loss := tengraph.Sum(ctx, tengraph.Sqr(ctx, diff))

	gf := tengraph.BuildForward(loss)
	gf.NThreads = nThreads
	gb := tengraph.BuildBackward(ctx, gf, true)
	gb.NThreads = nThreads

	oc := &optimize.Context{Ctx: ctx, Params: []*tengraph.Tensor{x}, F: loss, Gf: gf, Gb: gb}
	result := optimize.Run(oc, optimize.DefaultLBFGSParams())

	fmt.Printf("lbfgs result: %v, final loss: %v, x: %v\n", result, loss.GetF32_1D(0), x.Float32s())
	return nil
}

func dotDemo(name, path string) error {
	ctx := newDemoContext()
	defer ctx.Free()

	var root *tengraph.Tensor
	switch name {
	case "add":
		a := tengraph.NewTensor1D(ctx, tengraph.TypeF32, 4)
		b := tengraph.NewTensor1D(ctx, tengraph.TypeF32, 4)
		root = tengraph.Add(ctx, a, b)
	case "mlp":
		w := tengraph.NewTensor2D(ctx, tengraph.TypeF32, 4, 3)
		x := tengraph.NewTensor2D(ctx, tengraph.TypeF32, 4, 2)
		root = tengraph.Gelu(ctx, tengraph.MulMat(ctx, w, x))
	default:
		return fmt.Errorf("unknown demo %q", name)
	}

	g := tengraph.BuildForward(root)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return tengraph.GraphDumpDot(f, nil, g)
}

func printSummary(g *tengraph.Graph, result *tengraph.Tensor) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"node", "op", "shape", "has grad"})
	for i, n := range g.Nodes {
		table.Append([]string{
			fmt.Sprintf("%d", i),
			n.Op.String(),
			fmt.Sprintf("%v", n.NE),
			fmt.Sprintf("%v", n.Grad != nil),
		})
	}
	table.Render()

	if result.Type == tengraph.TypeF32 {
		fmt.Printf("result: %v\n", result.Float32s())
	}
}
