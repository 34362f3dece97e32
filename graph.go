package tengraph

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// MaxNodes mirrors ggml's GGML_MAX_NODES. Graphs are not capped at it:
// Nodes grows as needed.
const MaxNodes = 4096

// Graph (cgraph) is an executable ordering over a tensor DAG: internal
// nodes in topological order, the non-computed leaves (constants and
// parameters) that feed them, and the gradient handles of every node and
// parameter leaf in visit order. Grads is therefore not index-aligned with
// Nodes when the graph has parameter leaves.
type Graph struct {
	ID uuid.UUID

	Nodes []*Tensor
	Grads []*Tensor
	Leafs []*Tensor

	Work *Tensor // scratch I8 tensor sized by the scheduler; optional

	NThreads int

	PerfRuns   int64
	PerfCycles int64
	PerfTimeUs int64

	visited map[*Tensor]bool
}

// NewGraph creates an empty graph with the default thread count: a fixed
// pool of N OS threads, 8 if unspecified.
func NewGraph() *Graph {
	return &Graph{ID: uuid.New(), NThreads: 8, visited: make(map[*Tensor]bool)}
}

// BuildForward constructs a fresh graph by a depth-first visit of root,
// recording nodes in reverse-post-order so a node's sources always appear
// earlier in Nodes.
func BuildForward(root *Tensor) *Graph {
	g := NewGraph()
	BuildForwardExpand(g, root)
	return g
}

// BuildForwardExpand appends root (and any of its unvisited ancestors) to
// an existing graph, without disturbing already-visited nodes.
func BuildForwardExpand(g *Graph, root *Tensor) {
	if g.visited == nil {
		g.visited = make(map[*Tensor]bool)
		for _, n := range g.Nodes {
			g.visited[n] = true
		}
		for _, l := range g.Leafs {
			g.visited[l] = true
		}
	}
	visitDFS(g, root)
}

func visitDFS(g *Graph, t *Tensor) {
	if t == nil || g.visited[t] {
		return
	}
	g.visited[t] = true

	visitDFS(g, t.Src0)
	visitDFS(g, t.Src1)
	for _, o := range t.Opt {
		visitDFS(g, o)
	}

	if t.Op == OpNone && !t.IsParam {
		g.Leafs = append(g.Leafs, t)
		return
	}
	if t.Op == OpNone && t.IsParam {
		// Parameters are leaves of computation but still carry a grad slot.
		g.Leafs = append(g.Leafs, t)
		g.Grads = append(g.Grads, t.Grad)
		return
	}

	g.Nodes = append(g.Nodes, t)
	g.Grads = append(g.Grads, t.Grad)
}

// GraphReset zeros every gradient tensor recorded in g.Grads (the Grad
// handles as they were when each tensor was added to g), the reset every
// optimizer iteration performs before a forward/backward pass.
func GraphReset(g *Graph) {
	for _, gr := range g.Grads {
		if gr != nil {
			gr.SetZero()
		}
	}
}

// GraphPrint writes a short human-readable summary to w for debugging.
func GraphPrint(w io.Writer, g *Graph) {
	fmt.Fprintf(w, "graph %s: %d nodes, %d leafs, %d threads\n", g.ID, len(g.Nodes), len(g.Leafs), g.NThreads)
	for i, n := range g.Nodes {
		fmt.Fprintf(w, "  node %3d: %-14s ne=%v grad=%v\n", i, n.Op, n.NE, n.Grad != nil)
	}
}

// GraphDumpDot renders a Graphviz-compatible DOT file for the forward graph
// gf, optionally annotated with a companion backward graph gb (pass nil to
// omit).
func GraphDumpDot(w io.Writer, gb, gf *Graph) error {
	fmt.Fprintln(w, "digraph tengraph {")
	fmt.Fprintln(w, "  rankdir=LR;")
	names := make(map[*Tensor]string)
	id := 0
	nameOf := func(t *Tensor) string {
		if n, ok := names[t]; ok {
			return n
		}
		n := fmt.Sprintf("t%d", id)
		id++
		names[t] = n
		return n
	}

	emit := func(g *Graph, style string) {
		if g == nil {
			return
		}
		for _, l := range g.Leafs {
			fmt.Fprintf(w, "  %s [label=\"%v\\n%v\" shape=box style=%s];\n", nameOf(l), l.NE, l.Type, style)
		}
		for _, n := range g.Nodes {
			fmt.Fprintf(w, "  %s [label=\"%v\\n%v\"];\n", nameOf(n), n.Op, n.NE)
			if n.Src0 != nil {
				fmt.Fprintf(w, "  %s -> %s;\n", nameOf(n.Src0), nameOf(n))
			}
			if n.Src1 != nil {
				fmt.Fprintf(w, "  %s -> %s;\n", nameOf(n.Src1), nameOf(n))
			}
			for _, o := range n.Opt {
				if o != nil {
					fmt.Fprintf(w, "  %s -> %s;\n", nameOf(o), nameOf(n))
				}
			}
		}
	}

	emit(gf, "filled")
	emit(gb, "dashed")
	fmt.Fprintln(w, "}")
	return nil
}

func logGraphCompute(g *Graph, phase string) {
	slog.Debug("tengraph: graph compute", "id", g.ID, "phase", phase, "nodes", len(g.Nodes), "threads", g.NThreads)
}
