package tengraph

import (
	"log/slog"
	"runtime"
	"sync/atomic"
)

// threadPool is the fixed-size worker pool: a spin-barrier built only from
// atomics (phase, n_ready, stop), no condition variables or channels.
// Worker 0 is always the calling goroutine itself; the pool only spawns
// goroutines for workers 1..n-1.
//
// phase is a monotonically increasing generation counter rather than a
// toggling bool: a worker parked in Gosched() compares the current phase
// against the last one it ran, so it wakes on any phase it hasn't seen yet
// instead of needing to catch a true->false transition. A bool-based
// handshake can miss that single-edge transition if the worker is
// descheduled across it (run() posting the next node's work before the
// worker resumes), leaving it spinning forever on the wrong edge and
// blocking run() on n_ready; a counter has no edge to miss.
type threadPool struct {
	nthreads int
	phase    atomic.Int64
	stop     atomic.Bool
	nReady   atomic.Int64

	task func(ith, nth int)
}

func newThreadPool(nthreads int) *threadPool {
	if nthreads < 1 {
		nthreads = 1
	}
	tp := &threadPool{nthreads: nthreads}
	for ith := 1; ith < nthreads; ith++ {
		go tp.workerLoop(ith)
	}
	return tp
}

func (tp *threadPool) workerLoop(ith int) {
	var seen int64
	for {
		for tp.phase.Load() == seen {
			if tp.stop.Load() {
				return
			}
			runtime.Gosched()
		}
		seen = tp.phase.Load()
		tp.task(ith, tp.nthreads)
		tp.nReady.Add(1)
	}
}

// run executes task(ith, nthreads) across every worker, including the
// calling goroutine as worker 0, and blocks until all have finished.
func (tp *threadPool) run(task func(ith, nth int)) {
	if tp.nthreads == 1 {
		task(0, 1)
		return
	}
	tp.nReady.Store(0)
	tp.task = task
	tp.phase.Add(1)

	task(0, tp.nthreads)

	for tp.nReady.Load() < int64(tp.nthreads-1) {
		runtime.Gosched()
	}
}

func (tp *threadPool) shutdown() {
	tp.stop.Store(true)
}

// nTasks declares a node's parallelism for the COMPUTE phase: reductions
// and pure-metadata view ops run single-threaded, everything else is split
// across up to nthreads by row (or, for MUL_MAT/FLASH_ATTN, by output
// row/query).
func nTasks(node *Tensor, nthreads int) int {
	switch node.Op {
	case OpSum, OpNone:
		return 1
	case OpReshape, OpView1D, OpView2D, OpPermute, OpTranspose:
		return 1
	case OpMulMat:
		n := node.NRows()
		return int(minI64(int64(nthreads), maxI64(n, 1)))
	case OpConv1D1S, OpConv1D2S:
		return int(minI64(int64(nthreads), maxI64(node.Src0.NE[2], 1)))
	case OpFlashAttn:
		n := node.Src0.NE[1] * node.Src0.NE[2]
		return int(minI64(int64(nthreads), maxI64(n, 1)))
	default:
		n := node.NRows()
		return int(minI64(int64(nthreads), maxI64(n, 1)))
	}
}

// GraphCompute executes every node of g in order through the three-phase
// INIT/COMPUTE/FINALIZE contract, dispatching COMPUTE across
// min(g.NThreads, the node's declared parallelism) workers of a pool of
// g.NThreads. INIT and
// FINALIZE always run with nth==1 on the calling goroutine: multithreading
// is reserved for COMPUTE.
func GraphCompute(ctx *Context, g *Graph) {
	nthreads := g.NThreads
	if nthreads < 1 {
		nthreads = 1
	}
	pool := newThreadPool(nthreads)
	defer pool.shutdown()

	logGraphCompute(g, "begin")
	for _, node := range g.Nodes {
		k := kernels[node.Op]
		if k == nil {
			panic(shapeErrorf(node.Op, "no forward kernel registered"))
		}

		k(ctx, &ComputeParams{Phase: PhaseInit, Ith: 0, Nth: 1}, node)

		nth := nTasks(node, nthreads)
		if nth <= 1 {
			k(ctx, &ComputeParams{Phase: PhaseCompute, Ith: 0, Nth: 1}, node)
		} else {
			// The pool itself stays fixed at nthreads; workers beyond the
			// node's declared parallelism simply have nothing to do this
			// round: nth may be smaller than the pool size.
			pool.run(func(ith, _ int) {
				if ith >= nth {
					return
				}
				k(ctx, &ComputeParams{Phase: PhaseCompute, Ith: ith, Nth: nth}, node)
			})
		}

		k(ctx, &ComputeParams{Phase: PhaseFinalize, Ith: 0, Nth: 1}, node)
	}
	logGraphCompute(g, "end")
	slog.Debug("tengraph: graph compute done", "id", g.ID)
}
