package tengraph

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// object is the bookkeeping header for a single bump-allocated payload.
// Real ggml packs this into the arena buffer itself; here it is tracked as
// ordinary Go struct state, since the garbage collector already guarantees
// an object header cannot outlive the Context it references (every live
// *Tensor transitively roots back to ctx.buf). See DESIGN.md, Open Question
// "Tensor header lifetime".
type object struct {
	offset int64
	size   int64
}

// InitParams configures Context creation, mirroring ggml_init_params.
type InitParams struct {
	// MemSize is the arena size in bytes when MemBuffer is nil.
	MemSize int64
	// MemBuffer, if non-nil, is a caller-owned backing buffer; the Context
	// does not free it and does not grow it.
	MemBuffer []byte
}

// Context is a bump-allocator arena owning every tensor payload created
// against it. Tensors and grad tensors reference a Context by pointer but
// are never individually freed; teardown happens only at Free.
type Context struct {
	ID uuid.UUID

	mu         sync.Mutex
	buf        []byte
	offset     int64
	objects    []object
	ownsBuffer bool

	usedMem int64 // atomic, mirrors offset but readable lock-free

	slot int // index into the global context table, or -1
}

const (
	maxContextSlots = 64
)

var (
	tableSlots [maxContextSlots]atomic.Pointer[Context]

	tablesOnce sync.Once
)

// acquireSlot finds a free slot in the process-wide context table using a
// compare-and-swap retry loop rather than a lock. Returns -1 if the table
// is full.
func acquireSlot(c *Context) int {
	for i := range tableSlots {
		if tableSlots[i].CompareAndSwap(nil, c) {
			return i
		}
	}
	return -1
}

func releaseSlot(slot int) {
	if slot < 0 || slot >= len(tableSlots) {
		return
	}
	tableSlots[slot].Store(nil)
}

// NewContext creates a context, allocating and owning a buffer of
// params.MemSize bytes unless params.MemBuffer is supplied. Returns nil if
// the process-wide context slot table is full.
func NewContext(params InitParams) *Context {
	initTablesOnce()

	c := &Context{ID: uuid.New()}
	if len(params.MemBuffer) > 0 {
		c.buf = params.MemBuffer
		c.ownsBuffer = false
	} else {
		size := params.MemSize
		if size <= 0 {
			size = 16 * 1024 * 1024
		}
		c.buf = make([]byte, size)
		c.ownsBuffer = true
	}

	slot := acquireSlot(c)
	if slot < 0 {
		slog.Warn("tengraph: context table full, refusing new context")
		return nil
	}
	c.slot = slot

	slog.Info("tengraph: context initialized", "id", c.ID, "mem_size", len(c.buf))
	return c
}

func initTablesOnce() {
	tablesOnce.Do(func() {
		initGeluExpTables()
	})
}

// Free releases ctx's slot in the global context table. The backing buffer
// is left for the garbage collector; there is no per-tensor free.
func (c *Context) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot >= 0 {
		releaseSlot(c.slot)
		c.slot = -1
	}
	slog.Info("tengraph: context freed", "id", c.ID, "used_mem", c.usedMem)
}

// UsedMem returns the number of bytes consumed by the arena so far.
func (c *Context) UsedMem() int64 {
	return atomic.LoadInt64(&c.usedMem)
}

// alloc bump-allocates size bytes, aligned to DataAlign, returning the byte
// offset of the payload. Offsets strictly increase and UsedMem never
// decreases during a context's lifetime.
func (c *Context) alloc(size int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	aligned := alignUp(c.offset, DataAlign)
	if aligned+size > int64(len(c.buf)) {
		return 0, &ArenaError{Msg: fmt.Sprintf("requested %d bytes, %d available", size, int64(len(c.buf))-aligned)}
	}

	c.objects = append(c.objects, object{offset: aligned, size: size})
	c.offset = aligned + size
	atomic.StoreInt64(&c.usedMem, c.offset)
	return aligned, nil
}

// mustAlloc is the fatal-assertion counterpart to alloc, used by every
// public tensor constructor: arena exhaustion is a programmer error caught
// at construction time, never at execution time.
func (c *Context) mustAlloc(size int64) int64 {
	off, err := c.alloc(size)
	if err != nil {
		panic(err)
	}
	return off
}

func (c *Context) payload(offset, size int64) []byte {
	return c.buf[offset : offset+size : offset+size]
}

func alignUp(n, align int64) int64 {
	return (n + align - 1) &^ (align - 1)
}
