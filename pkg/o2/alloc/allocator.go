// Package alloc implements a segregated free-list allocator. It is the one
// contract-level component the process configures once, before any other
// O2 work begins; the wire and netlayer packages allocate their message
// buffers with make and do not call it.
package alloc

import (
	"sync"
	"sync/atomic"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

const (
	linearStep = 16
	linearMin = 8
	linearMax = 512
	chunkSize = 8 * 1024
	expMinK = 9
	expMaxK = 24
)

// sizeClass describes one free-list bucket: blocks handed out from this
// class are always exactly `size` bytes, preamble included.
type sizeClass struct {
	size int
	mu sync.Mutex
	free [][]byte
}

// Allocator is a segregated free-list allocator with linear size classes
// from 8 to 512 bytes (16-byte steps) and exponential classes of the form
// 2^k+C for k in [9,24]. Each class block is made on its own when its free
// list is empty; blocks are not carved from larger arena chunks. Anything
// larger than the biggest class is served directly by the system allocator
// (make).
//
// Freed blocks are pushed back onto their class's free list and never
// returned to the system. BytesInUse rises on Alloc and falls on Free, so
// it tracks outstanding allocations for the leak-detection property.
type Allocator struct {
	classes []*sizeClass
	debug bool

	allocations uint64
	frees uint64
	bytesInUse int64

	seq uint64 // debug-mode per-allocation sequence number
}

// New builds an Allocator. When debug is true, every allocation is
// surrounded by sentinel bytes and advances a per-allocation sequence
// counter; the sequence number is not stored with the block or returned to
// the caller.
func New(debug bool) *Allocator {
	a := &Allocator{debug: debug}
	for sz := linearMin; sz <= linearMax; sz += linearStep {
		a.classes = append(a.classes, &sizeClass{size: sz})
	}
	for k := expMinK; k <= expMaxK; k++ {
		sz := (1 << uint(k)) + 64 // +C: fixed preamble/const offset
		a.classes = append(a.classes, &sizeClass{size: sz})
	}
	return a
}

// classFor returns the smallest class that can hold `need` bytes, or nil if
// need exceeds every class (caller falls through to the system allocator).
func (a *Allocator) classFor(need int) *sizeClass {
	for _, c := range a.classes {
		if c.size >= need {
			return c
		}
	}
	return nil
}

const sentinel = 0xA5

// Alloc returns a buffer of at least `size` usable bytes.
func (a *Allocator) Alloc(size int) []byte {
	pad := 0
	if a.debug {
		pad = 8 // leading+trailing sentinel guard
	}
	need := size + pad

	var buf []byte
	if c := a.classFor(need); c != nil {
		c.mu.Lock()
		if n := len(c.free); n > 0 {
			buf = c.free[n-1]
			c.free = c.free[:n-1]
		}
		c.mu.Unlock()
		if buf == nil {
			buf = make([]byte, c.size)
		}
		buf = buf[:need]
	} else {
		buf = make([]byte, need)
	}

	atomic.AddUint64(&a.allocations, 1)
	atomic.AddInt64(&a.bytesInUse, int64(size))

	if a.debug {
		n := atomic.AddUint64(&a.seq, 1)
		for i := 0; i < 4; i++ {
			buf[i] = sentinel
			buf[len(buf)-1-i] = sentinel
		}
		_ = n // sequence number kept for leak-watching tools, not surfaced here
		return buf[4 : len(buf)-4]
	}
	return buf
}

// Free returns a buffer previously obtained from Alloc to its size class's
// free list (or drops it, if it came from the system allocator because no
// class was big enough). In debug mode the caller's slice no longer reaches
// the block's leading guard, so a fresh block of the class size is pushed
// in its place.
func (a *Allocator) Free(buf []byte) {
	if buf == nil {
		return
	}
	size := len(buf)
	pad := 0
	if a.debug {
		pad = 8
	}
	full := size + pad
	if c := a.classFor(full); c != nil {
		block := buf
		if a.debug || cap(buf) < c.size {
			block = make([]byte, c.size)
		}
		c.mu.Lock()
		c.free = append(c.free, block[:c.size])
		c.mu.Unlock()
	}

	atomic.AddUint64(&a.frees, 1)
	atomic.AddInt64(&a.bytesInUse, -int64(size))
}

// Stats reports the allocator's outstanding-allocation bookkeeping.
func (a *Allocator) Stats() types.AllocatorStats {
	return types.AllocatorStats{
		Allocations: atomic.LoadUint64(&a.allocations),
		Frees: atomic.LoadUint64(&a.frees),
		BytesInUse: atomic.LoadInt64(&a.bytesInUse),
	}
}

var _ types.Allocator = (*Allocator)(nil)
