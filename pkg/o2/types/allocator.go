package types

// Allocator is the pluggable allocation contract: a process may be
// configured, once, before any O2 work begins, to route every allocation
// through user-supplied Alloc/Free functions. Once fixed the choice is
// immutable for the process's lifetime.
type Allocator interface {
	Alloc(size int) []byte
	Free(buf []byte)

	// Stats reports the allocator's current outstanding-allocation count,
	// used by the "no leaks on shutdown" testable property.
	Stats() AllocatorStats
}

// AllocatorStats reports the allocator's bookkeeping counters.
type AllocatorStats struct {
	Allocations uint64
	Frees       uint64
	BytesInUse  int64
}

// Invoker abstracts "spawn a goroutine" so production code and tests can
// swap in different goroutine-lifecycle tracking.
type Invoker interface {
	Spawn(f func())
	Stop()
}
