// Package alloc provides the pool allocator used for task coroutine frames,
// plus the type-erased Allocator handle that lets callers plug in a custom
// allocation strategy.
package alloc

import "errors"

// ErrOutOfMemory is the error an Allocator implementation reports when its
// backing store is exhausted. SystemAllocator and PoolAllocator never
// return it: a failed Go heap allocation is a fatal runtime error, so their
// Allocate methods always return a nil error.
var ErrOutOfMemory = errors.New("alloc: system allocator failed")

// Allocator is the type-erased allocator handle a task receives through
// task.Spawn. It mirrors the spec's "context + allocate/deallocate
// function pointers" shape as a plain interface, which is the idiomatic Go
// equivalent of a type-erased function-pointer pair.
type Allocator interface {
	// Allocate returns a byte slice of at least size bytes, owned by the
	// calling logical thread (threadID). The returned slice must later be
	// passed to Deallocate with the same backing array (not a copy).
	Allocate(threadID uint64, size int) ([]byte, error)

	// Deallocate returns block to its owner pool. threadID is the caller's
	// own logical thread id; it need not match the block's owner (that is
	// exactly the cross-thread "remote free" case the spec requires
	// support for). Deallocating a nil or empty block is a no-op.
	Deallocate(threadID uint64, block []byte)
}

// SystemAllocator is the fallback allocator used before Initialize runs, or
// when a caller builds a Task without an installed Runtime. It defers
// entirely to the Go heap and garbage collector.
type SystemAllocator struct{}

// Allocate returns a freshly made slice; it never fails (an OOM here
// surfaces as a Go runtime fatal error, same as malloc would).
func (SystemAllocator) Allocate(_ uint64, size int) ([]byte, error) {
	return make([]byte, size), nil
}

// Deallocate is a no-op; the Go garbage collector reclaims the slice.
func (SystemAllocator) Deallocate(_ uint64, _ []byte) {}

var _ Allocator = SystemAllocator{}
