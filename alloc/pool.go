package alloc

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// sizeClasses is the size ladder every ThreadLocalPool buckets blocks into.
// Grounded on the Go runtime's own size-class table (src/runtime/mheap.go /
// msize*.go in daihainidewo-go-comment) collapsed to the handful of classes
// TaskKit's coroutine frames actually need.
var sizeClasses = [...]int{48, 64, 128, 256, 512, 1024, 2048, 4096, 8192}

// oversizeClass is the pool_index sentinel meaning "allocated directly from
// the system allocator, not from any bucket."
const oversizeClass = int32(-1)

// slabBlockCount is the number of blocks threaded onto a pool's free list by
// a single slab allocation.
const slabBlockCount = 32

// blockMeta is the fixed-size prefix written immediately before every user
// pointer handed out by the allocator. It is max-aligned so that any type a
// coroutine frame might hold can be placed right after it without further
// padding — mirroring the original C++ allocator's `alignas(std::max_align_t)
// BlockMeta` prefix.
type blockMeta struct {
	owner         *ThreadLocalPool
	ownerThreadID uint64
	poolIndex     int32
}

// maxAlign is the alignment the original allocator reserves its BlockMeta
// prefix to, matching std::max_align_t on common 64-bit targets.
const maxAlign = 16

// metaSize is blockMeta's footprint, rounded up to maxAlign. This is the
// Go analogue of the spec's AlignedMetaSize: the offset from the start of a
// raw allocation to the user-visible pointer.
var metaSize = alignUp(unsafe.Sizeof(blockMeta{}), maxAlign)

func alignUp(n uintptr, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// freeNode is a free-list link. Unlike the original C++ allocator, which
// overlays FreeNode/RemoteFreeNode directly on top of a freed block's bytes
// to avoid any extra allocation, TaskKit-Go keeps free-list bookkeeping in
// ordinary heap objects pooled via sync.Pool: reinterpreting live,
// GC-visible memory as a different struct type across a dealloc/realloc
// boundary is the kind of aliasing the Go memory model and race detector
// do not sanction, and the extra node allocation is amortized by the pool.
// The block's own memory is left untouched while free, which also means a
// use-after-free of a just-freed block is easier to catch in -race builds.
type freeNode struct {
	next *freeNode
	raw  unsafe.Pointer
}

var freeNodePool = sync.Pool{New: func() any { return new(freeNode) }}

func getFreeNode() *freeNode {
	return freeNodePool.Get().(*freeNode)
}

func putFreeNode(n *freeNode) {
	n.next = nil
	n.raw = nil
	freeNodePool.Put(n)
}

// remoteFreeNode is pushed by a non-owner thread deallocating a block. It is
// collected by the owner on its next allocation for the same bucket.
type remoteFreeNode struct {
	next      *remoteFreeNode
	raw       unsafe.Pointer
	poolIndex int32
}

// poolState is the per-size-class state of a ThreadLocalPool.
type poolState struct {
	free  *freeNode
	slabs *slabHeader // slabs backing this class, for diagnostics/teardown
}

// slabHeader links every slab a ThreadLocalPool has allocated, purely so
// PoolAllocator can report how many slabs backed a class and so a future
// teardown could release them explicitly (today: left to the GC).
type slabHeader struct {
	next      *slabHeader
	buf       []byte // keeps the backing array alive
	poolIndex int32
}

// ThreadLocalPool is one logical thread's view of a PoolAllocator: one
// poolState per size class, plus a lock-free stack collecting blocks freed
// by other threads.
type ThreadLocalPool struct {
	threadID       uint64
	classes        [len(sizeClasses)]poolState
	remoteFreeHead atomic.Pointer[remoteFreeNode]
	slabCount      atomic.Int64
}

// PoolAllocator is a thread-local segregated-size-class allocator with
// cross-thread ("remote") free lists, as specified in §4.1.
type PoolAllocator struct {
	id      uint64
	mu      sync.Mutex
	threads map[uint64]*ThreadLocalPool
}

var poolAllocatorIDs atomic.Uint64

// NewPoolAllocator creates a new, independent PoolAllocator instance.
// Multiple instances may coexist; each owns disjoint ThreadLocalPools.
func NewPoolAllocator() *PoolAllocator {
	return &PoolAllocator{
		id:      poolAllocatorIDs.Add(1),
		threads: make(map[uint64]*ThreadLocalPool),
	}
}

// ID returns the allocator's process-unique identity.
func (a *PoolAllocator) ID() uint64 { return a.id }

// poolFor lazily creates the ThreadLocalPool for threadID.
func (a *PoolAllocator) poolFor(threadID uint64) *ThreadLocalPool {
	a.mu.Lock()
	defer a.mu.Unlock()
	tlp, ok := a.threads[threadID]
	if !ok {
		tlp = &ThreadLocalPool{threadID: threadID}
		a.threads[threadID] = tlp
	}
	return tlp
}

// classFor returns the smallest size-class index whose bucket size is >=
// size, or oversizeClass if size exceeds the largest bucket.
func classFor(size int) (int32, int) {
	for i, bucket := range sizeClasses {
		if size <= bucket {
			return int32(i), bucket
		}
	}
	return oversizeClass, size
}

// Allocate returns a pointer-stable block usable for size bytes, per §4.1.
// The error result is always nil: a failed Go heap allocation is a fatal
// runtime error rather than a returned one.
func (a *PoolAllocator) Allocate(threadID uint64, size int) ([]byte, error) {
	idx, bucket := classFor(size)
	if idx == oversizeClass {
		return a.allocateOversize(threadID, size)
	}

	tlp := a.poolFor(threadID)
	ps := &tlp.classes[idx]

	if ps.free == nil {
		a.collectRemote(tlp, idx)
	}
	if ps.free == nil {
		a.growSlab(tlp, idx, bucket)
	}

	n := ps.free
	ps.free = n.next
	raw := n.raw
	putFreeNode(n)

	meta := (*blockMeta)(raw)
	*meta = blockMeta{owner: tlp, ownerThreadID: threadID, poolIndex: idx}
	return userBytes(raw, bucket), nil
}

// allocateOversize services a request larger than the biggest bucket
// directly from the system allocator, with the same meta prefix.
func (a *PoolAllocator) allocateOversize(threadID uint64, size int) ([]byte, error) {
	tlp := a.poolFor(threadID)
	raw := make([]byte, int(metaSize)+size)
	ptr := unsafe.Pointer(&raw[0])
	meta := (*blockMeta)(ptr)
	*meta = blockMeta{owner: tlp, ownerThreadID: threadID, poolIndex: oversizeClass}
	return raw[metaSize:], nil
}

// growSlab allocates one slab of slabBlockCount blocks for class idx,
// threading blocks 1..N-1 onto the free list and handing block 0 back via
// the free list too (the caller pops immediately after).
func (a *PoolAllocator) growSlab(tlp *ThreadLocalPool, idx int32, bucket int) {
	blockSize := int(metaSize) + bucket
	buf := make([]byte, slabBlockCount*blockSize)

	hdr := &slabHeader{buf: buf, poolIndex: idx}
	ps := &tlp.classes[idx]
	hdr.next = ps.slabs
	ps.slabs = hdr
	tlp.slabCount.Add(1)

	base := unsafe.Pointer(&buf[0])
	for i := slabBlockCount - 1; i >= 0; i-- {
		raw := unsafe.Add(base, i*blockSize)
		n := getFreeNode()
		n.raw = raw
		n.next = ps.free
		ps.free = n
	}
}

// collectRemote drains tlp's remote-free stack into the owning class's
// local free list. Oversize remote frees never reach this stack (they are
// delegated straight to the system allocator by Deallocate).
func (a *PoolAllocator) collectRemote(tlp *ThreadLocalPool, idx int32) {
	head := tlp.remoteFreeHead.Swap(nil)
	for head != nil {
		next := head.next
		if head.poolIndex == idx {
			ps := &tlp.classes[idx]
			n := getFreeNode()
			n.raw = head.raw
			n.next = ps.free
			ps.free = n
		} else {
			// The remote stack is shared by every size class, so this node
			// belongs to a different bucket; re-push it so its own class
			// collects it on that class's next empty-free-list allocation.
			a.pushRemote(tlp, head.raw, head.poolIndex)
		}
		head = next
	}
}

// pushRemote CAS-pushes a single remote free node onto tlp's stack.
func (a *PoolAllocator) pushRemote(tlp *ThreadLocalPool, raw unsafe.Pointer, poolIndex int32) {
	n := &remoteFreeNode{raw: raw, poolIndex: poolIndex}
	for {
		old := tlp.remoteFreeHead.Load()
		n.next = old
		if tlp.remoteFreeHead.CompareAndSwap(old, n) {
			return
		}
	}
}

// Deallocate returns block to its owner pool, per §4.1. The owner is read
// from the block's BlockMeta prefix; size is advisory and ignored here
// entirely (unlike the original, the Go slice already carries its own
// length, so there is nothing to reconcile against the prefix).
func (a *PoolAllocator) Deallocate(threadID uint64, block []byte) {
	if len(block) == 0 {
		return
	}
	raw := rawFromUser(block)
	meta := (*blockMeta)(raw)

	if meta.poolIndex == oversizeClass {
		// Oversize blocks, owned by this thread or not, are ordinary Go
		// heap allocations: nothing to return to a free list.
		return
	}

	owner := meta.owner
	if threadID == meta.ownerThreadID {
		ps := &owner.classes[meta.poolIndex]
		n := getFreeNode()
		n.raw = raw
		n.next = ps.free
		ps.free = n
		return
	}

	// Cross-thread free: never touch the owner's local free list.
	a.pushRemote(owner, raw, meta.poolIndex)
}

// userBytes returns the user-visible slice view starting metaSize past raw.
func userBytes(raw unsafe.Pointer, size int) []byte {
	p := unsafe.Add(raw, metaSize)
	return unsafe.Slice((*byte)(p), size)
}

// rawFromUser recovers the raw block pointer (the BlockMeta prefix) from a
// user-visible slice previously returned by Allocate.
func rawFromUser(block []byte) unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(&block[0]), -int(metaSize))
}

// SlabCount reports how many slabs have been allocated for threadID across
// all size classes, exposed for tests and metrics (§8: bounded slab growth).
func (a *PoolAllocator) SlabCount(threadID uint64) int64 {
	a.mu.Lock()
	tlp, ok := a.threads[threadID]
	a.mu.Unlock()
	if !ok {
		return 0
	}
	return tlp.slabCount.Load()
}

// RemoteFreeDepth reports an approximate count of blocks currently sitting
// on threadID's cross-thread remote-free stack, exposed for metrics. The
// traversal is a point-in-time snapshot of an immutable list segment (a
// producer only ever prepends a new head; it never mutates a node already
// reachable from some prior head), so concurrent pushes during the walk
// are simply not counted until the next sample rather than corrupting it.
func (a *PoolAllocator) RemoteFreeDepth(threadID uint64) int {
	a.mu.Lock()
	tlp, ok := a.threads[threadID]
	a.mu.Unlock()
	if !ok {
		return 0
	}
	n := 0
	for node := tlp.remoteFreeHead.Load(); node != nil; node = node.next {
		n++
	}
	return n
}

var _ Allocator = (*PoolAllocator)(nil)
