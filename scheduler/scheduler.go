// Package scheduler implements the cooperative, explicitly-driven scheduler
// and scheduler manager described in spec §3/§4.2/§4.3: an owner-thread
// queue of ready continuations with a lock-free remote-enqueue path, plus
// the per-thread activation stack that lets a running task discover which
// scheduler to re-enqueue itself on.
package scheduler

import (
	"sync/atomic"
)

// Handle is anything a Scheduler can resume. task.Task implements it; tests
// and samples may implement it directly with a plain func.
type Handle interface {
	// Resume runs the handle until its next suspension or completion.
	Resume()
}

// HandleFunc adapts a plain function to Handle.
type HandleFunc func()

// Resume calls f.
func (f HandleFunc) Resume() { f() }

// Scheduler is owned by exactly one logical thread (§3 "Scheduler"). All
// mutation of local from a non-owner must go through Schedule, which routes
// cross-thread pushes onto the lock-free remote stack.
type Scheduler struct {
	ownerThreadID uint64

	// local is mutated only by the owner thread (via Schedule/Update).
	local []Handle

	// remote is a lock-free MPSC stack; any non-owner thread may push.
	remote remoteStack

	// drain is the transient buffer swapped in during Update, so handles
	// enqueued while draining land in the next Update rather than this one.
	drain []Handle
}

// newScheduler constructs a Scheduler owned by ownerThreadID with local
// queue capacity reservationHint.
func newScheduler(ownerThreadID uint64, reservationHint int) *Scheduler {
	return &Scheduler{
		ownerThreadID: ownerThreadID,
		local:         make([]Handle, 0, reservationHint),
	}
}

// OwnerThreadID returns the logical thread id that owns this scheduler.
func (s *Scheduler) OwnerThreadID() uint64 { return s.ownerThreadID }

// Schedule enqueues a ready continuation. If called from the owner thread
// (callerThreadID == s.ownerThreadID) it appends directly to local; from any
// other thread it is pushed onto the lock-free remote stack instead.
//
// Schedule never blocks: the local path is a slice append, the remote path
// a bounded CAS loop.
func (s *Scheduler) Schedule(callerThreadID uint64, h Handle) {
	if h == nil {
		return
	}
	if callerThreadID == s.ownerThreadID {
		s.local = append(s.local, h)
		return
	}
	s.remote.push(h)
}

// Update drains and resumes ready handles, per §4.2:
//  1. pull the remote stack into local (order across the two is
//     unspecified, as the spec allows),
//  2. swap local out for an empty drain buffer,
//  3. resume each handle in the drain buffer in order.
//
// Handles scheduled during step 3 land back in local and are not resumed
// until the *next* call to Update. Update never blocks.
func (s *Scheduler) Update() {
	if pulled := s.remote.drainAll(); len(pulled) > 0 {
		// Remote arrivals are collected at the start of Update, ahead of
		// anything added to local since the previous Update — see §4.2.
		s.local = append(pulled, s.local...)
	}

	s.drain, s.local = s.local, s.drain[:0]

	for _, h := range s.drain {
		if h == nil {
			continue
		}
		h.Resume()
	}
	for i := range s.drain {
		s.drain[i] = nil
	}
	s.drain = s.drain[:0]
}

// PendingCount returns the (racy but monotone-safe) number of handles
// waiting in local plus the length of the remote stack, per §4.2.
func (s *Scheduler) PendingCount() int {
	return len(s.local) + s.remote.length()
}

// Close destroys every handle still queued (local, remote, drain) — the
// escape hatch for tasks alive when the host shuts down, per §4.2
// "Destruction."
func (s *Scheduler) Close() {
	for _, h := range s.local {
		destroyHandle(h)
	}
	s.local = nil
	for _, h := range s.drain {
		destroyHandle(h)
	}
	s.drain = nil
	for _, h := range s.remote.drainAll() {
		destroyHandle(h)
	}
}

// destroyer is implemented by handles that own resources needing explicit
// release on scheduler teardown (task.Task's frame, most notably).
type destroyer interface {
	Destroy()
}

func destroyHandle(h Handle) {
	if d, ok := h.(destroyer); ok {
		d.Destroy()
	}
}

// remoteStack is a lock-free multi-producer / single-consumer stack of
// Handles, grounded on the same atomic.Pointer CAS-linked-list shape as
// alloc.PoolAllocator's remote-free stack (alloc/pool.go's
// remoteFreeHead/pushRemote), itself grounded on the Go runtime's lfstack
// (daihainidewo-go-comment src/runtime/lfstack.go) and the pack's lock-free
// MPSC ingress design (joeycumines-go-utilpkg/eventloop
// internal/alternatetwo/ingress.go). Go's garbage collector removes the
// ABA/tagged-pointer concerns those designs otherwise have to manage by
// hand, since a popped node can never be recycled into a different type
// while still reachable from another goroutine's stale pointer.
type remoteStack struct {
	head atomic.Pointer[remoteNode]
	n    atomic.Int64
}

type remoteNode struct {
	next *remoteNode
	h    Handle
}

// push CAS-prepends h onto the stack; never blocks.
func (r *remoteStack) push(h Handle) {
	n := &remoteNode{h: h}
	for {
		old := r.head.Load()
		n.next = old
		if r.head.CompareAndSwap(old, n) {
			r.n.Add(1)
			return
		}
	}
}

// drainAll atomically takes every pushed handle, in push order reversed
// (stack order) — the spec explicitly permits this: "the stack reversal is
// acceptable."
func (r *remoteStack) drainAll() []Handle {
	head := r.head.Swap(nil)
	if head == nil {
		return nil
	}
	var out []Handle
	for node := head; node != nil; node = node.next {
		out = append(out, node.h)
		r.n.Add(-1)
	}
	return out
}

func (r *remoteStack) length() int {
	return int(r.n.Load())
}
