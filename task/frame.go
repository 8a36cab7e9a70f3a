package task

import (
	"sync"

	"github.com/taskkit/taskkit/alloc"
	"github.com/taskkit/taskkit/scheduler"
)

// frameSize is the fixed footprint every task frame reserves from the
// installed allocator, purely to exercise the pool-allocator contract
// §4.1/§4.5 promises every coroutine frame: Go's own goroutine stack
// backs the actual execution state (there is no manual frame layout to
// allocate), so this reservation is the Go-native stand-in for the
// fixed-size coroutine frame the spec assumes.
const frameSize = 48

// coroutine is the T-erased surface frame[T] exposes to Ctx: anything a
// Scheduler can Resume, plus the ability to suspend itself and report
// why it woke up.
type coroutine interface {
	scheduler.Handle
	suspendSelf() error
}

// frame is the engine behind a Task[T]: a goroutine that runs fn eagerly
// on creation (§4.5 "initial suspend... default is do not suspend") and
// blocks on resume/paused handoff channels at every suspension point, so
// exactly one side — the frame's own goroutine, or whatever called
// Resume — is ever running at a time. This is the trampoline described in
// SPEC_FULL.md §0: Go supplies the stack, the handoff channels supply the
// cooperative scheduling point.
type frame[T any] struct {
	promise promise[T]

	resume    chan struct{} // scheduler/caller -> goroutine: proceed
	paused    chan struct{} // goroutine -> caller: I have suspended or finished
	destroyed chan struct{} // closed by Destroy: wake a suspended goroutine to abort

	mem           []byte
	allocator     alloc.Allocator
	allocThreadID uint64

	logger Logger

	destroyOnce sync.Once
	memOnce     sync.Once
}

// Resume implements scheduler.Handle: hand control to the frame's
// goroutine and block until it suspends again or finishes.
func (f *frame[T]) Resume() {
	f.resume <- struct{}{}
	<-f.paused
}

// suspendSelf parks the calling goroutine (which must be this frame's own
// coroutine body) until either Resume is called again or the frame is
// torn down by Destroy while queued.
func (f *frame[T]) suspendSelf() error {
	f.paused <- struct{}{}
	select {
	case <-f.resume:
		return nil
	case <-f.destroyed:
		return ErrFrameDestroyed
	}
}

// Destroy implements the scheduler package's destroyer interface: it is
// called when a Scheduler is torn down with this frame still queued
// (i.e. currently parked in suspendSelf). Go has no way to force a
// blocked goroutine to unwind, so Destroy instead wakes it through the
// destroyed channel and relies on every suspension call site returning
// ErrFrameDestroyed immediately rather than suspending again — the
// Go-native approximation of the spec's "destroying a scheduler destroys
// every handle still queued."
func (f *frame[T]) Destroy() {
	f.destroyOnce.Do(func() { close(f.destroyed) })
	f.memOnce.Do(f.releaseMem)
}

// finish is called once, by the frame's own goroutine, after its task
// function returns. It stores the result, releases the frame's
// allocator-backed memory (nothing downstream needs it once the function
// has returned a value), and — per §4.5's "final suspend" — symmetrically
// transfers to the stored continuation inline, with no scheduler
// round-trip, before reporting back to whichever Resume call last woke
// this frame.
func (f *frame[T]) finish(v T, err error) {
	f.memOnce.Do(f.releaseMem)

	forgotten, continuation := f.promise.complete(v, err)
	if forgotten && err != nil {
		f.logger.Debugf("task: forgotten task failed: %v", err)
	}
	if continuation != nil {
		continuation.Resume()
	}

	// A Resume call expects exactly one paused receive back, but if this
	// frame finished because Destroy woke it out of its last suspendSelf
	// (ErrFrameDestroyed, propagated up through the task body to here),
	// nothing is left listening on paused: Destroy already returned and
	// the owning Scheduler is gone. Select on destroyed too so this
	// goroutine can still exit instead of blocking forever.
	select {
	case f.paused <- struct{}{}:
	case <-f.destroyed:
	}
}

func (f *frame[T]) releaseMem() {
	if f.allocator != nil && f.mem != nil {
		f.allocator.Deallocate(f.allocThreadID, f.mem)
		f.mem = nil
	}
}

var _ scheduler.Handle = (*frame[struct{}])(nil)
