// Package task implements the task/promise coroutine state machine from
// §3/§4.5/§4.6/§4.7: move-only Task[T] handles, cooperative suspension via
// Ctx, thread-pool switches, and the WhenAll/WhenAny combinators.
package task

import (
	"context"

	"github.com/taskkit/taskkit/alloc"
	"github.com/taskkit/taskkit/scheduler"
	"github.com/taskkit/taskkit/threadpool"
)

// Spawn carries everything a new Task needs from its creator: the
// scheduler/thread-pool plumbing it will suspend against, the allocator
// backing its frame, and its cancellation token. Ctx.Spawn() produces one
// inheriting the calling task's own environment, so child tasks created
// from inside a running task stay wired to the same runtime.
type Spawn struct {
	Manager   *scheduler.Manager
	Pool      *threadpool.Pool
	ThreadID  uint64
	Allocator alloc.Allocator
	Context   context.Context
	Clock     Clock
	Logger    Logger
}

// Task is a move-only owning handle to a running coroutine's frame, per
// §3. Go has no destructors, so "dropping a live Task destroys the
// frame" is translated into an explicit Close call — mirroring os.File or
// context.CancelFunc, the idiomatic Go shape for a value that must be
// explicitly released rather than relying on scope exit.
type Task[T any] struct {
	f *frame[T]
}

// New constructs a Task[T] by running fn on a fresh goroutine immediately
// (§4.5 "the coroutine body runs eagerly on creation"). New blocks until
// fn reaches its first suspension point or returns, so construction
// itself is synchronous with that first step — matching the spec's
// "simple tasks complete synchronously with zero scheduler interaction."
func New[T any](s Spawn, fn func(*Ctx) (T, error)) *Task[T] {
	allocator := s.Allocator
	if allocator == nil {
		allocator = alloc.SystemAllocator{}
	}
	bg := s.Context
	if bg == nil {
		bg = context.Background()
	}
	clk := s.Clock
	if clk == nil {
		clk = RealClock
	}
	log := s.Logger
	if log == nil {
		log = NoOpLogger
	}

	f := &frame[T]{
		resume:    make(chan struct{}),
		paused:    make(chan struct{}),
		destroyed: make(chan struct{}),
		logger:    log,
	}
	if mem, err := allocator.Allocate(s.ThreadID, frameSize); err == nil {
		f.mem = mem
		f.allocator = allocator
		f.allocThreadID = s.ThreadID
	}

	ctx := &Ctx{
		co:        f,
		manager:   s.Manager,
		pool:      s.Pool,
		threadID:  s.ThreadID,
		allocator: allocator,
		ctx:       bg,
		clk:       clk,
		logger:    log,
	}

	go func() {
		v, err := fn(ctx)
		f.finish(v, err)
	}()

	<-f.paused
	return &Task[T]{f: f}
}

// IsReady reports whether the task's result has been delivered. A
// forgotten or already-awaited (consumed) Task reports ready, since
// there is nothing further an owner could observe from it.
func (t *Task[T]) IsReady() bool {
	if t.f == nil {
		return true
	}
	return t.f.promise.isReady()
}

// Result returns the task's value or failure. It panics if the Task has
// already been forgotten or consumed by Await — the same contract
// violation category as awaiting twice.
func (t *Task[T]) Result() (T, error) {
	if t.f == nil {
		panic("task: Result called on a forgotten or already-consumed Task")
	}
	return t.f.promise.result()
}

// Forget detaches the Task from its frame (§4.5 "Forget semantics"): if
// the result is already in, the frame's memory is released immediately;
// otherwise the frame is flagged and will self-clean when it eventually
// completes. Forget is the only supported fire-and-forget entry point.
func (t *Task[T]) Forget() {
	if t.f == nil {
		return
	}
	f := t.f
	if f.promise.markForgotten() {
		f.memOnce.Do(f.releaseMem)
	}
	t.f = nil
}

// Close releases ownership of the Task without awaiting its result. For
// a Task whose coroutine is still suspended, this behaves like Forget:
// Go provides no synchronous destructor to force the frame to unwind, so
// the frame is left to complete (or to be torn down later by its owning
// Scheduler's Close) and self-clean from there.
func (t *Task[T]) Close() {
	t.Forget()
}
