package task

import (
	"context"
	"fmt"
	"time"

	"github.com/taskkit/taskkit/alloc"
	"github.com/taskkit/taskkit/scheduler"
	"github.com/taskkit/taskkit/threadpool"
)

// Ctx is the handle a running task's body uses to suspend itself: yield a
// frame tick, await a sub-task, wait for a duration or deadline, or move
// to the thread pool and back. It is the Go-native stand-in for the
// compiler-generated coroutine-frame `this` the spec describes, passed
// explicitly since Go has no compiler support for coroutines.
type Ctx struct {
	co       coroutine
	manager  *scheduler.Manager
	pool     *threadpool.Pool
	threadID uint64

	allocator alloc.Allocator
	ctx       context.Context
	clk       Clock
	logger    Logger
}

// Context returns the cancellation token driving this task's
// combinators, for passing down into external, non-TaskKit APIs.
func (c *Ctx) Context() context.Context { return c.ctx }

// Spawn produces a Spawn inheriting this task's runtime environment, so a
// child task or WhenAny helper created from inside a running task stays
// wired to the same manager, pool, allocator and cancellation token.
func (c *Ctx) Spawn() Spawn {
	return Spawn{
		Manager:   c.manager,
		Pool:      c.pool,
		ThreadID:  c.threadID,
		Allocator: c.allocator,
		Context:   c.ctx,
		Clock:     c.clk,
		Logger:    c.logger,
	}
}

func (c *Ctx) checkCancel() error {
	if c.ctx == nil {
		return nil
	}
	if err := c.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrOperationStopped, err)
	}
	return nil
}

// Yield re-enqueues the task on its currently activated scheduler and
// suspends until the next Update() on that scheduler resumes it — the
// frame-tick primitive every other wait combinator is built from (§4.7).
func (c *Ctx) Yield() error {
	if err := c.checkCancel(); err != nil {
		return err
	}
	id, ok := c.manager.GetActivatedID(c.threadID)
	if !ok {
		panic("task: Yield called with no scheduler activated on this thread")
	}
	if err := c.manager.Schedule(c.threadID, id, c.co); err != nil {
		return err
	}
	return c.co.suspendSelf()
}

// DelayFrame yields n times; n <= 0 completes immediately without
// suspending at all, per §4.7.
func (c *Ctx) DelayFrame(n int) error {
	for i := 0; i < n; i++ {
		if err := c.Yield(); err != nil {
			return err
		}
	}
	return nil
}

// WaitFor yields until at least d has elapsed since the call, per §4.7.
// Granularity is bounded by the scheduler's Update() cadence, not by d
// itself.
func (c *Ctx) WaitFor(d time.Duration) error {
	start := c.clk.Now()
	for c.clk.Now().Sub(start) < d {
		if err := c.Yield(); err != nil {
			return err
		}
	}
	return nil
}

// WaitUntil yields until the clock reaches target; a target already in
// the past completes immediately on first check, per §4.7.
func (c *Ctx) WaitUntil(target time.Time) error {
	for c.clk.Now().Before(target) {
		if err := c.Yield(); err != nil {
			return err
		}
	}
	return nil
}

// SwitchToThreadPool moves this task onto a thread-pool worker chosen by
// round-robin, per §4.6. After it returns, the task is running on that
// worker's thread and scheduler.
func (c *Ctx) SwitchToThreadPool() error {
	if c.pool == nil {
		panic("task: SwitchToThreadPool called without a thread pool installed")
	}
	if err := c.checkCancel(); err != nil {
		return err
	}
	idx := c.pool.NextWorkerIndex()
	if err := c.pool.PostTo(c.threadID, idx, c.co); err != nil {
		return err
	}
	c.threadID = c.pool.WorkerThreadID(idx)
	return c.co.suspendSelf()
}

// SwitchToScheduler moves this task onto the given scheduler, per §4.6 —
// typically used to return to the originating scheduler after thread-pool
// work. It surfaces scheduler.ErrSchedulerGone if target was destroyed in
// the meantime.
func (c *Ctx) SwitchToScheduler(id scheduler.ID) error {
	if err := c.checkCancel(); err != nil {
		return err
	}
	if err := c.manager.Schedule(c.threadID, id, c.co); err != nil {
		return err
	}
	c.threadID = id.ThreadID()
	return c.co.suspendSelf()
}

// RunOnThreadPool composes SwitchToThreadPool/SwitchToScheduler (§4.6):
// it saves the currently activated scheduler, switches to the pool, runs
// fn, switches back, and returns fn's result. A panic inside fn is
// recovered and surfaced as a failure, rather than crashing the worker —
// the supplemented "RunOnThreadPool result propagation including
// panics-as-failures" behavior carried over from the original
// implementation (see DESIGN.md).
func RunOnThreadPool[T any](c *Ctx, fn func() (T, error)) (result T, err error) {
	origin, hadOrigin := c.manager.GetActivatedID(c.threadID)

	if err = c.SwitchToThreadPool(); err != nil {
		return result, err
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task: RunOnThreadPool: panic recovered: %v", r)
			}
		}()
		result, err = fn()
	}()

	if hadOrigin {
		if switchErr := c.SwitchToScheduler(origin); switchErr != nil && err == nil {
			err = switchErr
		}
	}
	return result, err
}

// Await suspends the calling task until sub-task t completes, per §4.5's
// await semantics: if t is already ready (it ran to completion
// synchronously), Await returns inline with no scheduler round-trip.
// Otherwise it records the caller as t's continuation and suspends; when
// t completes, it symmetrically transfers straight back here. Awaiting
// consumes t, mirroring the move-only "co_await" expression in the
// original.
func Await[U any](c *Ctx, t *Task[U]) (U, error) {
	var zero U
	f := t.f
	if f == nil {
		panic("task: Await called on a forgotten or already-consumed Task")
	}
	defer func() { t.f = nil }()

	if err := c.checkCancel(); err != nil {
		return zero, err
	}
	if f.promise.isReady() {
		return f.promise.result()
	}

	f.promise.setContinuation(c.co)
	if err := c.co.suspendSelf(); err != nil {
		return zero, err
	}
	return f.promise.result()
}
