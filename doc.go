// Package taskkit provides a cooperative coroutine runtime for Go: suspendable
// tasks that run on explicit, caller-driven schedulers instead of relying on
// the Go runtime's own scheduler to decide when a goroutine yields.
//
// Unlike a normal goroutine, a taskkit task only makes progress when
// something calls Update on the scheduler it is queued on — there is no
// background thread silently resuming it. This gives a host application
// control over exactly when work happens, at the cost of every suspension
// point needing an explicit call (Ctx.Yield, task.Await, and friends).
//
// # Quick Start
//
// Initialize the runtime once at startup:
//
//	rt := taskkit.Initialize(
//		taskkit.WithThreadPoolSize(4),
//		taskkit.WithMainThreadSchedulerCount(1),
//	)
//	defer taskkit.Shutdown()
//
// Activate a main-thread scheduler and spawn a task against it:
//
//	id := rt.GetMainThreadSchedulerIds()[0]
//	mainThread := id.ThreadID()
//	deactivate := rt.ActivateScheduler(mainThread, id)
//	defer deactivate()
//
//	tk := task.New(rt.Spawn(mainThread), func(c *task.Ctx) (int, error) {
//		if err := c.Yield(); err != nil {
//			return 0, err
//		}
//		return 42, nil
//	})
//
//	rt.UpdateActivatedScheduler(mainThread)
//	v, err := tk.Result()
//
// # Key Concepts
//
// Scheduler: an explicit, pull-based queue of ready continuations, owned by
// exactly one logical thread and driven forward only by Update.
//
// Task: a suspendable unit of work, represented by a goroutine parked on a
// private handoff channel between suspension points.
//
// ThreadPool: a fixed set of worker goroutines, each driving its own
// scheduler, used for CPU-bound or blocking work a task offloads via
// task.RunOnThreadPool.
//
// # Thread Safety
//
// Logical "thread" identity in taskkit is a caller-supplied uint64, not an
// OS thread: Go offers no portable way to pin a goroutine to a thread, so
// every package in this module (alloc, scheduler, threadpool, task) threads
// an explicit id through instead. Scheduler.Update must only ever be called
// by the logical thread that owns the scheduler; cross-thread work is always
// routed through Schedule's remote path.
package taskkit
