package taskkit

import (
	"github.com/taskkit/taskkit/alloc"
	"github.com/taskkit/taskkit/scheduler"
	"github.com/taskkit/taskkit/task"
)

// Re-exports of the most commonly used cross-package types, so a caller
// driving a single scheduler tick loop can import only taskkit for the
// common case — the same convenience the teacher's root types.go offers
// over core.

// SchedulerID identifies one scheduler created by a Manager.
type SchedulerID = scheduler.ID

// SchedulerHandle is anything a scheduler can resume.
type SchedulerHandle = scheduler.Handle

// Allocator is the type-erased allocator handle task frames are built
// against.
type Allocator = alloc.Allocator

// Task is a suspendable unit of work with result type T.
type Task[T any] = task.Task[T]

// Ctx is the handle a running task uses to suspend itself.
type Ctx = task.Ctx

// Spawn describes the environment a new Task is created against.
type Spawn = task.Spawn

// WhenAnyResult is the discriminated result of task.WhenAny/WhenAnySlice.
type WhenAnyResult[T any] = task.WhenAnyResult[T]

// New spawns a task against s (typically built via Runtime.Spawn).
func New[T any](s Spawn, fn func(*Ctx) (T, error)) *Task[T] {
	return task.New(s, fn)
}

// Await suspends the calling task until t completes, per task.Await.
func Await[U any](c *Ctx, t *Task[U]) (U, error) {
	return task.Await(c, t)
}

// WhenAll awaits every task in order, aborting on the first failure.
func WhenAll[T any](c *Ctx, tasks ...*Task[T]) ([]T, error) {
	return task.WhenAll(c, tasks...)
}

// WhenAny races tasks against each other and returns the first to settle.
func WhenAny[T any](c *Ctx, tasks ...*Task[T]) (WhenAnyResult[T], error) {
	return task.WhenAny(c, tasks...)
}

// RunOnThreadPool offloads fn onto the runtime's thread pool and resumes
// the calling task on its originating scheduler once fn returns.
func RunOnThreadPool[T any](c *Ctx, fn func() (T, error)) (T, error) {
	return task.RunOnThreadPool(c, fn)
}
