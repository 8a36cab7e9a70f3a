package taskkit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskkit/taskkit/alloc"
	"github.com/taskkit/taskkit/scheduler"
	"github.com/taskkit/taskkit/task"
	"github.com/taskkit/taskkit/threadpool"
)

// mainThreadBase offsets every pre-created main-thread scheduler's logical
// thread id, so callers are free to use small integers (0, 1, 2, ...) for
// their own additional threads without colliding with threadpool worker
// ids (see threadpool.firstWorkerThreadID) or with each other.
const mainThreadBase = uint64(1) << 16

const poolName = "taskkit"

// Runtime is the process-wide coroutine runtime: a scheduler.Manager, a
// threadpool.Pool, and the allocator/logger/metrics every spawned task.Task
// shares, mirroring the teacher's GoroutineThreadPool-plus-global-helpers
// shape generalized from "one pool" to "pool + scheduler manager + pool
// allocator."
type Runtime struct {
	cfg       Config
	manager   *scheduler.Manager
	pool      *threadpool.Pool
	allocator alloc.Allocator
	logger    Logger

	mainIDs []scheduler.ID

	metricsCancel context.CancelFunc
	metricsDone   chan struct{}
}

var global atomic.Pointer[Runtime]

// Initialize builds the process-wide Runtime from opts layered over
// DefaultConfig, starts its thread pool, and installs it as the current
// runtime (see Current). Calling Initialize again before Shutdown is a
// contract violation: the teacher's InitGlobalThreadPool silently no-ops
// on a second call, but TaskKit's per-scheduler activation state makes
// that silence dangerous to a caller who thinks they got fresh schedulers,
// so it panics instead.
func Initialize(opts ...Option) *Runtime {
	if global.Load() != nil {
		panicAlreadyInitialized()
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	mgr := scheduler.NewManager()
	mainIDs := make([]scheduler.ID, cfg.MainThreadSchedulerCount)
	for i := range mainIDs {
		mainIDs[i] = mgr.CreateScheduler(mainThreadBase+uint64(i), 0)
	}

	pool := threadpool.New(poolName, cfg.ThreadPoolSize, mgr, zerologBackendFor(cfg.Logger))
	pool.Start(context.Background())

	rt := &Runtime{
		cfg:       cfg,
		manager:   mgr,
		pool:      pool,
		allocator: cfg.Allocator,
		logger:    cfg.Logger,
		mainIDs:   mainIDs,
	}

	if _, isNil := cfg.Metrics.(NilMetrics); !isNil {
		rt.startMetricsPoller()
	}

	global.Store(rt)
	return rt
}

// zerologBackendFor extracts the zerolog.Logger behind a ZerologLogger so
// threadpool.Pool (which logs panic recoveries directly via zerolog, not
// through taskkit.Logger) shares the same sink; any other Logger
// implementation gets a no-op zerolog backend, since threadpool's own
// logging is an implementation detail orthogonal to task-level Logger
// calls.
func zerologBackendFor(l Logger) zerolog.Logger {
	if zl, ok := l.(ZerologLogger); ok {
		return zl.z
	}
	return zerolog.Nop()
}

// Current returns the process-wide Runtime installed by Initialize.
// Calling it before Initialize or after Shutdown is a contract violation
// (panics), per the Open-Question decision to assert on misuse rather
// than thread an error through every call site.
func Current() *Runtime {
	return mustBeInitialized(global.Load())
}

// Shutdown tears down the process-wide Runtime: stops the metrics poller
// (if any), stops the thread pool (destroying any still-queued worker
// frames), and destroys every pre-created main-thread scheduler. Calling
// Shutdown when nothing is initialized is a no-op, mirroring the teacher's
// ShutdownGlobalThreadPool.
func Shutdown() {
	rt := global.Load()
	if rt == nil {
		return
	}
	rt.shutdown()
	global.Store(nil)
}

func (rt *Runtime) shutdown() {
	if rt.metricsCancel != nil {
		rt.metricsCancel()
		<-rt.metricsDone
	}
	rt.pool.Stop()
	for _, id := range rt.mainIDs {
		rt.manager.Destroy(id)
	}
}

// Manager returns the scheduler.Manager backing this runtime, for callers
// that need to create additional schedulers beyond the pre-created
// main-thread ones.
func (rt *Runtime) Manager() *scheduler.Manager { return rt.manager }

// Pool returns the threadpool.Pool backing task.RunOnThreadPool.
func (rt *Runtime) Pool() *threadpool.Pool { return rt.pool }

// Allocator returns the pool allocator backing every spawned task frame.
func (rt *Runtime) Allocator() alloc.Allocator { return rt.allocator }

// GetMainThreadSchedulerIds returns the stable IDs of the
// Config.MainThreadSchedulerCount schedulers Initialize pre-created, one
// per simulated "main thread" a host application drives itself (e.g. one
// per UI/game-loop thread).
func (rt *Runtime) GetMainThreadSchedulerIds() []scheduler.ID {
	out := make([]scheduler.ID, len(rt.mainIDs))
	copy(out, rt.mainIDs)
	return out
}

// ActivateScheduler marks id as the scheduler threadID is presently
// "inside" (§4.3): required before that thread calls
// UpdateActivatedScheduler, and before any task running there can discover
// its own scheduler through Ctx. Returns a deactivate func intended to be
// deferred. Panics if id does not identify a live scheduler — activating a
// destroyed or forged ID is a contract violation, not a recoverable
// condition.
func (rt *Runtime) ActivateScheduler(threadID uint64, id scheduler.ID) (deactivate func()) {
	if _, ok := rt.manager.Get(id); !ok {
		panic("taskkit: ActivateScheduler called with an invalid or destroyed scheduler id")
	}
	return rt.manager.Activate(threadID, id)
}

// UpdateActivatedScheduler drives one Update pass on whichever scheduler
// threadID currently has activated via ActivateScheduler. Panics if
// nothing is activated on threadID — a caller driving a tick loop should
// always know whether it activated a scheduler first.
func (rt *Runtime) UpdateActivatedScheduler(threadID uint64) {
	id, ok := rt.manager.GetActivatedID(threadID)
	if !ok {
		panic("taskkit: UpdateActivatedScheduler called with no scheduler activated on this thread")
	}
	sched, ok := rt.manager.Get(id)
	if !ok {
		panic("taskkit: activated scheduler no longer exists")
	}
	sched.Update()
}

// PendingTaskCount reports scheduler.Scheduler.PendingCount for id, or
// scheduler.ErrSchedulerGone if id no longer identifies a live scheduler.
func (rt *Runtime) PendingTaskCount(id scheduler.ID) (int, error) {
	sched, ok := rt.manager.Get(id)
	if !ok {
		return 0, scheduler.ErrSchedulerGone
	}
	return sched.PendingCount(), nil
}

// Schedule is the low-level enqueue primitive beneath every higher-level
// suspension point: push h onto the scheduler id, from callerThreadID.
func (rt *Runtime) Schedule(callerThreadID uint64, id scheduler.ID, h scheduler.Handle) error {
	return rt.manager.Schedule(callerThreadID, id, h)
}

// Spawn builds a task.Spawn environment bound to this runtime for the
// logical thread threadID, ready to pass to task.New — the one-stop
// constructor a host application uses instead of wiring task.Spawn's
// fields by hand.
func (rt *Runtime) Spawn(threadID uint64) task.Spawn {
	return task.Spawn{
		Manager:   rt.manager,
		Pool:      rt.pool,
		ThreadID:  threadID,
		Allocator: rt.allocator,
		Logger:    &taskLoggerAdapter{l: rt.logger},
	}
}

func (rt *Runtime) startMetricsPoller() {
	ctx, cancel := context.WithCancel(context.Background())
	rt.metricsCancel = cancel
	rt.metricsDone = make(chan struct{})
	go rt.pollMetrics(ctx)
}

func (rt *Runtime) pollMetrics(ctx context.Context) {
	defer close(rt.metricsDone)
	ticker := time.NewTicker(rt.cfg.MetricsPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.sampleMetrics()
		}
	}
}

// sampleMetrics is the one-shot collector the metrics poller calls
// periodically: scheduler backlog for every main thread and worker,
// worker "busy" approximated by a non-empty backlog (threadpool.Pool does
// not track in-flight execution separately), and slab/remote-free
// pressure when the configured allocator is the concrete PoolAllocator.
func (rt *Runtime) sampleMetrics() {
	m := rt.cfg.Metrics

	for _, id := range rt.mainIDs {
		if sched, ok := rt.manager.Get(id); ok {
			m.RecordSchedulerPending(id.ThreadID(), sched.PendingCount())
		}
	}

	pa, hasPoolAllocator := rt.allocator.(*alloc.PoolAllocator)
	var slabs int64
	if hasPoolAllocator {
		for _, id := range rt.mainIDs {
			slabs += pa.SlabCount(id.ThreadID())
			m.RecordRemoteFreeDepth(pa.RemoteFreeDepth(id.ThreadID()))
		}
	}

	for i := 0; i < rt.pool.WorkerCount(); i++ {
		workerThreadID := rt.pool.WorkerThreadID(i)
		workerSchedID := rt.pool.WorkerSchedulerID(i)
		sched, ok := rt.manager.Get(workerSchedID)
		if !ok {
			continue
		}
		pending := sched.PendingCount()
		m.RecordSchedulerPending(workerThreadID, pending)
		m.RecordWorkerBusy(poolName, i, pending > 0)
		if hasPoolAllocator {
			slabs += pa.SlabCount(workerThreadID)
			m.RecordRemoteFreeDepth(pa.RemoteFreeDepth(workerThreadID))
		}
	}

	if hasPoolAllocator {
		m.RecordSlabCount(int(slabs))
	}
}
