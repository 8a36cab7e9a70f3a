// Package threadpool implements the worker-pool described in spec §4.4: a
// fixed set of worker goroutines, each owning exactly one scheduler.Scheduler
// through a shared scheduler.Manager, driven by an explicit Update loop
// rather than a blocking work queue — grounded on the teacher's
// GoroutineThreadPool (pool.go) generalized from core.TaskScheduler's
// blocking GetWork() to TaskKit's non-blocking, caller-driven dispatch.
package threadpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/taskkit/taskkit/scheduler"
)

// firstWorkerThreadID is an arbitrary base so worker thread ids never
// collide with id 0 (commonly used by callers for "the main thread").
const firstWorkerThreadID = uint64(1) << 32

// Pool is a fixed-size set of worker goroutines, each pumping its own
// scheduler.Scheduler via Update until the pool is stopped. Dispatch to a
// specific worker is done by scheduler.Manager.Schedule against that
// worker's scheduler.ID; Pool additionally offers round-robin dispatch
// across all workers via Post.
type Pool struct {
	name    string
	manager *scheduler.Manager
	workers []worker
	log     zerolog.Logger

	next   atomic.Uint64 // round-robin cursor for Post
	wg     sync.WaitGroup
	cancel context.CancelFunc

	runningMu sync.Mutex
	running   bool
}

type worker struct {
	threadID uint64
	id       scheduler.ID
	wake     chan struct{} // buffered(1) doorbell, mirrors WorkerContext's cv
}

// New builds a Pool of n workers sharing manager, named name for logging.
// Workers are not started until Start is called.
func New(name string, n int, manager *scheduler.Manager, log zerolog.Logger) *Pool {
	p := &Pool{
		name:    name,
		manager: manager,
		workers: make([]worker, n),
		log:     log.With().Str("pool", name).Logger(),
	}
	for i := range p.workers {
		threadID := firstWorkerThreadID + uint64(i)
		p.workers[i] = worker{
			threadID: threadID,
			id:       manager.CreateScheduler(threadID, 0),
			wake:     make(chan struct{}, 1),
		}
	}
	return p
}

// WorkerCount returns the number of workers in the pool.
func (p *Pool) WorkerCount() int { return len(p.workers) }

// WorkerSchedulerID returns the scheduler.ID owned by worker i, so a caller
// can target that worker specifically (the thread-pool analogue of the
// spec's "switch to a specific worker" requirement).
func (p *Pool) WorkerSchedulerID(i int) scheduler.ID { return p.workers[i].id }

// WorkerThreadID returns the logical thread id owned by worker i — the
// identity a task observes itself running under after SwitchToThreadPool
// lands it there.
func (p *Pool) WorkerThreadID(i int) uint64 { return p.workers[i].threadID }

// NextWorkerIndex picks the next worker in round-robin order without
// posting anything, so a caller that needs to know which worker it landed
// on (task.Ctx.SwitchToThreadPool, notably) can record that before
// suspending.
func (p *Pool) NextWorkerIndex() int {
	return int(p.next.Add(1)-1) % len(p.workers)
}

// Start launches every worker goroutine. Starting an already-running pool
// is a no-op, mirroring the teacher's GoroutineThreadPool.Start guard.
func (p *Pool) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()
	if p.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	for i := range p.workers {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
}

// workerLoop repeatedly drains the worker's scheduler, then blocks on its
// doorbell channel (or the pool's shutdown) until woken by a new Schedule.
// Unlike the teacher's workerLoop, which blocks inside scheduler.GetWork on
// a condition variable, TaskKit schedulers never block internally — the
// doorbell channel is threadpool's own addition so a worker goroutine can
// sleep between Updates instead of busy-polling, without giving the
// scheduler itself any blocking behavior (Update always returns promptly).
func (p *Pool) workerLoop(ctx context.Context, idx int) {
	defer p.wg.Done()
	w := p.workers[idx]

	sched, ok := p.manager.Get(w.id)
	if !ok {
		return
	}

	for {
		p.runOnce(idx, sched)

		select {
		case <-ctx.Done():
			return
		case <-w.wake:
			// woken by a Schedule call; loop around and drain again.
		}
	}
}

func (p *Pool) runOnce(idx int, sched *scheduler.Scheduler) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", idx).Interface("panic", r).Msg("worker task panicked")
		}
	}()
	sched.Update()
}

// Post schedules h onto a worker chosen by round-robin, from callerThreadID.
func (p *Pool) Post(callerThreadID uint64, h scheduler.Handle) error {
	return p.PostTo(callerThreadID, p.NextWorkerIndex(), h)
}

// PostTo schedules h onto worker i specifically.
func (p *Pool) PostTo(callerThreadID uint64, i int, h scheduler.Handle) error {
	w := p.workers[i]
	if err := p.manager.Schedule(callerThreadID, w.id, h); err != nil {
		return fmt.Errorf("threadpool %s: worker %d: %w", p.name, i, err)
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// QueuedTaskCount sums PendingCount across every worker's scheduler.
func (p *Pool) QueuedTaskCount() int {
	n := 0
	for _, w := range p.workers {
		if s, ok := p.manager.Get(w.id); ok {
			n += s.PendingCount()
		}
	}
	return n
}

// Stop cancels every worker's context and waits for them to exit, then
// destroys their schedulers (running any handles still queued through
// Scheduler.Close's destruction path).
func (p *Pool) Stop() {
	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		return
	}
	p.runningMu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	for _, w := range p.workers {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	p.wg.Wait()

	for _, w := range p.workers {
		p.manager.Destroy(w.id)
	}

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()
}

// IsRunning reports whether the pool's workers are currently active.
func (p *Pool) IsRunning() bool {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()
	return p.running
}
