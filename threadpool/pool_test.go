package threadpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/taskkit/taskkit/scheduler"
)

func newTestPool(t *testing.T, n int) (*Pool, *scheduler.Manager) {
	t.Helper()
	mgr := scheduler.NewManager()
	p := New("test", n, mgr, zerolog.Nop())
	t.Cleanup(p.Stop)
	return p, mgr
}

func TestPool_PostRunsOnSomeWorker(t *testing.T) {
	p, _ := newTestPool(t, 4)
	p.Start(context.Background())

	done := make(chan struct{})
	require.NoError(t, p.Post(0, scheduler.HandleFunc(func() { close(done) })))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestPool_PostToTargetsSpecificWorker(t *testing.T) {
	p, mgr := newTestPool(t, 3)

	var ranOn int32 = -1
	done := make(chan struct{})
	require.NoError(t, p.PostTo(0, 1, scheduler.HandleFunc(func() {
		atomic.StoreInt32(&ranOn, 1)
		close(done)
	})))

	// Before Start, the posted handle is visible only in worker 1's backlog.
	for i := 0; i < p.WorkerCount(); i++ {
		s, ok := mgr.Get(p.WorkerSchedulerID(i))
		require.True(t, ok)
		want := 0
		if i == 1 {
			want = 1
		}
		require.Equal(t, want, s.PendingCount(), "worker %d backlog", i)
	}
	p.Start(context.Background())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	require.EqualValues(t, 1, atomic.LoadInt32(&ranOn))
}

func TestPool_DistributesAcrossWorkersRoundRobin(t *testing.T) {
	p, mgr := newTestPool(t, 4)

	var wg sync.WaitGroup
	var total atomic.Int64
	for i := 0; i < 40; i++ {
		wg.Add(1)
		require.NoError(t, p.Post(0, scheduler.HandleFunc(func() {
			total.Add(1)
			wg.Done()
		})))
	}

	// Before Start, round-robin dispatch leaves 40/4 handles per worker.
	for i := 0; i < p.WorkerCount(); i++ {
		s, ok := mgr.Get(p.WorkerSchedulerID(i))
		require.True(t, ok)
		require.Equal(t, 10, s.PendingCount(), "worker %d backlog", i)
	}
	p.Start(context.Background())

	waitOrTimeout(t, &wg, 2*time.Second)
	require.EqualValues(t, 40, total.Load())
}

func TestPool_StopDrainsRunningWorkersAndDestroysSchedulers(t *testing.T) {
	p, mgr := newTestPool(t, 2)
	p.Start(context.Background())
	require.True(t, p.IsRunning())

	id := p.WorkerSchedulerID(0)
	p.Stop()
	require.False(t, p.IsRunning())

	_, ok := mgr.Get(id)
	require.False(t, ok, "worker schedulers must be destroyed on Stop")
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for tasks")
	}
}
