package task

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/taskkit/taskkit/scheduler"
	"github.com/taskkit/taskkit/threadpool"
)

// Scenario 6: thread-pool round-trip. RunOnThreadPool returns a thread id
// different from the main thread, and the awaiter resumes on the main
// thread's originally activated scheduler.
func TestRunOnThreadPool_RoundTrip(t *testing.T) {
	const mainThreadID = uint64(1)

	mgr := scheduler.NewManager()
	mainID := mgr.CreateScheduler(mainThreadID, 0)
	deactivate := mgr.Activate(mainThreadID, mainID)
	defer deactivate()

	pool := threadpool.New("test", 2, mgr, zerolog.Nop())
	pool.Start(context.Background())
	defer pool.Stop()

	tk := New(Spawn{Manager: mgr, Pool: pool, ThreadID: mainThreadID}, func(c *Ctx) (uint64, error) {
		return RunOnThreadPool(c, func() (uint64, error) {
			return currentThreadIDForTest(c), nil
		})
	})

	mainSched, ok := mgr.Get(mainID)
	require.True(t, ok)

	// The worker picks up the thread-pool switch asynchronously; poll
	// main's scheduler until the round trip's remote enqueue lands and
	// the task resumes to completion.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !tk.IsReady() {
		mainSched.Update()
		if tk.IsReady() {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	require.True(t, tk.IsReady(), "RunOnThreadPool never completed")
	tid, err := tk.Result()
	require.NoError(t, err)
	require.NotEqual(t, mainThreadID, tid)
}

// currentThreadIDForTest reads back the Ctx's current logical thread id —
// exercised only from inside fn passed to RunOnThreadPool, where c's
// threadID has already been updated to the worker's.
func currentThreadIDForTest(c *Ctx) uint64 { return c.threadID }

func TestCtx_SwitchToSchedulerReportsGoneScheduler(t *testing.T) {
	mgr := scheduler.NewManager()
	id := mgr.CreateScheduler(1, 0)
	deactivate := mgr.Activate(1, id)
	defer deactivate()

	dead := mgr.CreateScheduler(2, 0)
	mgr.Destroy(dead)

	tk := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (struct{}, error) {
		return struct{}{}, c.SwitchToScheduler(dead)
	})

	require.True(t, tk.IsReady())
	_, err := tk.Result()
	require.ErrorIs(t, err, scheduler.ErrSchedulerGone)
}
