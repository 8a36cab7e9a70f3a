package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskkit/taskkit/scheduler"
)

// newTestEnv builds a scheduler.Manager with one scheduler created and
// activated on threadID 1, suitable for driving tasks with manual Update
// calls the way the scenarios in spec §8 describe.
func newTestEnv(t *testing.T) (*scheduler.Manager, scheduler.ID, func()) {
	t.Helper()
	mgr := scheduler.NewManager()
	id := mgr.CreateScheduler(1, 0)
	deactivate := mgr.Activate(1, id)
	t.Cleanup(deactivate)
	return mgr, id, deactivate
}

func (mgrID schedulerRef) update(t *testing.T) {
	t.Helper()
	s, ok := mgrID.mgr.Get(mgrID.id)
	require.True(t, ok)
	s.Update()
}

type schedulerRef struct {
	mgr *scheduler.Manager
	id  scheduler.ID
}

// Scenario 1: eager execution — the task body sets a flag before New
// returns, with no Update() call at all.
func TestTask_EagerExecution(t *testing.T) {
	mgr, id, _ := newTestEnv(t)
	executed := false

	tk := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (struct{}, error) {
		executed = true
		return struct{}{}, nil
	})

	require.True(t, executed)
	require.True(t, tk.IsReady())
	_ = id
}

// Scenario 2: sequential yields — a task that records its counter before
// each of its 5 yields records 1 eagerly in New and 2..5 across the next 4
// Update() calls; a fifth Update() would return from its last yield.
func TestTask_SequentialYields(t *testing.T) {
	mgr, id, _ := newTestEnv(t)
	ref := schedulerRef{mgr, id}

	var observed []int
	tk := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (struct{}, error) {
		counter := 0
		for i := 0; i < 5; i++ {
			counter++
			observed = append(observed, counter)
			if err := c.Yield(); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	tk.Forget()

	require.Equal(t, []int{1}, observed)
	for i := 0; i < 4; i++ {
		ref.update(t)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, observed)
}

// Scenario 3: ready sub-task — awaiting an already-completed inner task
// resolves inline, with no Update() call.
func TestTask_AwaitReadySubTask(t *testing.T) {
	mgr, _, _ := newTestEnv(t)

	inner := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (int, error) {
		return 42, nil
	})

	outer := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (int, error) {
		return Await(c, inner)
	})

	require.True(t, outer.IsReady())
	v, err := outer.Result()
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

// Scenario 4: delayed sub-task — inner yields once then returns; outer
// completes after exactly one Update() on the shared scheduler.
func TestTask_AwaitDelayedSubTask(t *testing.T) {
	mgr, id, _ := newTestEnv(t)
	ref := schedulerRef{mgr, id}

	inner := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (int, error) {
		if err := c.Yield(); err != nil {
			return 0, err
		}
		return 7, nil
	})

	var result int
	outer := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (int, error) {
		return Await(c, inner)
	})
	require.False(t, outer.IsReady())

	ref.update(t)
	require.True(t, outer.IsReady())
	result, err := outer.Result()
	require.NoError(t, err)
	require.Equal(t, 7, result)
}

func TestTask_FailurePropagatesThroughAwait(t *testing.T) {
	mgr, _, _ := newTestEnv(t)
	boom := errors.New("boom")

	inner := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (int, error) {
		return 0, boom
	})

	outer := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (int, error) {
		return Await(c, inner)
	})

	_, err := outer.Result()
	require.ErrorIs(t, err, boom)
}

func TestTask_CancellationSurfacesAtNextYield(t *testing.T) {
	mgr, id, _ := newTestEnv(t)
	ref := schedulerRef{mgr, id}

	ctx, cancel := context.WithCancel(context.Background())

	tk := New(Spawn{Manager: mgr, ThreadID: 1, Context: ctx}, func(c *Ctx) (struct{}, error) {
		if err := c.Yield(); err != nil {
			return struct{}{}, err
		}
		if err := c.Yield(); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	tk.Forget()

	cancel()
	ref.update(t)

	// the forgotten task's failure is swallowed (no awaiter); we only
	// assert no panic and that it ran its course.
	require.NotPanics(t, func() { ref.update(t) })
}

func TestTask_ForgetAlreadyReadyReleasesImmediately(t *testing.T) {
	mgr, _, _ := newTestEnv(t)
	tk := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (int, error) {
		return 1, nil
	})
	require.True(t, tk.IsReady())
	require.NotPanics(t, tk.Forget)
	require.True(t, tk.IsReady())
}

func TestTask_DelayFrameBoundaries(t *testing.T) {
	mgr, id, _ := newTestEnv(t)
	ref := schedulerRef{mgr, id}

	zero := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (struct{}, error) {
		return struct{}{}, c.DelayFrame(0)
	})
	require.True(t, zero.IsReady())

	one := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (struct{}, error) {
		return struct{}{}, c.DelayFrame(1)
	})
	require.False(t, one.IsReady())
	ref.update(t)
	require.True(t, one.IsReady())

	three := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (struct{}, error) {
		return struct{}{}, c.DelayFrame(3)
	})
	for i := 0; i < 3; i++ {
		require.False(t, three.IsReady())
		ref.update(t)
	}
	require.True(t, three.IsReady())
}

func TestWhenAll_EmptyCompletesSynchronously(t *testing.T) {
	mgr, _, _ := newTestEnv(t)
	tk := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) ([]int, error) {
		return WhenAllSlice[int](c, nil)
	})
	require.True(t, tk.IsReady())
	v, err := tk.Result()
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestWhenAll_AggregatesInOrder(t *testing.T) {
	mgr, id, _ := newTestEnv(t)
	ref := schedulerRef{mgr, id}

	a := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (int, error) { return 1, nil })
	b := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (int, error) {
		if err := c.Yield(); err != nil {
			return 0, err
		}
		return 2, nil
	})

	outer := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) ([]int, error) {
		return WhenAll(c, a, b)
	})
	require.False(t, outer.IsReady())
	ref.update(t)
	require.True(t, outer.IsReady())

	v, err := outer.Result()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, v)
}

func TestWhenAll_FirstFailureAborts(t *testing.T) {
	mgr, id, _ := newTestEnv(t)
	ref := schedulerRef{mgr, id}
	boom := errors.New("boom")

	failing := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (int, error) { return 0, boom })
	neverAwaited := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (int, error) {
		if err := c.Yield(); err != nil {
			return 0, err
		}
		return 99, nil
	})

	outer := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) ([]int, error) {
		return WhenAll(c, failing, neverAwaited)
	})
	require.True(t, outer.IsReady())
	_, err := outer.Result()
	require.ErrorIs(t, err, boom)

	// neverAwaited keeps running independently; it is still owned by the
	// caller's local variable, not forgotten by WhenAll.
	require.False(t, neverAwaited.IsReady())
	ref.update(t)
	require.True(t, neverAwaited.IsReady())
}

// Scenario 5: WhenAny winner — t1 (1 yield, 10), t2 (2 yields, 20), t3 (3
// yields, 30): after 1 Update(), WhenAny delivers (index=0, value=10).
func TestWhenAny_Winner(t *testing.T) {
	mgr, id, _ := newTestEnv(t)
	ref := schedulerRef{mgr, id}

	mk := func(yields, value int) *Task[int] {
		return New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (int, error) {
			if err := c.DelayFrame(yields); err != nil {
				return 0, err
			}
			return value, nil
		})
	}

	t1 := mk(1, 10)
	t2 := mk(2, 20)
	t3 := mk(3, 30)

	outer := New(Spawn{Manager: mgr, ThreadID: 1}, func(c *Ctx) (WhenAnyResult[int], error) {
		return WhenAny(c, t1, t2, t3)
	})
	require.False(t, outer.IsReady())

	ref.update(t)
	require.True(t, outer.IsReady())

	result, err := outer.Result()
	require.NoError(t, err)
	require.Equal(t, 0, result.Index)
	require.Equal(t, 10, result.Value)
}
