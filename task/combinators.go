package task

import "sync"

// WhenAll awaits tasks in order (§4.7): the first failure aborts the
// await and surfaces immediately; any tasks not yet awaited keep running
// independently — WhenAll never forgets or destroys them, since ownership
// of the unawaited entries in tasks remains with whoever passed them in.
func WhenAll[T any](c *Ctx, tasks ...*Task[T]) ([]T, error) {
	return WhenAllSlice(c, tasks)
}

// WhenAllSlice is WhenAll over a pre-built slice, matching the original's
// two call shapes (see DESIGN.md).
func WhenAllSlice[T any](c *Ctx, tasks []*Task[T]) ([]T, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	results := make([]T, len(tasks))
	for i, t := range tasks {
		v, err := Await(c, t)
		if err != nil {
			return nil, err
		}
		results[i] = v
	}
	return results, nil
}

// WhenAnyResult is the discriminated result WhenAny delivers: which task
// won the race, and its value (the zero value of T for all-void tasks,
// where only Index matters).
type WhenAnyResult[T any] struct {
	Index int
	Value T
}

// WhenAny races tasks against each other (§4.7): a helper coroutine is
// spawned per task to await it and race to fill a shared result cell;
// helpers are detached (forgotten) and keep running after a winner is
// declared — their eventual values are discarded, per the spec's explicit
// "WhenAny caveats" (no preemption, no destroying a mid-flight
// coroutine).
func WhenAny[T any](c *Ctx, tasks ...*Task[T]) (WhenAnyResult[T], error) {
	return WhenAnySlice(c, tasks)
}

// WhenAnySlice is WhenAny over a pre-built slice.
func WhenAnySlice[T any](c *Ctx, tasks []*Task[T]) (WhenAnyResult[T], error) {
	var zero WhenAnyResult[T]
	if len(tasks) == 0 {
		panic("task: WhenAny requires at least one task")
	}

	var mu sync.Mutex
	var winner *WhenAnyResult[T]
	var winnerErr error

	for i, t := range tasks {
		i, t := i, t
		helper := New(c.Spawn(), func(hc *Ctx) (struct{}, error) {
			v, err := Await(hc, t)
			mu.Lock()
			defer mu.Unlock()
			if winner == nil && winnerErr == nil {
				if err != nil {
					winnerErr = err
				} else {
					winner = &WhenAnyResult[T]{Index: i, Value: v}
				}
			}
			return struct{}{}, nil
		})
		helper.Forget()
	}

	for {
		mu.Lock()
		w, werr := winner, winnerErr
		mu.Unlock()
		if w != nil {
			return *w, nil
		}
		if werr != nil {
			return zero, werr
		}
		if err := c.Yield(); err != nil {
			return zero, err
		}
	}
}
