package task

import (
	"sync"

	"github.com/taskkit/taskkit/scheduler"
)

type resultState int

const (
	empty resultState = iota
	hasValue
	hasFailure
)

// promise is the per-coroutine state described in §3: result union,
// optional continuation, and the forgotten flag. It is not exported —
// Task[T] and Ctx are the user-facing surface.
type promise[T any] struct {
	mu           sync.Mutex
	state        resultState
	value        T
	err          error
	continuation scheduler.Handle
	forgotten    bool
}

// complete transitions result from empty to exactly one of value/failure,
// per §3's invariant, and returns the continuation to symmetrically
// transfer to (possibly nil) plus whether the task was forgotten.
func (p *promise[T]) complete(v T, err error) (forgotten bool, continuation scheduler.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != empty {
		panic("task: promise result set twice")
	}
	if err != nil {
		p.state = hasFailure
		p.err = err
	} else {
		p.state = hasValue
		p.value = v
	}
	return p.forgotten, p.continuation
}

func (p *promise[T]) isReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != empty
}

func (p *promise[T]) result() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// setContinuation records h as the handle to resume when this promise
// completes. Per §3, this must happen before the awaiter suspends.
func (p *promise[T]) setContinuation(h scheduler.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.continuation = h
}

// markForgotten flags the promise so its eventual completion self-cleans
// rather than waiting for an awaiter that will never come. Returns
// whether the result was already set at the time of the call.
func (p *promise[T]) markForgotten() (alreadyReady bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	alreadyReady = p.state != empty
	if !alreadyReady {
		p.forgotten = true
	}
	return alreadyReady
}
