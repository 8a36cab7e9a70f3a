package task

import "errors"

// ErrOperationStopped is the cancellation sentinel every wait combinator
// fails with at the first yield observed after its context.Context is
// cancelled, per §7. Use errors.Is to detect it across the await chain.
var ErrOperationStopped = errors.New("task: operation stopped")

// ErrFrameDestroyed is returned by a suspended combinator when its frame
// was torn down by Scheduler.Close while still queued, rather than
// resumed normally.
var ErrFrameDestroyed = errors.New("task: frame destroyed while suspended")
