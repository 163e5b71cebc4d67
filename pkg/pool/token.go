package pool

import (
	"sync"
	"sync/atomic"
)

// CancellationToken is a cooperative stop request shared between a task and
// whoever may cancel it. Cancellation is advisory: the task must poll
// IsCancelled (or select on Done) and return early; nothing is preempted.
//
// The flag transitions false to true exactly once. Cancel is idempotent and
// always safe, including on tokens whose task already finished.
type CancellationToken struct {
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewCancellationToken creates an uncancelled token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{done: make(chan struct{})}
}

// Cancel requests that the associated task stop.
func (t *CancellationToken) Cancel() {
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
	})
}

// IsCancelled reports whether Cancel has been called. A single atomic load,
// cheap enough to poll every loop iteration.
func (t *CancellationToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// Done returns a channel closed on cancellation, for select-based waits.
func (t *CancellationToken) Done() <-chan struct{} {
	return t.done
}
