package pool

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sigflow/sigflow/pkg/logger"
	"github.com/sigflow/sigflow/pkg/progress"
	"github.com/sigflow/sigflow/pkg/runloop"
)

// TaskHandle is a single-assignment completion cell for one spawned task.
// It resolves exactly once: with the task's value on normal completion, or
// empty when the task panicked or the pool refused the submission.
type TaskHandle[T any] struct {
	id    string
	token *CancellationToken

	once  sync.Once
	done  chan struct{}
	value T
	ok    bool
}

func newHandle[T any](token *CancellationToken) *TaskHandle[T] {
	return &TaskHandle[T]{
		id:    uuid.NewString(),
		token: token,
		done:  make(chan struct{}),
	}
}

// ID returns the handle's unique identifier, useful for correlating logs.
func (h *TaskHandle[T]) ID() string {
	return h.id
}

// Done returns a channel closed once the task has resolved either way.
func (h *TaskHandle[T]) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task resolves. ok is false when the task panicked
// or never ran. There is no implicit timeout; bound the wait with
// WaitTimeout or an outer select when needed.
func (h *TaskHandle[T]) Wait() (T, bool) {
	<-h.done
	return h.value, h.ok
}

// WaitTimeout waits up to d for the task to resolve. resolved reports
// whether it did; on timeout the zero value is returned with ok false.
func (h *TaskHandle[T]) WaitTimeout(d time.Duration) (value T, ok bool, resolved bool) {
	select {
	case <-h.done:
		return h.value, h.ok, true
	case <-time.After(d):
		return value, false, false
	}
}

// TryGet returns the result without blocking. resolved is false while the
// task is still pending or running.
func (h *TaskHandle[T]) TryGet() (value T, ok bool, resolved bool) {
	select {
	case <-h.done:
		return h.value, h.ok, true
	default:
		return value, false, false
	}
}

// Cancel forwards to the task's cancellation token, when the task was
// spawned with one. Otherwise it is a no-op.
func (h *TaskHandle[T]) Cancel() {
	if h.token != nil {
		h.token.Cancel()
	}
}

func (h *TaskHandle[T]) complete(v T) {
	h.once.Do(func() {
		h.value = v
		h.ok = true
		close(h.done)
	})
}

// abandon resolves the handle empty. Called when the task panicked before
// completing or the pool rejected the submission. No-op after complete.
func (h *TaskHandle[T]) abandon() {
	h.once.Do(func() {
		close(h.done)
	})
}

// Spawn submits fn and returns a handle to its eventual result. Submission
// never blocks; the queue grows as needed. Spawning on a closed pool
// resolves the handle empty immediately.
func Spawn[T any](p *Pool, fn func() T) *TaskHandle[T] {
	h := newHandle[T](nil)
	enqueue(p, h, func() T { return fn() })
	return h
}

// SpawnCancellable submits fn with a fresh cancellation token that fn is
// expected to poll. Cancellation is advisory only.
func SpawnCancellable[T any](p *Pool, fn func(*CancellationToken) T) (*TaskHandle[T], *CancellationToken) {
	token := NewCancellationToken()
	h := newHandle[T](token)
	enqueue(p, h, func() T { return fn(token) })
	return h, token
}

// SpawnWithCallback submits fn and delivers its result to cb via deferred
// delivery to the spawning goroutine's run loop (the main loop when the
// spawner has none attached). cb is not invoked when the task panics.
func SpawnWithCallback[T any](p *Pool, fn func() T, cb func(T)) *TaskHandle[T] {
	origin := runloop.Current()
	h := newHandle[T](nil)
	enqueue(p, h, func() T {
		v := fn()
		runloop.Post(origin, func() { cb(v) })
		return v
	})
	return h
}

// SpawnWithProgress submits fn with both a cancellation token and a progress
// reporter it may update while running. Subscribe to the reporter's signals
// before the task makes progress you care about.
func SpawnWithProgress[T any](p *Pool, fn func(*CancellationToken, *progress.Reporter) T) (*TaskHandle[T], *CancellationToken, *progress.Reporter) {
	token := NewCancellationToken()
	reporter := progress.NewReporter()
	h := newHandle[T](token)
	enqueue(p, h, func() T { return fn(token, reporter) })
	return h, token, reporter
}

// enqueue wraps fn so the handle resolves on any exit path. A panic inside
// fn abandons the handle and then propagates to the worker's recovery.
func enqueue[T any](p *Pool, h *TaskHandle[T], fn func() T) {
	accepted := p.submit(func() {
		defer h.abandon()
		h.complete(fn())
	})
	if !accepted {
		logger.Warn("task submitted to closed pool", "pool", p.name, "task", h.id)
		h.abandon()
	}
}
