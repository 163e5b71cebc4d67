// Package worker provides a dedicated background goroutine with a private
// sequential task queue.
//
// Tasks run strictly one at a time, in submission order; no two tasks ever
// interleave. Each result is published over the worker's OnResult signal
// from the worker goroutine, so subscribers on other goroutines with a run
// loop receive it deferred under the default Auto connection.
//
// The worker's goroutine carries an attached run loop, which doubles as its
// task queue. Queued signal deliveries addressed to the worker therefore
// execute between its tasks.
package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sigflow/sigflow/pkg/logger"
	"github.com/sigflow/sigflow/pkg/progress"
	"github.com/sigflow/sigflow/pkg/runloop"
	"github.com/sigflow/sigflow/pkg/signal"
)

var (
	// ErrStopped is returned by submissions after Stop; the worker drains
	// what it already accepted but takes nothing new.
	ErrStopped = errors.New("worker: stopped")

	// ErrTaskFailed is returned by SendSync when the task panicked before
	// producing a value.
	ErrTaskFailed = errors.New("worker: task failed")
)

// Worker owns one goroutine executing tasks sequentially.
type Worker[T any] struct {
	name      string
	loop      *runloop.Loop
	warnDepth int

	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}

	onResult  *signal.Signal[T]
	processed atomic.Uint64
}

// Option configures a worker at construction.
type Option func(*workerOptions)

type workerOptions struct {
	queueWarnDepth int
}

// WithQueueWarnDepth makes submissions log a warning once the pending queue
// grows past n. Zero disables the check.
func WithQueueWarnDepth(n int) Option {
	return func(o *workerOptions) { o.queueWarnDepth = n }
}

// New starts a worker goroutine and returns once it is ready to accept
// tasks. name tags the worker in log output.
func New[T any](name string, opts ...Option) *Worker[T] {
	if name == "" {
		name = "worker"
	}
	var o workerOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker[T]{
		name:      name,
		warnDepth: o.queueWarnDepth,
		cancel:    cancel,
		done:      make(chan struct{}),
		onResult:  signal.New[T](),
	}

	ready := make(chan *runloop.Loop, 1)
	go func() {
		defer close(w.done)

		l, err := runloop.Attach()
		if err != nil {
			// The runtime never reuses a goroutine id for two live
			// goroutines, so a fresh goroutine always attaches.
			logger.Error("worker failed to attach run loop", "worker", name, "error", err)
			ready <- nil
			return
		}
		ready <- l

		logger.Debug("worker started", "worker", name, "goroutine", l.GID())
		l.Run(ctx)
		l.Detach()
		logger.Debug("worker exited", "worker", name, "processed", w.processed.Load())
	}()

	w.loop = <-ready
	return w
}

// OnResult is emitted with each task's value, on the worker goroutine, after
// the task completes and before the next one starts.
func (w *Worker[T]) OnResult() *signal.Signal[T] {
	return w.onResult
}

// Pending returns the number of accepted, not yet executed items.
func (w *Worker[T]) Pending() int {
	if w.loop == nil {
		return 0
	}
	return w.loop.Pending()
}

// Processed returns the number of tasks executed so far.
func (w *Worker[T]) Processed() uint64 {
	return w.processed.Load()
}

// Send enqueues fn for execution. It never blocks the caller. The task's
// value is published over OnResult. A panic inside fn is contained by the
// worker's loop; the worker keeps processing and nothing is published for
// the failed task.
func (w *Worker[T]) Send(fn func() T) error {
	return w.post(fn, nil)
}

// SendWithCallback enqueues fn and additionally delivers its value to cb via
// deferred delivery to the calling goroutine's run loop (the main loop when
// the caller has none attached). cb runs after the OnResult emission.
func (w *Worker[T]) SendWithCallback(fn func() T, cb func(T)) error {
	return w.post(fn, cb)
}

// SendSync enqueues fn and blocks until it has executed, returning its
// value. Calling from the worker goroutine itself executes fn immediately.
func (w *Worker[T]) SendSync(fn func() T) (T, error) {
	var value T
	if w.stopped.Load() || w.loop == nil {
		return value, ErrStopped
	}

	var ran bool
	err := runloop.PostBlocking(w.loop, func() {
		start := time.Now()
		defer func() {
			status := "completed"
			if !ran {
				status = "panicked"
			}
			metricsRecorder().RecordTask(w.name, status, time.Since(start))
			metricsRecorder().RecordQueueDepth(w.name, w.loop.Pending())
		}()

		value = fn()
		ran = true
		w.processed.Add(1)
		w.onResult.Emit(value)
	})
	if err != nil {
		return value, err
	}
	if !ran {
		return value, ErrTaskFailed
	}
	return value, nil
}

// SendWithProgress enqueues fn with a progress reporter it may update while
// running. The reporter is returned so the caller can subscribe before the
// task starts.
func (w *Worker[T]) SendWithProgress(fn func(*progress.Reporter) T) (*progress.Reporter, error) {
	reporter := progress.NewReporter()
	err := w.post(func() T { return fn(reporter) }, nil)
	if err != nil {
		return nil, err
	}
	return reporter, nil
}

func (w *Worker[T]) post(fn func() T, cb func(T)) error {
	if w.stopped.Load() || w.loop == nil {
		return ErrStopped
	}
	origin := runloop.Current()

	runloop.Post(w.loop, func() {
		start := time.Now()
		completed := false
		defer func() {
			// Runs before the loop's own recover when fn panics.
			status := "completed"
			if !completed {
				status = "panicked"
			}
			metricsRecorder().RecordTask(w.name, status, time.Since(start))
			metricsRecorder().RecordQueueDepth(w.name, w.loop.Pending())
		}()

		value := fn()
		completed = true
		w.processed.Add(1)
		w.onResult.Emit(value)
		if cb != nil {
			runloop.Post(origin, func() { cb(value) })
		}
	})

	if w.warnDepth > 0 {
		if pending := w.loop.Pending(); pending > w.warnDepth {
			logger.Warn("worker queue depth above threshold",
				"worker", w.name, "pending", pending, "threshold", w.warnDepth)
		}
	}
	return nil
}

// IsRunning reports whether the worker goroutine is still alive. A stopped
// worker counts as running until its accepted tasks finish draining.
func (w *Worker[T]) IsRunning() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Stop requests shutdown. The current task finishes, already-accepted tasks
// still run, and new submissions fail with ErrStopped. Idempotent.
func (w *Worker[T]) Stop() {
	if w.stopped.Swap(true) {
		return
	}
	w.cancel()
}

// Join blocks until the worker goroutine has exited. Join without a prior
// Stop blocks until someone else stops the worker.
func (w *Worker[T]) Join() {
	<-w.done
}

// JoinTimeout waits up to d for the worker goroutine to exit, reporting
// whether it did.
func (w *Worker[T]) JoinTimeout(d time.Duration) bool {
	select {
	case <-w.done:
		return true
	case <-time.After(d):
		return false
	}
}

// StopAndJoin stops the worker and waits for its goroutine to exit, after
// which every accepted task has run.
func (w *Worker[T]) StopAndJoin() {
	w.Stop()
	w.Join()
}
