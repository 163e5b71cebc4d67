package pool

import (
	"sync/atomic"
	"time"
)

// MetricsRecorder receives pool activity events. Implementations must be
// safe for concurrent use; recording happens on pool goroutines.
type MetricsRecorder interface {
	// RecordTask is called once per executed task with its status,
	// "completed" or "panicked", and execution duration.
	RecordTask(pool, status string, duration time.Duration)

	// RecordQueueDepth is called with the queue depth after every
	// enqueue and dequeue.
	RecordQueueDepth(pool string, depth int)
}

// nopRecorder discards all events. It is the default so pool carries no
// metrics dependency unless the host wires one in.
type nopRecorder struct{}

func (nopRecorder) RecordTask(string, string, time.Duration) {}
func (nopRecorder) RecordQueueDepth(string, int)             {}

var recorder atomic.Pointer[MetricsRecorder]

func init() {
	var nop MetricsRecorder = nopRecorder{}
	recorder.Store(&nop)
}

// SetMetricsRecorder installs a process-wide recorder for all pools.
// Passing nil restores the no-op recorder.
func SetMetricsRecorder(r MetricsRecorder) {
	if r == nil {
		r = nopRecorder{}
	}
	recorder.Store(&r)
}

func metricsRecorder() MetricsRecorder {
	return *recorder.Load()
}
