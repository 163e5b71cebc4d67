package signal

import "sync/atomic"

// MetricsRecorder receives signal activity events. Implementations must be
// safe for concurrent use; recording happens on the emitting goroutine.
type MetricsRecorder interface {
	// RecordEmit is called once per Emit or EmitQueued that dispatches.
	RecordEmit()

	// RecordEmitBlocked is called when an emission is suppressed by
	// SetBlocked.
	RecordEmitBlocked()

	// RecordDelivery is called per handler dispatch with the resolved
	// delivery mode: "direct", "queued" or "blocking_queued".
	RecordDelivery(mode string)

	// RecordConnect is called with the connection type name on connect.
	RecordConnect(kind string)

	// RecordDisconnect is called once per removed connection.
	RecordDisconnect()
}

// nopRecorder discards all events. It is the default so signal carries no
// metrics dependency unless the host wires one in.
type nopRecorder struct{}

func (nopRecorder) RecordEmit()           {}
func (nopRecorder) RecordEmitBlocked()    {}
func (nopRecorder) RecordDelivery(string) {}
func (nopRecorder) RecordConnect(string)  {}
func (nopRecorder) RecordDisconnect()     {}

var recorder atomic.Pointer[MetricsRecorder]

func init() {
	var nop MetricsRecorder = nopRecorder{}
	recorder.Store(&nop)
}

// SetMetricsRecorder installs a process-wide recorder for all signals.
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
