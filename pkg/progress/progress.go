// Package progress provides signal-backed progress reporting for long
// running tasks, including weighted aggregation across sub-tasks.
package progress

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/sigflow/sigflow/pkg/signal"
)

// State is one point-in-time view of a reporter, carried by OnUpdated.
type State struct {
	Progress float32
	Message  string
}

// Reporter tracks a scalar progress value in [0, 1] plus an optional status
// message. The progress value is stored as raw float bits in a single atomic
// word so hot polling loops can read it without locking.
//
// Change notifications fire only when a set actually changes the stored
// value, so repeated writes of the same progress are silent.
type Reporter struct {
	bits atomic.Uint32

	mu         sync.Mutex
	message    string
	hasMessage bool

	progressChanged *signal.Signal[float32]
	messageChanged  *signal.Signal[string]
	updated         *signal.Signal[State]
}

// NewReporter creates a reporter at progress 0 with no message.
func NewReporter() *Reporter {
	return &Reporter{
		progressChanged: signal.New[float32](),
		messageChanged:  signal.New[string](),
		updated:         signal.New[State](),
	}
}

// OnProgressChanged is emitted with the new value after the progress value
// changes.
func (r *Reporter) OnProgressChanged() *signal.Signal[float32] {
	return r.progressChanged
}

// OnMessageChanged is emitted with the new message after it changes.
func (r *Reporter) OnMessageChanged() *signal.Signal[string] {
	return r.messageChanged
}

// OnUpdated is emitted after any change to progress or message, at most once
// per mutating call.
func (r *Reporter) OnUpdated() *signal.Signal[State] {
	return r.updated
}

// Progress returns the current value in [0, 1].
func (r *Reporter) Progress() float32 {
	return math.Float32frombits(r.bits.Load())
}

// Message returns the current status message, and whether one has been set.
func (r *Reporter) Message() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.message, r.hasMessage
}

// SetProgress clamps p to [0, 1] and stores it. Signals fire only when the
// clamped value differs from the previous one.
func (r *Reporter) SetProgress(p float32) {
	p = clamp(p)
	if !r.store(p) {
		return
	}
	r.progressChanged.Emit(p)
	msg, _ := r.Message()
	r.updated.Emit(State{Progress: p, Message: msg})
}

// SetMessage replaces the status message, emitting OnUpdated if it changed.
func (r *Reporter) SetMessage(msg string) {
	r.mu.Lock()
	changed := !r.hasMessage || r.message != msg
	r.message = msg
	r.hasMessage = true
	r.mu.Unlock()

	if changed {
		r.messageChanged.Emit(msg)
		r.updated.Emit(State{Progress: r.Progress(), Message: msg})
	}
}

// Update sets progress and message together, emitting OnUpdated at most once
// when either changed. OnProgressChanged still fires for a progress change.
func (r *Reporter) Update(p float32, msg string) {
	p = clamp(p)
	progressChanged := r.store(p)

	r.mu.Lock()
	messageChanged := !r.hasMessage || r.message != msg
	r.message = msg
	r.hasMessage = true
	r.mu.Unlock()

	if progressChanged {
		r.progressChanged.Emit(p)
	}
	if messageChanged {
		r.messageChanged.Emit(msg)
	}
	if progressChanged || messageChanged {
		r.updated.Emit(State{Progress: p, Message: msg})
	}
}

// Reset returns the reporter to progress 0 with no message, silently.
func (r *Reporter) Reset() {
	r.bits.Store(0)
	r.mu.Lock()
	r.message = ""
	r.hasMessage = false
	r.mu.Unlock()
}

// store writes p and reports whether the value changed.
func (r *Reporter) store(p float32) bool {
	return r.bits.Swap(math.Float32bits(p)) != math.Float32bits(p)
}

func clamp(p float32) float32 {
	switch {
	case p < 0 || p != p: // NaN sets to 0
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
