// Package runloop tracks goroutine roles and marshals deferred work between
// goroutines.
//
// Exactly one goroutine may be designated the "main" (owner) goroutine via
// RegisterMain; it is responsible for draining deferred deliveries addressed
// to it. Any goroutine that wants to receive deferred work attaches a Loop
// and drains it, typically through Run.
//
// Delivery rules:
//
//   - Post never blocks the producer; items execute in FIFO order within one
//     loop. There is no ordering guarantee across distinct loops.
//   - PostBlocking blocks the producer until the destination goroutine has
//     executed the item. Posting to the caller's own loop executes the item
//     synchronously instead, so a blocking post can never deadlock on itself.
//   - When the destination loop is missing or already closed, the item is
//     executed inline on the caller and a warning is logged; blocking and
//     non-blocking posts alike always return.
package runloop

import (
	"context"
	"errors"
	"sync"

	"github.com/sigflow/sigflow/pkg/goid"
	"github.com/sigflow/sigflow/pkg/logger"
)

var (
	// ErrMainRegistered is returned when RegisterMain is called after the
	// main goroutine has already been designated elsewhere.
	ErrMainRegistered = errors.New("runloop: main goroutine already registered")

	// ErrAlreadyAttached is returned when Attach is called on a goroutine
	// that already has a loop.
	ErrAlreadyAttached = errors.New("runloop: goroutine already has an attached loop")

	// ErrLoopClosed reports that a blocking post found its destination loop
	// closed and ran the item inline on the caller instead.
	ErrLoopClosed = errors.New("runloop: destination loop closed, executed inline")
)

// item is one deferred unit of work. done is non-nil for blocking posts and
// is closed once fn has executed.
type item struct {
	fn   func()
	done chan struct{}
}

// Loop is a FIFO queue of deferred work owned by a single goroutine.
type Loop struct {
	gid uint64

	mu     sync.Mutex
	queue  []item
	closed bool

	// wake is a capacity-1 doorbell for Run.
	wake chan struct{}
}

// registry of attached loops, keyed by goroutine id.
var (
	regMu   sync.RWMutex
	loops   = make(map[uint64]*Loop)
	mainID  uint64
	hasMain bool
)

// RegisterMain designates the calling goroutine as the owner of deferred
// deliveries and attaches its loop. It must be called exactly once, during
// bootstrap, before any cross-goroutine signal use. Calling it again from
// the same goroutine returns the existing loop.
func RegisterMain() (*Loop, error) {
	gid := goid.Get()

	regMu.Lock()
	defer regMu.Unlock()

	if hasMain {
		if mainID == gid {
			return loops[gid], nil
		}
		return nil, ErrMainRegistered
	}

	l := attachLocked(gid)
	mainID = gid
	hasMain = true
	logger.Debug("main run loop registered", "goroutine", gid)
	return l, nil
}

// MainID returns the goroutine id of the registered main loop.
func MainID() (uint64, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	return mainID, hasMain
}

// IsMain reports whether the calling goroutine is the main goroutine.
// Before RegisterMain has run it reports true, so early-initialization code
// is not misclassified.
func IsMain() bool {
	regMu.RLock()
	defer regMu.RUnlock()
	if !hasMain {
		return true
	}
	return mainID == goid.Get()
}

// Attach registers the calling goroutine as a drainable loop. Workers attach
// so that queued deliveries can target their goroutine.
func Attach() (*Loop, error) {
	gid := goid.Get()

	regMu.Lock()
	defer regMu.Unlock()

	if _, ok := loops[gid]; ok {
		return nil, ErrAlreadyAttached
	}
	return attachLocked(gid), nil
}

func attachLocked(gid uint64) *Loop {
	l := &Loop{
		gid:  gid,
		wake: make(chan struct{}, 1),
	}
	loops[gid] = l
	return l
}

// Current returns the loop attached to the calling goroutine, or nil.
func Current() *Loop {
	regMu.RLock()
	defer regMu.RUnlock()
	return loops[goid.Get()]
}

// Main returns the main loop, or nil if none has been registered.
func Main() *Loop {
	regMu.RLock()
	defer regMu.RUnlock()
	if !hasMain {
		return nil
	}
	return loops[mainID]
}

// GID returns the id of the goroutine that owns this loop.
func (l *Loop) GID() uint64 {
	return l.gid
}

// Pending returns the number of queued, not yet executed items.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Post enqueues fn for deferred execution on l's goroutine. A nil loop
// targets the main loop. If the destination is missing or closed, fn runs
// inline on the caller.
func Post(l *Loop, fn func()) {
	post(l, item{fn: fn})
}

// PostBlocking enqueues fn on l's goroutine and blocks until it has been
// executed. Posting to the caller's own loop executes fn synchronously. If
// the destination is missing or closed, fn runs inline and ErrLoopClosed is
// returned so callers can detect the failover.
func PostBlocking(l *Loop, fn func()) error {
	done, err := PostWithDone(l, fn)
	<-done
	return err
}

// PostWithDone enqueues fn like PostBlocking but returns immediately with a
// channel that closes once fn has executed, letting the caller queue several
// blocking deliveries before waiting on any of them. When fn has already run
// inline (own-loop target, missing or closed destination) the returned
// channel is already closed.
func PostWithDone(l *Loop, fn func()) (<-chan struct{}, error) {
	if l == nil {
		l = Main()
	}
	if l == nil {
		runInline(fn, "no main loop registered")
		return closedDone, ErrLoopClosed
	}
	if l.gid == goid.Get() {
		// Destination is the calling goroutine; waiting on ourselves
		// would deadlock.
		fn()
		return closedDone, nil
	}

	it := item{fn: fn, done: make(chan struct{})}
	if !l.enqueue(it) {
		runInline(fn, "destination loop closed")
		return closedDone, ErrLoopClosed
	}
	return it.done, nil
}

// closedDone is returned by PostWithDone for items that ran synchronously.
var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func post(l *Loop, it item) {
	if l == nil {
		l = Main()
	}
	if l == nil {
		runInline(it.fn, "no main loop registered")
		if it.done != nil {
			close(it.done)
		}
		return
	}
	if !l.enqueue(it) {
		runInline(it.fn, "destination loop closed")
		if it.done != nil {
			close(it.done)
		}
	}
}

// enqueue appends the item and rings the doorbell. It reports false when
// the loop has been detached.
func (l *Loop) enqueue(it item) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, it)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Drain executes every item queued at the time of the call plus any items
// enqueued while draining. It must be called from the loop's own goroutine.
func (l *Loop) Drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, it := range batch {
			execute(it)
		}
	}
}

// Run drains the loop until ctx is cancelled. Remaining items are drained
// once more on the way out so blocking posters are released.
func (l *Loop) Run(ctx context.Context) {
	l.Drain()
	for {
		select {
		case <-ctx.Done():
			l.Drain()
			return
		case <-l.wake:
			l.Drain()
		}
	}
}

// Detach closes the loop and unregisters it. Items still queued are executed
// before the loop disappears, so blocking posters never hang. Detach must be
// called from the loop's own goroutine.
func (l *Loop) Detach() {
	regMu.Lock()
	if loops[l.gid] == l {
		delete(loops, l.gid)
		if hasMain && mainID == l.gid {
			hasMain = false
		}
	}
	regMu.Unlock()

	l.mu.Lock()
	l.closed = true
	remaining := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, it := range remaining {
		execute(it)
	}
}

// execute runs one item, surviving handler panics so the loop (and any
// blocked poster) is not taken down by a misbehaving callback.
func execute(it item) {
	defer func() {
		if it.done != nil {
			close(it.done)
		}
		if r := recover(); r != nil {
			logger.Error("queued invocation panicked", "panic", r)
		}
	}()
	it.fn()
}

func runInline(fn func(), reason string) {
	logger.Warn("deferred delivery executed inline", "reason", reason)
	fn()
}
