// Package signal provides a typed publish/subscribe primitive with
// per-connection delivery semantics.
//
// A Signal routes each emitted value to its connected handlers according to
// the connection's type:
//
//   - Direct: invoked synchronously on the emitting goroutine.
//   - Queued: deferred to the subscriber's run loop (the main loop when the
//     subscriber declared no affinity); the emitter does not wait.
//   - BlockingQueued: like Queued, but the emitter blocks until the
//     destination goroutine has executed the handler. Emitting from the
//     destination goroutine itself degrades to Direct so the emit cannot
//     deadlock on its own loop.
//   - Auto (default): Direct when the subscriber has no affinity or its
//     loop belongs to the emitting goroutine, Queued otherwise.
//
// A handler's affinity is the run loop attached to the goroutine that made
// the connection, captured at connect time.
//
// Connect, Disconnect and Emit may race freely from different goroutines.
// Emit dispatches against a point-in-time snapshot of the registry, so a
// concurrent disconnect neither breaks iteration nor revokes an entry whose
// invocation already started; an entry disconnected before its turn is
// skipped.
package signal

import (
	"sync"
	"sync/atomic"

	"github.com/sigflow/sigflow/pkg/goid"
	"github.com/sigflow/sigflow/pkg/runloop"
)

// ConnectionType specifies how a connected handler is invoked on emit.
type ConnectionType int

const (
	// Auto resolves to Direct for same-goroutine or affinity-free
	// subscribers and to Queued otherwise. This is the default.
	Auto ConnectionType = iota

	// Direct invokes the handler immediately on the emitting goroutine,
	// regardless of the subscriber's affinity.
	Direct

	// Queued defers the handler to the subscriber's run loop.
	Queued

	// BlockingQueued defers the handler like Queued but blocks the
	// emitter until the handler has executed.
	BlockingQueued
)

// String returns the connection type name used in logs and metrics labels.
func (t ConnectionType) String() string {
	switch t {
	case Auto:
		return "auto"
	case Direct:
		return "direct"
	case Queued:
		return "queued"
	case BlockingQueued:
		return "blocking_queued"
	default:
		return "unknown"
	}
}

// ConnectionID identifies one connection on a Signal. IDs are unique for
// the signal's lifetime and never reused after a disconnect.
type ConnectionID uint64

// connection is one registry entry. Liveness is an atomic so Emit can check
// it at dispatch time without re-entering the registry lock.
type connection[T any] struct {
	id     ConnectionID
	fn     func(T)
	kind   ConnectionType
	target *runloop.Loop // subscriber affinity; nil means none
	alive  atomic.Bool
}

// Signal is a typed emission point with any number of connected handlers.
// The zero value is not usable; construct with New.
type Signal[T any] struct {
	mu     sync.Mutex
	conns  []*connection[T] // insertion order, compacted when mostly dead
	index  map[ConnectionID]*connection[T]
	nextID uint64
	dead   int

	blocked atomic.Bool
}

// New creates a signal with no connections.
func New[T any]() *Signal[T] {
	return &Signal[T]{
		index: make(map[ConnectionID]*connection[T]),
	}
}

// Connect registers fn with the Auto connection type and returns its id.
func (s *Signal[T]) Connect(fn func(T)) ConnectionID {
	return s.ConnectWithType(fn, Auto)
}

// ConnectWithType registers fn with an explicit connection type. The
// subscriber's affinity is the loop attached to the calling goroutine, if
// any. Connecting never fails.
func (s *Signal[T]) ConnectWithType(fn func(T), kind ConnectionType) ConnectionID {
	conn := &connection[T]{
		fn:     fn,
		kind:   kind,
		target: runloop.Current(),
	}
	conn.alive.Store(true)

	s.mu.Lock()
	s.nextID++
	conn.id = ConnectionID(s.nextID)
	s.conns = append(s.conns, conn)
	s.index[conn.id] = conn
	s.mu.Unlock()

	metricsRecorder().RecordConnect(kind.String())
	return conn.id
}

// Disconnect removes the connection with the given id. It returns true when
// the connection was alive, false for unknown or already-disconnected ids.
// Safe to call while an Emit on the same signal is in progress, including
// from inside a handler.
func (s *Signal[T]) Disconnect(id ConnectionID) bool {
	s.mu.Lock()
	conn, ok := s.index[id]
	if ok {
		delete(s.index, id)
		s.dead++
		s.compactLocked()
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	conn.alive.Store(false)
	metricsRecorder().RecordDisconnect()
	return true
}

// DisconnectAll removes every connection.
func (s *Signal[T]) DisconnectAll() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.index = make(map[ConnectionID]*connection[T])
	s.dead = 0
	s.mu.Unlock()

	for _, conn := range conns {
		if conn.alive.Swap(false) {
			metricsRecorder().RecordDisconnect()
		}
	}
}

// ConnectionCount returns the number of live connections.
func (s *Signal[T]) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// SetBlocked suppresses or restores emission. While blocked, Emit is a
// no-op. Useful during initialization or batch updates to prevent cascading
// notifications.
func (s *Signal[T]) SetBlocked(blocked bool) {
	s.blocked.Store(blocked)
}

// IsBlocked reports whether emission is currently suppressed.
func (s *Signal[T]) IsBlocked() bool {
	return s.blocked.Load()
}

// Emit routes value to every connection alive when the dispatch snapshot is
// taken, per its connection type. Direct handlers run in connection order.
// Blocking waits are collected and awaited only after every entry has been
// dispatched, so one slow destination does not delay queueing to the rest.
//
// Re-entrant emission (a handler emitting on the same signal) is permitted
// and unbounded; bounding recursion is the caller's responsibility.
func (s *Signal[T]) Emit(value T) {
	if s.blocked.Load() {
		metricsRecorder().RecordEmitBlocked()
		return
	}
	metricsRecorder().RecordEmit()

	snapshot := s.snapshot()
	emitter := goid.Get()

	var waiters []<-chan struct{}
	for _, conn := range snapshot {
		if !conn.alive.Load() {
			continue
		}
		switch conn.kind {
		case Direct:
			s.invoke(conn, value)
			metricsRecorder().RecordDelivery("direct")
		case Auto:
			if conn.target == nil || conn.target.GID() == emitter {
				s.invoke(conn, value)
				metricsRecorder().RecordDelivery("direct")
			} else {
				s.queue(conn, value)
			}
		case Queued:
			s.queue(conn, value)
		case BlockingQueued:
			waiters = append(waiters, s.queueBlocking(conn, value))
		}
	}

	for _, done := range waiters {
		<-done
	}
}

// EmitQueued forces deferred delivery for every connection regardless of
// its type and returns the number of handlers queued. Use it to break
// re-entrancy or batch updates behind the run loop. Returns 0 when blocked.
func (s *Signal[T]) EmitQueued(value T) int {
	if s.blocked.Load() {
		metricsRecorder().RecordEmitBlocked()
		return 0
	}
	metricsRecorder().RecordEmit()

	snapshot := s.snapshot()
	queued := 0
	for _, conn := range snapshot {
		if !conn.alive.Load() {
			continue
		}
		s.queue(conn, value)
		queued++
	}
	return queued
}

// snapshot copies the current entry list so dispatch can proceed without
// holding the registry lock.
func (s *Signal[T]) snapshot() []*connection[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*connection[T], len(s.conns))
	copy(out, s.conns)
	return out
}

// invoke runs a handler synchronously, re-checking liveness at the last
// moment in case a concurrent disconnect raced the snapshot.
func (s *Signal[T]) invoke(conn *connection[T], value T) {
	if !conn.alive.Load() {
		return
	}
	conn.fn(value)
}

func (s *Signal[T]) queue(conn *connection[T], value T) {
	runloop.Post(conn.target, func() {
		s.invoke(conn, value)
	})
	metricsRecorder().RecordDelivery("queued")
}

func (s *Signal[T]) queueBlocking(conn *connection[T], value T) <-chan struct{} {
	done, _ := runloop.PostWithDone(conn.target, func() {
		s.invoke(conn, value)
	})
	metricsRecorder().RecordDelivery("blocking_queued")
	return done
}

// compactLocked rebuilds the entry slice once more than half of it is dead,
// keeping disconnect O(1) without letting dead entries accumulate.
func (s *Signal[T]) compactLocked() {
	if s.dead*2 <= len(s.conns) {
		return
	}
	live := s.conns[:0]
	for _, conn := range s.conns {
		if conn.alive.Load() {
			live = append(live, conn)
		}
	}
	// Drop trailing pointers so disconnected handlers can be collected.
	for i := len(live); i < len(s.conns); i++ {
		s.conns[i] = nil
	}
	s.conns = live
	s.dead = 0
}
