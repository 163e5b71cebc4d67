package signal

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigflow/sigflow/pkg/goid"
	"github.com/sigflow/sigflow/pkg/runloop"
)

func TestEmitDirect_DeliversToAllInOrder(t *testing.T) {
	s := New[int]()

	var got []int
	s.ConnectWithType(func(v int) { got = append(got, v*10) }, Direct)
	s.ConnectWithType(func(v int) { got = append(got, v*100) }, Direct)

	s.Emit(3)
	s.Emit(4)

	assert.Equal(t, []int{30, 300, 40, 400}, got)
}

func TestAuto_NoAffinityIsDirect(t *testing.T) {
	s := New[string]()

	var got string
	s.Connect(func(v string) { got = v })

	s.Emit("hello")
	assert.Equal(t, "hello", got)
}

func TestDisconnect(t *testing.T) {
	s := New[int]()

	calls := 0
	id := s.Connect(func(int) { calls++ })
	require.Equal(t, 1, s.ConnectionCount())

	s.Emit(1)
	assert.True(t, s.Disconnect(id))
	s.Emit(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.ConnectionCount())

	// Second disconnect and unknown ids report false.
	assert.False(t, s.Disconnect(id))
	assert.False(t, s.Disconnect(ConnectionID(9999)))
}

func TestConnectionIDsNeverReused(t *testing.T) {
	s := New[int]()

	seen := make(map[ConnectionID]bool)
	for i := 0; i < 100; i++ {
		id := s.Connect(func(int) {})
		require.False(t, seen[id], "id %d handed out twice", id)
		seen[id] = true
		s.Disconnect(id)
	}
}

func TestDisconnectDuringEmit_SkipsLaterEntry(t *testing.T) {
	s := New[int]()

	var secondID ConnectionID
	firstRan, secondRan := false, false

	s.ConnectWithType(func(int) {
		firstRan = true
		s.Disconnect(secondID)
	}, Direct)
	secondID = s.ConnectWithType(func(int) { secondRan = true }, Direct)

	s.Emit(0)

	assert.True(t, firstRan)
	assert.False(t, secondRan, "entry disconnected mid-emit must be skipped")
}

func TestConnectDuringEmit_NotInCurrentDispatch(t *testing.T) {
	s := New[int]()

	lateRan := false
	s.ConnectWithType(func(int) {
		s.ConnectWithType(func(int) { lateRan = true }, Direct)
	}, Direct)

	s.Emit(0)
	assert.False(t, lateRan, "connection added mid-emit joins the next emit")

	s.Emit(1)
	assert.True(t, lateRan)
}

func TestSetBlocked(t *testing.T) {
	s := New[int]()

	calls := 0
	s.ConnectWithType(func(int) { calls++ }, Direct)

	s.SetBlocked(true)
	assert.True(t, s.IsBlocked())
	s.Emit(1)
	assert.Zero(t, calls)

	s.SetBlocked(false)
	assert.False(t, s.IsBlocked())
	s.Emit(2)
	assert.Equal(t, 1, calls)
}

func TestDisconnectAll(t *testing.T) {
	s := New[int]()

	calls := 0
	for i := 0; i < 5; i++ {
		s.Connect(func(int) { calls++ })
	}
	require.Equal(t, 5, s.ConnectionCount())

	s.DisconnectAll()
	assert.Equal(t, 0, s.ConnectionCount())

	s.Emit(1)
	assert.Zero(t, calls)
}

// startLoopGoroutine runs a goroutine with an attached, running loop and
// returns its loop plus a stop function that detaches and joins it.
func startLoopGoroutine(t *testing.T) (*runloop.Loop, func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	loopCh := make(chan *runloop.Loop, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		l, err := runloop.Attach()
		if err != nil {
			t.Error(err)
			loopCh <- nil
			return
		}
		loopCh <- l
		l.Run(ctx)
		l.Detach()
	}()

	l := <-loopCh
	require.NotNil(t, l)
	return l, func() {
		cancel()
		<-done
	}
}

// connectOn registers fn from the loop goroutine so the connection carries
// that goroutine's affinity.
func connectOn[T any](t *testing.T, l *runloop.Loop, s *Signal[T], fn func(T), kind ConnectionType) {
	t.Helper()
	err := runloop.PostBlocking(l, func() {
		s.ConnectWithType(fn, kind)
	})
	require.NoError(t, err)
}

func TestQueued_RunsOnSubscriberGoroutine(t *testing.T) {
	loop, stop := startLoopGoroutine(t)
	defer stop()

	s := New[int]()
	got := make(chan int, 1)
	connectOn(t, loop, s, func(v int) { got <- v }, Queued)

	s.Emit(7)

	select {
	case v := <-got:
		assert.Equal(t, 7, v)
	case <-time.After(2 * time.Second):
		t.Fatal("queued delivery never arrived")
	}
}

func TestBlockingQueued_HandlerCompletesBeforeEmitReturns(t *testing.T) {
	loop, stop := startLoopGoroutine(t)
	defer stop()

	s := New[int]()
	var ran atomic.Bool
	connectOn(t, loop, s, func(int) {
		time.Sleep(20 * time.Millisecond)
		ran.Store(true)
	}, BlockingQueued)

	s.Emit(1)
	assert.True(t, ran.Load(), "emit must not return before the handler ran")
}

func TestBlockingQueued_SameGoroutineRunsInline(t *testing.T) {
	loop, stop := startLoopGoroutine(t)
	defer stop()

	s := New[int]()
	ran := make(chan struct{})
	connectOn(t, loop, s, func(int) { close(ran) }, BlockingQueued)

	// Emitting from the destination goroutine must not deadlock.
	err := runloop.PostBlocking(loop, func() { s.Emit(1) })
	require.NoError(t, err)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("inline fallback did not run the handler")
	}
}

func TestAuto_CrossGoroutineIsQueued(t *testing.T) {
	loop, stop := startLoopGoroutine(t)
	defer stop()

	s := New[uint64]()
	gotGID := make(chan uint64, 1)
	connectOn(t, loop, s, func(uint64) { gotGID <- goid.Get() }, Auto)

	var delivered atomic.Bool
	s.ConnectWithType(func(uint64) { delivered.Store(true) }, Auto)

	s.Emit(0)
	assert.True(t, delivered.Load(), "affinity-free auto connection runs direct")

	select {
	case gid := <-gotGID:
		assert.Equal(t, loop.GID(), gid)
	case <-time.After(2 * time.Second):
		t.Fatal("cross-goroutine auto delivery never arrived")
	}
}

func TestEmitQueued_DefersEvenDirectConnections(t *testing.T) {
	loop, stop := startLoopGoroutine(t)
	defer stop()

	s := New[int]()
	got := make(chan int, 1)
	connectOn(t, loop, s, func(v int) { got <- v }, Direct)

	n := s.EmitQueued(42)
	assert.Equal(t, 1, n)

	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("forced queued delivery never arrived")
	}
}

func TestEmit_ConcurrentWithConnectDisconnect(t *testing.T) {
	s := New[int]()

	var total atomic.Int64
	stop := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				id := s.ConnectWithType(func(int) { total.Add(1) }, Direct)
				s.Disconnect(id)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.Emit(i)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestScopedConnection(t *testing.T) {
	s := New[int]()

	calls := 0
	sc := ConnectScoped(s, func(int) { calls++ }, Direct)
	require.Equal(t, 1, s.ConnectionCount())

	s.Emit(1)
	assert.True(t, sc.Dispose())
	s.Emit(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.ConnectionCount())

	// Idempotent.
	assert.False(t, sc.Dispose())
}

type countingRecorder struct {
	emits, blocked, connects, disconnects atomic.Int64
	deliveries                            sync.Map
}

func (r *countingRecorder) RecordEmit()        { r.emits.Add(1) }
func (r *countingRecorder) RecordEmitBlocked() { r.blocked.Add(1) }
func (r *countingRecorder) RecordDelivery(mode string) {
	v, _ := r.deliveries.LoadOrStore(mode, &atomic.Int64{})
	v.(*atomic.Int64).Add(1)
}
func (r *countingRecorder) RecordConnect(string) { r.connects.Add(1) }
func (r *countingRecorder) RecordDisconnect()    { r.disconnects.Add(1) }

func TestMetricsRecorderSeam(t *testing.T) {
	rec := &countingRecorder{}
	SetMetricsRecorder(rec)
	defer SetMetricsRecorder(nil)

	s := New[int]()
	id := s.ConnectWithType(func(int) {}, Direct)
	s.Emit(1)
	s.SetBlocked(true)
	s.Emit(2)
	s.SetBlocked(false)
	s.Disconnect(id)

	assert.Equal(t, int64(1), rec.emits.Load())
	assert.Equal(t, int64(1), rec.blocked.Load())
	assert.Equal(t, int64(1), rec.connects.Load())
	assert.Equal(t, int64(1), rec.disconnects.Load())
	v, ok := rec.deliveries.Load("direct")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.(*atomic.Int64).Load())
}
