package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigflow/sigflow/pkg/progress"
)

func TestSpawn_ResultThroughHandle(t *testing.T) {
	p := New(Config{Workers: 2, Name: "test"})
	defer p.Close()

	h := Spawn(p, func() int { return 6 * 7 })

	v, ok := h.Wait()
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.NotEmpty(t, h.ID())
}

func TestSpawn_ManyTasksAllComplete(t *testing.T) {
	p := New(Config{Workers: 4, Name: "test"})
	defer p.Close()

	const n = 100
	handles := make([]*TaskHandle[int], n)
	for i := 0; i < n; i++ {
		i := i
		handles[i] = Spawn(p, func() int { return i * i })
	}

	for i, h := range handles {
		v, ok := h.Wait()
		require.True(t, ok)
		assert.Equal(t, i*i, v)
	}

	stats := p.Stats()
	assert.Equal(t, uint64(n), stats.Submitted)
}

func TestSpawn_PanicResolvesEmptyAndWorkerSurvives(t *testing.T) {
	p := New(Config{Workers: 1, Name: "test"})
	defer p.Close()

	bad := Spawn(p, func() int { panic("boom") })
	good := Spawn(p, func() int { return 1 })

	_, ok := bad.Wait()
	assert.False(t, ok)

	v, ok := good.Wait()
	require.True(t, ok, "worker must keep processing after a panic")
	assert.Equal(t, 1, v)
	assert.Equal(t, uint64(1), p.Stats().Panicked)
}

func TestSpawnCancellable_StopsEarly(t *testing.T) {
	p := New(Config{Workers: 1, Name: "test"})
	defer p.Close()

	started := make(chan struct{})
	h, token := SpawnCancellable(p, func(tok *CancellationToken) int {
		close(started)
		i := 0
		for ; i < 100; i++ {
			if tok.IsCancelled() {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		return i
	})

	<-started
	time.Sleep(25 * time.Millisecond)
	token.Cancel()

	iterations, ok := h.Wait()
	require.True(t, ok)
	assert.Less(t, iterations, 100, "loop must stop before its natural bound")
	assert.True(t, token.IsCancelled())
}

func TestCancel_Idempotent(t *testing.T) {
	token := NewCancellationToken()
	assert.False(t, token.IsCancelled())

	token.Cancel()
	token.Cancel()
	assert.True(t, token.IsCancelled())

	select {
	case <-token.Done():
	default:
		t.Fatal("Done channel must be closed after cancel")
	}
}

func TestHandle_CancelForwardsToToken(t *testing.T) {
	p := New(Config{Workers: 1, Name: "test"})
	defer p.Close()

	h, token := SpawnCancellable(p, func(tok *CancellationToken) struct{} {
		<-tok.Done()
		return struct{}{}
	})

	h.Cancel()
	_, ok := h.Wait()
	assert.True(t, ok)
	assert.True(t, token.IsCancelled())
}

func TestHandle_TryGetAndWaitTimeout(t *testing.T) {
	p := New(Config{Workers: 1, Name: "test"})
	defer p.Close()

	release := make(chan struct{})
	h := Spawn(p, func() int {
		<-release
		return 5
	})

	_, _, resolved := h.TryGet()
	assert.False(t, resolved)

	_, _, resolved = h.WaitTimeout(10 * time.Millisecond)
	assert.False(t, resolved)

	close(release)
	v, ok, resolved := h.WaitTimeout(2 * time.Second)
	require.True(t, resolved)
	require.True(t, ok)
	assert.Equal(t, 5, v)
}

func TestSpawnWithCallback(t *testing.T) {
	p := New(Config{Workers: 2, Name: "test"})
	defer p.Close()

	got := make(chan int, 1)
	Spawn(p, func() struct{} { return struct{}{} }) // unrelated traffic
	h := SpawnWithCallback(p, func() int { return 9 }, func(v int) { got <- v })

	v, ok := h.Wait()
	require.True(t, ok)
	assert.Equal(t, 9, v)

	select {
	case v := <-got:
		assert.Equal(t, 9, v)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never delivered")
	}
}

func TestSpawnWithProgress(t *testing.T) {
	p := New(Config{Workers: 1, Name: "test"})
	defer p.Close()

	h, token, reporter := SpawnWithProgress(p, func(tok *CancellationToken, r *progress.Reporter) int {
		r.SetProgress(0.5)
		r.SetProgress(1)
		return 3
	})
	require.NotNil(t, token)

	v, ok := h.Wait()
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, float32(1), reporter.Progress())
}

func TestClose_DrainsQueuedTasks(t *testing.T) {
	p := New(Config{Workers: 1, Name: "test"})

	var completed atomic.Int64
	release := make(chan struct{})
	Spawn(p, func() struct{} { <-release; return struct{}{} })
	for i := 0; i < 10; i++ {
		Spawn(p, func() struct{} {
			completed.Add(1)
			return struct{}{}
		})
	}

	close(release)
	p.Close()

	assert.Equal(t, int64(10), completed.Load(), "queued tasks must run before shutdown")
}

func TestSpawnAfterClose_ResolvesEmpty(t *testing.T) {
	p := New(Config{Workers: 1, Name: "test"})
	p.Close()

	h := Spawn(p, func() int { return 1 })
	_, ok := h.Wait()
	assert.False(t, ok)
}

func TestGlobalLifecycle(t *testing.T) {
	ShutdownGlobal()
	defer ShutdownGlobal()

	built, err := InitGlobal(Config{Workers: 2})
	require.NoError(t, err)
	assert.Same(t, built, Global())

	_, err = InitGlobal(Config{Workers: 2})
	assert.ErrorIs(t, err, ErrGlobalInitialized)

	h := Spawn(Global(), func() string { return "ok" })
	v, ok := h.Wait()
	require.True(t, ok)
	assert.Equal(t, "ok", v)
}

func TestConcurrentSubmitters(t *testing.T) {
	p := New(Config{Workers: 4, Name: "test"})
	defer p.Close()

	var sum atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				Spawn(p, func() struct{} {
					sum.Add(1)
					return struct{}{}
				}).Wait()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(400), sum.Load())
}
