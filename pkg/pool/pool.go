// Package pool provides a fixed-size goroutine pool with task handles,
// cooperative cancellation and progress reporting.
//
// Tasks are plain closures submitted through the generic Spawn functions.
// Each submission returns a TaskHandle that resolves to the task's value, or
// to a failure marker if the task panicked. The queue is unbounded, so
// submission never blocks the producer; Close runs everything still queued
// before releasing the workers.
package pool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sigflow/sigflow/pkg/logger"
)

// Config controls pool construction.
type Config struct {
	// Workers is the number of goroutines draining the queue.
	// Defaults to runtime.NumCPU when zero or negative.
	Workers int

	// Name tags the pool in log output.
	Name string
}

// Stats is a point-in-time snapshot of pool activity.
type Stats struct {
	Workers   int
	Pending   int
	Submitted uint64
	Completed uint64
	Panicked  uint64
}

// Pool is a fixed set of worker goroutines draining one shared FIFO queue.
type Pool struct {
	name    string
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	wg sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// New creates a pool and starts its workers.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	name := cfg.Name
	if name == "" {
		name = "pool"
	}

	p := &Pool{
		name:    name,
		workers: workers,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	logger.Debug("pool started", "name", name, "workers", workers)
	return p
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// Stats returns a snapshot of the pool's counters and queue depth.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	pending := len(p.queue)
	p.mu.Unlock()
	return Stats{
		Workers:   p.workers,
		Pending:   pending,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// Close stops accepting new tasks and blocks until the workers have executed
// every task queued before the call. Already-queued tasks are never dropped.
// Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	logger.Debug("pool closed", "name", p.name,
		"completed", p.completed.Load(), "panicked", p.panicked.Load())
}

// submit enqueues fn. It reports false when the pool is closed, in which
// case fn will never run.
func (p *Pool) submit(fn func()) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, fn)
	// Recorded under the lock so depth values publish in queue order.
	metricsRecorder().RecordQueueDepth(p.name, len(p.queue))
	p.mu.Unlock()

	p.submitted.Add(1)
	p.cond.Signal()
	return true
}

// worker pops and runs tasks until the pool closes and the queue is empty.
func (p *Pool) worker(idx int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		fn := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		metricsRecorder().RecordQueueDepth(p.name, len(p.queue))
		p.mu.Unlock()

		p.run(idx, fn)
	}
}

// run executes one task, containing any panic so the worker survives.
func (p *Pool) run(idx int, fn func()) {
	start := time.Now()
	defer func() {
		status := "completed"
		if r := recover(); r != nil {
			status = "panicked"
			p.panicked.Add(1)
			logger.Error("pool task panicked",
				"pool", p.name, "worker", idx, "panic", r)
		}
		p.completed.Add(1)
		metricsRecorder().RecordTask(p.name, status, time.Since(start))
	}()
	fn()
}
