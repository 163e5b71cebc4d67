package progress

import (
	"sync"

	"github.com/sigflow/sigflow/pkg/signal"
)

// Aggregate composes the progress of multiple weighted sub-tasks into one
// scalar: the weighted mean of the sub-task values. Any change to a
// sub-task's progress immediately recomputes the aggregate and emits its
// change signal, so subscribers always see the composition move as soon as
// any contributor does.
type Aggregate struct {
	mu      sync.Mutex
	tasks   []aggregateTask
	total   float32
	current float32

	progressChanged *signal.Signal[float32]
}

type aggregateTask struct {
	name     string
	weight   float32
	reporter *Reporter
}

// NewAggregate creates an aggregate with no sub-tasks. Its progress is 0
// until the first task is added.
func NewAggregate() *Aggregate {
	return &Aggregate{
		progressChanged: signal.New[float32](),
	}
}

// OnProgressChanged is emitted with the recomputed weighted mean whenever
// any sub-task's progress changes.
func (a *Aggregate) OnProgressChanged() *signal.Signal[float32] {
	return a.progressChanged
}

// AddTask registers a weighted sub-task and returns the reporter that feeds
// it. Non-positive weights are treated as weight 1. Adding a task dilutes
// the weighted mean, so the aggregate is recomputed and re-emitted.
func (a *Aggregate) AddTask(name string, weight float32) *Reporter {
	if weight <= 0 {
		weight = 1
	}
	r := NewReporter()

	a.mu.Lock()
	a.tasks = append(a.tasks, aggregateTask{name: name, weight: weight, reporter: r})
	a.total += weight
	a.mu.Unlock()

	r.OnProgressChanged().ConnectWithType(func(float32) {
		a.recompute()
	}, signal.Direct)

	a.recompute()
	return r
}

// Reset returns every sub-task reporter to zero, then recomputes and
// re-emits the aggregate.
func (a *Aggregate) Reset() {
	a.mu.Lock()
	tasks := append([]aggregateTask(nil), a.tasks...)
	a.mu.Unlock()

	for _, t := range tasks {
		t.reporter.Reset()
	}
	a.recompute()
}

// Progress returns the current weighted mean in [0, 1].
func (a *Aggregate) Progress() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// TaskCount returns the number of registered sub-tasks.
func (a *Aggregate) TaskCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tasks)
}

// recompute folds the sub-task values into the weighted mean and emits it.
// The emit happens outside the lock so handlers may query the aggregate.
func (a *Aggregate) recompute() {
	a.mu.Lock()
	var sum float32
	for _, t := range a.tasks {
		sum += t.weight * t.reporter.Progress()
	}
	if a.total > 0 {
		a.current = sum / a.total
	} else {
		a.current = 0
	}
	value := a.current
	a.mu.Unlock()

	a.progressChanged.Emit(value)
}
