package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sigflow/sigflow/pkg/worker"
)

func (m *Manager) initWorkerMetrics(cfg Config) {
	m.workerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current number of accepted, not yet executed worker tasks",
		},
		[]string{"worker"},
	)

	m.workerTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_tasks_total",
			Help: "Total number of worker tasks by status",
		},
		[]string{"worker", "status"},
	)

	m.workerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_task_duration_seconds",
			Help:    "Worker task execution duration in seconds",
			Buckets: cfg.WorkerDurationBuckets,
		},
		[]string{"worker"},
	)

	m.registry.MustRegister(m.workerQueueDepth)
	m.registry.MustRegister(m.workerTasks)
	m.registry.MustRegister(m.workerDuration)
}

// RecordWorkerTask records one finished worker task and its duration.
func (m *Manager) RecordWorkerTask(name, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.workerTasks.WithLabelValues(name, status).Inc()
	m.workerDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// ObserveWorkerQueueDepth publishes a snapshot of a worker's queue depth.
func (m *Manager) ObserveWorkerQueueDepth(name string, depth int) {
	if !m.enabled {
		return
	}
	m.workerQueueDepth.WithLabelValues(name).Set(float64(depth))
}

// workerRecorder adapts the manager to the worker package's recorder seam.
type workerRecorder struct {
	m *Manager
}

func (r workerRecorder) RecordTask(name, status string, duration time.Duration) {
	r.m.RecordWorkerTask(name, status, duration)
}

func (r workerRecorder) RecordQueueDepth(name string, depth int) {
	r.m.ObserveWorkerQueueDepth(name, depth)
}

// BindWorkers installs the manager as the process-wide worker recorder.
func (m *Manager) BindWorkers() {
	worker.SetMetricsRecorder(workerRecorder{m})
}

var _ worker.MetricsRecorder = workerRecorder{}
