package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sigflow/sigflow/pkg/pool"
)

func (m *Manager) initPoolMetrics(cfg Config) {
	m.poolQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pool_queue_depth",
			Help: "Current number of queued, not yet started pool tasks",
		},
		[]string{"pool"},
	)

	m.poolTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_tasks_total",
			Help: "Total number of pool tasks by status",
		},
		[]string{"pool", "status"},
	)

	m.poolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pool_task_duration_seconds",
			Help:    "Pool task execution duration in seconds",
			Buckets: cfg.PoolDurationBuckets,
		},
		[]string{"pool"},
	)

	m.registry.MustRegister(m.poolQueueDepth)
	m.registry.MustRegister(m.poolTasks)
	m.registry.MustRegister(m.poolDuration)
}

// RecordPoolTask records one finished pool task and its duration.
func (m *Manager) RecordPoolTask(name, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.poolTasks.WithLabelValues(name, status).Inc()
	m.poolDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// ObservePoolQueueDepth publishes a snapshot of a pool's queue depth.
func (m *Manager) ObservePoolQueueDepth(name string, depth int) {
	if !m.enabled {
		return
	}
	m.poolQueueDepth.WithLabelValues(name).Set(float64(depth))
}

// poolRecorder adapts the manager to the pool package's recorder seam.
type poolRecorder struct {
	m *Manager
}

func (r poolRecorder) RecordTask(name, status string, duration time.Duration) {
	r.m.RecordPoolTask(name, status, duration)
}

func (r poolRecorder) RecordQueueDepth(name string, depth int) {
	r.m.ObservePoolQueueDepth(name, depth)
}

// BindPools installs the manager as the process-wide pool recorder.
func (m *Manager) BindPools() {
	pool.SetMetricsRecorder(poolRecorder{m})
}

var _ pool.MetricsRecorder = poolRecorder{}
