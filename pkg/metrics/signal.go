package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sigflow/sigflow/pkg/signal"
)

func (m *Manager) initSignalMetrics() {
	m.signalEmits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_emits_total",
			Help: "Total number of signal emissions by outcome",
		},
		[]string{"outcome"},
	)

	m.signalDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_deliveries_total",
			Help: "Total number of handler deliveries by mode",
		},
		[]string{"mode"},
	)

	m.signalConns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_connections_total",
			Help: "Total number of connect operations by connection type",
		},
		[]string{"type"},
	)

	m.signalLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "signal_live_connections",
			Help: "Current number of live signal connections",
		},
	)

	m.registry.MustRegister(m.signalEmits)
	m.registry.MustRegister(m.signalDeliveries)
	m.registry.MustRegister(m.signalConns)
	m.registry.MustRegister(m.signalLive)
}

// RecordEmit counts one dispatched emission.
func (m *Manager) RecordEmit() {
	if !m.enabled {
		return
	}
	m.signalEmits.WithLabelValues("dispatched").Inc()
}

// RecordEmitBlocked counts one emission suppressed by a blocked signal.
func (m *Manager) RecordEmitBlocked() {
	if !m.enabled {
		return
	}
	m.signalEmits.WithLabelValues("blocked").Inc()
}

// RecordDelivery counts one handler delivery in the given mode.
func (m *Manager) RecordDelivery(mode string) {
	if !m.enabled {
		return
	}
	m.signalDeliveries.WithLabelValues(mode).Inc()
}

// RecordConnect counts one connection of the given type.
func (m *Manager) RecordConnect(kind string) {
	if !m.enabled {
		return
	}
	m.signalConns.WithLabelValues(kind).Inc()
	m.signalLive.Inc()
}

// RecordDisconnect counts one disconnection.
func (m *Manager) RecordDisconnect() {
	if !m.enabled {
		return
	}
	m.signalLive.Dec()
}

// BindSignals installs the manager as the process-wide signal recorder.
func (m *Manager) BindSignals() {
	signal.SetMetricsRecorder(m)
}

var _ signal.MetricsRecorder = (*Manager)(nil)
