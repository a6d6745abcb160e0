// Package metrics defines the hub's prometheus collectors.
//
// All recording methods are safe on a nil *Metrics so components can run
// without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "telemetry_hub"

// Metrics groups every collector the hub exports.
type Metrics struct {
	ConnectionsActive *prometheus.GaugeVec
	DevicesKnown      prometheus.Gauge
	DevicesOnline     prometheus.Gauge
	SamplesTotal      *prometheus.CounterVec
	BroadcastsTotal   *prometheus.CounterVec
	BroadcastDrops    *prometheus.CounterVec
	SinkWrites        *prometheus.CounterVec
	SinkQueueDrops    *prometheus.CounterVec
	ArchiveFiles      *prometheus.CounterVec
	ArchiveDuration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "transport",
				Name:      "connections_active",
				Help:      "Open websocket connections by role",
			},
			[]string{"role"},
		),
		DevicesKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "devices_known",
			Help:      "Devices ever registered since process start",
		}),
		DevicesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "devices_online",
			Help:      "Devices with a live connection",
		}),
		SamplesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "samples_total",
				Help:      "Inbound sensor-data messages by outcome",
			},
			[]string{"outcome"},
		),
		BroadcastsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broadcast",
				Name:      "messages_total",
				Help:      "Messages fanned out to observers by type",
			},
			[]string{"type"},
		),
		BroadcastDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broadcast",
				Name:      "drops_total",
				Help:      "Per-observer deliveries dropped because the send queue was full or closed",
			},
			[]string{"type"},
		),
		SinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sink",
				Name:      "writes_total",
				Help:      "Sample writes by sink and status",
			},
			[]string{"sink", "status"},
		),
		SinkQueueDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sink",
				Name:      "queue_drops_total",
				Help:      "Samples dropped because a sink queue was full",
			},
			[]string{"sink"},
		),
		ArchiveFiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "archive",
				Name:      "files_total",
				Help:      "Archive pass outcomes per file",
			},
			[]string{"outcome"},
		),
		ArchiveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one archive pass",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectionsActive,
			m.DevicesKnown,
			m.DevicesOnline,
			m.SamplesTotal,
			m.BroadcastsTotal,
			m.BroadcastDrops,
			m.SinkWrites,
			m.SinkQueueDrops,
			m.ArchiveFiles,
			m.ArchiveDuration,
		)
	}
	return m
}

func (m *Metrics) ConnectionOpened(role string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(role).Inc()
}

func (m *Metrics) ConnectionClosed(role string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.WithLabelValues(role).Dec()
}

// RegistrySize records the registry totals after a mutation.
func (m *Metrics) RegistrySize(known, online int) {
	if m == nil {
		return
	}
	m.DevicesKnown.Set(float64(known))
	m.DevicesOnline.Set(float64(online))
}

func (m *Metrics) Sample(outcome string) {
	if m == nil {
		return
	}
	m.SamplesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Broadcast(msgType string, delivered, dropped int) {
	if m == nil {
		return
	}
	m.BroadcastsTotal.WithLabelValues(msgType).Add(float64(delivered))
	if dropped > 0 {
		m.BroadcastDrops.WithLabelValues(msgType).Add(float64(dropped))
	}
}

func (m *Metrics) SinkWrite(sink string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SinkWrites.WithLabelValues(sink, status).Inc()
}

func (m *Metrics) SinkDropped(sink string) {
	if m == nil {
		return
	}
	m.SinkQueueDrops.WithLabelValues(sink).Inc()
}

func (m *Metrics) ArchiveFile(outcome string) {
	if m == nil {
		return
	}
	m.ArchiveFiles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ArchivePass(d time.Duration) {
	if m == nil {
		return
	}
	m.ArchiveDuration.Observe(d.Seconds())
}
