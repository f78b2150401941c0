package export

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collector's prometheus instruments. One Metrics value is
// shared by every collector generation; all methods are nil-safe.
type Metrics struct {
	enqueued prometheus.Counter
	written  prometheus.Counter
	dropped  *prometheus.CounterVec
	requeued prometheus.Counter
	queueLen prometheus.Gauge
	latency  prometheus.Histogram
}

// Drop reasons used as the "reason" label of the dropped counter.
const (
	DropRejected = "rejected"
	DropShutdown = "shutdown"
)

// NewMetrics creates and registers the collector metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graylogic_influx_points_enqueued_total",
			Help: "Points accepted into the export queue.",
		}),
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graylogic_influx_points_written_total",
			Help: "Points successfully written to the time-series store.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graylogic_influx_points_dropped_total",
			Help: "Points discarded without being written.",
		}, []string{"reason"}),
		requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graylogic_influx_points_requeued_total",
			Help: "Points put back at the head of the queue after a connectivity failure.",
		}),
		queueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "graylogic_influx_queue_length",
			Help: "Points currently waiting in the export queue.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "graylogic_influx_write_latency_seconds",
			Help:    "Latency of single point writes.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	reg.MustRegister(m.enqueued, m.written, m.dropped, m.requeued, m.queueLen, m.latency)
	return m
}

func (m *Metrics) pointEnqueued(queueLen int) {
	if m == nil {
		return
	}
	m.enqueued.Inc()
	m.queueLen.Set(float64(queueLen))
}

func (m *Metrics) pointWritten(d time.Duration, queueLen int) {
	if m == nil {
		return
	}
	m.written.Inc()
	m.latency.Observe(d.Seconds())
	m.queueLen.Set(float64(queueLen))
}

func (m *Metrics) pointRequeued(queueLen int) {
	if m == nil {
		return
	}
	m.requeued.Inc()
	m.queueLen.Set(float64(queueLen))
}

func (m *Metrics) pointsDropped(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.dropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) setQueueLen(n int) {
	if m == nil {
		return
	}
	m.queueLen.Set(float64(n))
}
