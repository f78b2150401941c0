package importer

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the importer's prometheus instruments. Methods are nil-safe.
type Metrics struct {
	polls      prometheus.Counter
	pollErrors prometheus.Counter
	devices    prometheus.Gauge
}

// NewMetrics creates and registers the importer metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graylogic_influx_import_polls_total",
			Help: "Import queries run against the time-series store.",
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "graylogic_influx_import_poll_errors_total",
			Help: "Import queries that failed or returned no usable value.",
		}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "graylogic_influx_import_devices",
			Help: "Import devices with a running poll loop in the current generation.",
		}),
	}
	reg.MustRegister(m.polls, m.pollErrors, m.devices)
	return m
}

func (m *Metrics) poll(failed bool) {
	if m == nil {
		return
	}
	m.polls.Inc()
	if failed {
		m.pollErrors.Inc()
	}
}

func (m *Metrics) setDevices(n int) {
	if m == nil {
		return
	}
	m.devices.Set(float64(n))
}
