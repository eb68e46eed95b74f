package vhci

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters/gauges a caller may wire into its own
// registry. It is optional: a nil *Metrics (the Driver default) means the
// façade does no instrumentation at all, matching the library's
// silent-unless-asked posture for the logger.
type Metrics struct {
	attachTotal     *prometheus.CounterVec
	detachTotal     *prometheus.CounterVec
	freePortsGauge  prometheus.Gauge
	attachedDevices prometheus.Gauge
}

// NewMetrics constructs a Metrics and registers it with reg. Passing a
// fresh prometheus.NewRegistry() keeps this library's metrics isolated
// from the default global registry unless the caller chooses otherwise.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attachTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vhci_attach_total",
			Help: "Attach attempts by outcome.",
		}, []string{"outcome"}),
		detachTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vhci_detach_total",
			Help: "Detach attempts by outcome.",
		}, []string{"outcome"}),
		freePortsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vhci_free_ports",
			Help: "Currently free ports across all virtual host controllers.",
		}),
		attachedDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vhci_attached_devices",
			Help: "Currently attached devices known to this process.",
		}),
	}
	reg.MustRegister(m.attachTotal, m.detachTotal, m.freePortsGauge, m.attachedDevices)
	return m
}

func (m *Metrics) observeAttach(ok bool, freePorts int) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.attachTotal.WithLabelValues(outcome).Inc()
	m.freePortsGauge.Set(float64(freePorts))
	if ok {
		m.attachedDevices.Inc()
	}
}

func (m *Metrics) observeDetach(ok bool, freePorts int) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.detachTotal.WithLabelValues(outcome).Inc()
	m.freePortsGauge.Set(float64(freePorts))
	if ok {
		m.attachedDevices.Dec()
	}
}
