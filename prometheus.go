package jiggler

import (
	"net/http"

	"github.com/jetkvm/jiggler/internal/motion"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
)

const (
	triggerScheduled = "scheduled"
	triggerManual    = "manual"

	failureInvalidCredentials = "invalid_credentials"
	failureNoCapacity         = "no_capacity"
	failureRateLimited        = "rate_limited"
)

type deviceMetrics struct {
	movements     *prometheus.CounterVec
	hidReports    prometheus.Counter
	loginFailures *prometheus.CounterVec

	handler http.Handler
}

// newDeviceMetrics registers the device collectors on a registry of its own
// so several devices can coexist in one process.
func newDeviceMetrics(activeSessions func() float64) *deviceMetrics {
	version.Version = builtAppVersion

	m := &deviceMetrics{
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jiggler_movements_total",
			Help: "Number of completed mouse movements by trigger.",
		}, []string{"trigger"}),
		hidReports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jiggler_hid_reports_total",
			Help: "Number of HID mouse reports accepted by the gadget.",
		}),
		loginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jiggler_login_failures_total",
			Help: "Number of rejected login attempts by reason.",
		}, []string{"reason"}),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		m.movements,
		m.hidReports,
		m.loginFailures,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "jiggler_active_sessions",
			Help: "Number of active web sessions.",
		}, activeSessions),
		versioncollector.NewCollector("jiggler"),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return m
}

// countingSink counts the reports the wrapped sink accepted.
type countingSink struct {
	motion.HIDSink
	reports prometheus.Counter
}

func (s countingSink) Move(dx, dy, wheel int16) error {
	if err := s.HIDSink.Move(dx, dy, wheel); err != nil {
		return err
	}
	s.reports.Inc()
	return nil
}

func (s countingSink) Press(button motion.Button) error {
	if err := s.HIDSink.Press(button); err != nil {
		return err
	}
	s.reports.Inc()
	return nil
}

func (s countingSink) Release(button motion.Button) error {
	if err := s.HIDSink.Release(button); err != nil {
		return err
	}
	s.reports.Inc()
	return nil
}
