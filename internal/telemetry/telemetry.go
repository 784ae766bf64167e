package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for the supervisor.
type Metrics struct {
	registry                *prometheus.Registry
	pollDurationSeconds     prometheus.Histogram
	servicesTotal           *prometheus.GaugeVec
	compositeHealthGauge    prometheus.Gauge
	alertsTotal             *prometheus.CounterVec
	healthCheckErrorsTotal  prometheus.Counter
	lastSuccessfulPollGauge prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		pollDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "service_sentinel_poll_duration_seconds",
			Help:    "Duration of per-service poll cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		servicesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "service_sentinel_services_total",
			Help: "Total managed services by lifecycle state.",
		}, []string{"state"}),
		compositeHealthGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "service_sentinel_composite_health",
			Help: "Composite health verdict: 0 healthy, 1 degraded, 2 unhealthy.",
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "service_sentinel_alerts_total",
			Help: "Total alerts raised by service and severity.",
		}, []string{"service", "severity"}),
		healthCheckErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "service_sentinel_health_check_errors_total",
			Help: "Total health checks that errored or timed out.",
		}),
		lastSuccessfulPollGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "service_sentinel_last_successful_poll_timestamp",
			Help: "Unix timestamp of the last successful poll cycle.",
		}),
	}

	registry.MustRegister(
		m.pollDurationSeconds,
		m.servicesTotal,
		m.compositeHealthGauge,
		m.alertsTotal,
		m.healthCheckErrorsTotal,
		m.lastSuccessfulPollGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePollDuration records the duration of a completed poll cycle.
func (m *Metrics) ObservePollDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.pollDurationSeconds.Observe(duration.Seconds())
}

// SetServicesTotal sets the services gauge for the given lifecycle state.
func (m *Metrics) SetServicesTotal(state string, value int) {
	if m == nil {
		return
	}
	m.servicesTotal.WithLabelValues(state).Set(float64(value))
}

// SetCompositeHealth records the composite verdict as a gauge level.
func (m *Metrics) SetCompositeHealth(level int) {
	if m == nil {
		return
	}
	m.compositeHealthGauge.Set(float64(level))
}

// IncAlertsTotal increments the alerts counter for the given service/severity.
func (m *Metrics) IncAlertsTotal(service string, severity string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(service, severity).Inc()
}

// IncHealthCheckErrors increments the health check error counter.
func (m *Metrics) IncHealthCheckErrors() {
	if m == nil {
		return
	}
	m.healthCheckErrorsTotal.Inc()
}

// SetLastSuccessfulPollTimestamp sets the last successful poll time.
func (m *Metrics) SetLastSuccessfulPollTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulPollGauge.Set(float64(t.Unix()))
}
