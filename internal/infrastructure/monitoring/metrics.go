package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Lifecycle metrics
	LaunchesTotal *prometheus.CounterVec
	AppsRunning   prometheus.Gauge
	EventsTotal   *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "applaunchd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "applaunchd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		LaunchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "applaunchd_launches_total",
				Help: "Total number of start requests by backend and result",
			},
			[]string{"backend", "result"},
		),
		AppsRunning: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "applaunchd_apps_running",
				Help: "Number of applications currently running",
			},
		),
		EventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "applaunchd_lifecycle_events_total",
				Help: "Total lifecycle events published to subscribers",
			},
			[]string{"kind"},
		),

		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "applaunchd_ws_connections",
				Help: "Number of active WebSocket subscribers",
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "applaunchd_uptime_seconds",
				Help: "Daemon uptime in seconds",
			},
		),
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// RecordLaunch records the outcome of a start request
func (m *Metrics) RecordLaunch(backend, result string) {
	m.LaunchesTotal.WithLabelValues(backend, result).Inc()
}

// RecordEvent records a published lifecycle event
func (m *Metrics) RecordEvent(kind string) {
	m.EventsTotal.WithLabelValues(kind).Inc()
}

// AppStarted increments the running apps gauge
func (m *Metrics) AppStarted() {
	m.AppsRunning.Inc()
}

// AppTerminated decrements the running apps gauge
func (m *Metrics) AppTerminated() {
	m.AppsRunning.Dec()
}

// WSConnected increments the WebSocket connection gauge
func (m *Metrics) WSConnected() {
	m.WSConnections.Inc()
}

// WSDisconnected decrements the WebSocket connection gauge
func (m *Metrics) WSDisconnected() {
	m.WSConnections.Dec()
}
