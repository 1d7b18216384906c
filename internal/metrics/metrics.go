package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mamadbah2/flockbook/internal/domain/models"
	"github.com/mamadbah2/flockbook/internal/service/dailyentry"
)

// Metrics holds the application's Prometheus collectors on a private
// registry. A nil *Metrics records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	entryLoads     *prometheus.HistogramVec
	submissions    *prometheus.CounterVec
	guardBlocks    *prometheus.CounterVec
	staleResponses prometheus.Counter
	openForms      prometheus.Gauge
	reminders      *prometheus.CounterVec
	requestCounter *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		entryLoads: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flockbook_entry_load_duration_seconds",
				Help:    "Duration of daily entry state loads in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flockbook_entry_submissions_total",
				Help: "Daily entry writes by metric, mode and outcome",
			},
			[]string{"metric", "mode", "outcome"},
		),
		guardBlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flockbook_stock_guard_blocks_total",
				Help: "Submissions blocked because the requested feed exceeds the known stock",
			},
			[]string{"metric"},
		),
		staleResponses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "flockbook_stale_responses_discarded_total",
				Help: "Entry loads dropped because a newer date was selected",
			},
		),
		openForms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flockbook_open_forms",
				Help: "Number of open form sessions",
			},
		),
		reminders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flockbook_reminders_total",
				Help: "Missing entry reminders by delivery outcome",
			},
			[]string{"outcome"},
		),
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flockbook_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flockbook_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.entryLoads,
		m.submissions,
		m.guardBlocks,
		m.staleResponses,
		m.openForms,
		m.reminders,
		m.requestCounter,
		m.requestLatency,
	)
	return m
}

var _ dailyentry.Recorder = (*Metrics)(nil)

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) LoadObserved(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.entryLoads.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) SubmissionObserved(metric models.MetricKind, mode dailyentry.Mode, outcome models.SubmissionOutcome) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(string(metric), string(mode), string(outcome)).Inc()
}

func (m *Metrics) GuardBlocked(metric models.MetricKind) {
	if m == nil {
		return
	}
	m.guardBlocks.WithLabelValues(string(metric)).Inc()
}

func (m *Metrics) StaleResponseDiscarded() {
	if m == nil {
		return
	}
	m.staleResponses.Inc()
}

// SetOpenForms reports the size of the form registry.
func (m *Metrics) SetOpenForms(n int) {
	if m == nil {
		return
	}
	m.openForms.Set(float64(n))
}

// ReminderSent counts a reminder delivery attempt.
func (m *Metrics) ReminderSent(outcome string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
	m.requestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
