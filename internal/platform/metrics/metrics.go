package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the form flow.
type Metrics struct {
	SubmissionsCreated prometheus.Counter
	EmailsAttached     prometheus.Counter
	TokensIssued       prometheus.Counter
	TokensRejected     prometheus.Counter
	GuardRejections    *prometheus.CounterVec
	Downloads          *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	RateLimited        *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

// New creates and registers all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SubmissionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "formvault_submissions_created_total",
			Help: "Total number of submissions created by the register step",
		}),
		EmailsAttached: f.NewCounter(prometheus.CounterOpts{
			Name: "formvault_emails_attached_total",
			Help: "Total number of emails attached to submissions",
		}),
		TokensIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "formvault_tokens_issued_total",
			Help: "Total number of retrieval tokens minted",
		}),
		TokensRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "formvault_tokens_rejected_total",
			Help: "Total number of retrieval tokens that failed verification",
		}),
		GuardRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formvault_guard_rejections_total",
			Help: "Requests redirected because the session was in the wrong step",
		}, []string{"route", "state"}),
		Downloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formvault_attachment_downloads_total",
			Help: "Attachment downloads by kind",
		}, []string{"kind"}),
		ValidationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formvault_validation_failures_total",
			Help: "Rejected form submissions by form",
		}, []string{"form"}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formvault_rate_limited_total",
			Help: "Form posts rejected by the per-address rate limit",
		}, []string{"class"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formvault_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "method"}),
	}
}

// ObserveRequest records the latency of a request that started at start.
func (m *Metrics) ObserveRequest(route, method string, start time.Time) {
	m.RequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncGuardRejection(route, state string) {
	m.GuardRejections.WithLabelValues(route, state).Inc()
}

func (m *Metrics) IncDownload(kind string) {
	m.Downloads.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncValidationFailure(form string) {
	m.ValidationFailures.WithLabelValues(form).Inc()
}

func (m *Metrics) IncRateLimited(class string) {
	m.RateLimited.WithLabelValues(class).Inc()
}
