package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the consent service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	consentUpdates     *prometheus.CounterVec
	consentUpdateFails *prometheus.CounterVec
	decisions          *prometheus.CounterVec
	tokenVerifications *prometheus.CounterVec
	inboundMessages    *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consent_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consent_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"route", "method"},
		),
		consentUpdates: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consent_updates_total",
				Help: "Committed consent updates by event type and source",
			},
			[]string{"event_type", "source"},
		),
		consentUpdateFails: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consent_update_failures_total",
				Help: "Consent updates that did not commit, by error class",
			},
			[]string{"reason"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consent_decisions_total",
				Help: "Send-time enforcement decisions",
			},
			[]string{"intent", "allowed", "reason"},
		),
		tokenVerifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consent_preference_token_verifications_total",
				Help: "Preference token verifications by result",
			},
			[]string{"result"},
		),
		inboundMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consent_inbound_messages_total",
				Help: "Inbound customer messages by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// ConsentUpdated counts a committed consent update.
func (m *Metrics) ConsentUpdated(eventType, source string) {
	if m == nil {
		return
	}
	m.consentUpdates.WithLabelValues(eventType, source).Inc()
}

// ConsentUpdateFailed counts an update that did not commit ("invalid_input", "storage").
func (m *Metrics) ConsentUpdateFailed(reason string) {
	if m == nil {
		return
	}
	m.consentUpdateFails.WithLabelValues(reason).Inc()
}

// Decision counts an enforcement decision. reason is empty for allowed sends.
func (m *Metrics) Decision(intent string, allowed bool, reason string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(intent, strconv.FormatBool(allowed), reason).Inc()
}

// TokenVerified counts a preference token verification. The failure cause is never a label.
func (m *Metrics) TokenVerified(valid bool) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.tokenVerifications.WithLabelValues(result).Inc()
}

// InboundMessage counts an inbound message outcome ("applied", "ignored", "duplicate", "failed").
func (m *Metrics) InboundMessage(outcome string) {
	if m == nil {
		return
	}
	m.inboundMessages.WithLabelValues(outcome).Inc()
}
