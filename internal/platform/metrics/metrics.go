package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service. All methods are
// safe on a nil receiver so callers may run without metrics.
type Metrics struct {
	OTPSent               prometheus.Counter
	OTPSendFailures       prometheus.Counter
	OTPVerifications      *prometheus.CounterVec
	UsersCreated          prometheus.Counter
	TokensRevoked         prometheus.Counter
	ApplicationsSubmitted *prometheus.CounterVec
	SubmissionsRejected   *prometheus.CounterVec
	StatusTransitions     *prometheus.CounterVec
	RequestDuration       *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OTPSent: f.NewCounter(prometheus.CounterOpts{
			Name: "eseva_otp_sent_total",
			Help: "OTP messages accepted by the SMS provider",
		}),
		OTPSendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "eseva_otp_send_failures_total",
			Help: "OTP messages that could not be delivered after retries",
		}),
		OTPVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eseva_otp_verifications_total",
			Help: "OTP verification attempts by outcome",
		}, []string{"outcome"}),
		UsersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "eseva_users_created_total",
			Help: "Users created on first successful login",
		}),
		TokensRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "eseva_tokens_revoked_total",
			Help: "Session tokens revoked by logout",
		}),
		ApplicationsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eseva_applications_submitted_total",
			Help: "Applications accepted, by service type",
		}, []string{"service_type"}),
		SubmissionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eseva_submissions_rejected_total",
			Help: "Applications rejected before persistence, by reason",
		}, []string{"reason"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eseva_application_status_transitions_total",
			Help: "Application status changes, by target status",
		}, []string{"status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eseva_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncrementOTPSent() {
	if m != nil {
		m.OTPSent.Inc()
	}
}

func (m *Metrics) IncrementOTPSendFailures() {
	if m != nil {
		m.OTPSendFailures.Inc()
	}
}

func (m *Metrics) ObserveOTPVerification(outcome string) {
	if m != nil {
		m.OTPVerifications.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncrementUsersCreated() {
	if m != nil {
		m.UsersCreated.Inc()
	}
}

func (m *Metrics) IncrementTokensRevoked() {
	if m != nil {
		m.TokensRevoked.Inc()
	}
}

func (m *Metrics) IncrementApplicationsSubmitted(serviceType string) {
	if m != nil {
		m.ApplicationsSubmitted.WithLabelValues(serviceType).Inc()
	}
}

func (m *Metrics) IncrementSubmissionsRejected(reason string) {
	if m != nil {
		m.SubmissionsRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncrementStatusTransition(status string) {
	if m != nil {
		m.StatusTransitions.WithLabelValues(status).Inc()
	}
}

// Middleware records request latency labelled by the matched chi route
// pattern, keeping label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.RequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).
			Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
