package firmauth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector records authentication telemetry. A nil collector is
// safe to use everywhere; the authenticator normalizes it to a no-op.
type MetricsCollector interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
	RecordOTPIssued()
	RecordOTPVerified()
	RecordOTPFailure(reason string)
	RecordGuardDenied(reason string)
}

// Collector is the Prometheus-backed implementation.
type Collector struct {
	loginSuccess prometheus.Counter
	loginFail    *prometheus.CounterVec
	otpIssued    prometheus.Counter
	otpVerified  prometheus.Counter
	otpFail      *prometheus.CounterVec
	guardDenied  *prometheus.CounterVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with the
// provided registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firmauth_login_success_total",
			Help: "Successful terminal authentications.",
		}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firmauth_login_failure_total",
			Help: "Failed login attempts by reason.",
		}, []string{"reason"}),
		otpIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firmauth_otp_issued_total",
			Help: "One-time codes issued, including resends.",
		}),
		otpVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firmauth_otp_verified_total",
			Help: "Successful one-time code verifications.",
		}),
		otpFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firmauth_otp_failure_total",
			Help: "Failed one-time code verifications by reason.",
		}, []string{"reason"}),
		guardDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firmauth_guard_denied_total",
			Help: "Requests rejected by the authorization guard by reason.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(
			c.loginSuccess,
			c.loginFail,
			c.otpIssued,
			c.otpVerified,
			c.otpFail,
			c.guardDenied,
		)
	}

	return c
}

func (c *Collector) RecordLoginSuccess() { c.loginSuccess.Inc() }

func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFail.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordOTPIssued()   { c.otpIssued.Inc() }
func (c *Collector) RecordOTPVerified() { c.otpVerified.Inc() }

func (c *Collector) RecordOTPFailure(reason string) {
	c.otpFail.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordGuardDenied(reason string) {
	c.guardDenied.WithLabelValues(reason).Inc()
}

type noopMetrics struct{}

func (noopMetrics) RecordLoginSuccess()            {}
func (noopMetrics) RecordLoginFailure(string)      {}
func (noopMetrics) RecordOTPIssued()               {}
func (noopMetrics) RecordOTPVerified()             {}
func (noopMetrics) RecordOTPFailure(string)        {}
func (noopMetrics) RecordGuardDenied(string)       {}

func normalizeMetrics(m MetricsCollector) MetricsCollector {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
