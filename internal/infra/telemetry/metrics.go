package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the Prometheus collectors exposed by the auth core.
type Metrics struct {
	LoginAttempts         *prometheus.CounterVec
	RateLimitRejections   *prometheus.CounterVec
	MFAVerifications      *prometheus.CounterVec
	InvitationRedemptions *prometheus.CounterVec
	TokensIssued          *prometheus.CounterVec
	HTTPRequests          *prometheus.CounterVec
}

// NewMetrics registers the collectors with the supplied registerer.
// Passing nil uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		RateLimitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the brute-force guard",
		}, []string{"key_kind"}),
		MFAVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "mfa_verifications_total",
			Help:      "MFA verification outcomes by method and result",
		}, []string{"method", "result"}),
		InvitationRedemptions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "invitation_redemptions_total",
			Help:      "Invitation redemption outcomes",
		}, []string{"result"}),
		TokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "tokens_issued_total",
			Help:      "Issued credentials by kind",
		}, []string{"kind"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
	}
}
