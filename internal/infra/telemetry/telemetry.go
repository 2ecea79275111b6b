package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Alfahan/sso-sub000/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	requestCounter  prometheus.Counter
	loginAttempts   *prometheus.CounterVec
	anomaliesRaised *prometheus.CounterVec
	otpIssued       prometheus.Counter
	lockouts        prometheus.Counter
}

// Attach configures telemetry exporters and returns a provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	return &Provider{
		requestCounter: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "sso",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}),
		loginAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sso",
			Name:      "login_attempts_total",
			Help:      "Login attempts partitioned by outcome",
		}, []string{"outcome"}),
		anomaliesRaised: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sso",
			Name:      "anomalies_detected_total",
			Help:      "Fingerprint anomalies partitioned by kind",
		}, []string{"kind"}),
		otpIssued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "sso",
			Name:      "otp_issued_total",
			Help:      "One-time passwords issued",
		}),
		lockouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "sso",
			Name:      "lockouts_total",
			Help:      "Accounts locked out after repeated failures",
		}),
	}, nil
}

// RequestCounter exposes the HTTP request metric.
func (p *Provider) RequestCounter() prometheus.Counter {
	if p == nil {
		return prometheus.NewCounter(prometheus.CounterOpts{})
	}
	return p.requestCounter
}

// CountLogin records a login attempt outcome (success, failure, locked).
func (p *Provider) CountLogin(outcome string) {
	if p == nil {
		return
	}
	p.loginAttempts.WithLabelValues(outcome).Inc()
}

// CountAnomaly records a detected fingerprint anomaly by kind.
func (p *Provider) CountAnomaly(kind string) {
	if p == nil {
		return
	}
	p.anomaliesRaised.WithLabelValues(kind).Inc()
}

// CountOTPIssued records an issued one-time password.
func (p *Provider) CountOTPIssued() {
	if p == nil {
		return
	}
	p.otpIssued.Inc()
}

// CountLockout records an account lockout.
func (p *Provider) CountLockout() {
	if p == nil {
		return
	}
	p.lockouts.Inc()
}
