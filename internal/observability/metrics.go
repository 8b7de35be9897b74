// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Login and authorization outcomes used as metric labels.
const (
	OutcomeSuccess          = "success"
	OutcomeRejected         = "rejected"
	OutcomeRateLimited      = "rate_limited"
	OutcomeUnavailable      = "unavailable"
	OutcomeError            = "error"
	OutcomeNotAuthenticated = "not_authenticated"
	OutcomeForbidden        = "forbidden"
)

// Metrics holds the CHMS application metrics. A nil *Metrics records nothing.
type Metrics struct {
	LoginsTotal         *prometheus.CounterVec
	AuthorizationsTotal *prometheus.CounterVec
	SessionsSweptTotal  prometheus.Counter
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the CHMS metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chms_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		AuthorizationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chms_authorizations_total",
				Help: "Access guard decisions by outcome",
			},
			[]string{"outcome"},
		),
		SessionsSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chms_sessions_swept_total",
			Help: "Expired sessions removed by the sweeper",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chms_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chms_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(
		m.LoginsTotal,
		m.AuthorizationsTotal,
		m.SessionsSweptTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// RecordLogin counts one login attempt.
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

// RecordAuthorization counts one guard decision.
func (m *Metrics) RecordAuthorization(outcome string) {
	if m == nil {
		return
	}
	m.AuthorizationsTotal.WithLabelValues(outcome).Inc()
}

// RecordSwept adds n purged sessions.
func (m *Metrics) RecordSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsSweptTotal.Add(float64(n))
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
