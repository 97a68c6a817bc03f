// Package metrics exposes Prometheus counters and gauges for the
// core's operational state. Grounded on llm-gateway's
// internal/middleware/metrics.go promauto package-level vars, carried
// over unchanged in style and generalized from per-HTTP-request
// tenant/model labels to the tunnel's own units: registered clients,
// pending pairs, heartbeats, spliced bytes, and proxy dial failures.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RegisteredClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modelgate_registered_clients",
		Help: "Current number of registered, authenticated tunnel clients.",
	})

	PendingPairs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modelgate_pending_pairs",
		Help: "Current number of pairs inserted but not yet matched by the proxy listener.",
	})

	HeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_heartbeats_total",
			Help: "Total heartbeat messages received, by client_id.",
		},
		[]string{"client_id"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_public_requests_total",
			Help: "Total public requests handled by the router, by outcome.",
		},
		[]string{"outcome"},
	)

	SplicedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_spliced_bytes_total",
			Help: "Total bytes copied by the splice stage, by direction.",
		},
		[]string{"direction"},
	)

	ProxyDialFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelgate_proxy_dial_failures_total",
		Help: "Total failures to dispatch RequestNewProxyConn to a selected client.",
	})

	ClientLoginFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modelgate_client_login_failures_total",
		Help: "Total rejected Login/LoginByToken attempts on the control listener.",
	})
)

// Outcome labels for RequestsTotal, matching the router's reject
// reasons so dashboards can break down failures by cause.
const (
	OutcomeDispatched     = "dispatched"
	OutcomeMissingToken   = "missing_token"
	OutcomeInvalidToken   = "invalid_token"
	OutcomeNoBackend      = "no_backend"
	OutcomeMalformed      = "malformed_request"
	OutcomeDispatchFailed = "dispatch_failed"
	OutcomeValidatorDown  = "validator_unavailable"
)
