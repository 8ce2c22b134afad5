package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	loginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitled_logins_total",
		Help: "Login attempts by result",
	}, []string{"result"})
	sessionsGrantedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "entitled_privilege_sessions_granted_total",
		Help: "Total number of privilege sessions issued",
	})
	accessDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitled_vault_access_denied_total",
		Help: "Vault access attempts denied, by reason",
	}, []string{"reason"})
	requestDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitled_access_request_decisions_total",
		Help: "Access request decisions by outcome",
	}, []string{"outcome"})
	cryptoFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "entitled_crypto_failures_total",
		Help: "Ciphertexts that failed integrity verification",
	})
	panicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "entitled_http_panics_total",
		Help: "Handler panics recovered by middleware",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(loginsTotal, sessionsGrantedTotal, accessDeniedTotal, requestDecisionsTotal, cryptoFailuresTotal, panicsTotal)
}

// Handler exposes the registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// IncLogin counts a login attempt; result is "success" or "failure".
func IncLogin(result string) { loginsTotal.WithLabelValues(result).Inc() }

// IncSessionGranted increments the issued sessions counter.
func IncSessionGranted() { sessionsGrantedTotal.Inc() }

// IncAccessDenied counts a refused grant.
func IncAccessDenied(reason string) { accessDeniedTotal.WithLabelValues(reason).Inc() }

// IncRequestDecision counts an approve/reject decision.
func IncRequestDecision(outcome string) { requestDecisionsTotal.WithLabelValues(outcome).Inc() }

// IncCryptoFailure counts a failed decryption.
func IncCryptoFailure() { cryptoFailuresTotal.Inc() }

// IncPanic counts a recovered handler panic.
func IncPanic() { panicsTotal.Inc() }
