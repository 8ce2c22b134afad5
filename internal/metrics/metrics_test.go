package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersExposed(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	before := testutil.ToFloat64(sessionsGrantedTotal)
	IncSessionGranted()
	assert.Equal(t, before+1, testutil.ToFloat64(sessionsGrantedTotal))

	IncAccessDenied("no_approved_request")
	IncRequestDecision("approved")
	IncCryptoFailure()
	IncLogin("success")
	IncPanic()

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "entitled_privilege_sessions_granted_total")
	assert.Contains(t, body, `entitled_vault_access_denied_total{reason="no_approved_request"}`)
	assert.Contains(t, body, `entitled_access_request_decisions_total{outcome="approved"}`)
	assert.Contains(t, body, "entitled_crypto_failures_total")
	assert.Contains(t, body, `entitled_logins_total{result="success"}`)
	assert.Contains(t, body, "entitled_http_panics_total")
}
