package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveValidation(t *testing.T) {
	before := testutil.ToFloat64(validationsTotal.WithLabelValues("rate_limited"))
	ObserveValidation("rate_limited", 3*time.Millisecond)
	after := testutil.ToFloat64(validationsTotal.WithLabelValues("rate_limited"))
	assert.Equal(t, before+1, after)
}

func TestLedgerAppendFailed(t *testing.T) {
	before := testutil.ToFloat64(ledgerAppendFailures)
	LedgerAppendFailed()
	assert.Equal(t, before+1, testutil.ToFloat64(ledgerAppendFailures))
}

func TestMiddlewareLabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/keys/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := Middleware(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /api/keys/{id}", "404"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/keys/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /api/keys/{id}", "404"))
	assert.Equal(t, before+1, after)
}

func TestNewServer(t *testing.T) {
	srv := NewServer(":0")
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	ObserveValidation("valid", time.Millisecond)
	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), "keyward_validations_total"))
}
