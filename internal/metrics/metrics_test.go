package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveExecution(t *testing.T) {
	m := New()
	m.ObserveExecution("deposit", nil, 10*time.Millisecond)
	m.ObserveExecution("deposit", nil, 10*time.Millisecond)
	m.ObserveExecution("earn", errors.New("unauthorized"), time.Millisecond)
	m.ObserveExecution("", nil, time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.executions.WithLabelValues("deposit", OutcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("earn", OutcomeError)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("unknown", OutcomeSuccess)))
}

func TestObserveDispatchedAndHTTP(t *testing.T) {
	m := New()
	m.ObserveDispatched([]string{"bank/send", "wasm/execute", "wasm/execute"})
	m.ObserveHTTP("/api/query", http.StatusOK)
	m.ObserveHTTP("/api/query", http.StatusBadRequest)
	m.ObserveHTTP("/api/query", http.StatusBadGateway)

	require.Equal(t, 2.0, testutil.ToFloat64(m.dispatched.WithLabelValues("wasm/execute")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/query", "4xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/query", "5xx")))
}

func TestObserveAmount(t *testing.T) {
	m := New()
	m.ObserveAmount("deposit", 1.5)
	m.ObserveAmount("deposit", 0.25)
	m.ObserveAmount("deposit", -3)

	require.Equal(t, 1.75, testutil.ToFloat64(m.amountMoved.WithLabelValues("deposit")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveExecution("deposit", nil, time.Second)
		m.ObserveQuery("config", nil, time.Second)
		m.ObserveDispatched([]string{"bank/send"})
		m.ObserveHTTP("/health", http.StatusOK)
		m.ObserveAmount("deposit", 1)
		m.ReceiptWriteFailed()
	})
	require.Nil(t, m.Registry())
}

func TestHandlerExposesInstruments(t *testing.T) {
	m := New()
	m.ObserveQuery("config", nil, time.Millisecond)
	m.ReceiptWriteFailed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `dpool_pool_queries_total{outcome="success",query="config"} 1`)
	require.Contains(t, body, "dpool_state_receipt_write_failures_total 1")
}
