package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	require.Equal(t, "ok", Outcome(nil))
	require.Equal(t, "error", Outcome(errors.New("x")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry(), func() float64 { return 3 })
	m.LedgerOps.WithLabelValues("award_points", "ok").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `scorekeeper_ledger_operations_total{op="award_points",outcome="ok"} 1`)
	require.Contains(t, body, "scorekeeper_events_subscribers 3")
}

func TestNew_NilRegistry(t *testing.T) {
	require.NotPanics(t, func() {
		New(nil, nil)
		New(nil, nil)
	})
}
