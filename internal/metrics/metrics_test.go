package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromCounters(t *testing.T) {
	p := NewProm("leadwatch")
	p.IncRefresh(RefreshOK)
	p.IncRefresh(RefreshOK)
	p.IncRefresh(RefreshFailed)
	p.IncFetch("log", "ok")
	p.IncSessionEnd("verify", "timeout")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.refreshes.WithLabelValues(RefreshOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.refreshes.WithLabelValues(RefreshFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.fetches.WithLabelValues("log", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.sessionEnds.WithLabelValues("verify", "timeout")))
}

func TestPromInstancesAreIndependent(t *testing.T) {
	first := NewProm("leadwatch")
	second := NewProm("leadwatch")
	first.IncRefresh(RefreshOK)

	assert.Equal(t, 0.0, testutil.ToFloat64(second.refreshes.WithLabelValues(RefreshOK)))
}

func TestPromHandler(t *testing.T) {
	p := NewProm("leadwatch")
	p.ObserveRequest(http.MethodGet, "/api/status", "200", 0.01)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `leadwatch_http_requests_total{method="GET",route="/api/status",status="200"} 1`)
}

func TestNoopSatisfiesInterfaces(t *testing.T) {
	var _ GatewayMetrics = Noop{}
	var _ PollMetrics = Noop{}
	var _ HTTPMetrics = Noop{}
	var _ GatewayMetrics = (*Prom)(nil)
}
