package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewMatchCollector(reg)
	require.NoError(t, err)

	c.ObserveRun(OutcomeOK, 20*time.Millisecond, 12, 40)
	c.ObserveRun(OutcomeOK, 30*time.Millisecond, 3, 9)
	c.ObserveRun(OutcomeNoCandidates, time.Millisecond, 5, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Runs.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Runs.WithLabelValues(OutcomeNoCandidates)))
	assert.Equal(t, 3, testutil.CollectAndCount(c.Durations))

	count, err := testutil.GatherAndCount(reg, "mapmatch_trellis_entries")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewMatchCollector_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMatchCollector(reg)
	require.NoError(t, err)
	second, err := NewMatchCollector(reg)
	require.NoError(t, err)
	assert.Same(t, first.Runs, second.Runs)
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *MatchCollector
	assert.NotPanics(t, func() { c.ObserveRun(OutcomeError, time.Second, 1, 1) })
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewMatchCollector(reg)
	require.NoError(t, err)
	c.ObserveRun(OutcomeOK, time.Millisecond, 2, 2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `mapmatch_runs_total{outcome="ok"} 1`))
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
