package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAreExposed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AgendaDecisions.WithLabelValues("NO_CONFLICT").Inc()
	m.AgendaDecisions.WithLabelValues("NO_CONFLICT").Inc()
	m.SkippedMatches.WithLabelValues("NO_SLOT_AVAILABLE").Inc()
	m.ScheduledMatches.Add(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AgendaDecisions.WithLabelValues("NO_CONFLICT")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ScheduledMatches))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `padel_autoschedule_skipped_total{reason="NO_SLOT_AVAILABLE"} 1`)
}

func TestNew_PanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
