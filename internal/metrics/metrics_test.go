package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Fetch("wire", "ok")
	m.Fetch("wire", "ok")
	m.Fetch("wire", "timeout")
	m.ZoneScore("UA/Kharkiv", 6)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetchTotal.WithLabelValues("wire", "ok")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.zoneScore.WithLabelValues("UA/Kharkiv")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `argos_fetch_attempts_total{outcome="timeout",source="wire"} 1`)

	assert.Contains(t, m.Dump(), "argos_zone_escalation_score{zone=UA/Kharkiv} 6")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Fetch("x", "ok")
		m.Event("rule")
		m.Cycle(1, 2)
		m.StreamDropped()
	})
	assert.Empty(t, m.Dump())
	assert.NotNil(t, m.Handler())
}
