package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CycleDone("ok", time.Second)
		m.Universe(3)
		m.Scored("ETH", 1.5, true, "sell_a_buy_b")
		m.Skipped("malformed")
		m.VenueCall("kraken", "Depth", time.Millisecond, errors.New("x"))
		m.SinkFailed("s3")
		m.AlertFailed("opportunity")
		m.Reconnected()
		m.State("idle", []string{"idle"})
	})
}

func TestRecording(t *testing.T) {
	m := New()
	m.CycleDone("ok", 2*time.Second)
	m.CycleDone("error", time.Second)
	m.Scored("ETH", 1.5, true, "sell_a_buy_b")
	m.Scored("ETH", 0.2, false, "sell_a_buy_b")
	m.VenueCall("kraken", "Depth", time.Millisecond, errors.New("boom"))
	m.VenueCall("kraken", "Depth", time.Millisecond, nil)
	m.State("sleeping", []string{"idle", "sleeping"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CyclesTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpportunitiesTotal.WithLabelValues("ETH", "sell_a_buy_b")))
	assert.Equal(t, 0.2, testutil.ToFloat64(m.LastMidSpreadPct.WithLabelValues("ETH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VenueErrorsTotal.WithLabelValues("kraken", "Depth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerState.WithLabelValues("sleeping")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SchedulerState.WithLabelValues("idle")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "arbscan_cycles_total")
}
