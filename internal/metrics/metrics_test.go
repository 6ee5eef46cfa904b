package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trend-data/internal/model"
	"trend-data/internal/refresh"
	"trend-data/internal/signal"
)

var _ refresh.Observer = (*Metrics)(nil)

func TestObserverCounters(t *testing.T) {
	m := New()
	m.Fetched(model.Day, 10)
	m.Fetched(model.Day, 5)
	m.Skipped(model.Week, "covered")
	m.Swapped()
	m.Realigned()
	m.NoData(model.Month)

	assert.Equal(t, 15.0, testutil.ToFloat64(m.BarsFetched.WithLabelValues("day")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WindowsSkipped.WithLabelValues("week", "covered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MarketSwaps))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Realignments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NoDataTotal.WithLabelValues("month")))
}

func TestSignalAndRunMetrics(t *testing.T) {
	m := New()
	m.SignalProduced(signal.Signal{State: signal.RisingLong})
	m.SignalProduced(signal.Signal{CeilingExceeded: true})
	m.InstrumentDone(true)
	m.InstrumentDone(false)
	m.RunFinished(time.Now().Add(-time.Second))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Signals.WithLabelValues("rising_long")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Signals.WithLabelValues("price_ceiling")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Instruments.WithLabelValues("failed")))
	assert.Greater(t, testutil.ToFloat64(m.LastRunUnixTime), 0.0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Realigned()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "trenddata_realignments_total 1"))
}
