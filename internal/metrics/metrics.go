package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trend-data/internal/model"
	"trend-data/internal/signal"
)

// Metrics holds the Prometheus metrics of a refresh run and of the classifier.
// It implements refresh.Observer.
type Metrics struct {
	reg *prometheus.Registry

	BarsFetched     *prometheus.CounterVec // labels: granularity
	WindowsSkipped  *prometheus.CounterVec // labels: granularity, reason
	NoDataTotal     *prometheus.CounterVec // labels: granularity
	MarketSwaps     prometheus.Counter
	Realignments    prometheus.Counter
	Instruments     *prometheus.CounterVec // labels: result=ok|failed
	Signals         *prometheus.CounterVec // labels: state
	RunDuration     prometheus.Histogram
	LastRunUnixTime prometheus.Gauge
}

// New creates the metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		BarsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trenddata_bars_fetched_total",
			Help: "Bars received from the vendor",
		}, []string{"granularity"}),
		WindowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trenddata_windows_skipped_total",
			Help: "Fetch windows skipped by the planner",
		}, []string{"granularity", "reason"}),
		NoDataTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trenddata_no_data_total",
			Help: "Granularities with no data under both market guesses",
		}, []string{"granularity"}),
		MarketSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trenddata_market_swaps_total",
			Help: "Market-guess swaps that were attempted",
		}),
		Realignments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trenddata_realignments_total",
			Help: "Instruments rebuilt after a corporate action",
		}),
		Instruments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trenddata_instruments_total",
			Help: "Instruments processed, by result",
		}, []string{"result"}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trenddata_signals_total",
			Help: "Signals produced, by state",
		}, []string{"state"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trenddata_run_duration_seconds",
			Help:    "Duration of a refresh run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		LastRunUnixTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trenddata_last_run_timestamp_seconds",
			Help: "Completion time of the last refresh run",
		}),
	}
	m.reg.MustRegister(
		m.BarsFetched,
		m.WindowsSkipped,
		m.NoDataTotal,
		m.MarketSwaps,
		m.Realignments,
		m.Instruments,
		m.Signals,
		m.RunDuration,
		m.LastRunUnixTime,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Fetched(g model.Granularity, bars int) {
	m.BarsFetched.WithLabelValues(string(g)).Add(float64(bars))
}

func (m *Metrics) Skipped(g model.Granularity, reason string) {
	m.WindowsSkipped.WithLabelValues(string(g), reason).Inc()
}

func (m *Metrics) Swapped()   { m.MarketSwaps.Inc() }
func (m *Metrics) Realigned() { m.Realignments.Inc() }

func (m *Metrics) NoData(g model.Granularity) {
	m.NoDataTotal.WithLabelValues(string(g)).Inc()
}

// InstrumentDone counts one processed instrument.
func (m *Metrics) InstrumentDone(ok bool) {
	if ok {
		m.Instruments.WithLabelValues("ok").Inc()
		return
	}
	m.Instruments.WithLabelValues("failed").Inc()
}

// SignalProduced counts one classifier output.
func (m *Metrics) SignalProduced(s signal.Signal) {
	state := s.State.String()
	if s.CeilingExceeded {
		state = signal.RulePriceCeiling
	}
	m.Signals.WithLabelValues(state).Inc()
}

// RunFinished records the duration and completion time of a run.
func (m *Metrics) RunFinished(start time.Time) {
	m.RunDuration.Observe(time.Since(start).Seconds())
	m.LastRunUnixTime.SetToCurrentTime()
}
