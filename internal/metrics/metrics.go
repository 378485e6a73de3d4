// Package metrics holds the Prometheus collectors for the scanner and its sinks.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "arbscan"

// Metrics is the collector set. A nil *Metrics is valid and records nothing.
type Metrics struct {
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	UniverseSize       prometheus.Gauge
	SnapshotsTotal     prometheus.Counter
	OpportunitiesTotal *prometheus.CounterVec
	SymbolSkipsTotal   *prometheus.CounterVec
	VenueCallDuration  *prometheus.HistogramVec
	VenueErrorsTotal   *prometheus.CounterVec
	SinkFailuresTotal  *prometheus.CounterVec
	AlertFailuresTotal *prometheus.CounterVec
	ReconnectsTotal    prometheus.Counter
	SchedulerState     *prometheus.GaugeVec
	LastMidSpreadPct   *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a fresh registry that
// also carries the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := newMetrics()
	m.registry = reg
	reg.MustRegister(m.all()...)
	return m
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Scan cycles by outcome (ok, error, lock_held).",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a scan cycle.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		UniverseSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "universe_symbols",
			Help:      "Symbols listed on both venues in the last cycle.",
		}),
		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Opportunity snapshots scored.",
		}),
		OpportunitiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Snapshots whose mid spread cleared the threshold.",
		}, []string{"symbol", "direction"}),
		SymbolSkipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "symbol_skips_total",
			Help:      "Symbols skipped within a cycle, by reason.",
		}, []string{"reason"}),
		VenueCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "venue_call_duration_seconds",
			Help:      "Latency of venue REST calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"venue", "op"}),
		VenueErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "venue_errors_total",
			Help:      "Failed venue calls.",
		}, []string{"venue", "op"}),
		SinkFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Failed snapshot sink appends.",
		}, []string{"sink"}),
		AlertFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_failures_total",
			Help:      "Alerts that could not be delivered.",
		}, []string{"event"}),
		ReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Venue client rebuilds.",
		}),
		SchedulerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_state",
			Help:      "1 for the scheduler's current state, 0 otherwise.",
		}, []string{"state"}),
		LastMidSpreadPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mid_spread_pct",
			Help:      "Last observed mid-price spread percent per symbol.",
		}, []string{"symbol"}),
	}
}

func (m *Metrics) all() []prometheus.Collector {
	return []prometheus.Collector{
		m.CyclesTotal, m.CycleDuration, m.UniverseSize, m.SnapshotsTotal,
		m.OpportunitiesTotal, m.SymbolSkipsTotal, m.VenueCallDuration,
		m.VenueErrorsTotal, m.SinkFailuresTotal, m.AlertFailuresTotal,
		m.ReconnectsTotal, m.SchedulerState, m.LastMidSpreadPct,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CycleDone records a finished cycle.
func (m *Metrics) CycleDone(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// Universe records the size of the last symbol universe.
func (m *Metrics) Universe(n int) {
	if m == nil {
		return
	}
	m.UniverseSize.Set(float64(n))
}

// Scored records one scored snapshot.
func (m *Metrics) Scored(symbol string, midSpreadPct float64, actionable bool, direction string) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.Inc()
	m.LastMidSpreadPct.WithLabelValues(symbol).Set(midSpreadPct)
	if actionable {
		m.OpportunitiesTotal.WithLabelValues(symbol, direction).Inc()
	}
}

// Skipped records a symbol skipped for reason.
func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.SymbolSkipsTotal.WithLabelValues(reason).Inc()
}

// VenueCall records the latency and outcome of one venue call.
func (m *Metrics) VenueCall(venue, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.VenueCallDuration.WithLabelValues(venue, op).Observe(d.Seconds())
	if err != nil {
		m.VenueErrorsTotal.WithLabelValues(venue, op).Inc()
	}
}

// SinkFailed records a failed sink append.
func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.SinkFailuresTotal.WithLabelValues(sink).Inc()
}

// AlertFailed records an undelivered alert.
func (m *Metrics) AlertFailed(event string) {
	if m == nil {
		return
	}
	m.AlertFailuresTotal.WithLabelValues(event).Inc()
}

// Reconnected records a venue rebuild.
func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Inc()
}

// State marks current as the active scheduler state among all.
func (m *Metrics) State(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.SchedulerState.WithLabelValues(s).Set(v)
	}
}
