// Package metrics holds the pipeline's Prometheus collectors on a private
// registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	fetchTotal    *prometheus.CounterVec
	documents     *prometheus.CounterVec
	events        *prometheus.CounterVec
	analyzerCalls *prometheus.CounterVec
	entities      *prometheus.CounterVec
	groups        *prometheus.CounterVec
	feedback      *prometheus.CounterVec
	zoneScore     *prometheus.GaugeVec
	sourcesActive prometheus.Gauge
	cycleDur      prometheus.Histogram
	lastCycleTS   prometheus.Gauge
	hubDropped    prometheus.Counter
	sinkErrors    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	m.fetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argos",
		Name:      "fetch_attempts_total",
		Help:      "Fetch attempts by source and outcome (ok or failure kind)",
	}, []string{"source", "outcome"})
	m.documents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argos",
		Name:      "documents_total",
		Help:      "Documents seen by dedup status",
	}, []string{"status"})
	m.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argos",
		Name:      "events_total",
		Help:      "Events stored by extraction method",
	}, []string{"method"})
	m.analyzerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argos",
		Name:      "analyzer_calls_total",
		Help:      "Text-analysis requests by outcome",
	}, []string{"outcome"})
	m.entities = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argos",
		Name:      "entity_upserts_total",
		Help:      "Entity upserts by type and whether a new entity was created",
	}, []string{"type", "created"})
	m.groups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argos",
		Name:      "group_assignments_total",
		Help:      "Corroboration assignments by action (created, attached)",
	}, []string{"action"})
	m.feedback = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argos",
		Name:      "feedback_terms_total",
		Help:      "Feedback terms by outcome (queued, dropped, registered)",
	}, []string{"outcome"})
	m.zoneScore = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "argos",
		Name:      "zone_escalation_score",
		Help:      "Current escalation score per conflict zone",
	}, []string{"zone"})
	m.sourcesActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "argos",
		Name:      "sources_active",
		Help:      "Sources currently in rotation",
	})
	m.cycleDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "argos",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one ingestion cycle",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
	m.lastCycleTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "argos",
		Name:      "last_cycle_timestamp_seconds",
		Help:      "Unix timestamp of the last finished ingestion cycle",
	})
	m.hubDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "argos",
		Name:      "stream_dropped_total",
		Help:      "Messages dropped for slow stream subscribers",
	})
	m.sinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argos",
		Name:      "sink_errors_total",
		Help:      "Failed pushes by sink",
	}, []string{"sink"})

	m.reg.MustRegister(
		m.fetchTotal, m.documents, m.events, m.analyzerCalls, m.entities,
		m.groups, m.feedback, m.zoneScore, m.sourcesActive, m.cycleDur,
		m.lastCycleTS, m.hubDropped, m.sinkErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Fetch(source, outcome string) {
	if m != nil {
		m.fetchTotal.WithLabelValues(source, outcome).Inc()
	}
}

func (m *Metrics) Document(status string) {
	if m != nil {
		m.documents.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) Event(method string) {
	if m != nil {
		m.events.WithLabelValues(method).Inc()
	}
}

func (m *Metrics) AnalyzerCall(outcome string) {
	if m != nil {
		m.analyzerCalls.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) EntityUpsert(typ string, created bool) {
	if m != nil {
		m.entities.WithLabelValues(typ, fmt.Sprint(created)).Inc()
	}
}

func (m *Metrics) GroupAssignment(action string) {
	if m != nil {
		m.groups.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) FeedbackTerm(outcome string) {
	if m != nil {
		m.feedback.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ZoneScore(zone string, score int) {
	if m != nil {
		m.zoneScore.WithLabelValues(zone).Set(float64(score))
	}
}

func (m *Metrics) SourcesActive(n int) {
	if m != nil {
		m.sourcesActive.Set(float64(n))
	}
}

func (m *Metrics) Cycle(seconds float64, finishedUnix int64) {
	if m != nil {
		m.cycleDur.Observe(seconds)
		m.lastCycleTS.Set(float64(finishedUnix))
	}
}

func (m *Metrics) StreamDropped() {
	if m != nil {
		m.hubDropped.Inc()
	}
}

func (m *Metrics) SinkError(sink string) {
	if m != nil {
		m.sinkErrors.WithLabelValues(sink).Inc()
	}
}

// Dump returns a one-line-per-series snapshot of counters and gauges, for logs.
func (m *Metrics) Dump() string {
	if m == nil {
		return ""
	}
	mfs, err := m.reg.Gather()
	if err != nil {
		return ""
	}
	var out []string
	for _, mf := range mfs {
		for _, mt := range mf.GetMetric() {
			var v float64
			switch {
			case mt.GetCounter() != nil:
				v = mt.GetCounter().GetValue()
			case mt.GetGauge() != nil:
				v = mt.GetGauge().GetValue()
			default:
				continue
			}
			labels := make([]string, 0, len(mt.GetLabel()))
			for _, lp := range mt.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			out = append(out, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), v))
		}
	}
	sort.Strings(out)
	return strings.Join(out, "\n")
}
