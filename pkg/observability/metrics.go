package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Expansion results.
const (
	ExpansionApplied   = "applied"
	ExpansionUnchanged = "unchanged"
	ExpansionStale     = "stale"
	ExpansionFailed    = "failed"
)

// Metrics groups the collectors recorded by the graph, the extension registry,
// the navigation state store and the migration resolver.
type Metrics struct {
	expansions          *prometheus.CounterVec
	expansionDuration   prometheus.Histogram
	contributorFailures *prometheus.CounterVec
	migrations          *prometheus.CounterVec
	stateWrites         *prometheus.CounterVec
	nodes               prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		expansions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "arbor",
				Name:      "expansions_total",
				Help:      "Node expansions by result (applied, unchanged, stale, failed).",
			},
			[]string{"result"},
		),
		expansionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "arbor",
				Name:      "expansion_duration_seconds",
				Help:      "Time spent running connectors for one expansion.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
		),
		contributorFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "arbor",
				Name:      "contributor_failures_total",
				Help:      "Errors and panics raised by extension code.",
			},
			[]string{"extension", "op"},
		),
		migrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "arbor",
				Name:      "migrations_total",
				Help:      "Drag-and-drop drops by classified operation.",
			},
			[]string{"operation"},
		),
		stateWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "arbor",
				Name:      "state_writes_total",
				Help:      "Durable path state writes by result.",
			},
			[]string{"result"},
		),
		nodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "arbor",
				Name:      "nodes",
				Help:      "Number of nodes currently stored in the graph.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.expansions,
			m.expansionDuration,
			m.contributorFailures,
			m.migrations,
			m.stateWrites,
			m.nodes,
		)
	}
	return m
}

// Expansion records the result of one expansion.
func (m *Metrics) Expansion(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.expansions.WithLabelValues(result).Inc()
	if elapsed > 0 {
		m.expansionDuration.Observe(elapsed.Seconds())
	}
}

// ContributorFailure records an error raised by extension code.
func (m *Metrics) ContributorFailure(extensionID, op string) {
	if m == nil {
		return
	}
	m.contributorFailures.WithLabelValues(extensionID, op).Inc()
}

// Migration records a classified drop.
func (m *Metrics) Migration(operation string) {
	if m == nil {
		return
	}
	m.migrations.WithLabelValues(operation).Inc()
}

// StateWrite records a durable write attempt.
func (m *Metrics) StateWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.stateWrites.WithLabelValues(result).Inc()
}

// SetNodes records the current node count.
func (m *Metrics) SetNodes(n int) {
	if m == nil {
		return
	}
	m.nodes.Set(float64(n))
}
