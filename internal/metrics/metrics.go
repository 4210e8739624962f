// Package metrics holds the Prometheus collectors of the campaign engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crowdfund"

type Metrics struct {
	operations         *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	aborts             *prometheus.CounterVec
	fallbacks          *prometheus.CounterVec
	degradedQueries    *prometheus.CounterVec
	withdrawnConflicts prometheus.Counter
	ledgerMismatches   prometheus.Counter
	resolutions        *prometheus.CounterVec
}

// New registers the collectors with reg. A nil registerer creates
// collectors that are never exported, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Executed ledger operations by name and final status.",
		}, []string{"operation", "status"}),
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time from submission to final status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"operation"}),
		aborts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_aborts_total",
			Help:      "Contract aborts by classified reason.",
		}, []string{"reason"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_fallbacks_total",
			Help:      "Fallback executions by original function.",
		}, []string{"function"}),
		degradedQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_event_queries_total",
			Help:      "Event queries that failed and contributed nothing to a funds-flow replay.",
		}, []string{"kind"}),
		withdrawnConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawn_signal_conflicts_total",
			Help:      "Reconciliations where the object flag and the event history disagreed.",
		}),
		ledgerMismatches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_mismatches_total",
			Help:      "Audits where raised differed from replayed donations.",
		}),
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifier_resolutions_total",
			Help:      "Identifier resolutions by path taken.",
		}, []string{"path"}),
	}
}

func (m *Metrics) Operation(name, status string, seconds float64) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(name, status).Inc()
	m.operationDuration.WithLabelValues(name).Observe(seconds)
}

func (m *Metrics) Abort(reason string) {
	if m == nil {
		return
	}
	m.aborts.WithLabelValues(reason).Inc()
}

func (m *Metrics) Fallback(function string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(function).Inc()
}

func (m *Metrics) DegradedQuery(kind string) {
	if m == nil {
		return
	}
	m.degradedQueries.WithLabelValues(kind).Inc()
}

func (m *Metrics) WithdrawnConflict() {
	if m == nil {
		return
	}
	m.withdrawnConflicts.Inc()
}

func (m *Metrics) LedgerMismatch() {
	if m == nil {
		return
	}
	m.ledgerMismatches.Inc()
}

func (m *Metrics) Resolution(path string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(path).Inc()
}
