package chain

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics exposes data source metrics through client_golang collectors
type PrometheusMetrics struct {
	queryDuration  prometheus.Histogram
	connections    *prometheus.GaugeVec
	errors         *prometheus.CounterVec
	circuitState   *prometheus.GaugeVec
	rulesApplied   *prometheus.CounterVec
	softDeletes    *prometheus.CounterVec
	validationErrs *prometheus.CounterVec
}

var circuitStates = []string{"closed", "open", "half_open"}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chain",
			Name:      "query_duration_seconds",
			Help:      "Duration of executed statements",
			Buckets:   prometheus.DefBuckets,
		}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chain",
			Name:      "connections",
			Help:      "Pool connections by state",
		}, []string{"state"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chain",
			Name:      "errors_total",
			Help:      "Statement errors by type",
		}, []string{"type"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chain",
			Subsystem: "circuit",
			Name:      "state",
			Help:      "Circuit breaker state (1 = current)",
		}, []string{"state"}),
		rulesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chain",
			Subsystem: "rules",
			Name:      "applied_total",
			Help:      "Column values generated by audit rules",
		}, []string{"kind"}),
		softDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chain",
			Subsystem: "rules",
			Name:      "soft_deletes_total",
			Help:      "Deletes rewritten to updates",
		}, []string{"table"}),
		validationErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chain",
			Subsystem: "rules",
			Name:      "validation_failures_total",
			Help:      "Writes rejected by validation rules",
		}, []string{"table"}),
	}
	for _, c := range []prometheus.Collector{m.queryDuration, m.connections, m.errors, m.circuitState, m.rulesApplied, m.softDeletes, m.validationErrs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) QueryDuration(duration time.Duration, _ string) {
	m.queryDuration.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) ConnectionCount(active, idle int32) {
	m.connections.WithLabelValues("active").Set(float64(active))
	m.connections.WithLabelValues("idle").Set(float64(idle))
}

func (m *PrometheusMetrics) ErrorCount(errorType string) {
	m.errors.WithLabelValues(errorType).Inc()
}

func (m *PrometheusMetrics) CircuitStateChanged(state string) {
	for _, s := range circuitStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.circuitState.WithLabelValues(s).Set(v)
	}
}

func (m *PrometheusMetrics) RuleApplied(kind string) { m.rulesApplied.WithLabelValues(kind).Inc() }

func (m *PrometheusMetrics) SoftDeleteRewritten(table string) {
	m.softDeletes.WithLabelValues(table).Inc()
}

func (m *PrometheusMetrics) ValidationFailed(table string) {
	m.validationErrs.WithLabelValues(table).Inc()
}
