package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks identifier issuance and classification quality.
type Metrics struct {
	Issued             *prometheus.CounterVec
	AllocationFailures *prometheus.CounterVec
	Warnings           *prometheus.CounterVec
	Confidence         prometheus.Histogram
	ClassifyDuration   prometheus.Histogram
}

// New registers every engine metric on reg. A nil reg uses a private
// registry, which keeps tests and embedded engines from colliding.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ifice_identifiers_issued_total",
			Help: "Factory identifiers issued, split by whether they need manual confirmation",
		}, []string{"needs_confirmation"}),
		AllocationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ifice_allocation_failures_total",
			Help: "Sequence allocations that failed, by error class",
		}, []string{"reason"}),
		Warnings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ifice_warnings_total",
			Help: "Warnings attached to issued identifiers, by kind",
		}, []string{"kind"}),
		Confidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ifice_confidence",
			Help:    "Overall confidence of issued identifiers",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		ClassifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ifice_classify_duration_seconds",
			Help:    "Duration of extraction and classification",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// IncrementIssued records one issued identifier.
func (m *Metrics) IncrementIssued(needsConfirmation bool) {
	m.Issued.WithLabelValues(strconv.FormatBool(needsConfirmation)).Inc()
}

// IncrementAllocationFailure records a failed allocation.
func (m *Metrics) IncrementAllocationFailure(reason string) {
	m.AllocationFailures.WithLabelValues(reason).Inc()
}

// IncrementWarning records one warning of the given kind.
func (m *Metrics) IncrementWarning(kind string) {
	m.Warnings.WithLabelValues(kind).Inc()
}

// ObserveConfidence records the confidence of an issued identifier.
func (m *Metrics) ObserveConfidence(c float64) {
	m.Confidence.Observe(c)
}

// ObserveClassify records classification latency.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveClassify(start time.Time) {
	m.ClassifyDuration.Observe(time.Since(start).Seconds())
}
