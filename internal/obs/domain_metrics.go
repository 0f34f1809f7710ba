package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels used by the billing metrics.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// DomainMetrics holds the billing collectors. A nil *DomainMetrics is a no-op.
type DomainMetrics struct {
	Documents       *prometheus.CounterVec
	NumbersIssued   *prometheus.CounterVec
	AllocatorFailed *prometheus.CounterVec
	LineItemChanges *prometheus.CounterVec
	PricingDuration prometheus.Histogram
}

// NewDomainMetrics builds and registers the billing collectors on reg
// (prometheus.DefaultRegisterer when nil).
func NewDomainMetrics(namespace string, reg prometheus.Registerer) *DomainMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &DomainMetrics{
		Documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_documents_total",
			Help:      "Billing document operations by kind, operation and outcome.",
		}, []string{"kind", "op", "result"}),
		NumbersIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_document_numbers_issued_total",
			Help:      "Document numbers handed out by the allocator.",
		}, []string{"kind"}),
		AllocatorFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_allocator_failures_total",
			Help:      "Number allocations that failed closed.",
		}, []string{"kind"}),
		LineItemChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_line_item_changes_total",
			Help:      "Line items added, modified and removed by reconciliation.",
		}, []string{"op"}),
		PricingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "billing_pricing_duration_ms",
			Help:      "Time spent computing a document price, including catalog lookups.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100},
		}),
	}
	register(reg, &m.Documents)
	register(reg, &m.NumbersIssued)
	register(reg, &m.AllocatorFailed)
	register(reg, &m.LineItemChanges)
	register(reg, &m.PricingDuration)
	return m
}

// DocumentOp counts one operation on a document kind.
func (m *DomainMetrics) DocumentOp(kind, op string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.Documents.WithLabelValues(kind, op, result).Inc()
}

// NumberIssued counts an allocated document number.
func (m *DomainMetrics) NumberIssued(kind string) {
	if m == nil {
		return
	}
	m.NumbersIssued.WithLabelValues(kind).Inc()
}

// AllocatorFailure counts an allocation that failed closed.
func (m *DomainMetrics) AllocatorFailure(kind string) {
	if m == nil {
		return
	}
	m.AllocatorFailed.WithLabelValues(kind).Inc()
}

// LineItems adds n to the counter of the reconciliation op (add, modify, remove).
func (m *DomainMetrics) LineItems(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LineItemChanges.WithLabelValues(op).Add(float64(n))
}

// ObservePricing records the duration of a pricing run.
func (m *DomainMetrics) ObservePricing(d time.Duration) {
	if m == nil {
		return
	}
	m.PricingDuration.Observe(DurationMillis(d))
}
