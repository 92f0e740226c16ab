package observability

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts document postings and FIFO allocation outcomes.
type LedgerMetrics struct {
	documentsPosted   *prometheus.CounterVec
	documentsUnposted *prometheus.CounterVec
	allocations       prometheus.Counter
	negativeOverflow  prometheus.Counter
}

// NewLedgerMetrics registers ledger metrics on the given registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	posted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_documents_posted_total",
		Help: "Documents transitioned to posted, by document type.",
	}, []string{"type"})
	unposted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_documents_unposted_total",
		Help: "Documents transitioned back to draft, by document type.",
	}, []string{"type"})
	allocations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_fifo_allocations_total",
		Help: "Lot allocations produced by the FIFO allocator.",
	})
	overflow := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_negative_overflow_total",
		Help: "Allocations that exhausted all open lots and went negative.",
	})
	if reg != nil {
		reg.MustRegister(posted, unposted, allocations, overflow)
	}
	return &LedgerMetrics{
		documentsPosted:   posted,
		documentsUnposted: unposted,
		allocations:       allocations,
		negativeOverflow:  overflow,
	}
}

// ObservePosted increments the posted counter for a document type.
func (m *LedgerMetrics) ObservePosted(docType string) {
	if m == nil {
		return
	}
	m.documentsPosted.WithLabelValues(docType).Inc()
}

// ObserveUnposted increments the unposted counter for a document type.
func (m *LedgerMetrics) ObserveUnposted(docType string) {
	if m == nil {
		return
	}
	m.documentsUnposted.WithLabelValues(docType).Inc()
}

// ObserveAllocation counts lot allocations, flagging negative overflow.
func (m *LedgerMetrics) ObserveAllocation(overflow bool) {
	if m == nil {
		return
	}
	m.allocations.Inc()
	if overflow {
		m.negativeOverflow.Inc()
	}
}
