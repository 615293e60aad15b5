package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics tracks ledger throughput and outcomes.
type EscrowMetrics struct {
	sessionsBooked   prometheus.Counter
	paymentsReleased prometheus.Counter
	disputesOpened   prometheus.Counter
	refundsIssued    prometheus.Counter
	reviewsSubmitted prometheus.Counter
	opFailures       *prometheus.CounterVec
	reservedMinor    prometheus.Gauge
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

// Escrow returns the process-wide escrow metrics collector, registering it on
// first use.
func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			sessionsBooked: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "escrow_sessions_booked_total",
				Help: "Count of sessions booked with funds reserved.",
			}),
			paymentsReleased: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "escrow_payments_released_total",
				Help: "Count of escrowed payments released to tutors.",
			}),
			disputesOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "escrow_disputes_opened_total",
				Help: "Count of sessions frozen pending arbitration.",
			}),
			refundsIssued: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "escrow_refunds_issued_total",
				Help: "Count of arbitrated refunds returned to students.",
			}),
			reviewsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "escrow_reviews_submitted_total",
				Help: "Count of accepted session reviews.",
			}),
			opFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_operation_failures_total",
				Help: "Count of rejected ledger operations by operation and reason.",
			}, []string{"op", "reason"}),
			reservedMinor: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrow_reserved_minor_units",
				Help: "Sum of funds currently reserved for active or disputed sessions.",
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.sessionsBooked,
			escrowRegistry.paymentsReleased,
			escrowRegistry.disputesOpened,
			escrowRegistry.refundsIssued,
			escrowRegistry.reviewsSubmitted,
			escrowRegistry.opFailures,
			escrowRegistry.reservedMinor,
		)
	})
	return escrowRegistry
}

// SessionBooked records a successful booking.
func (m *EscrowMetrics) SessionBooked() { m.sessionsBooked.Inc() }

// PaymentReleased records a completed release.
func (m *EscrowMetrics) PaymentReleased() { m.paymentsReleased.Inc() }

// DisputeOpened records a session entering arbitration.
func (m *EscrowMetrics) DisputeOpened() { m.disputesOpened.Inc() }

// RefundIssued records an arbitrated refund.
func (m *EscrowMetrics) RefundIssued() { m.refundsIssued.Inc() }

// ReviewSubmitted records an accepted review.
func (m *EscrowMetrics) ReviewSubmitted() { m.reviewsSubmitted.Inc() }

// OperationFailed records a rejected ledger operation.
func (m *EscrowMetrics) OperationFailed(op, reason string) {
	m.opFailures.WithLabelValues(op, reason).Inc()
}

// AddReserved adjusts the reserved-funds gauge by delta minor units.
func (m *EscrowMetrics) AddReserved(delta float64) { m.reservedMinor.Add(delta) }
