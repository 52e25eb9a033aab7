// Package metrics records engine activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/warp/hoa-ledger/generic"
)

const namespace = "hoa"

// Recorder implements generic.Recorder.
type Recorder struct {
	paymentsRecorded    *prometheus.CounterVec
	paymentCents        *prometheus.CounterVec
	previews            *prometheus.CounterVec
	compensations       *prometheus.CounterVec
	bestEffortFailures  *prometheus.CounterVec
	integrityViolations *prometheus.CounterVec
}

// New registers the metrics on reg. Each registry accepts one Recorder.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		paymentsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "recorded_total",
			Help:      "Payments recorded, by source.",
		}, []string{"source"}),
		paymentCents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "amount_cents_total",
			Help:      "Sum of recorded payment amounts in minor units, by source.",
		}, []string{"source"}),
		previews: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "previews_total",
			Help:      "Distribution previews computed, by source.",
		}, []string{"source"}),
		compensations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compensation",
			Name:      "deletions_total",
			Help:      "Transaction deletions, by outcome (success, rolled_back, fatal, not_found).",
		}, []string{"outcome"}),
		bestEffortFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "best_effort_failures_total",
			Help:      "Failed auxiliary operations that did not block the primary write, by kind.",
		}, []string{"kind"}),
		integrityViolations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocations",
			Name:      "integrity_violations_total",
			Help:      "Allocation breakdowns that did not reconcile with the payment amount.",
		}, []string{"source"}),
	}
}

func (r *Recorder) PaymentRecorded(source generic.TransactionSource, amount generic.Cents) {
	r.paymentsRecorded.WithLabelValues(string(source)).Inc()
	r.paymentCents.WithLabelValues(string(source)).Add(float64(amount))
}

func (r *Recorder) PreviewComputed(source generic.TransactionSource) {
	r.previews.WithLabelValues(string(source)).Inc()
}

func (r *Recorder) Compensation(outcome string) {
	r.compensations.WithLabelValues(outcome).Inc()
}

func (r *Recorder) BestEffortFailure(kind string) {
	r.bestEffortFailures.WithLabelValues(kind).Inc()
}

func (r *Recorder) IntegrityViolation(source generic.TransactionSource) {
	r.integrityViolations.WithLabelValues(string(source)).Inc()
}

var _ generic.Recorder = (*Recorder)(nil)
