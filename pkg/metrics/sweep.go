package metrics

import "github.com/prometheus/client_golang/prometheus"

// SweepMetrics exports the escrow-release sweep outcome counters.
type SweepMetrics struct {
	released         prometheus.Counter
	payoutsInitiated prometheus.Counter
	skipped          prometheus.Counter
	itemErrors       prometheus.Counter
}

// NewSweepMetrics registers the sweep counters on the provided registerer.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	released := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_sweep_released_total",
		Help: "Escrows released by the auto-release sweep.",
	})
	payouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_sweep_payouts_initiated_total",
		Help: "Owner transfers initiated by the auto-release sweep.",
	})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_sweep_skipped_total",
		Help: "Escrows evaluated but not yet eligible for release.",
	})
	itemErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_sweep_item_errors_total",
		Help: "Per-escrow failures during the auto-release sweep.",
	})
	reg.MustRegister(released, payouts, skipped, itemErrors)
	return &SweepMetrics{
		released:         released,
		payoutsInitiated: payouts,
		skipped:          skipped,
		itemErrors:       itemErrors,
	}
}

// Record adds one sweep run's summary counts.
func (s *SweepMetrics) Record(released, payoutsInitiated, skipped, itemErrors int) {
	if s == nil || s.released == nil {
		return
	}
	s.released.Add(float64(released))
	s.payoutsInitiated.Add(float64(payoutsInitiated))
	s.skipped.Add(float64(skipped))
	s.itemErrors.Add(float64(itemErrors))
}
