package metrics

import "github.com/prometheus/client_golang/prometheus"

// SettlementMetrics tracks batch aggregation outcomes. Consistency failures
// and orphaned batches are the alerting surface for stuck settlement work.
type SettlementMetrics struct {
	eventsFolded        *prometheus.CounterVec
	batchRuns           *prometheus.CounterVec
	consistencyFailures prometheus.Counter
	orphanedBatches     prometheus.Gauge
}

// NewSettlementMetrics registers settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	eventsFolded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_events_folded_total",
		Help: "Settlement events folded into daily aggregates, by phase.",
	}, []string{"phase"})
	batchRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_batch_runs_total",
		Help: "Settlement batch runs by outcome.",
	}, []string{"outcome"})
	consistencyFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_consistency_failures_total",
		Help: "Batch runs aborted because claimed and finished counts diverged.",
	})
	orphanedBatches := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_orphaned_batches",
		Help: "Claimed-but-unprocessed batch cohorts awaiting operator refold.",
	})
	reg.MustRegister(eventsFolded, batchRuns, consistencyFailures, orphanedBatches)
	return &SettlementMetrics{
		eventsFolded:        eventsFolded,
		batchRuns:           batchRuns,
		consistencyFailures: consistencyFailures,
		orphanedBatches:     orphanedBatches,
	}
}

// AddFolded records folded event counts for a phase.
func (s *SettlementMetrics) AddFolded(phase string, n int) {
	if s == nil || s.eventsFolded == nil {
		return
	}
	s.eventsFolded.WithLabelValues(normalizeLabel(phase)).Add(float64(n))
}

// IncRun records one batch run with the given outcome ("success", "empty",
// "failure").
func (s *SettlementMetrics) IncRun(outcome string) {
	if s == nil || s.batchRuns == nil {
		return
	}
	s.batchRuns.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncConsistencyFailure records an aborted run whose claim and fold counts
// did not match.
func (s *SettlementMetrics) IncConsistencyFailure() {
	if s == nil || s.consistencyFailures == nil {
		return
	}
	s.consistencyFailures.Inc()
}

// SetOrphanedBatches updates the orphaned cohort gauge.
func (s *SettlementMetrics) SetOrphanedBatches(n int) {
	if s == nil || s.orphanedBatches == nil {
		return
	}
	s.orphanedBatches.Set(float64(n))
}
