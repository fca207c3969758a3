package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/morningmarket/morningmarket-backend/pkg/db/models"
	pkgerrors "github.com/morningmarket/morningmarket-backend/pkg/errors"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
	"github.com/morningmarket/morningmarket-backend/pkg/metrics"
)

// Service runs the batch aggregation pipeline: mark → claim → fold → finish.
// Fold deliberately commits before Finish; a crash between the two leaves the
// cohort claimed-but-unfinished for an operator, never double-counted by the
// next run.
type Service interface {
	MarkEligible(ctx context.Context, pickupDate time.Time) (int64, error)
	MarkNoShows(ctx context.Context, pickupDate time.Time) (int64, error)
	Run(ctx context.Context, pickupDate time.Time) (*RunResult, error)
	ListOrphanedBatches(ctx context.Context) ([]OrphanedBatch, error)
	RefoldBatch(ctx context.Context, batchUID string) (*RunResult, error)
	AggregatesForDate(ctx context.Context, sellDate time.Time) ([]models.ProductDailyAgg, error)
}

// RunResult summarizes one batch run.
type RunResult struct {
	BatchUID string
	Marked   int64
	Claimed  int64
	Finished int64
	Deltas   []FoldDelta
}

type service struct {
	repo    Repository
	metrics *metrics.SettlementMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the settlement service with the required dependencies.
func NewService(repo Repository, settlementMetrics *metrics.SettlementMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    repo,
		metrics: settlementMetrics,
		logg:    logg,
		now:     time.Now,
	}, nil
}

func (s *service) MarkEligible(ctx context.Context, pickupDate time.Time) (int64, error) {
	return s.repo.MarkEligible(ctx, pickupDate)
}

func (s *service) MarkNoShows(ctx context.Context, pickupDate time.Time) (int64, error) {
	return s.repo.MarkNoShows(ctx, pickupDate)
}

// Run executes one full settlement batch for the given pickup date. The claim
// stamps a fresh token over every unclaimed event, so a run also drains
// leftovers from earlier dates that were marked but never claimed.
func (s *service) Run(ctx context.Context, pickupDate time.Time) (*RunResult, error) {
	result := &RunResult{BatchUID: uuid.NewString()}
	ctx = s.logg.WithBatchUID(ctx, result.BatchUID)

	marked, err := s.repo.MarkEligible(ctx, pickupDate)
	if err != nil {
		s.metrics.IncRun("failure")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking eligible reservations")
	}
	result.Marked = marked

	noShows, err := s.repo.MarkNoShows(ctx, pickupDate)
	if err != nil {
		s.metrics.IncRun("failure")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking no-show reservations")
	}
	result.Marked += noShows

	claimed, err := s.repo.Claim(ctx, result.BatchUID)
	if err != nil {
		s.metrics.IncRun("failure")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claiming settlement events")
	}
	result.Claimed = claimed
	if claimed == 0 {
		s.metrics.IncRun("empty")
		s.logg.Info(ctx, "settlement run had nothing to claim")
		return result, nil
	}

	if err := s.foldAndFinish(ctx, result); err != nil {
		return nil, err
	}

	s.metrics.IncRun("success")
	ctx = s.logg.WithFields(ctx, map[string]any{
		"claimed":  result.Claimed,
		"finished": result.Finished,
		"groups":   len(result.Deltas),
	})
	s.logg.Info(ctx, "settlement run completed")
	s.refreshOrphanGauge(ctx)
	return result, nil
}

// RefoldBatch re-runs fold+finish for a claimed-but-unfinished token. Only
// legal while the cohort is still unprocessed: once Finish has committed the
// token no longer matches any rows and the refold is rejected, which protects
// against double-applying a batch that already settled.
func (s *service) RefoldBatch(ctx context.Context, batchUID string) (*RunResult, error) {
	if batchUID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch uid is required")
	}
	ctx = s.logg.WithBatchUID(ctx, batchUID)

	counts, err := s.repo.CountByPhase(ctx, batchUID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting claimed events")
	}
	var claimed int64
	for _, n := range counts {
		claimed += n
	}
	if claimed == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no claimed events for batch")
	}

	result := &RunResult{BatchUID: batchUID, Claimed: claimed}
	if err := s.foldAndFinish(ctx, result); err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "orphaned batch refolded")
	s.refreshOrphanGauge(ctx)
	return result, nil
}

func (s *service) foldAndFinish(ctx context.Context, result *RunResult) error {
	counts, err := s.repo.CountByPhase(ctx, result.BatchUID)
	if err != nil {
		s.metrics.IncRun("failure")
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting claimed events")
	}

	deltas, err := s.repo.Fold(ctx, result.BatchUID)
	if err != nil {
		s.metrics.IncRun("failure")
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "folding settlement events")
	}
	result.Deltas = deltas

	finished, err := s.repo.Finish(ctx, result.BatchUID, s.now())
	if err != nil {
		s.metrics.IncRun("failure")
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finishing settlement batch")
	}
	result.Finished = finished

	if finished != result.Claimed {
		s.metrics.IncConsistencyFailure()
		s.metrics.IncRun("failure")
		return pkgerrors.New(pkgerrors.CodeConsistency, "settlement batch count mismatch").
			WithDetails(map[string]any{
				"batch_uid": result.BatchUID,
				"claimed":   result.Claimed,
				"finished":  finished,
			})
	}

	for phase, n := range counts {
		s.metrics.AddFolded(phase.String(), int(n))
	}
	return nil
}

func (s *service) ListOrphanedBatches(ctx context.Context) ([]OrphanedBatch, error) {
	orphans, err := s.repo.ListOrphanedBatches(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SetOrphanedBatches(len(orphans))
	return orphans, nil
}

func (s *service) AggregatesForDate(ctx context.Context, sellDate time.Time) ([]models.ProductDailyAgg, error) {
	return s.repo.AggregatesForDate(ctx, sellDate)
}

func (s *service) refreshOrphanGauge(ctx context.Context) {
	orphans, err := s.repo.ListOrphanedBatches(ctx)
	if err != nil {
		s.logg.Warn(ctx, "listing orphaned batches for gauge failed")
		return
	}
	s.metrics.SetOrphanedBatches(len(orphans))
}
