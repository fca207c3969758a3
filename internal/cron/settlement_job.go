package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/morningmarket/morningmarket-backend/internal/settlement"
	"github.com/morningmarket/morningmarket-backend/pkg/config"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
)

type settlementRunner interface {
	Run(ctx context.Context, pickupDate time.Time) (*settlement.RunResult, error)
}

// SettlementJobParams configure the daily aggregation job.
type SettlementJobParams struct {
	Logger       *logger.Logger
	Runner       settlementRunner
	Store        config.StoreConfig
	LookbackDays int
}

// NewSettlementJob builds the job that folds settled reservations into the
// per-product daily aggregates. The lookback window re-covers recent dates so
// late status changes (a no-show confirmed the next morning) still fold.
func NewSettlementJob(params SettlementJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Runner == nil {
		return nil, fmt.Errorf("settlement runner required")
	}
	lookback := params.LookbackDays
	if lookback < 0 {
		lookback = 0
	}
	return &settlementJob{
		logg:     params.Logger,
		runner:   params.Runner,
		store:    params.Store,
		lookback: lookback,
		now:      time.Now,
	}, nil
}

type settlementJob struct {
	logg     *logger.Logger
	runner   settlementRunner
	store    config.StoreConfig
	lookback int
	now      func() time.Time
}

func (j *settlementJob) Name() string { return "settlement-fold" }

func (j *settlementJob) Run(ctx context.Context) error {
	local := j.now().In(j.store.Location())
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	var errs error
	for i := j.lookback; i >= 0; i-- {
		date := today.AddDate(0, 0, -i)
		result, err := j.runner.Run(ctx, date)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("settle %s: %w", date.Format("2006-01-02"), err))
			continue
		}
		if result.Claimed > 0 {
			logCtx := j.logg.WithFields(ctx, map[string]any{
				"pickup_date": date.Format("2006-01-02"),
				"claimed":     result.Claimed,
				"finished":    result.Finished,
			})
			j.logg.Info(logCtx, "settlement batch folded")
		}
	}
	return errs
}
