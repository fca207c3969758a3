package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/morningmarket/morningmarket-backend/pkg/config"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
)

type noShowSweeper interface {
	SweepNoShows(ctx context.Context, pickupDate time.Time) (int64, error)
}

// NoShowJobParams configure the pickup-deadline sweep.
type NoShowJobParams struct {
	Logger  *logger.Logger
	Sweeper noShowSweeper
	Store   config.StoreConfig
}

// NewNoShowJob builds the job that flips still-pending reservations to
// no_show once the store's pickup deadline has passed.
func NewNoShowJob(params NoShowJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &noShowJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		store:   params.Store,
		now:     time.Now,
	}, nil
}

type noShowJob struct {
	logg    *logger.Logger
	sweeper noShowSweeper
	store   config.StoreConfig
	now     func() time.Time
}

func (j *noShowJob) Name() string { return "no-show-sweep" }

// Run sweeps yesterday's pickup date on every cycle, and today's once the
// deadline hour has passed in store-local time. Yesterday is always covered
// so a worker outage around midnight cannot skip a date.
func (j *noShowJob) Run(ctx context.Context) error {
	local := j.now().In(j.store.Location())
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	dates := []time.Time{today.AddDate(0, 0, -1)}
	if local.Hour() >= j.store.PickupDeadlineHour {
		dates = append(dates, today)
	}

	var errs error
	for _, date := range dates {
		swept, err := j.sweeper.SweepNoShows(ctx, date)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sweep %s: %w", date.Format("2006-01-02"), err))
			continue
		}
		if swept > 0 {
			logCtx := j.logg.WithFields(ctx, map[string]any{
				"pickup_date": date.Format("2006-01-02"),
				"swept":       swept,
			})
			j.logg.Info(logCtx, "no-show sweep complete")
		}
	}
	return errs
}
