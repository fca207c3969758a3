package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/morningmarket/morningmarket-backend/pkg/config"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
)

const warnResetGuardTTL = 40 * 24 * time.Hour

type warnResetter interface {
	ResetMonthlyWarnCounts(ctx context.Context) (int64, error)
}

type guardStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	GuardKey(parts ...string) string
}

// WarnResetJobParams configure the monthly warning counter reset.
type WarnResetJobParams struct {
	Logger   *logger.Logger
	Resetter warnResetter
	Guard    guardStore
	Store    config.StoreConfig
}

// NewWarnResetJob builds the job that zeroes monthly no-show warning counters
// at the start of each month. A Redis guard keyed by month makes the reset
// run once even though the cron cycle fires every few minutes.
func NewWarnResetJob(params WarnResetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Resetter == nil {
		return nil, fmt.Errorf("resetter required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("guard store required")
	}
	return &warnResetJob{
		logg:     params.Logger,
		resetter: params.Resetter,
		guard:    params.Guard,
		store:    params.Store,
		now:      time.Now,
	}, nil
}

type warnResetJob struct {
	logg     *logger.Logger
	resetter warnResetter
	guard    guardStore
	store    config.StoreConfig
	now      func() time.Time
}

func (j *warnResetJob) Name() string { return "warn-reset" }

func (j *warnResetJob) Run(ctx context.Context) error {
	month := j.now().In(j.store.Location()).Format("2006-01")
	key := j.guard.GuardKey("warn-reset", month)

	acquired, err := j.guard.SetNX(ctx, key, "done", warnResetGuardTTL)
	if err != nil {
		return fmt.Errorf("acquire warn reset guard: %w", err)
	}
	if !acquired {
		return nil
	}

	count, err := j.resetter.ResetMonthlyWarnCounts(ctx)
	if err != nil {
		return fmt.Errorf("reset monthly warn counts: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"month": month, "users": count})
	j.logg.Info(logCtx, "monthly warning counters reset")
	return nil
}
