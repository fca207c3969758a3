package cron

import (
	"context"
	"testing"
	"time"

	"github.com/morningmarket/morningmarket-backend/pkg/config"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
)

type fakeSweeper struct {
	dates []time.Time
	swept int64
}

func (f *fakeSweeper) SweepNoShows(_ context.Context, pickupDate time.Time) (int64, error) {
	f.dates = append(f.dates, pickupDate)
	return f.swept, nil
}

func newNoShowJobTest(t *testing.T, sweeper *fakeSweeper) *noShowJob {
	t.Helper()
	jobIface, err := NewNoShowJob(NoShowJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Sweeper: sweeper,
		Store:   config.StoreConfig{Timezone: "UTC", PickupDeadlineHour: 20},
	})
	if err != nil {
		t.Fatalf("NewNoShowJob: %v", err)
	}
	job, ok := jobIface.(*noShowJob)
	if !ok {
		t.Fatalf("expected noShowJob, got %T", jobIface)
	}
	return job
}

func TestNoShowJob_beforeDeadlineSweepsYesterdayOnly(t *testing.T) {
	sweeper := &fakeSweeper{swept: 2}
	job := newNoShowJobTest(t, sweeper)
	job.now = func() time.Time {
		return time.Date(2026, time.August, 31, 10, 0, 0, 0, time.UTC)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sweeper.dates) != 1 {
		t.Fatalf("expected 1 sweep, got %d", len(sweeper.dates))
	}
	want := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)
	if !sweeper.dates[0].Equal(want) {
		t.Fatalf("expected sweep of %s, got %s", want, sweeper.dates[0])
	}
}

func TestNoShowJob_afterDeadlineSweepsTodayToo(t *testing.T) {
	sweeper := &fakeSweeper{}
	job := newNoShowJobTest(t, sweeper)
	job.now = func() time.Time {
		return time.Date(2026, time.August, 31, 20, 5, 0, 0, time.UTC)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sweeper.dates) != 2 {
		t.Fatalf("expected 2 sweeps, got %d", len(sweeper.dates))
	}
	today := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)
	if !sweeper.dates[1].Equal(today) {
		t.Fatalf("expected today's sweep, got %s", sweeper.dates[1])
	}
}
