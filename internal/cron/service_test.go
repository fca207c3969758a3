package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/morningmarket/morningmarket-backend/internal/orders"
	"github.com/morningmarket/morningmarket-backend/internal/settlement"
	"github.com/morningmarket/morningmarket-backend/pkg/config"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
)

type fakeLock struct {
	available bool
	acquired  int
	released  int
}

func (f *fakeLock) Acquire(_ context.Context) (bool, error) {
	f.acquired++
	return f.available, nil
}

func (f *fakeLock) Release(_ context.Context) error {
	f.released++
	return nil
}

type recordingJob struct {
	name string
	runs int
	err  error
}

func (j *recordingJob) Name() string { return j.name }

func (j *recordingJob) Run(_ context.Context) error {
	j.runs++
	return j.err
}

func TestService_runCycleExecutesAllJobs(t *testing.T) {
	first := &recordingJob{name: "first"}
	second := &recordingJob{name: "second", err: errors.New("boom")}
	third := &recordingJob{name: "third"}
	lock := &fakeLock{available: true}

	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Registry: NewRegistry(first, second, third),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	// A failing job does not stop the ones after it.
	if first.runs != 1 || second.runs != 1 || third.runs != 1 {
		t.Fatalf("expected all jobs to run: %d %d %d", first.runs, second.runs, third.runs)
	}
	if lock.released != 1 {
		t.Fatalf("expected lock release, got %d", lock.released)
	}
}

func TestService_runCycleSkipsWhenLocked(t *testing.T) {
	job := &recordingJob{name: "only"}
	lock := &fakeLock{available: false}

	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("locked cycle must not run jobs, got %d", job.runs)
	}
	if lock.released != 0 {
		t.Fatalf("unacquired lock must not be released, got %d", lock.released)
	}
}

type fakeSettlementRunner struct {
	dates []time.Time
}

func (f *fakeSettlementRunner) Run(_ context.Context, pickupDate time.Time) (*settlement.RunResult, error) {
	f.dates = append(f.dates, pickupDate)
	return &settlement.RunResult{}, nil
}

func TestSettlementJob_coversLookbackWindow(t *testing.T) {
	runner := &fakeSettlementRunner{}
	jobIface, err := NewSettlementJob(SettlementJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "test"}),
		Runner:       runner,
		Store:        config.StoreConfig{Timezone: "UTC"},
		LookbackDays: 1,
	})
	if err != nil {
		t.Fatalf("NewSettlementJob: %v", err)
	}
	job := jobIface.(*settlementJob)
	job.now = func() time.Time {
		return time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(runner.dates) != 2 {
		t.Fatalf("expected 2 settlement runs, got %d", len(runner.dates))
	}
	yesterday := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)
	today := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)
	if !runner.dates[0].Equal(yesterday) || !runner.dates[1].Equal(today) {
		t.Fatalf("unexpected dates: %v", runner.dates)
	}
}

type fakeReconciler struct {
	grace  time.Duration
	limit  int
	result *orders.ReconcileResult
}

func (f *fakeReconciler) ReconcilePending(_ context.Context, gracePeriod time.Duration, limit int) (*orders.ReconcileResult, error) {
	f.grace = gracePeriod
	f.limit = limit
	return f.result, nil
}

func TestPaymentReconcileJob_passesConfiguredWindow(t *testing.T) {
	reconciler := &fakeReconciler{result: &orders.ReconcileResult{Scanned: 3, Paid: 2, Failed: 1}}
	job, err := NewPaymentReconcileJob(PaymentReconcileJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "test"}),
		Reconciler:  reconciler,
		GracePeriod: 10 * time.Minute,
		BatchSize:   100,
	})
	if err != nil {
		t.Fatalf("NewPaymentReconcileJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reconciler.grace != 10*time.Minute || reconciler.limit != 100 {
		t.Fatalf("unexpected sweep window: grace=%s limit=%d", reconciler.grace, reconciler.limit)
	}
}
