package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/morningmarket/morningmarket-backend/internal/orders"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
)

type paymentReconciler interface {
	ReconcilePending(ctx context.Context, gracePeriod time.Duration, limit int) (*orders.ReconcileResult, error)
}

// PaymentReconcileJobParams configure the stale payment sweep.
type PaymentReconcileJobParams struct {
	Logger      *logger.Logger
	Reconciler  paymentReconciler
	GracePeriod time.Duration
	BatchSize   int
}

// NewPaymentReconcileJob builds the job that resolves orders stuck in
// pending_payment against the gateway's view of the transaction.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if params.GracePeriod <= 0 {
		return nil, fmt.Errorf("grace period must be positive")
	}
	return &paymentReconcileJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
		grace:      params.GracePeriod,
		batchSize:  params.BatchSize,
	}, nil
}

type paymentReconcileJob struct {
	logg       *logger.Logger
	reconciler paymentReconciler
	grace      time.Duration
	batchSize  int
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	result, err := j.reconciler.ReconcilePending(ctx, j.grace, j.batchSize)
	if result != nil && result.Scanned > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"scanned": result.Scanned,
			"paid":    result.Paid,
			"failed":  result.Failed,
			"skipped": result.Skipped,
		})
		j.logg.Info(logCtx, "payment reconciliation sweep complete")
	}
	return err
}
