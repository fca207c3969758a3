package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/morningmarket/morningmarket-backend/pkg/db/models"
	"github.com/morningmarket/morningmarket-backend/pkg/enums"
	pkgerrors "github.com/morningmarket/morningmarket-backend/pkg/errors"
)

// Repository manages persistence for orders, items and payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByUserAndKey(ctx context.Context, userID uuid.UUID, idempotencyKey string) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	SaveGatewaySession(ctx context.Context, orderID uuid.UUID, tid, redirectURL string) error
	MarkPaid(ctx context.Context, order *models.Order, aid string, at time.Time) error
	MarkCanceled(ctx context.Context, order *models.Order, reason string, at time.Time) error
	MarkFailed(ctx context.Context, order *models.Order, reason string, at time.Time) error
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetByUserAndKey(ctx context.Context, userID uuid.UUID, idempotencyKey string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments").
		First(&order, "user_id = ? AND idempotency_key = ?", userID, idempotencyKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

// LockByID loads the order row under FOR UPDATE, items and payments included.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Find(&order.Items).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Find(&order.Payments).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// SaveGatewaySession records the tid and redirect URL returned by the
// gateway's ready call, on the order and its latest payment row.
func (r *repository) SaveGatewaySession(ctx context.Context, orderID uuid.UUID, tid, redirectURL string) error {
	if err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"tid":          tid,
			"redirect_url": redirectURL,
		}).Error; err != nil {
		return err
	}
	return r.updateLatestPayment(ctx, orderID, map[string]any{"tid": tid})
}

func (r *repository) MarkPaid(ctx context.Context, order *models.Order, aid string, at time.Time) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "order is required")
	}
	order.Status = enums.OrderStatusPaid
	order.PaidAt = &at
	if err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status":  enums.OrderStatusPaid,
			"paid_at": at,
		}).Error; err != nil {
		return err
	}
	updates := map[string]any{"status": enums.PaymentStatusApproved}
	if aid != "" {
		updates["aid"] = aid
	}
	return r.updateLatestPayment(ctx, order.ID, updates)
}

func (r *repository) MarkCanceled(ctx context.Context, order *models.Order, reason string, at time.Time) error {
	return r.markTerminal(ctx, order, enums.OrderStatusCanceled, enums.PaymentStatusCanceled, "canceled_at", reason, at)
}

func (r *repository) MarkFailed(ctx context.Context, order *models.Order, reason string, at time.Time) error {
	return r.markTerminal(ctx, order, enums.OrderStatusFailed, enums.PaymentStatusFailed, "failed_at", reason, at)
}

func (r *repository) markTerminal(ctx context.Context, order *models.Order, status enums.OrderStatus, paymentStatus enums.PaymentStatus, tsColumn, reason string, at time.Time) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "order is required")
	}
	order.Status = status
	if err := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"status": status,
			tsColumn: at,
		}).Error; err != nil {
		return err
	}
	updates := map[string]any{"status": paymentStatus}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	return r.updateLatestPayment(ctx, order.ID, updates)
}

// ListStalePending returns pending_payment orders created before cutoff that
// hold a gateway tid, oldest first.
func (r *repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ? AND created_at < ? AND tid IS NOT NULL", enums.OrderStatusPendingPayment, cutoff).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) updateLatestPayment(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Updates(updates).Error
}
