package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/morningmarket/morningmarket-backend/pkg/db/models"
	pkgerrors "github.com/morningmarket/morningmarket-backend/pkg/errors"
)

// Repository manages persistence for user rows and their quota totals. Quota
// mutations require the user row lock taken inside the caller's transaction,
// always after the product lock.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByUID(ctx context.Context, uid string) (*models.User, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	ApplyReservation(ctx context.Context, user *models.User, amountCents int) error
	RevertReservation(ctx context.Context, user *models.User, amountCents int) error
	ResetMonthlyWarnCounts(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a user repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) GetByUID(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "uid = ?", uid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, err
	}
	return &user, nil
}

// LockByID loads the user row under FOR UPDATE.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// ApplyReservation bumps the running totals for a new reservation. The caller
// must hold the row lock from LockByID.
func (r *repository) ApplyReservation(ctx context.Context, user *models.User, amountCents int) error {
	if user == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "locked user is required")
	}
	user.TotalOrders++
	user.TotalRevenueCents += amountCents
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"total_orders":        user.TotalOrders,
			"total_revenue_cents": user.TotalRevenueCents,
		}).Error
}

// RevertReservation rolls the running totals back after a cancellation. The
// caller must hold the row lock from LockByID.
func (r *repository) RevertReservation(ctx context.Context, user *models.User, amountCents int) error {
	if user == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "locked user is required")
	}
	user.TotalOrders--
	user.TotalRevenueCents -= amountCents
	if user.TotalOrders < 0 {
		user.TotalOrders = 0
	}
	if user.TotalRevenueCents < 0 {
		user.TotalRevenueCents = 0
	}
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"total_orders":        user.TotalOrders,
			"total_revenue_cents": user.TotalRevenueCents,
		}).Error
}

// ResetMonthlyWarnCounts zeroes monthly_warn_count for every user. Runs once
// per calendar month from the cron worker.
func (r *repository) ResetMonthlyWarnCounts(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("monthly_warn_count > 0").
		Update("monthly_warn_count", 0)
	return res.RowsAffected, res.Error
}
