package reservations

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

// Repository manages persistence for reservations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error)
	UpdateStatus(ctx context.Context, reservation *models.Reservation, status enums.ReservationStatus, at time.Time) error
	SweepNoShows(ctx context.Context, pickupDate time.Time, sweptAt time.Time) (int64, error)
	WarnNoShowUsers(ctx context.Context, pickupDate time.Time, sweptAt time.Time, restrictUntil time.Time, threshold int) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).First(&reservation, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, err
	}
	return &reservation, nil
}

// LockByID loads the reservation row under FOR UPDATE. Callers must already
// hold the product and user locks; this is always the last lock taken.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&reservation, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error) {
	var reservations []models.Reservation
	if err := r.db.WithContext(ctx).
		Preload("Product").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

func (r *repository) UpdateStatus(ctx context.Context, reservation *models.Reservation, status enums.ReservationStatus, at time.Time) error {
	if reservation == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "reservation is required")
	}
	reservation.Status = status
	reservation.StatusChangedAt = at
	return r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("id = ?", reservation.ID).
		Updates(map[string]any{
			"status":            status,
			"status_changed_at": at,
		}).Error
}

// SweepNoShows bulk-transitions every pending reservation for the given
// pickup date to no_show. A single conditional UPDATE, no per-row locks;
// stock is forfeited, not restored.
func (r *repository) SweepNoShows(ctx context.Context, pickupDate time.Time, sweptAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("status = ? AND pickup_date = ?", enums.ReservationStatusPending, pickupDate).
		Updates(map[string]any{
			"status":            enums.ReservationStatusNoShow,
			"status_changed_at": sweptAt,
		})
	return res.RowsAffected, res.Error
}

// WarnNoShowUsers bumps warn counters for users swept at sweptAt and
// restricts those whose monthly count reached the threshold. Matching on the
// sweep timestamp keeps a re-run from double-warning.
func (r *repository) WarnNoShowUsers(ctx context.Context, pickupDate time.Time, sweptAt time.Time, restrictUntil time.Time, threshold int) (int64, error) {
	sweptUsers := r.db.Model(&models.Reservation{}).
		Select("user_id").
		Where("status = ? AND pickup_date = ? AND status_changed_at = ?",
			enums.ReservationStatusNoShow, pickupDate, sweptAt)

	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN (?)", sweptUsers).
		Updates(map[string]any{
			"monthly_warn_count": gorm.Expr("monthly_warn_count + 1"),
			"total_warn_count":   gorm.Expr("total_warn_count + 1"),
		})
	if res.Error != nil {
		return 0, res.Error
	}

	if err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("monthly_warn_count >= ? AND id IN (?)", threshold, sweptUsers).
		Update("restricted_until", restrictUntil).Error; err != nil {
		return res.RowsAffected, err
	}
	return res.RowsAffected, nil
}
