package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/morningmarket/morningmarket-backend/internal/stock"
	"github.com/morningmarket/morningmarket-backend/internal/users"
	"github.com/morningmarket/morningmarket-backend/pkg/config"
	"github.com/morningmarket/morningmarket-backend/pkg/db/models"
	"github.com/morningmarket/morningmarket-backend/pkg/enums"
	pkgerrors "github.com/morningmarket/morningmarket-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the reservation state machine. Every mutation runs in a
// single transaction, taking row locks in product → user → reservation order.
type Service interface {
	Reserve(ctx context.Context, input ReserveInput) (*models.Reservation, error)
	Cancel(ctx context.Context, userID, reservationID uuid.UUID) (*models.Reservation, error)
	ConfirmPickup(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error)
	MarkSelfPickReady(ctx context.Context, userID, reservationID uuid.UUID) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error)
	SweepNoShows(ctx context.Context, pickupDate time.Time) (int64, error)
}

type service struct {
	repo  Repository
	users users.Repository
	tx    txRunner
	store config.StoreConfig
	now   func() time.Time
}

// ReserveInput captures the data a new reservation requires.
type ReserveInput struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
	Qty       int
}

// NewService builds the reservation service with the required dependencies.
func NewService(repo Repository, usersRepo users.Repository, tx txRunner, store config.StoreConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if usersRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:  repo,
		users: usersRepo,
		tx:    tx,
		store: store,
		now:   time.Now,
	}, nil
}

func (s *service) Reserve(ctx context.Context, input ReserveInput) (*models.Reservation, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	now := s.now()
	var reservation *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		product, err := stock.LockProduct(ctx, tx, input.ProductID)
		if err != nil {
			return err
		}

		txUsers := s.users.WithTx(tx)
		user, err := txUsers.LockByID(ctx, input.UserID)
		if err != nil {
			return err
		}
		if user.IsRestricted(now) {
			return pkgerrors.New(pkgerrors.CodeValidation, "user is restricted from reserving").
				WithDetails(map[string]any{"restricted_until": user.RestrictedUntil})
		}

		if err := stock.Reserve(ctx, tx, product, input.Qty); err != nil {
			return err
		}

		amount := product.PriceCents * input.Qty
		if err := txUsers.ApplyReservation(ctx, user, amount); err != nil {
			return err
		}

		reservation = &models.Reservation{
			ID:              uuid.New(),
			ProductID:       product.ID,
			UserID:          user.ID,
			Qty:             input.Qty,
			AmountCents:     amount,
			PickupDate:      product.SellDate,
			Status:          enums.ReservationStatusPending,
			StatusChangedAt: now,
		}
		return s.repo.WithTx(tx).Create(ctx, reservation)
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func (s *service) Cancel(ctx context.Context, userID, reservationID uuid.UUID) (*models.Reservation, error) {
	if userID == uuid.Nil || reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and reservation id are required")
	}

	now := s.now()
	var reservation *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		// Unlocked read to learn the product/user ids, then lock in the
		// fixed product → user → reservation order.
		peek, err := txRepo.GetByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if peek.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
		}

		product, err := stock.LockProduct(ctx, tx, peek.ProductID)
		if err != nil {
			return err
		}
		txUsers := s.users.WithTx(tx)
		user, err := txUsers.LockByID(ctx, peek.UserID)
		if err != nil {
			return err
		}
		reservation, err = txRepo.LockByID(ctx, reservationID)
		if err != nil {
			return err
		}

		if reservation.Status != enums.ReservationStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is no longer pending").
				WithDetails(map[string]any{"status": reservation.Status})
		}
		if !s.beforeCancelCutoff(now, reservation.PickupDate) {
			return pkgerrors.New(pkgerrors.CodeValidation, "cancel window has closed")
		}

		if err := stock.Restock(ctx, tx, product, reservation.Qty); err != nil {
			return err
		}
		if err := txUsers.RevertReservation(ctx, user, reservation.AmountCents); err != nil {
			return err
		}
		return txRepo.UpdateStatus(ctx, reservation, enums.ReservationStatusCanceled, now)
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func (s *service) ConfirmPickup(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	if reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}

	now := s.now()
	var reservation *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		var err error
		reservation, err = txRepo.LockByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != enums.ReservationStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is no longer pending").
				WithDetails(map[string]any{"status": reservation.Status})
		}
		if s.localDate(now).Before(dateOnly(reservation.PickupDate)) {
			return pkgerrors.New(pkgerrors.CodeValidation, "pickup date not reached")
		}
		return txRepo.UpdateStatus(ctx, reservation, enums.ReservationStatusPicked, now)
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func (s *service) MarkSelfPickReady(ctx context.Context, userID, reservationID uuid.UUID) (*models.Reservation, error) {
	if userID == uuid.Nil || reservationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and reservation id are required")
	}

	now := s.now()
	var reservation *models.Reservation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		var err error
		reservation, err = txRepo.LockByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
		}
		if reservation.Status != enums.ReservationStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is no longer pending").
				WithDetails(map[string]any{"status": reservation.Status})
		}
		if !s.beforePickupDeadline(now, reservation.PickupDate) {
			return pkgerrors.New(pkgerrors.CodeValidation, "pickup deadline has passed")
		}
		return txRepo.UpdateStatus(ctx, reservation, enums.ReservationStatusSelfPickReady, now)
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUser(ctx, userID)
}

// SweepNoShows transitions every still-pending reservation for the given
// pickup date to no_show and warns the affected users. Stock stays deducted;
// a no-show forfeits the hold like a normal pickup would.
func (s *service) SweepNoShows(ctx context.Context, pickupDate time.Time) (int64, error) {
	sweptAt := s.now()
	restrictUntil := s.restrictionEnd(sweptAt)

	var swept int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		var err error
		swept, err = txRepo.SweepNoShows(ctx, pickupDate, sweptAt)
		if err != nil {
			return err
		}
		if swept == 0 {
			return nil
		}
		_, err = txRepo.WarnNoShowUsers(ctx, pickupDate, sweptAt, restrictUntil, s.store.WarnThreshold)
		return err
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}

// beforeCancelCutoff reports whether a cancellation at now is still allowed
// for the given pickup date: strictly before the cutoff hour on that date,
// store-local time.
func (s *service) beforeCancelCutoff(now time.Time, pickupDate time.Time) bool {
	loc := s.store.Location()
	local := now.In(loc)
	cutoff := time.Date(pickupDate.Year(), pickupDate.Month(), pickupDate.Day(),
		s.store.CancelCutoffHour, 0, 0, 0, loc)
	return local.Before(cutoff)
}

func (s *service) beforePickupDeadline(now time.Time, pickupDate time.Time) bool {
	loc := s.store.Location()
	local := now.In(loc)
	deadline := time.Date(pickupDate.Year(), pickupDate.Month(), pickupDate.Day(),
		s.store.PickupDeadlineHour, 0, 0, 0, loc)
	return local.Before(deadline)
}

// restrictionEnd is the first instant of the month after next, store-local:
// a user restricted mid-month sits out the remainder plus one full month.
func (s *service) restrictionEnd(now time.Time) time.Time {
	loc := s.store.Location()
	local := now.In(loc)
	return time.Date(local.Year(), local.Month()+2, 1, 0, 0, 0, 0, loc)
}

// localDate maps an instant to the store-local calendar date, normalized to
// UTC midnight for comparison against stored date columns.
func (s *service) localDate(t time.Time) time.Time {
	local := t.In(s.store.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// dateOnly strips the time-of-day from an already date-valued column.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
