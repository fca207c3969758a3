package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/morningmarket/morningmarket-backend/internal/reservations"
	"github.com/morningmarket/morningmarket-backend/internal/stock"
	"github.com/morningmarket/morningmarket-backend/pkg/config"
	"github.com/morningmarket/morningmarket-backend/pkg/db"
	"github.com/morningmarket/morningmarket-backend/pkg/db/models"
	"github.com/morningmarket/morningmarket-backend/pkg/enums"
	pkgerrors "github.com/morningmarket/morningmarket-backend/pkg/errors"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
	"github.com/morningmarket/morningmarket-backend/pkg/paygate"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// paymentGateway is the slice of the gateway client the orchestrator uses.
// Every call happens outside any database transaction.
type paymentGateway interface {
	Enabled() bool
	Ready(ctx context.Context, req paygate.ReadyRequest) (*paygate.ReadyResponse, error)
	Approve(ctx context.Context, req paygate.ApproveRequest) (*paygate.ApproveResponse, error)
	OrderStatus(ctx context.Context, tid string) (*paygate.StatusResponse, error)
}

// Service orchestrates checkout and the split-transaction payment flow.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error)
	Approve(ctx context.Context, input ApproveInput) (*models.Order, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	GetByID(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	ReconcilePending(ctx context.Context, gracePeriod time.Duration, limit int) (*ReconcileResult, error)
}

type service struct {
	repo         Repository
	reservations reservations.Repository
	tx           txRunner
	gate         paymentGateway
	fees         *FeeCalculator
	store        config.StoreConfig
	logg         *logger.Logger
	now          func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, reservationsRepo reservations.Repository, tx txRunner, gate paymentGateway, fees *FeeCalculator, store config.StoreConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if reservationsRepo == nil {
		return nil, fmt.Errorf("reservations repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gate == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if fees == nil {
		return nil, fmt.Errorf("fee calculator required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:         repo,
		reservations: reservationsRepo,
		tx:           tx,
		gate:         gate,
		fees:         fees,
		store:        store,
		logg:         logg,
		now:          time.Now,
	}, nil
}

// Checkout builds a payable order. The unique (user_id, idempotency_key)
// index is the idempotency boundary: a retry or a parallel double-submit hits
// the constraint and resolves to the order that won.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*models.Order, error) {
	if err := s.validateCheckout(input); err != nil {
		return nil, err
	}
	ctx = s.logg.WithUserID(ctx, input.UserID.String())

	// Fast path for a retry of a finished checkout.
	if existing, err := s.repo.GetByUserAndKey(ctx, input.UserID, input.IdempotencyKey); err == nil {
		if err := s.ensureGatewaySession(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	now := s.now()
	order := &models.Order{
		ID:              uuid.New(),
		UserID:          input.UserID,
		IdempotencyKey:  input.IdempotencyKey,
		Kind:            input.Kind,
		Status:          enums.OrderStatusPendingPayment,
		FulfillmentDate: s.localDate(now),
		Address:         input.Address,
	}

	var feeCents, surchargeCents int
	if input.Kind == enums.OrderKindDelivery {
		var err error
		feeCents, surchargeCents, err = s.fees.DeliveryFee(ctx, input.Address)
		if err != nil {
			return nil, err
		}
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		switch input.Kind {
		case enums.OrderKindDelivery:
			if err := s.buildDeliveryLines(ctx, tx, order, input); err != nil {
				return err
			}
		case enums.OrderKindCourier:
			courierFee, err := s.buildCourierLines(ctx, tx, order, input)
			if err != nil {
				return err
			}
			feeCents = courierFee
		}

		order.FeeCents = feeCents
		order.SurchargeCents = surchargeCents
		order.TotalCents = order.ProductAmountCents + feeCents + surchargeCents
		order.Payments = []models.Payment{{
			ID:          uuid.New(),
			OrderID:     order.ID,
			Provider:    s.provider(),
			Status:      enums.PaymentStatusReady,
			AmountCents: order.TotalCents,
		}}
		return s.repo.WithTx(tx).Create(ctx, order)
	})
	if err != nil {
		// A parallel submit with the same key won the insert race; hand
		// back the winner.
		if db.IsUniqueViolation(err, "") {
			winner, fetchErr := s.repo.GetByUserAndKey(ctx, input.UserID, input.IdempotencyKey)
			if fetchErr != nil {
				return nil, fetchErr
			}
			if err := s.ensureGatewaySession(ctx, winner); err != nil {
				return nil, err
			}
			return winner, nil
		}
		return nil, err
	}

	if err := s.ensureGatewaySession(ctx, order); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "checkout created")
	return order, nil
}

// ensureGatewaySession opens the gateway checkout session for a pending
// order that does not have one yet. The order row can exist without a
// session when a prior attempt committed but the Ready call failed;
// retrying the same idempotency key repairs it instead of dead-ending
// on an order the reconciler will never pick up.
func (s *service) ensureGatewaySession(ctx context.Context, order *models.Order) error {
	if !s.gate.Enabled() || order.Status != enums.OrderStatusPendingPayment || order.TID != nil {
		return nil
	}
	ready, err := s.gate.Ready(ctx, paygate.ReadyRequest{
		OrderID:     order.ID.String(),
		UserID:      order.UserID.String(),
		ItemName:    s.itemName(order),
		Quantity:    len(order.Items),
		AmountCents: order.TotalCents,
	})
	if err != nil {
		return err
	}
	if err := s.repo.SaveGatewaySession(ctx, order.ID, ready.TID, ready.RedirectURL); err != nil {
		return err
	}
	order.TID = &ready.TID
	order.RedirectURL = &ready.RedirectURL
	return nil
}

// Approve settles a pending order in three phases: read-validate, gateway
// call outside any transaction, then a short write transaction that commits
// the outcome. A transient gateway failure leaves the order pending for the
// reconciler; a rejection fails it.
func (s *service) Approve(ctx context.Context, input ApproveInput) (*models.Order, error) {
	if input.UserID == uuid.Nil || input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and order id are required")
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	// Phase 1: plain reads, no locks held across the gateway call.
	order, err := s.repo.GetByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	if order.Status == enums.OrderStatusPaid {
		return order, nil
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status})
	}

	// Phase 2: gateway approval.
	aid := ""
	if s.gate.Enabled() {
		if order.TID == nil || *order.TID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no gateway session")
		}
		if input.PGToken == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "pg token is required")
		}
		approved, err := s.gate.Approve(ctx, paygate.ApproveRequest{
			TID:     *order.TID,
			OrderID: order.ID.String(),
			UserID:  order.UserID.String(),
			PGToken: input.PGToken,
		})
		if err != nil {
			if pkgerrors.IsRetryable(err) {
				// Transient: leave the order pending, reconciliation
				// will learn the true outcome.
				return nil, err
			}
			if failErr := s.commitFailed(ctx, order.ID, "gateway rejected approval"); failErr != nil {
				return nil, multierr.Append(err, failErr)
			}
			return nil, err
		}
		aid = approved.AID
	}

	// Phase 3: commit.
	return s.commitPaid(ctx, order.ID, aid)
}

// Cancel voids a not-yet-paid order, restocking courier lines.
func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and order id are required")
	}

	now := s.now()
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		var err error
		order, err = txRepo.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if order.Status != enums.OrderStatusPendingPayment {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
				WithDetails(map[string]any{"status": order.Status})
		}
		if err := s.restockCourierLines(ctx, tx, order); err != nil {
			return err
		}
		return txRepo.MarkCanceled(ctx, order, "canceled by user", now)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) GetByID(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

// ReconcilePending resolves pending_payment orders older than the grace
// window against the gateway's view. Per-order errors are collected and the
// sweep continues; the combined error is informational, not fatal.
func (s *service) ReconcilePending(ctx context.Context, gracePeriod time.Duration, limit int) (*ReconcileResult, error) {
	if !s.gate.Enabled() {
		return &ReconcileResult{}, nil
	}

	cutoff := s.now().Add(-gracePeriod)
	stale, err := s.repo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Scanned: len(stale)}
	var errs error
	for i := range stale {
		order := &stale[i]
		octx := s.logg.WithOrderID(ctx, order.ID.String())

		status, err := s.gate.OrderStatus(octx, *order.TID)
		if err != nil {
			s.logg.Error(octx, "reconcile: gateway status lookup failed", err)
			errs = multierr.Append(errs, err)
			continue
		}

		switch status.Status {
		case paygate.StatusApproved:
			if _, err := s.commitPaid(octx, order.ID, status.AID); err != nil {
				s.logg.Error(octx, "reconcile: committing paid order failed", err)
				errs = multierr.Append(errs, err)
				continue
			}
			result.Paid++
			s.logg.Info(octx, "reconcile: stale order resolved to paid")

		case paygate.StatusCanceled, paygate.StatusFailed, paygate.StatusQuit:
			if err := s.commitFailed(octx, order.ID, "gateway reported "+status.Status); err != nil {
				s.logg.Error(octx, "reconcile: failing order failed", err)
				errs = multierr.Append(errs, err)
				continue
			}
			result.Failed++
			s.logg.Info(octx, "reconcile: stale order resolved to failed")

		default:
			// Still in-flight at the gateway; leave it for the next sweep.
			result.Skipped++
		}
	}
	return result, errs
}

// commitPaid is the Phase-3 write transaction: order paid, latest payment
// approved, linked reservations picked. Idempotent per the status re-check
// under the order lock.
func (s *service) commitPaid(ctx context.Context, orderID uuid.UUID, aid string) (*models.Order, error) {
	now := s.now()
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		var err error
		order, err = txRepo.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusPaid {
			return nil
		}
		if order.Status != enums.OrderStatusPendingPayment {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
				WithDetails(map[string]any{"status": order.Status})
		}
		if err := txRepo.MarkPaid(ctx, order, aid, now); err != nil {
			return err
		}

		txReservations := s.reservations.WithTx(tx)
		for _, item := range order.Items {
			if item.ReservationID == nil {
				continue
			}
			reservation, err := txReservations.LockByID(ctx, *item.ReservationID)
			if err != nil {
				return err
			}
			if reservation.Status.IsTerminal() {
				continue
			}
			if err := txReservations.UpdateStatus(ctx, reservation, enums.ReservationStatusPicked, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) commitFailed(ctx context.Context, orderID uuid.UUID, reason string) error {
	now := s.now()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		order, err := txRepo.LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPendingPayment {
			return nil
		}
		if err := s.restockCourierLines(ctx, tx, order); err != nil {
			return err
		}
		return txRepo.MarkFailed(ctx, order, reason, now)
	})
}

// buildDeliveryLines validates the referenced reservations and turns them
// into order items. Reservations stay pending until payment commits.
func (s *service) buildDeliveryLines(ctx context.Context, tx *gorm.DB, order *models.Order, input CheckoutInput) error {
	txReservations := s.reservations.WithTx(tx)
	today := s.localDate(s.now())

	items := make([]models.OrderItem, 0, len(input.ReservationIDs))
	for _, reservationID := range input.ReservationIDs {
		reservation, err := txReservations.GetByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another user")
		}
		if reservation.Status != enums.ReservationStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation is no longer pending").
				WithDetails(map[string]any{"reservation_id": reservationID, "status": reservation.Status})
		}
		pickup := dateOnly(reservation.PickupDate)
		if !pickup.Equal(today) {
			return pkgerrors.New(pkgerrors.CodeValidation, "delivery covers today's pickups only").
				WithDetails(map[string]any{"reservation_id": reservationID, "pickup_date": pickup})
		}

		product, err := s.loadProduct(ctx, tx, reservation.ProductID)
		if err != nil {
			return err
		}
		resID := reservationID
		items = append(items, models.OrderItem{
			ID:            uuid.New(),
			OrderID:       order.ID,
			ReservationID: &resID,
			ProductID:     reservation.ProductID,
			ProductName:   product.Name,
			Qty:           reservation.Qty,
			AmountCents:   reservation.AmountCents,
		})
		order.ProductAmountCents += reservation.AmountCents
	}
	order.Items = items
	return nil
}

// buildCourierLines reserves stock for each product line under the product
// lock and prices the shipment. Returns the courier fee.
func (s *service) buildCourierLines(ctx context.Context, tx *gorm.DB, order *models.Order, input CheckoutInput) (int, error) {
	items := make([]models.OrderItem, 0, len(input.Items))
	products := make([]models.Product, 0, len(input.Items))

	for _, line := range input.Items {
		product, err := stock.LockProduct(ctx, tx, line.ProductID)
		if err != nil {
			return 0, err
		}
		if err := stock.Reserve(ctx, tx, product, line.Qty); err != nil {
			return 0, err
		}
		amount := product.PriceCents * line.Qty
		items = append(items, models.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Qty:         line.Qty,
			AmountCents: amount,
		})
		order.ProductAmountCents += amount
		products = append(products, *product)
	}
	order.Items = items
	return s.fees.CourierFee(products, order.ProductAmountCents), nil
}

// restockCourierLines returns stock held by courier items. Delivery items
// reference reservations, whose holds are governed by the reservation
// lifecycle, not the order.
func (s *service) restockCourierLines(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if order.Kind != enums.OrderKindCourier {
		return nil
	}
	for _, item := range order.Items {
		product, err := stock.LockProduct(ctx, tx, item.ProductID)
		if err != nil {
			return err
		}
		if err := stock.Restock(ctx, tx, product, item.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) validateCheckout(input CheckoutInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.IdempotencyKey == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if !input.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order kind %q", input.Kind))
	}
	if input.Address == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "address is required")
	}
	switch input.Kind {
	case enums.OrderKindDelivery:
		if len(input.ReservationIDs) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "delivery checkout requires reservations")
		}
	case enums.OrderKindCourier:
		if len(input.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "courier checkout requires items")
		}
		for _, item := range input.Items {
			if item.ProductID == uuid.Nil || item.Qty <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "courier items need a product and positive quantity")
			}
		}
	}
	return nil
}

func (s *service) loadProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := tx.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
	}
	return &product, nil
}

func (s *service) provider() enums.PaymentProvider {
	if s.gate.Enabled() {
		return enums.PaymentProviderKakaoPay
	}
	return enums.PaymentProviderNone
}

func (s *service) itemName(order *models.Order) string {
	if len(order.Items) == 0 {
		return "morning market order"
	}
	name := order.Items[0].ProductName
	if len(order.Items) > 1 {
		name = fmt.Sprintf("%s and %d more", name, len(order.Items)-1)
	}
	return name
}

func (s *service) localDate(t time.Time) time.Time {
	local := t.In(s.store.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
