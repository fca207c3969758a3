package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/morningmarket/morningmarket-backend/api/responses"
	"github.com/morningmarket/morningmarket-backend/api/validators"
	"github.com/morningmarket/morningmarket-backend/internal/orders"
	"github.com/morningmarket/morningmarket-backend/pkg/enums"
	pkgerrors "github.com/morningmarket/morningmarket-backend/pkg/errors"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
)

type courierItemRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Qty       int       `json:"qty" validate:"required,min=1"`
}

type checkoutRequest struct {
	IdempotencyKey string               `json:"idempotencyKey" validate:"required,min=8,max=128"`
	Kind           string               `json:"kind" validate:"required,oneof=delivery courier"`
	Address        string               `json:"address" validate:"required"`
	ReservationIDs []uuid.UUID          `json:"reservationIds" validate:"omitempty,dive,required"`
	Items          []courierItemRequest `json:"items" validate:"omitempty,dive"`
}

type approveOrderRequest struct {
	PGToken string `json:"pgToken"`
}

// Checkout creates a payable order from reservations (delivery) or product
// lines (courier) and opens a gateway session for it.
func Checkout(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := enums.ParseOrderKind(payload.Kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order kind"))
			return
		}

		items := make([]orders.CourierItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, orders.CourierItemInput{ProductID: item.ProductID, Qty: item.Qty})
		}

		order, err := svc.Checkout(r.Context(), orders.CheckoutInput{
			UserID:         userID,
			IdempotencyKey: payload.IdempotencyKey,
			Kind:           kind,
			Address:        payload.Address,
			ReservationIDs: payload.ReservationIDs,
			Items:          items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// ApproveOrder settles a pending order with the token the shopper brought
// back from the gateway redirect.
func ApproveOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload approveOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Approve(r.Context(), orders.ApproveInput{
			UserID:  userID,
			OrderID: orderID,
			PGToken: payload.PGToken,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}

// CancelOrder voids a not-yet-paid order.
func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}

// OrderDetail returns one of the caller's orders with items and payments.
func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetByID(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, order)
	}
}
