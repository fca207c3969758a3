package orders

import (
	"github.com/google/uuid"

	"github.com/morningmarket/morningmarket-backend/pkg/enums"
)

// CourierItemInput is one product line on a courier checkout.
type CourierItemInput struct {
	ProductID uuid.UUID
	Qty       int
}

// CheckoutInput captures one checkout attempt. The (UserID, IdempotencyKey)
// pair makes retries and parallel double-submits resolve to a single order.
type CheckoutInput struct {
	UserID         uuid.UUID
	IdempotencyKey string
	Kind           enums.OrderKind
	Address        string
	ReservationIDs []uuid.UUID
	Items          []CourierItemInput
}

// ApproveInput finalizes a pending payment with the token the shopper brought
// back from the gateway redirect.
type ApproveInput struct {
	UserID  uuid.UUID
	OrderID uuid.UUID
	PGToken string
}

// ReconcileResult summarizes one reconciliation sweep.
type ReconcileResult struct {
	Scanned int
	Paid    int
	Failed  int
	Skipped int
}
