package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/morningmarket/morningmarket-backend/pkg/enums"
)

// Order is a payable checkout produced from reservations (delivery) or
// product lines (courier). One row per checkout attempt; repeated submissions
// with the same idempotency key resolve to the original row.
type Order struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID             uuid.UUID         `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_orders_user_idempotency"`
	IdempotencyKey     string            `gorm:"column:idempotency_key;not null;uniqueIndex:ux_orders_user_idempotency"`
	Kind               enums.OrderKind   `gorm:"column:kind;type:text;not null"`
	Status             enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending_payment'"`
	ProductAmountCents int               `gorm:"column:product_amount_cents;not null"`
	FeeCents           int               `gorm:"column:fee_cents;not null;default:0"`
	SurchargeCents     int               `gorm:"column:surcharge_cents;not null;default:0"`
	TotalCents         int               `gorm:"column:total_cents;not null"`
	FulfillmentDate    time.Time         `gorm:"column:fulfillment_date;type:date;not null"`
	Address            string            `gorm:"column:address;not null"`
	// TID is the external gateway transaction id assigned by payment ready.
	TID         *string    `gorm:"column:tid;index"`
	RedirectURL *string    `gorm:"column:redirect_url"`
	PaidAt      *time.Time `gorm:"column:paid_at"`
	CanceledAt  *time.Time `gorm:"column:canceled_at"`
	FailedAt    *time.Time `gorm:"column:failed_at"`
	Items       []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments    []Payment   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// LatestPayment returns the most recent payment row, or nil. Callers always
// act on the latest attempt.
func (o *Order) LatestPayment() *Payment {
	if len(o.Payments) == 0 {
		return nil
	}
	latest := &o.Payments[0]
	for i := range o.Payments {
		if o.Payments[i].CreatedAt.After(latest.CreatedAt) {
			latest = &o.Payments[i]
		}
	}
	return latest
}
