package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem is one line on an order. Delivery lines reference the reservation
// whose stock hold backs them; courier lines carry their own product/qty and
// decrement stock at order-build time.
type OrderItem struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ReservationID *uuid.UUID `gorm:"column:reservation_id;type:uuid;index"`
	ProductID     uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	ProductName   string     `gorm:"column:product_name;not null"`
	Qty           int        `gorm:"column:qty;not null"`
	AmountCents   int        `gorm:"column:amount_cents;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}
