package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductDailyAgg accumulates settled quantity/amount per product per sell
// date. Rows are upserted additively by the settlement batch and never
// decremented by anything else.
type ProductDailyAgg struct {
	SellDate    time.Time `gorm:"column:sell_date;type:date;primaryKey"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	Quantity    int       `gorm:"column:quantity;not null;default:0"`
	AmountCents int       `gorm:"column:amount_cents;not null;default:0"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
