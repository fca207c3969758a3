package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a daily-stocked storefront item. Stock is mutated only while the
// caller holds the product row lock.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name       string    `gorm:"column:name;not null"`
	PriceCents int       `gorm:"column:price_cents;not null"`
	Stock      int       `gorm:"column:stock;not null;default:0"`
	TotalSold  int       `gorm:"column:total_sold;not null;default:0"`
	// ShippingFeeCents is the courier fee template for this product; orders
	// above ShippingFreeOverCents ship free.
	ShippingFeeCents      int       `gorm:"column:shipping_fee_cents;not null;default:0"`
	ShippingFreeOverCents int       `gorm:"column:shipping_free_over_cents;not null;default:0"`
	SellDate              time.Time `gorm:"column:sell_date;type:date;not null"`
	Visible               bool      `gorm:"column:visible;not null;default:true"`
	CreatedAt             time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
