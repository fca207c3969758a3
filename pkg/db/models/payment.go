package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/morningmarket/morningmarket-backend/pkg/enums"
)

// Payment records one gateway attempt for an order. Multiple rows may exist;
// callers read the latest.
type Payment struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	Provider      enums.PaymentProvider `gorm:"column:provider;type:text;not null"`
	Status        enums.PaymentStatus   `gorm:"column:status;type:text;not null;default:'ready'"`
	AmountCents   int                   `gorm:"column:amount_cents;not null"`
	TID           *string               `gorm:"column:tid"`
	AID           *string               `gorm:"column:aid"`
	FailureReason *string               `gorm:"column:failure_reason"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
