package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/morningmarket/morningmarket-backend/pkg/enums"
)

// Reservation is a quantity hold against a product's daily stock. Qty and
// AmountCents are fixed at creation; only Status transitions afterwards.
type Reservation struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ProductID       uuid.UUID               `gorm:"column:product_id;type:uuid;not null;index"`
	UserID          uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index"`
	Qty             int                     `gorm:"column:qty;not null"`
	AmountCents     int                     `gorm:"column:amount_cents;not null"`
	PickupDate      time.Time               `gorm:"column:pickup_date;type:date;not null;index"`
	Status          enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	StatusChangedAt time.Time               `gorm:"column:status_changed_at;not null"`
	Product         *Product                `gorm:"foreignKey:ProductID"`
	User            *User                   `gorm:"foreignKey:UserID"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt       gorm.DeletedAt          `gorm:"column:deleted_at;index"`
}
