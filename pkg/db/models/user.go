package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/morningmarket/morningmarket-backend/pkg/enums"
)

// User carries identity plus the running quota totals maintained as a side
// effect of reservation events. Quota fields are mutated only under the user
// row lock, inside the same transaction as the reservation change.
type User struct {
	ID                uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	UID               string         `gorm:"column:uid;uniqueIndex;not null"`
	Name              string         `gorm:"column:name;not null"`
	Role              enums.UserRole `gorm:"column:role;type:text;not null;default:'customer'"`
	TotalOrders       int            `gorm:"column:total_orders;not null;default:0"`
	TotalRevenueCents int            `gorm:"column:total_revenue_cents;not null;default:0"`
	MonthlyWarnCount  int            `gorm:"column:monthly_warn_count;not null;default:0"`
	TotalWarnCount    int            `gorm:"column:total_warn_count;not null;default:0"`
	RestrictedUntil   *time.Time     `gorm:"column:restricted_until"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// IsRestricted reports whether the user is blocked from reserving at the
// provided instant.
func (u *User) IsRestricted(now time.Time) bool {
	return u.RestrictedUntil != nil && now.Before(*u.RestrictedUntil)
}
