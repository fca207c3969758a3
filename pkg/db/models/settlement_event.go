package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/morningmarket/morningmarket-backend/pkg/enums"
)

// SettlementEvent is the ledger of pending settlement work: one row per
// (reservation, phase), inserted at most once, consumed exactly once by the
// aggregation batch. BatchUID tags the cohort claimed by a single run;
// processed rows are terminal and never revisited.
type SettlementEvent struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ReservationID uuid.UUID             `gorm:"column:reservation_id;type:uuid;not null;uniqueIndex:ux_settlement_events_reservation_phase"`
	Phase         enums.SettlementPhase `gorm:"column:phase;type:text;not null;uniqueIndex:ux_settlement_events_reservation_phase"`
	BatchUID      *string               `gorm:"column:batch_uid;index"`
	Processed     bool                  `gorm:"column:processed;not null;default:false"`
	ProcessedAt   *time.Time            `gorm:"column:processed_at"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}
