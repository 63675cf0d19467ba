package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rentavacation/escrow-backend/pkg/enums"
)

// Dispute blocks auto-release of the related escrow until an admin resolves it.
type Dispute struct {
	ID             uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID      uuid.UUID           `gorm:"column:booking_id;type:uuid;not null;index"`
	OpenedBy       uuid.UUID           `gorm:"column:opened_by;type:uuid;not null"`
	Status         enums.DisputeStatus `gorm:"column:status;type:dispute_status;not null;default:'open'"`
	Reason         string              `gorm:"column:reason;not null"`
	ResolutionNote *string             `gorm:"column:resolution_note"`
	RefundCents    int64               `gorm:"column:refund_cents;not null;default:0"`
	ResolvedBy     *uuid.UUID          `gorm:"column:resolved_by;type:uuid"`
	ResolvedAt     *time.Time          `gorm:"column:resolved_at"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
