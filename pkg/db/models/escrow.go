package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rentavacation/escrow-backend/pkg/enums"
)

// Escrow models the held funds for one confirmed booking, together with the
// two owner-facing timers: the short extensible owner window and the fixed
// resort confirmation deadline.
type Escrow struct {
	ID                        uuid.UUID                     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID                 uuid.UUID                     `gorm:"column:booking_id;type:uuid;not null;uniqueIndex"`
	OwnerID                   uuid.UUID                     `gorm:"column:owner_id;type:uuid;not null;index"`
	AmountCents               int64                         `gorm:"column:amount_cents;not null"`
	Status                    enums.EscrowStatus            `gorm:"column:status;type:escrow_status;not null;default:'pending_confirmation'"`
	ConfirmationDeadline      time.Time                     `gorm:"column:confirmation_deadline;not null"`
	OwnerConfirmationStatus   enums.OwnerConfirmationStatus `gorm:"column:owner_confirmation_status;type:owner_confirmation_status;not null;default:'pending_owner'"`
	OwnerConfirmationDeadline time.Time                     `gorm:"column:owner_confirmation_deadline;not null"`
	ExtensionsUsed            int                           `gorm:"column:extensions_used;not null;default:0"`
	ResortConfirmationNumber  *string                       `gorm:"column:resort_confirmation_number"`
	ResortContactInfo         *string                       `gorm:"column:resort_contact_info"`
	VerifiedBy                *uuid.UUID                    `gorm:"column:verified_by;type:uuid"`
	VerifiedAt                *time.Time                    `gorm:"column:verified_at"`
	VerificationNotes         *string                       `gorm:"column:verification_notes"`
	PayoutHeld                bool                          `gorm:"column:payout_held;not null;default:false"`
	PayoutHeldReason          *string                       `gorm:"column:payout_held_reason"`
	AutoReleased              bool                          `gorm:"column:auto_released;not null;default:false"`
	ReleasedAt                *time.Time                    `gorm:"column:released_at"`
	RefundedAt                *time.Time                    `gorm:"column:refunded_at"`
	RefundNotes               *string                       `gorm:"column:refund_notes"`
	TransferID                *string                       `gorm:"column:transfer_id;index"`
	StandardReminderSent      bool                          `gorm:"column:standard_reminder_sent;not null;default:false"`
	UrgentReminderSent        bool                          `gorm:"column:urgent_reminder_sent;not null;default:false"`
	CreatedAt                 time.Time                     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                 time.Time                     `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the historical table name from the managed-backend era.
func (Escrow) TableName() string {
	return "booking_confirmations"
}
