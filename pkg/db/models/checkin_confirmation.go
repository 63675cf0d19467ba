package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckinConfirmation tracks the traveler's arrival acknowledgment. A nil
// ConfirmedArrival means pending; once set it is never changed. Issue fields
// only carry meaning when ConfirmedArrival is false.
type CheckinConfirmation struct {
	ID                   uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID            uuid.UUID  `gorm:"column:booking_id;type:uuid;not null;uniqueIndex"`
	TravelerID           uuid.UUID  `gorm:"column:traveler_id;type:uuid;not null;index"`
	ConfirmedArrival     *bool      `gorm:"column:confirmed_arrival"`
	ConfirmedAt          *time.Time `gorm:"column:confirmed_at"`
	ConfirmationDeadline time.Time  `gorm:"column:confirmation_deadline;not null"`
	IssueReported        bool       `gorm:"column:issue_reported;not null;default:false"`
	IssueType            *string    `gorm:"column:issue_type"`
	IssueDescription     *string    `gorm:"column:issue_description"`
	Resolved             bool       `gorm:"column:resolved;not null;default:false"`
	ReminderSent         bool       `gorm:"column:reminder_sent;not null;default:false"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
