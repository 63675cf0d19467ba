package models

import (
	"time"

	"github.com/google/uuid"
)

// CancellationRequest records a renter or owner initiated cancellation and the
// refund computed under the listing's policy at the time of the request.
type CancellationRequest struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID     uuid.UUID  `gorm:"column:booking_id;type:uuid;not null;index"`
	RequestedBy   uuid.UUID  `gorm:"column:requested_by;type:uuid;not null"`
	RequesterRole string     `gorm:"column:requester_role;not null"`
	Policy        string     `gorm:"column:policy;not null"`
	Reason        *string    `gorm:"column:reason"`
	RefundCents   int64      `gorm:"column:refund_cents;not null"`
	RefundPercent int        `gorm:"column:refund_percent;not null"`
	RefundRef     *string    `gorm:"column:refund_ref"`
	ProcessedAt   *time.Time `gorm:"column:processed_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}
