package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rentavacation/escrow-backend/pkg/enums"
)

// Listing carries only the columns the booking core reads; the rest of the
// property record belongs to the marketplace surface.
type Listing struct {
	ID                 uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID            uuid.UUID                `gorm:"column:owner_id;type:uuid;not null;index"`
	Title              string                   `gorm:"column:title;not null"`
	Status             enums.ListingStatus      `gorm:"column:status;type:listing_status;not null;default:'active'"`
	CheckInDate        time.Time                `gorm:"column:check_in_date;not null"`
	CheckOutDate       time.Time                `gorm:"column:check_out_date;not null"`
	CancellationPolicy enums.CancellationPolicy `gorm:"column:cancellation_policy;type:cancellation_policy;not null;default:'moderate'"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
