package models

import (
	"time"

	"github.com/google/uuid"
)

// GuaranteeFundContribution is an append-only ledger row funding the fraud
// reserve: a fixed percentage of platform commission per confirmed booking.
// Rows are never updated or deleted.
type GuaranteeFundContribution struct {
	ID                uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID         uuid.UUID `gorm:"column:booking_id;type:uuid;not null;uniqueIndex"`
	ContributionCents int64     `gorm:"column:contribution_cents;not null"`
	CommissionCents   int64     `gorm:"column:commission_cents;not null"`
	ReserveRate       string    `gorm:"column:reserve_rate;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}
