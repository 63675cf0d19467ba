package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rentavacation/escrow-backend/pkg/enums"
)

// Booking is one renter's reservation of one listing for a date range.
// Monetary columns are integer cents; commission + owner payout always
// sum to the total.
type Booking struct {
	ID               uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ListingID        uuid.UUID           `gorm:"column:listing_id;type:uuid;not null;index"`
	RenterID         uuid.UUID           `gorm:"column:renter_id;type:uuid;not null;index"`
	Status           enums.BookingStatus `gorm:"column:status;type:booking_status;not null;default:'pending'"`
	CheckInDate      time.Time           `gorm:"column:check_in_date;not null"`
	CheckOutDate     time.Time           `gorm:"column:check_out_date;not null"`
	TotalAmountCents int64               `gorm:"column:total_amount_cents;not null"`
	CommissionCents  int64               `gorm:"column:commission_cents;not null"`
	OwnerPayoutCents int64               `gorm:"column:owner_payout_cents;not null"`
	Currency         string              `gorm:"column:currency;not null;default:'usd'"`
	PaymentReference *string             `gorm:"column:payment_reference;index"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`
	RefundedCents    int64               `gorm:"column:refunded_cents;not null;default:0"`
	PayoutStatus     enums.PayoutStatus  `gorm:"column:payout_status;type:payout_status;not null;default:'none'"`
	PayoutReference  *string             `gorm:"column:payout_reference;index"`
	PayoutDate       *time.Time          `gorm:"column:payout_date"`
	PayoutNote       *string             `gorm:"column:payout_note"`
	CancellationNote *string             `gorm:"column:cancellation_note"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
