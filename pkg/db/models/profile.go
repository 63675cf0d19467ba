package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rentavacation/escrow-backend/pkg/enums"
)

// Profile holds the actor record plus the cached payment-provider
// connected-account flags that gate owner payouts.
type Profile struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email              string         `gorm:"column:email;not null;unique"`
	FullName           string         `gorm:"column:full_name;not null"`
	Role               enums.UserRole `gorm:"column:role;type:user_role;not null;default:'traveler'"`
	StripeAccountID    *string        `gorm:"column:stripe_account_id;index"`
	PayoutsEnabled     bool           `gorm:"column:payouts_enabled;not null;default:false"`
	ChargesEnabled     bool           `gorm:"column:charges_enabled;not null;default:false"`
	OnboardingComplete bool           `gorm:"column:onboarding_complete;not null;default:false"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
