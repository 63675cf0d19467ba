// Package profiles reads and syncs the actor records, including the cached
// connected-account flags that gate owner payouts.
package profiles

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/internal/repo"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
)

// ConnectFlags mirrors the payout eligibility bits reported by the payment
// provider for a connected account.
type ConnectFlags struct {
	PayoutsEnabled     bool
	ChargesEnabled     bool
	OnboardingComplete bool
}

// Repository exposes profile persistence to the services.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	FindByStripeAccount(ctx context.Context, accountID string) (*models.Profile, error)
	SyncConnectFlags(ctx context.Context, accountID string, flags ConnectFlags) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a profiles repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	if err != nil {
		return nil, repo.WrapNotFound(err, "profile not found")
	}
	return &profile, nil
}

func (r *repository) FindByStripeAccount(ctx context.Context, accountID string) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.WithContext(ctx).Where("stripe_account_id = ?", accountID).First(&profile).Error
	if err != nil {
		return nil, repo.WrapNotFound(err, "profile not found for connected account")
	}
	return &profile, nil
}

// SyncConnectFlags caches the provider-reported eligibility bits. Purely a
// cache sync; bookings are never touched here.
func (r *repository) SyncConnectFlags(ctx context.Context, accountID string, flags ConnectFlags) error {
	return r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("stripe_account_id = ?", accountID).
		Updates(map[string]any{
			"payouts_enabled":     flags.PayoutsEnabled,
			"charges_enabled":     flags.ChargesEnabled,
			"onboarding_complete": flags.OnboardingComplete,
		}).Error
}
