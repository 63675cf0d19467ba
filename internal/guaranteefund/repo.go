// Package guaranteefund is the append-only ledger feeding the fraud reserve.
package guaranteefund

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/pkg/db"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/money"
)

// Repository appends and reads contribution rows. There is no update or
// delete surface; the ledger only grows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// Record appends the contribution for one booking. A repeat append for
	// the same booking is absorbed silently so webhook retries stay
	// idempotent.
	Record(ctx context.Context, bookingID uuid.UUID, commissionCents int64, reserveRate decimal.Decimal) (*models.GuaranteeFundContribution, error)
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.GuaranteeFundContribution, error)
	TotalCents(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(gormDB *gorm.DB) Repository {
	return &repository{db: gormDB}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Record(ctx context.Context, bookingID uuid.UUID, commissionCents int64, reserveRate decimal.Decimal) (*models.GuaranteeFundContribution, error) {
	contribution, err := money.ComputeGuaranteeContribution(commissionCents, reserveRate)
	if err != nil {
		return nil, err
	}
	row := &models.GuaranteeFundContribution{
		ID:                uuid.New(),
		BookingID:         bookingID,
		ContributionCents: contribution,
		CommissionCents:   commissionCents,
		ReserveRate:       reserveRate.String(),
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if db.IsUniqueViolation(err, "booking_id") {
			return r.FindByBookingID(ctx, bookingID)
		}
		return nil, err
	}
	return row, nil
}

func (r *repository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.GuaranteeFundContribution, error) {
	var row models.GuaranteeFundContribution
	err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) TotalCents(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.GuaranteeFundContribution{}).
		Select("COALESCE(SUM(contribution_cents), 0)").
		Scan(&total).Error
	return total, err
}
