// Package bookings persists the reservation rows and enforces the monotonic
// status graph at write time: transitions are compare-and-swap on the current
// status so webhook redelivery and racing sweeps cannot move a booking
// backward or repeat a terminal move.
package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/internal/repo"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
)

// Repository exposes booking persistence to the services.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	FindByPaymentReference(ctx context.Context, ref string) (*models.Booking, error)
	FindByPayoutReference(ctx context.Context, ref string) (*models.Booking, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus, updates map[string]any) error
	TransitionPayout(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus, updates map[string]any) error
	SetRefunded(ctx context.Context, id uuid.UUID, refundedCents int64) error
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bookings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	if err := r.db.WithContext(ctx).Create(booking).Error; err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if err != nil {
		return nil, repo.WrapNotFound(err, "booking not found")
	}
	return &booking, nil
}

func (r *repository) FindByPaymentReference(ctx context.Context, ref string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Where("payment_reference = ?", ref).First(&booking).Error
	if err != nil {
		return nil, repo.WrapNotFound(err, "booking not found for payment reference")
	}
	return &booking, nil
}

func (r *repository) FindByPayoutReference(ctx context.Context, ref string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Where("payout_reference = ?", ref).First(&booking).Error
	if err != nil {
		return nil, repo.WrapNotFound(err, "booking not found for payout reference")
	}
	return &booking, nil
}

// TransitionStatus moves a booking along the status graph. The write is
// conditional on the current status, so a stale caller gets a conflict
// instead of silently re-applying the move.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.BookingStatus, updates map[string]any) error {
	if !from.CanTransitionTo(to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"booking status cannot move from "+from.String()+" to "+to.String())
	}

	values := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range updates {
		values[k] = v
	}

	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"booking is no longer in status "+from.String())
	}
	return nil
}

// TransitionPayout advances the payout leg under the same CAS discipline.
func (r *repository) TransitionPayout(ctx context.Context, id uuid.UUID, from, to enums.PayoutStatus, updates map[string]any) error {
	if !from.CanTransitionTo(to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"payout status cannot move from "+from.String()+" to "+to.String())
	}

	values := map[string]any{"payout_status": to, "updated_at": time.Now().UTC()}
	for k, v := range updates {
		values[k] = v
	}

	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND payout_status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"booking payout is no longer in status "+from.String())
	}
	return nil
}

// SetRefunded records the cumulative refunded amount reported by the gateway.
func (r *repository) SetRefunded(ctx context.Context, id uuid.UUID, refundedCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Update("refunded_cents", refundedCents).Error
}

// Update applies non-status field changes.
func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Updates(updates).Error
}
