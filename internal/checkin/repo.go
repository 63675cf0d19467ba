// Package checkin tracks the traveler's arrival confirmation window.
package checkin

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/internal/repo"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, confirmation *models.CheckinConfirmation) (*models.CheckinConfirmation, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.CheckinConfirmation, error)
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.CheckinConfirmation, error)
	// SetOutcome records the arrival answer once; a row whose outcome is
	// already set is left untouched and the write reports false.
	SetOutcome(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListReminderDue(ctx context.Context, windowStart, windowEnd time.Time) ([]models.CheckinConfirmation, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, confirmation *models.CheckinConfirmation) (*models.CheckinConfirmation, error) {
	if err := r.db.WithContext(ctx).Create(confirmation).Error; err != nil {
		return nil, err
	}
	return confirmation, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CheckinConfirmation, error) {
	var row models.CheckinConfirmation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		return nil, repo.WrapNotFound(err, "check-in confirmation not found")
	}
	return &row, nil
}

func (r *repository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.CheckinConfirmation, error) {
	var row models.CheckinConfirmation
	err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&row).Error
	if err != nil {
		return nil, repo.WrapNotFound(err, "check-in confirmation not found for booking")
	}
	return &row, nil
}

func (r *repository) SetOutcome(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CheckinConfirmation{}).
		Where("id = ? AND confirmed_arrival IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.CheckinConfirmation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListReminderDue returns undecided rows whose check-in date falls inside the
// reminder bracket and that have not been nudged yet. The deadline column is
// 24h past check-in, so the bracket shifts by that window.
func (r *repository) ListReminderDue(ctx context.Context, windowStart, windowEnd time.Time) ([]models.CheckinConfirmation, error) {
	var rows []models.CheckinConfirmation
	err := r.db.WithContext(ctx).
		Where("confirmed_arrival IS NULL AND reminder_sent = ? AND confirmation_deadline BETWEEN ? AND ?",
			false, windowStart, windowEnd).
		Order("confirmation_deadline ASC").
		Find(&rows).Error
	return rows, err
}
