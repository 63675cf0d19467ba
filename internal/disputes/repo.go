// Package disputes freezes escrows pending manual resolution.
package disputes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/internal/repo"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, dispute *models.Dispute) (*models.Dispute, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	FindOpenByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error)
	// Settle closes an open dispute; a dispute already settled loses the
	// conditional write.
	Settle(ctx context.Context, id uuid.UUID, status enums.DisputeStatus, updates map[string]any) error
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

func (r *repository) Create(ctx context.Context, dispute *models.Dispute) (*models.Dispute, error) {
	if err := r.db.WithContext(ctx).Create(dispute).Error; err != nil {
		return nil, err
	}
	return dispute, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&dispute).Error
	if err != nil {
		return nil, repo.WrapNotFound(err, "dispute not found")
	}
	return &dispute, nil
}

func (r *repository) FindOpenByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.db.WithContext(ctx).
		Where("booking_id = ? AND status = ?", bookingID, enums.DisputeStatusOpen).
		First(&dispute).Error
	if err != nil {
		return nil, repo.WrapNotFound(err, "no open dispute for booking")
	}
	return &dispute, nil
}

func (r *repository) Settle(ctx context.Context, id uuid.UUID, status enums.DisputeStatus, updates map[string]any) error {
	values := map[string]any{"status": status}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("id = ? AND status = ?", id, enums.DisputeStatusOpen).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "dispute is no longer open")
	}
	return nil
}
