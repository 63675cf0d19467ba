package cancellation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.CancellationRequest) (*models.CancellationRequest, error)
	MarkRefundProcessed(ctx context.Context, id uuid.UUID, refundRef string, updates map[string]any) error
	ListByBookingID(ctx context.Context, bookingID uuid.UUID) ([]models.CancellationRequest, error)
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

func (r *repository) Create(ctx context.Context, request *models.CancellationRequest) (*models.CancellationRequest, error) {
	if err := r.db.WithContext(ctx).Create(request).Error; err != nil {
		return nil, err
	}
	return request, nil
}

func (r *repository) MarkRefundProcessed(ctx context.Context, id uuid.UUID, refundRef string, updates map[string]any) error {
	values := map[string]any{"refund_ref": refundRef}
	for k, v := range updates {
		values[k] = v
	}
	return r.db.WithContext(ctx).
		Model(&models.CancellationRequest{}).
		Where("id = ?", id).
		Updates(values).Error
}

func (r *repository) ListByBookingID(ctx context.Context, bookingID uuid.UUID) ([]models.CancellationRequest, error) {
	var rows []models.CancellationRequest
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
