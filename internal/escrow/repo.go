package escrow

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

// Repository persists booking_confirmations rows. Status moves are
// compare-and-swap on the current status so racing writers lose cleanly.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, escrow *models.Escrow) (*models.Escrow, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Escrow, error)
	FindByTransferID(ctx context.Context, transferID string) (*models.Escrow, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.EscrowStatus, updates map[string]any) error
	TransitionOwner(ctx context.Context, id uuid.UUID, from, to enums.OwnerConfirmationStatus, updates map[string]any) error
	GrantExtension(ctx context.Context, id uuid.UUID, extensionsSeen int, newDeadline time.Time) (bool, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListVerifiedUnheld(ctx context.Context) ([]models.Escrow, error)
	ListOwnerWindowExpired(ctx context.Context, now time.Time) ([]models.Escrow, error)
	ListResortWindowExpired(ctx context.Context, now time.Time) ([]models.Escrow, error)
	ListAwaitingConfirmation(ctx context.Context) ([]models.Escrow, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an escrow repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, escrow *models.Escrow) (*models.Escrow, error) {
	if err := r.db.WithContext(ctx).Create(escrow).Error; err != nil {
		return nil, err
	}
	return escrow, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	var escrow models.Escrow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&escrow).Error
	if err != nil {
		return nil, repo.WrapNotFound(err, "escrow not found")
	}
	return &escrow, nil
}

func (r *repository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Escrow, error) {
	var escrow models.Escrow
	err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).First(&escrow).Error
	if err != nil {
		return nil, repo.WrapNotFound(err, "escrow not found for booking")
	}
	return &escrow, nil
}

func (r *repository) FindByTransferID(ctx context.Context, transferID string) (*models.Escrow, error) {
	var escrow models.Escrow
	err := r.db.WithContext(ctx).Where("transfer_id = ?", transferID).First(&escrow).Error
	if err != nil {
		return nil, repo.WrapNotFound(err, "escrow not found for transfer")
	}
	return &escrow, nil
}

// Transition moves the escrow along the status table, conditional on the
// current status at write time.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.EscrowStatus, updates map[string]any) error {
	if !CanTransition(from, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"escrow cannot move from "+from.String()+" to "+to.String())
	}

	values := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range updates {
		values[k] = v
	}

	res := r.db.WithContext(ctx).
		Model(&models.Escrow{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"escrow is no longer in status "+from.String())
	}
	return nil
}

// TransitionOwner advances the owner confirmation leg under the same
// discipline.
func (r *repository) TransitionOwner(ctx context.Context, id uuid.UUID, from, to enums.OwnerConfirmationStatus, updates map[string]any) error {
	values := map[string]any{"owner_confirmation_status": to, "updated_at": time.Now().UTC()}
	for k, v := range updates {
		values[k] = v
	}

	res := r.db.WithContext(ctx).
		Model(&models.Escrow{}).
		Where("id = ? AND owner_confirmation_status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"owner confirmation is no longer "+from.String())
	}
	return nil
}

// GrantExtension bumps the deadline and counter in one conditional write. The
// extensionsSeen guard serializes concurrent grant attempts on the same row:
// only the writer who saw the current counter wins.
func (r *repository) GrantExtension(ctx context.Context, id uuid.UUID, extensionsSeen int, newDeadline time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Escrow{}).
		Where("id = ? AND owner_confirmation_status = ? AND extensions_used = ?",
			id, enums.OwnerConfirmationPending, extensionsSeen).
		Updates(map[string]any{
			"extensions_used":             extensionsSeen + 1,
			"owner_confirmation_deadline": newDeadline,
			"updated_at":                  time.Now().UTC(),
		})
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
		Model(&models.Escrow{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListVerifiedUnheld selects the sweep candidates. The hold flag is checked
// again before any transfer is issued; this is only the coarse filter.
func (r *repository) ListVerifiedUnheld(ctx context.Context) ([]models.Escrow, error) {
	var rows []models.Escrow
	err := r.db.WithContext(ctx).
		Where("status = ? AND payout_held = ?", enums.EscrowStatusVerified, false).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListOwnerWindowExpired(ctx context.Context, now time.Time) ([]models.Escrow, error) {
	var rows []models.Escrow
	err := r.db.WithContext(ctx).
		Where("status = ? AND owner_confirmation_status = ? AND owner_confirmation_deadline <= ?",
			enums.EscrowStatusPendingConfirmation, enums.OwnerConfirmationPending, now).
		Order("owner_confirmation_deadline ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListResortWindowExpired(ctx context.Context, now time.Time) ([]models.Escrow, error) {
	var rows []models.Escrow
	err := r.db.WithContext(ctx).
		Where("status IN ? AND confirmation_deadline <= ?",
			[]enums.EscrowStatus{
				enums.EscrowStatusPendingConfirmation,
				enums.EscrowStatusConfirmationSubmitted,
			}, now).
		Order("confirmation_deadline ASC").
		Find(&rows).Error
	return rows, err
}

// ListAwaitingConfirmation returns open escrows still waiting on the resort
// confirmation number, for the reminder pass.
func (r *repository) ListAwaitingConfirmation(ctx context.Context) ([]models.Escrow, error) {
	var rows []models.Escrow
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.EscrowStatusPendingConfirmation).
		Order("confirmation_deadline ASC").
		Find(&rows).Error
	return rows, err
}
