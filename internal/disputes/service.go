package disputes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/internal/bookings"
	"github.com/rentavacation/escrow-backend/internal/escrow"
	"github.com/rentavacation/escrow-backend/internal/listings"
	"github.com/rentavacation/escrow-backend/internal/payouts"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/logger"
	"github.com/rentavacation/escrow-backend/pkg/stripegateway"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service opens disputes, which freeze the escrow out of auto-release, and
// resolves them either toward the renter (refund) or the owner (release).
type Service interface {
	Open(ctx context.Context, input OpenInput) (*models.Dispute, error)
	Resolve(ctx context.Context, input ResolveInput) (*models.Dispute, error)
}

// OpenInput carries a renter or owner dispute filing.
type OpenInput struct {
	BookingID uuid.UUID
	OpenedBy  uuid.UUID
	Reason    string
}

// ResolveInput carries the admin resolution. RefundCents of zero settles in
// the owner's favor and releases the escrow; anything above zero refunds the
// renter, cancelling the booking when the refund covers the full total.
type ResolveInput struct {
	DisputeID   uuid.UUID
	AdminID     uuid.UUID
	Status      enums.DisputeStatus
	RefundCents int64
	Note        string
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo     Repository
	Bookings bookings.Repository
	Listings listings.Repository
	Escrows  escrow.Repository
	Payouts  payouts.Service
	Gateway  stripegateway.PaymentGateway
	Tx       txRunner
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	bookings bookings.Repository
	listings listings.Repository
	escrows  escrow.Repository
	payouts  payouts.Service
	gateway  stripegateway.PaymentGateway
	tx       txRunner
	logg     *logger.Logger
	now      func() time.Time
}

// NewService validates the dependency set and builds the dispute service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("dispute repository is required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("bookings repository is required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listings repository is required")
	}
	if params.Escrows == nil {
		return nil, fmt.Errorf("escrow repository is required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service is required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		bookings: params.Bookings,
		listings: params.Listings,
		escrows:  params.Escrows,
		payouts:  params.Payouts,
		gateway:  params.Gateway,
		tx:       params.Tx,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func (s *service) Open(ctx context.Context, input OpenInput) (*models.Dispute, error) {
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason is required")
	}

	booking, err := s.bookings.FindByID(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	listing, err := s.listings.FindByID(ctx, booking.ListingID)
	if err != nil {
		return nil, err
	}
	if input.OpenedBy != booking.RenterID && input.OpenedBy != listing.OwnerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the booking parties may open a dispute")
	}

	if _, err := s.repo.FindOpenByBookingID(ctx, input.BookingID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "booking already has an open dispute")
	} else if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		return nil, err
	}

	esc, err := s.escrows.FindByBookingID(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if esc.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow already settled")
	}

	dispute := &models.Dispute{
		ID:        uuid.New(),
		BookingID: input.BookingID,
		OpenedBy:  input.OpenedBy,
		Status:    enums.DisputeStatusOpen,
		Reason:    input.Reason,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.escrows.WithTx(tx).Transition(ctx, esc.ID, esc.Status,
			enums.EscrowStatusDisputed, nil); err != nil {
			return err
		}
		_, err := s.repo.WithTx(tx).Create(ctx, dispute)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dispute, nil
}

func (s *service) Resolve(ctx context.Context, input ResolveInput) (*models.Dispute, error) {
	if input.Status != enums.DisputeStatusResolved && input.Status != enums.DisputeStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resolution status must be resolved or rejected")
	}
	if input.RefundCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund must not be negative")
	}

	dispute, err := s.repo.FindByID(ctx, input.DisputeID)
	if err != nil {
		return nil, err
	}
	booking, err := s.bookings.FindByID(ctx, dispute.BookingID)
	if err != nil {
		return nil, err
	}
	if input.RefundCents > booking.TotalAmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds the booking total")
	}
	esc, err := s.escrows.FindByBookingID(ctx, dispute.BookingID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updates := map[string]any{
		"resolved_by":  input.AdminID,
		"resolved_at":  now,
		"refund_cents": input.RefundCents,
	}
	if input.Note != "" {
		updates["resolution_note"] = input.Note
	}

	if input.RefundCents > 0 {
		return s.resolveWithRefund(ctx, dispute, booking, esc, input, updates)
	}
	return s.resolveTowardOwner(ctx, dispute, esc, booking, input, updates)
}

// resolveWithRefund settles toward the renter. The funds state moves first;
// the provider refund follows, with a failed call left for the operator.
func (s *service) resolveWithRefund(ctx context.Context, dispute *models.Dispute, booking *models.Booking, esc *models.Escrow, input ResolveInput, updates map[string]any) (*models.Dispute, error) {
	fullRefund := input.RefundCents >= booking.TotalAmountCents

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Settle(ctx, dispute.ID, input.Status, updates); err != nil {
			return err
		}
		if err := s.escrows.WithTx(tx).Transition(ctx, esc.ID,
			enums.EscrowStatusDisputed, enums.EscrowStatusRefunded, map[string]any{
				"refunded_at":  s.now(),
				"refund_notes": "dispute resolved with refund",
			}); err != nil {
			return err
		}
		if !fullRefund {
			return nil
		}
		if err := s.bookings.WithTx(tx).TransitionStatus(ctx, booking.ID,
			booking.Status, enums.BookingStatusCancelled,
			map[string]any{"cancellation_note": "dispute resolved with full refund"}); err != nil {
			return err
		}
		return s.listings.WithTx(tx).SetStatus(ctx, booking.ListingID, enums.ListingStatusActive)
	})
	if err != nil {
		return nil, err
	}

	if booking.PaymentReference != nil {
		_, refundErr := s.gateway.CreateRefund(ctx, stripegateway.RefundRequest{
			PaymentIntentID: *booking.PaymentReference,
			AmountCents:     input.RefundCents,
			Metadata:        map[string]string{"booking_id": booking.ID.String()},
		})
		if refundErr != nil && s.logg != nil {
			s.logg.Error(ctx, "dispute refund failed", refundErr)
		}
	}
	return s.repo.FindByID(ctx, dispute.ID)
}

// resolveTowardOwner releases the escrow and hands the transfer leg to the
// payout dispatcher.
func (s *service) resolveTowardOwner(ctx context.Context, dispute *models.Dispute, esc *models.Escrow, booking *models.Booking, input ResolveInput, updates map[string]any) (*models.Dispute, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Settle(ctx, dispute.ID, input.Status, updates); err != nil {
			return err
		}
		if err := s.escrows.WithTx(tx).Transition(ctx, esc.ID,
			enums.EscrowStatusDisputed, enums.EscrowStatusReleased, map[string]any{
				"released_at": s.now(),
			}); err != nil {
			return err
		}
		return s.bookings.WithTx(tx).TransitionPayout(ctx, booking.ID,
			enums.PayoutStatusNone, enums.PayoutStatusPending, nil)
	})
	if err != nil {
		return nil, err
	}

	if err := s.payouts.DispatchReleased(ctx, esc.ID); err != nil && s.logg != nil {
		// The release stands; the transfer failure is already recorded on
		// the payout leg.
		s.logg.Error(ctx, "dispatching transfer after dispute resolution", err)
	}
	return s.repo.FindByID(ctx, dispute.ID)
}
