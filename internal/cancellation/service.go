package cancellation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/internal/bookings"
	"github.com/rentavacation/escrow-backend/internal/escrow"
	"github.com/rentavacation/escrow-backend/internal/listings"
	"github.com/rentavacation/escrow-backend/internal/notify"
	"github.com/rentavacation/escrow-backend/internal/profiles"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/logger"
	"github.com/rentavacation/escrow-backend/pkg/money"
	"github.com/rentavacation/escrow-backend/pkg/stripegateway"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service cancels bookings under the listing's refund schedule. Owner
// cancellations always refund the renter in full; renter cancellations take
// what the policy grants at the time of the request.
type Service interface {
	Cancel(ctx context.Context, input CancelInput) (*models.CancellationRequest, error)
	// Preview computes the refund a renter would receive right now without
	// changing anything.
	Preview(ctx context.Context, bookingID uuid.UUID, now time.Time) (percent int, refundCents int64, err error)
}

// CancelInput identifies who cancels which booking and why.
type CancelInput struct {
	BookingID   uuid.UUID
	RequestedBy uuid.UUID
	Role        enums.UserRole
	Reason      string
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Bookings bookings.Repository
	Listings listings.Repository
	Profiles profiles.Repository
	Escrows  escrow.Repository
	Gateway  stripegateway.PaymentGateway
	Requests Repository
	Tx       txRunner
	Notifier *notify.Dispatcher
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	bookings bookings.Repository
	listings listings.Repository
	profiles profiles.Repository
	escrows  escrow.Repository
	gateway  stripegateway.PaymentGateway
	requests Repository
	tx       txRunner
	notifier *notify.Dispatcher
	logg     *logger.Logger
	now      func() time.Time
}

// NewService validates the dependency set and builds the cancellation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Bookings == nil {
		return nil, fmt.Errorf("bookings repository is required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listings repository is required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profiles repository is required")
	}
	if params.Escrows == nil {
		return nil, fmt.Errorf("escrow repository is required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if params.Requests == nil {
		return nil, fmt.Errorf("cancellation request repository is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		bookings: params.Bookings,
		listings: params.Listings,
		profiles: params.Profiles,
		escrows:  params.Escrows,
		gateway:  params.Gateway,
		requests: params.Requests,
		tx:       params.Tx,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func (s *service) Preview(ctx context.Context, bookingID uuid.UUID, now time.Time) (int, int64, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return 0, 0, err
	}
	listing, err := s.listings.FindByID(ctx, booking.ListingID)
	if err != nil {
		return 0, 0, err
	}

	percent := RefundPercent(listing.CancellationPolicy, DaysUntilCheckin(booking.CheckInDate, now))
	refund, err := money.ApplyPercent(booking.TotalAmountCents, percent)
	if err != nil {
		return 0, 0, err
	}
	return percent, refund, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.CancellationRequest, error) {
	booking, err := s.bookings.FindByID(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking is already "+booking.Status.String())
	}

	listing, err := s.listings.FindByID(ctx, booking.ListingID)
	if err != nil {
		return nil, err
	}

	switch input.Role {
	case enums.UserRoleTraveler:
		if booking.RenterID != input.RequestedBy {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking belongs to a different renter")
		}
	case enums.UserRoleOwner:
		if listing.OwnerID != input.RequestedBy {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "listing belongs to a different owner")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellations come from renters or owners")
	}

	now := s.now()
	percent := 100
	if input.Role == enums.UserRoleTraveler {
		percent = RefundPercent(listing.CancellationPolicy, DaysUntilCheckin(booking.CheckInDate, now))
	}
	refundCents, err := money.ApplyPercent(booking.TotalAmountCents, percent)
	if err != nil {
		return nil, err
	}

	note := input.Role.String() + " cancelled the booking"
	if input.Reason != "" {
		note += ": " + input.Reason
	}

	request := &models.CancellationRequest{
		ID:            uuid.New(),
		BookingID:     booking.ID,
		RequestedBy:   input.RequestedBy,
		RequesterRole: input.Role.String(),
		Policy:        listing.CancellationPolicy.String(),
		RefundCents:   refundCents,
		RefundPercent: percent,
	}
	if input.Reason != "" {
		request.Reason = &input.Reason
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.bookings.WithTx(tx).TransitionStatus(ctx, booking.ID,
			booking.Status, enums.BookingStatusCancelled,
			map[string]any{"cancellation_note": note}); err != nil {
			return err
		}
		if err := s.settleEscrow(ctx, tx, booking.ID, note); err != nil {
			return err
		}
		if err := s.listings.WithTx(tx).SetStatus(ctx, booking.ListingID, enums.ListingStatusActive); err != nil {
			return err
		}
		_, err := s.requests.WithTx(tx).Create(ctx, request)
		return err
	})
	if err != nil {
		return nil, err
	}

	// The refund leg is best effort here: the cancellation stands either way
	// and a failed provider call is remediated by an operator.
	if refundCents > 0 && booking.PaymentReference != nil && booking.RefundedCents < booking.TotalAmountCents {
		refund, refundErr := s.gateway.CreateRefund(ctx, stripegateway.RefundRequest{
			PaymentIntentID: *booking.PaymentReference,
			AmountCents:     refundCents,
			Metadata:        map[string]string{"booking_id": booking.ID.String()},
		})
		if refundErr != nil {
			if s.logg != nil {
				s.logg.Error(ctx, "cancellation refund failed", refundErr)
			}
		} else {
			processedAt := s.now()
			request.RefundRef = &refund.ID
			request.ProcessedAt = &processedAt
			if err := s.requests.MarkRefundProcessed(ctx, request.ID, refund.ID,
				map[string]any{"processed_at": processedAt}); err != nil && s.logg != nil {
				s.logg.Error(ctx, "recording refund reference", err)
			}
		}
	}

	s.notifyCancelled(ctx, booking, listing, note, refundCents)
	return request, nil
}

// settleEscrow closes the escrow for a cancelled booking. A booking cancelled
// before payment capture has no escrow yet, and one refunded through another
// path is already terminal; both are fine.
func (s *service) settleEscrow(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, note string) error {
	esc, err := s.escrows.WithTx(tx).FindByBookingID(ctx, bookingID)
	if err != nil {
		if pkgerrors.As(err).Code() == pkgerrors.CodeNotFound {
			return nil
		}
		return err
	}
	if esc.Status.IsTerminal() {
		return nil
	}
	err = s.escrows.WithTx(tx).Transition(ctx, esc.ID, esc.Status, enums.EscrowStatusRefunded, map[string]any{
		"refunded_at":  s.now(),
		"refund_notes": note,
	})
	if pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict {
		return nil
	}
	return err
}

func (s *service) notifyCancelled(ctx context.Context, booking *models.Booking, listing *models.Listing, note string, refundCents int64) {
	payload := notify.Payload{
		BookingID:   booking.ID.String(),
		ListingName: listing.Title,
		AmountCents: refundCents,
		Note:        note,
	}
	if renter, err := s.profiles.FindByID(ctx, booking.RenterID); err == nil {
		s.notifier.Dispatch(ctx, notify.Recipient{Email: renter.Email, Name: renter.FullName},
			enums.NotificationBookingCancelled, payload)
	}
	if owner, err := s.profiles.FindByID(ctx, listing.OwnerID); err == nil {
		s.notifier.Dispatch(ctx, notify.Recipient{Email: owner.Email, Name: owner.FullName},
			enums.NotificationBookingCancelled, payload)
	}
}
