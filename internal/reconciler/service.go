// Package reconciler applies asynchronous payment-provider events to bookings
// and escrows. Deliveries can repeat and reorder; every mutation is guarded by
// the current persisted status, never by delivery bookkeeping alone.
package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/internal/bookings"
	"github.com/rentavacation/escrow-backend/internal/checkin"
	"github.com/rentavacation/escrow-backend/internal/deadlines"
	"github.com/rentavacation/escrow-backend/internal/escrow"
	"github.com/rentavacation/escrow-backend/internal/guaranteefund"
	"github.com/rentavacation/escrow-backend/internal/listings"
	"github.com/rentavacation/escrow-backend/internal/notify"
	"github.com/rentavacation/escrow-backend/internal/profiles"
	"github.com/rentavacation/escrow-backend/internal/settings"
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

// Service is the webhook-facing reconciliation surface. HandleEvent returns
// nil once the core state mutation for the event has been applied (or was
// already applied by an earlier delivery); auxiliary side effects never fail
// the acknowledgment.
type Service interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
	// VerifyPayment is the traveler-triggered fallback when the completed
	// webhook is delayed: retrieve the checkout session and confirm the
	// booking if the provider says it is paid.
	VerifyPayment(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error)
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Bookings bookings.Repository
	Listings listings.Repository
	Profiles profiles.Repository
	Escrows  escrow.Repository
	Checkins checkin.Repository
	Fund     guaranteefund.Repository
	Settings settings.Loader
	Gateway  stripegateway.PaymentGateway
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
	checkins checkin.Repository
	fund     guaranteefund.Repository
	settings settings.Loader
	gateway  stripegateway.PaymentGateway
	tx       txRunner
	notifier *notify.Dispatcher
	logg     *logger.Logger
	now      func() time.Time
}

// NewService validates the dependency set and builds the reconciler.
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
	if params.Checkins == nil {
		return nil, fmt.Errorf("checkin repository is required")
	}
	if params.Fund == nil {
		return nil, fmt.Errorf("guarantee fund repository is required")
	}
	if params.Settings == nil {
		return nil, fmt.Errorf("settings loader is required")
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
		bookings: params.Bookings,
		listings: params.Listings,
		profiles: params.Profiles,
		escrows:  params.Escrows,
		checkins: params.Checkins,
		fund:     params.Fund,
		settings: params.Settings,
		gateway:  params.Gateway,
		tx:       params.Tx,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func (s *service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		return s.handleCheckoutCompleted(ctx, &session)
	case stripe.EventTypeCheckoutSessionExpired:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		return s.handleCheckoutExpired(ctx, &session)
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode charge event")
		}
		return s.handleChargeRefunded(ctx, &charge)
	case stripe.EventTypeAccountUpdated:
		var account stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode account event")
		}
		return s.handleAccountUpdated(ctx, &account)
	case stripe.EventTypeTransferCreated:
		var transfer stripe.Transfer
		if err := json.Unmarshal(event.Data.Raw, &transfer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode transfer event")
		}
		return s.handleTransferCreated(ctx, &transfer)
	case stripe.EventTypeTransferReversed:
		var transfer stripe.Transfer
		if err := json.Unmarshal(event.Data.Raw, &transfer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode transfer event")
		}
		return s.handleTransferReversed(ctx, &transfer)
	default:
		return nil
	}
}

// handleCheckoutCompleted is the payment-captured path. The checkout
// collaborator stored the provisional session id as the payment reference; it
// is replaced with the durable payment intent id here so later refund events
// correlate.
func (s *service) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	booking, err := s.findBookingForSession(ctx, session)
	if err != nil {
		return err
	}
	if booking.Status == enums.BookingStatusConfirmed || booking.Status == enums.BookingStatusCompleted {
		return nil
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil
	}

	opts := s.settings.Load(ctx)
	split, err := money.ComputeSplit(booking.TotalAmountCents, opts.CommissionRate)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "computing booking split")
	}

	listing, err := s.listings.FindByID(ctx, booking.ListingID)
	if err != nil {
		return err
	}

	now := s.now()
	updates := map[string]any{
		"paid_at":            now,
		"commission_cents":   split.CommissionCents,
		"owner_payout_cents": split.OwnerPayoutCents,
	}
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		updates["payment_reference"] = session.PaymentIntent.ID
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.bookings.WithTx(tx).TransitionStatus(ctx, booking.ID,
			enums.BookingStatusPending, enums.BookingStatusConfirmed, updates); err != nil {
			return err
		}
		if _, err := s.escrows.WithTx(tx).Create(ctx, &models.Escrow{
			ID:                        uuid.New(),
			BookingID:                 booking.ID,
			OwnerID:                   listing.OwnerID,
			AmountCents:               booking.TotalAmountCents,
			Status:                    enums.EscrowStatusPendingConfirmation,
			ConfirmationDeadline:      deadlines.ResortDeadline(now),
			OwnerConfirmationStatus:   enums.OwnerConfirmationPending,
			OwnerConfirmationDeadline: deadlines.OwnerDeadline(now, opts.OwnerWindowMinutes),
		}); err != nil {
			return err
		}
		_, err := s.checkins.WithTx(tx).Create(ctx, &models.CheckinConfirmation{
			ID:                   uuid.New(),
			BookingID:            booking.ID,
			TravelerID:           booking.RenterID,
			ConfirmationDeadline: deadlines.CheckinDeadline(booking.CheckInDate),
		})
		return err
	})
	if err != nil {
		// A redelivery racing the first delivery loses the booking CAS.
		if pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict {
			return nil
		}
		return err
	}

	s.runAux(ctx, "listing flip", func() error {
		return s.listings.SetStatus(ctx, booking.ListingID, enums.ListingStatusBooked)
	})
	s.runAux(ctx, "guarantee fund append", func() error {
		_, err := s.fund.Record(ctx, booking.ID, split.CommissionCents, opts.GuaranteeReserveRate)
		return err
	})
	s.notifyPaymentCaptured(ctx, booking, listing)
	return nil
}

// handleCheckoutExpired cancels only bookings never paid; a completed event
// that arrived first leaves the booking out of pending and the expiry is a
// no-op.
func (s *service) handleCheckoutExpired(ctx context.Context, session *stripe.CheckoutSession) error {
	booking, err := s.findBookingForSession(ctx, session)
	if err != nil {
		if pkgerrors.As(err).Code() == pkgerrors.CodeNotFound {
			return nil
		}
		return err
	}
	if booking.Status != enums.BookingStatusPending {
		return nil
	}

	err = s.bookings.TransitionStatus(ctx, booking.ID,
		enums.BookingStatusPending, enums.BookingStatusCancelled,
		map[string]any{"cancellation_note": "checkout session expired"})
	if err != nil && pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict {
		return nil
	}
	return err
}

func (s *service) handleChargeRefunded(ctx context.Context, charge *stripe.Charge) error {
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge event has no payment intent")
	}
	booking, err := s.bookings.FindByPaymentReference(ctx, charge.PaymentIntent.ID)
	if err != nil {
		return err
	}

	if err := s.bookings.SetRefunded(ctx, booking.ID, charge.AmountRefunded); err != nil {
		return err
	}
	if charge.AmountRefunded < booking.TotalAmountCents {
		return nil
	}
	if booking.Status == enums.BookingStatusCancelled {
		return nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.bookings.WithTx(tx).TransitionStatus(ctx, booking.ID,
			booking.Status, enums.BookingStatusCancelled,
			map[string]any{"cancellation_note": "charge fully refunded"}); err != nil {
			return err
		}
		return s.listings.WithTx(tx).SetStatus(ctx, booking.ListingID, enums.ListingStatusActive)
	})
	if err != nil && pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict {
		return nil
	}
	if err != nil {
		return err
	}

	s.settleEscrowAfterRefund(ctx, booking.ID)
	return nil
}

// settleEscrowAfterRefund closes the escrow for an externally refunded
// booking. The escrow may already be settled by the refund path that issued
// the refund; that conflict is the expected case, not an error.
func (s *service) settleEscrowAfterRefund(ctx context.Context, bookingID uuid.UUID) {
	esc, err := s.escrows.FindByBookingID(ctx, bookingID)
	if err != nil {
		return
	}
	if esc.Status.IsTerminal() {
		return
	}
	s.runAux(ctx, "escrow settle after refund", func() error {
		err := s.escrows.Transition(ctx, esc.ID, esc.Status, enums.EscrowStatusRefunded, map[string]any{
			"refunded_at":  s.now(),
			"refund_notes": "charge refunded at the payment provider",
		})
		if pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict {
			return nil
		}
		return err
	})
}

func (s *service) handleAccountUpdated(ctx context.Context, account *stripe.Account) error {
	if account.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "account event has no id")
	}
	err := s.profiles.SyncConnectFlags(ctx, account.ID, profiles.ConnectFlags{
		PayoutsEnabled:     account.PayoutsEnabled,
		ChargesEnabled:     account.ChargesEnabled,
		OnboardingComplete: account.DetailsSubmitted,
	})
	if err != nil && pkgerrors.As(err).Code() == pkgerrors.CodeNotFound {
		// Accounts can exist at the provider before onboarding finishes here.
		return nil
	}
	return err
}

func (s *service) handleTransferCreated(ctx context.Context, transfer *stripe.Transfer) error {
	booking, err := s.findBookingForTransfer(ctx, transfer)
	if err != nil {
		if pkgerrors.As(err).Code() == pkgerrors.CodeNotFound {
			return nil
		}
		return err
	}
	if booking.PayoutStatus == enums.PayoutStatusPaid {
		return nil
	}

	now := s.now()
	err = s.bookings.TransitionPayout(ctx, booking.ID,
		booking.PayoutStatus, enums.PayoutStatusPaid,
		map[string]any{"payout_reference": transfer.ID, "payout_date": now})
	if err != nil {
		if pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict {
			return nil
		}
		return err
	}

	s.runAux(ctx, "booking completion", func() error {
		err := s.bookings.TransitionStatus(ctx, booking.ID,
			enums.BookingStatusConfirmed, enums.BookingStatusCompleted, nil)
		if pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict {
			return nil
		}
		return err
	})
	return nil
}

// handleTransferReversed records the failure for an operator. The provider is
// authoritative here: the payout lands on failed regardless of which leg it
// had reached, and nothing retries automatically.
func (s *service) handleTransferReversed(ctx context.Context, transfer *stripe.Transfer) error {
	booking, err := s.findBookingForTransfer(ctx, transfer)
	if err != nil {
		if pkgerrors.As(err).Code() == pkgerrors.CodeNotFound {
			return nil
		}
		return err
	}
	if booking.PayoutStatus == enums.PayoutStatusFailed {
		return nil
	}
	return s.bookings.Update(ctx, booking.ID, map[string]any{
		"payout_status": enums.PayoutStatusFailed,
		"payout_note":   "transfer reversed: " + transfer.ID,
	})
}

func (s *service) VerifyPayment(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != enums.BookingStatusPending {
		return booking, nil
	}
	if booking.PaymentReference == nil || *booking.PaymentReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking has no checkout session to verify")
	}

	session, err := s.gateway.RetrieveCheckoutSession(ctx, *booking.PaymentReference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieving checkout session")
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return booking, nil
	}

	if err := s.handleCheckoutCompleted(ctx, session); err != nil {
		return nil, err
	}
	return s.bookings.FindByID(ctx, bookingID)
}

// findBookingForSession correlates by the stored payment reference, falling
// back to the session's client reference id when the reference was already
// overwritten by an earlier delivery.
func (s *service) findBookingForSession(ctx context.Context, session *stripe.CheckoutSession) (*models.Booking, error) {
	if session.ID != "" {
		booking, err := s.bookings.FindByPaymentReference(ctx, session.ID)
		if err == nil {
			return booking, nil
		}
		if pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
			return nil, err
		}
	}
	if session.ClientReferenceID != "" {
		bookingID, err := uuid.Parse(session.ClientReferenceID)
		if err == nil {
			return s.bookings.FindByID(ctx, bookingID)
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no booking matches checkout session")
}

// findBookingForTransfer prefers the booking id carried in the transfer
// metadata, falling back to the transfer id stored on the escrow at dispatch.
func (s *service) findBookingForTransfer(ctx context.Context, transfer *stripe.Transfer) (*models.Booking, error) {
	if raw, ok := transfer.Metadata["booking_id"]; ok && raw != "" {
		bookingID, err := uuid.Parse(raw)
		if err == nil {
			return s.bookings.FindByID(ctx, bookingID)
		}
	}
	esc, err := s.escrows.FindByTransferID(ctx, transfer.ID)
	if err != nil {
		return nil, err
	}
	return s.bookings.FindByID(ctx, esc.BookingID)
}

func (s *service) notifyPaymentCaptured(ctx context.Context, booking *models.Booking, listing *models.Listing) {
	payload := notify.Payload{
		BookingID:   booking.ID.String(),
		ListingName: listing.Title,
		AmountCents: booking.TotalAmountCents,
	}
	if renter, err := s.profiles.FindByID(ctx, booking.RenterID); err == nil {
		s.notifier.Dispatch(ctx, notify.Recipient{Email: renter.Email, Name: renter.FullName},
			enums.NotificationBookingConfirmed, payload)
	}
	if owner, err := s.profiles.FindByID(ctx, listing.OwnerID); err == nil {
		s.notifier.Dispatch(ctx, notify.Recipient{Email: owner.Email, Name: owner.FullName},
			enums.NotificationNewBooking, payload)
	}
}

func (s *service) runAux(ctx context.Context, name string, fn func() error) {
	if err := fn(); err != nil && s.logg != nil {
		s.logg.Warn(ctx, name+" failed: "+err.Error())
	}
}
