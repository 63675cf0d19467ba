package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/internal/bookings"
	"github.com/rentavacation/escrow-backend/internal/deadlines"
	"github.com/rentavacation/escrow-backend/internal/listings"
	"github.com/rentavacation/escrow-backend/internal/notify"
	"github.com/rentavacation/escrow-backend/internal/profiles"
	"github.com/rentavacation/escrow-backend/internal/settings"
	"github.com/rentavacation/escrow-backend/pkg/db/models"
	"github.com/rentavacation/escrow-backend/pkg/enums"
	pkgerrors "github.com/rentavacation/escrow-backend/pkg/errors"
	"github.com/rentavacation/escrow-backend/pkg/logger"
	"github.com/rentavacation/escrow-backend/pkg/stripegateway"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives the escrow state machine for owner and admin actions plus
// the timeout paths the sweep fires.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.Escrow, error)
	Verify(ctx context.Context, input VerifyInput) (*models.Escrow, error)
	Refund(ctx context.Context, input RefundInput) (*models.Escrow, error)
	MarkDisputed(ctx context.Context, escrowID uuid.UUID, reason string) error
	OwnerDecline(ctx context.Context, escrowID, ownerID uuid.UUID, reason string) error
	RequestExtension(ctx context.Context, escrowID, ownerID uuid.UUID) (*models.Escrow, error)
	Hold(ctx context.Context, escrowID uuid.UUID, reason string) error
	Unhold(ctx context.Context, escrowID uuid.UUID) error
	TimeoutOwnerWindow(ctx context.Context, escrowID uuid.UUID) error
	TimeoutResortWindow(ctx context.Context, escrowID uuid.UUID) error
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo     Repository
	Bookings bookings.Repository
	Listings listings.Repository
	Profiles profiles.Repository
	Settings settings.Loader
	Gateway  stripegateway.PaymentGateway
	Tx       txRunner
	Notifier *notify.Dispatcher
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	bookings bookings.Repository
	listings listings.Repository
	profiles profiles.Repository
	settings settings.Loader
	gateway  stripegateway.PaymentGateway
	tx       txRunner
	notifier *notify.Dispatcher
	logg     *logger.Logger
	now      func() time.Time
}

// NewService validates the dependency set and builds the escrow service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("escrow repository is required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("bookings repository is required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listings repository is required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profiles repository is required")
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
		repo:     params.Repo,
		bookings: params.Bookings,
		listings: params.Listings,
		profiles: params.Profiles,
		settings: params.Settings,
		gateway:  params.Gateway,
		tx:       params.Tx,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// SubmitInput carries the owner's resort confirmation submission.
type SubmitInput struct {
	EscrowID           uuid.UUID
	OwnerID            uuid.UUID
	ConfirmationNumber string
	ContactInfo        string
}

// Submit records the resort confirmation number. Submitting also settles the
// owner acceptance leg if it is still pending.
func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.Escrow, error) {
	if input.ConfirmationNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "resort confirmation number is required")
	}

	esc, err := s.repo.FindByID(ctx, input.EscrowID)
	if err != nil {
		return nil, err
	}
	if esc.OwnerID != input.OwnerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "escrow belongs to a different owner")
	}

	updates := map[string]any{
		"resort_confirmation_number": input.ConfirmationNumber,
	}
	if input.ContactInfo != "" {
		updates["resort_contact_info"] = input.ContactInfo
	}
	if esc.OwnerConfirmationStatus == enums.OwnerConfirmationPending {
		updates["owner_confirmation_status"] = enums.OwnerConfirmationAccepted
	}

	if err := s.repo.Transition(ctx, esc.ID,
		enums.EscrowStatusPendingConfirmation, enums.EscrowStatusConfirmationSubmitted, updates); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, esc.ID)
}

// VerifyInput carries the admin verification of a submitted confirmation.
type VerifyInput struct {
	EscrowID uuid.UUID
	AdminID  uuid.UUID
	Notes    string
}

// Verify moves a submitted escrow to verified, recording who verified it.
func (s *service) Verify(ctx context.Context, input VerifyInput) (*models.Escrow, error) {
	now := s.now()
	updates := map[string]any{
		"verified_by": input.AdminID,
		"verified_at": now,
	}
	if input.Notes != "" {
		updates["verification_notes"] = input.Notes
	}
	if err := s.repo.Transition(ctx, input.EscrowID,
		enums.EscrowStatusConfirmationSubmitted, enums.EscrowStatusVerified, updates); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, input.EscrowID)
}

// RefundInput carries an admin-initiated refund.
type RefundInput struct {
	EscrowID uuid.UUID
	AdminID  uuid.UUID
	Notes    string
}

// Refund settles a non-terminal escrow to refunded, cancels the booking and
// issues the full gateway refund.
func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Escrow, error) {
	esc, err := s.repo.FindByID(ctx, input.EscrowID)
	if err != nil {
		return nil, err
	}

	note := input.Notes
	if note == "" {
		note = "refunded by administrator"
	}
	if err := s.refundAndCancel(ctx, esc, note); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, input.EscrowID)
}

// MarkDisputed freezes a non-terminal escrow pending manual resolution.
func (s *service) MarkDisputed(ctx context.Context, escrowID uuid.UUID, reason string) error {
	esc, err := s.repo.FindByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if esc.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow already settled")
	}
	updates := map[string]any{}
	if reason != "" {
		updates["verification_notes"] = reason
	}
	return s.repo.Transition(ctx, escrowID, esc.Status, enums.EscrowStatusDisputed, updates)
}

// OwnerDecline records the owner refusing the booking and runs the refund path.
func (s *service) OwnerDecline(ctx context.Context, escrowID, ownerID uuid.UUID, reason string) error {
	esc, err := s.repo.FindByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if esc.OwnerID != ownerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "escrow belongs to a different owner")
	}

	if err := s.repo.TransitionOwner(ctx, escrowID,
		enums.OwnerConfirmationPending, enums.OwnerConfirmationDeclined, nil); err != nil {
		return err
	}

	note := "owner declined the booking"
	if reason != "" {
		note = "owner declined: " + reason
	}
	return s.refundAndCancel(ctx, esc, note)
}

// RequestExtension grants one more extension to the owner window, or rejects
// with ExtensionsExhausted once the ceiling is reached. Grants are serialized
// per escrow by a counter-guarded conditional write.
func (s *service) RequestExtension(ctx context.Context, escrowID, ownerID uuid.UUID) (*models.Escrow, error) {
	esc, err := s.repo.FindByID(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if esc.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "escrow belongs to a different owner")
	}
	if esc.OwnerConfirmationStatus != enums.OwnerConfirmationPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "owner window is no longer open")
	}

	opts := s.settings.Load(ctx)
	if esc.ExtensionsUsed >= opts.MaxExtensions {
		return nil, pkgerrors.New(pkgerrors.CodeExtensionsExhausted,
			fmt.Sprintf("all %d extensions already used", opts.MaxExtensions))
	}

	newDeadline := deadlines.ExtendOwnerDeadline(esc.OwnerConfirmationDeadline, opts.ExtensionMinutes)
	granted, err := s.repo.GrantExtension(ctx, escrowID, esc.ExtensionsUsed, newDeadline)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "extension request lost a concurrent update")
	}
	return s.repo.FindByID(ctx, escrowID)
}

// Hold excludes the escrow from the auto-release sweep until cleared.
func (s *service) Hold(ctx context.Context, escrowID uuid.UUID, reason string) error {
	if _, err := s.repo.FindByID(ctx, escrowID); err != nil {
		return err
	}
	return s.repo.Update(ctx, escrowID, map[string]any{
		"payout_held":        true,
		"payout_held_reason": reason,
	})
}

// Unhold makes the escrow sweep-eligible again immediately; no re-verification.
func (s *service) Unhold(ctx context.Context, escrowID uuid.UUID) error {
	if _, err := s.repo.FindByID(ctx, escrowID); err != nil {
		return err
	}
	return s.repo.Update(ctx, escrowID, map[string]any{
		"payout_held":        false,
		"payout_held_reason": nil,
	})
}

// TimeoutOwnerWindow settles an escrow whose owner window elapsed without
// action: owner leg timed out, then the shared refund path.
func (s *service) TimeoutOwnerWindow(ctx context.Context, escrowID uuid.UUID) error {
	esc, err := s.repo.FindByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if !deadlines.Expired(esc.OwnerConfirmationDeadline, s.now()) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "owner window has not elapsed")
	}

	if err := s.repo.TransitionOwner(ctx, escrowID,
		enums.OwnerConfirmationPending, enums.OwnerConfirmationTimedOut, nil); err != nil {
		return err
	}
	return s.refundAndCancel(ctx, esc, "owner confirmation window elapsed")
}

// TimeoutResortWindow settles an escrow whose 48h resort confirmation window
// elapsed without verification.
func (s *service) TimeoutResortWindow(ctx context.Context, escrowID uuid.UUID) error {
	esc, err := s.repo.FindByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if !deadlines.Expired(esc.ConfirmationDeadline, s.now()) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "resort confirmation window has not elapsed")
	}
	return s.refundAndCancel(ctx, esc, "resort confirmation window elapsed")
}

// refundAndCancel is the shared terminal refund path: CAS the escrow to
// refunded and the booking to cancelled inside one transaction, reactivate
// the listing, then issue the gateway refund and notify both parties. The
// state moves first so a racing second refund loses the CAS instead of
// double-refunding.
func (s *service) refundAndCancel(ctx context.Context, esc *models.Escrow, note string) error {
	booking, err := s.bookings.FindByID(ctx, esc.BookingID)
	if err != nil {
		return err
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Transition(ctx, esc.ID, esc.Status, enums.EscrowStatusRefunded, map[string]any{
			"refunded_at":  now,
			"refund_notes": note,
		}); err != nil {
			return err
		}
		if booking.Status != enums.BookingStatusCancelled {
			if err := s.bookings.WithTx(tx).TransitionStatus(ctx, booking.ID,
				booking.Status, enums.BookingStatusCancelled,
				map[string]any{"cancellation_note": note}); err != nil {
				return err
			}
		}
		return s.listings.WithTx(tx).SetStatus(ctx, booking.ListingID, enums.ListingStatusActive)
	})
	if err != nil {
		return err
	}

	if booking.PaymentReference != nil && booking.RefundedCents < booking.TotalAmountCents {
		_, refundErr := s.gateway.CreateRefund(ctx, stripegateway.RefundRequest{
			PaymentIntentID: *booking.PaymentReference,
			Metadata:        map[string]string{"booking_id": booking.ID.String()},
		})
		if refundErr != nil {
			// State is already settled; the failed provider call needs an
			// operator, not a retry loop that would re-run the transition.
			_ = s.repo.Update(ctx, esc.ID, map[string]any{
				"refund_notes": note + " (gateway refund failed: " + refundErr.Error() + ")",
			})
			return pkgerrors.Wrap(pkgerrors.CodeDependency, refundErr, "issuing gateway refund")
		}
	}

	s.notifyCancellation(ctx, booking, note)
	return nil
}

func (s *service) notifyCancellation(ctx context.Context, booking *models.Booking, note string) {
	listing, err := s.listings.FindByID(ctx, booking.ListingID)
	listingName := "your booking"
	if err == nil {
		listingName = listing.Title
	}

	payload := notify.Payload{
		BookingID:   booking.ID.String(),
		ListingName: listingName,
		AmountCents: booking.TotalAmountCents,
		Note:        note,
	}
	if renter, err := s.profiles.FindByID(ctx, booking.RenterID); err == nil {
		s.notifier.Dispatch(ctx, notify.Recipient{Email: renter.Email, Name: renter.FullName},
			enums.NotificationBookingCancelled, payload)
	}
	if listing != nil {
		if owner, err := s.profiles.FindByID(ctx, listing.OwnerID); err == nil {
			s.notifier.Dispatch(ctx, notify.Recipient{Email: owner.Email, Name: owner.FullName},
				enums.NotificationBookingCancelled, payload)
		}
	}
}
