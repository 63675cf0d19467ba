// Package payouts releases verified escrows and dispatches owner transfers.
// The sweep and the manual admin release share one eligibility predicate and
// one release path, so neither call site can drift from the other.
package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rentavacation/escrow-backend/internal/bookings"
	"github.com/rentavacation/escrow-backend/internal/escrow"
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

// Manual payout notes. The remediation differs, the booking state does not.
const (
	noteNoConnectAccount = "manual payout required: owner has no connected account"
	notePayoutsDisabled  = "manual payout required: payouts disabled on connected account"
	noteHeldAfterRelease = "manual payout required: hold placed after release"
)

// Summary reports one sweep pass.
type Summary struct {
	Released         int      `json:"released"`
	PayoutsInitiated int      `json:"payouts_initiated"`
	Skipped          int      `json:"skipped"`
	Errors           []string `json:"errors"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service runs the auto-release sweep and the manual release path.
type Service interface {
	Sweep(ctx context.Context) (Summary, error)
	ReleaseOne(ctx context.Context, escrowID uuid.UUID) error
	// DispatchReleased sends the owner transfer for an escrow that was
	// already moved to released outside the sweep, such as a dispute
	// resolved in the owner's favor.
	DispatchReleased(ctx context.Context, escrowID uuid.UUID) error
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Escrows  escrow.Repository
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
	escrows  escrow.Repository
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

// NewService validates the dependency set and builds the payout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Escrows == nil {
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
		escrows:  params.Escrows,
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

// Sweep walks the verified unheld escrows and releases the eligible ones. A
// failure on one item never stops the pass; it lands in the summary instead.
func (s *service) Sweep(ctx context.Context) (Summary, error) {
	summary := Summary{}

	candidates, err := s.escrows.ListVerifiedUnheld(ctx)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing release candidates")
	}

	now := s.now()
	opts := s.settings.Load(ctx)

	for i := range candidates {
		esc := &candidates[i]
		ctx := ctx
		if s.logg != nil {
			ctx = s.logg.WithEscrowID(ctx, esc.ID.String())
		}

		booking, err := s.bookings.FindByID(ctx, esc.BookingID)
		if err != nil {
			summary.Errors = append(summary.Errors, itemError(esc.ID, err))
			continue
		}

		if !escrow.CanRelease(esc, booking.CheckOutDate, opts.HoldPeriodDays, now) {
			summary.Skipped++
			continue
		}

		if err := s.release(ctx, esc, booking, true, &summary); err != nil {
			summary.Errors = append(summary.Errors, itemError(esc.ID, err))
		}
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"released":          summary.Released,
			"payouts_initiated": summary.PayoutsInitiated,
			"skipped":           summary.Skipped,
			"errors":            len(summary.Errors),
		}), "escrow release sweep finished")
	}
	return summary, nil
}

// ReleaseOne is the manual admin release. It applies the same eligibility
// predicate as the sweep; an escrow the sweep would skip is rejected here too.
func (s *service) ReleaseOne(ctx context.Context, escrowID uuid.UUID) error {
	esc, err := s.escrows.FindByID(ctx, escrowID)
	if err != nil {
		return err
	}
	booking, err := s.bookings.FindByID(ctx, esc.BookingID)
	if err != nil {
		return err
	}

	opts := s.settings.Load(ctx)
	if !escrow.CanRelease(esc, booking.CheckOutDate, opts.HoldPeriodDays, s.now()) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow is not eligible for release")
	}

	var summary Summary
	return s.release(ctx, esc, booking, false, &summary)
}

// release moves one escrow to released and dispatches the owner transfer.
// State settles first: the escrow CAS and the booking payout row move inside a
// transaction, then the provider call is attempted. A transfer failure leaves
// payout_status=failed for the operator; the funds state never rolls back.
func (s *service) release(ctx context.Context, esc *models.Escrow, booking *models.Booking, autoReleased bool, summary *Summary) error {
	now := s.now()

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.escrows.WithTx(tx).Transition(ctx, esc.ID,
			enums.EscrowStatusVerified, enums.EscrowStatusReleased, map[string]any{
				"released_at":   now,
				"auto_released": autoReleased,
			}); err != nil {
			return err
		}
		return s.bookings.WithTx(tx).TransitionPayout(ctx, booking.ID,
			enums.PayoutStatusNone, enums.PayoutStatusPending, nil)
	})
	if err != nil {
		if pkgerrors.As(err).Code() == pkgerrors.CodeStateConflict {
			// Lost the race to a concurrent release or a late refund.
			summary.Skipped++
			return nil
		}
		return err
	}
	summary.Released++

	return s.dispatch(ctx, esc, booking, summary)
}

// DispatchReleased runs only the transfer leg for an escrow already released
// by another path. The payout row must still be on pending.
func (s *service) DispatchReleased(ctx context.Context, escrowID uuid.UUID) error {
	esc, err := s.escrows.FindByID(ctx, escrowID)
	if err != nil {
		return err
	}
	if esc.Status != enums.EscrowStatusReleased {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow is not released")
	}
	booking, err := s.bookings.FindByID(ctx, esc.BookingID)
	if err != nil {
		return err
	}
	if booking.PayoutStatus != enums.PayoutStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "booking payout is not pending dispatch")
	}
	var summary Summary
	return s.dispatch(ctx, esc, booking, &summary)
}

// dispatch is the transfer leg shared by every release path.
func (s *service) dispatch(ctx context.Context, esc *models.Escrow, booking *models.Booking, summary *Summary) error {
	now := s.now()

	// The hold flag gets one last look between selection and the transfer.
	fresh, err := s.escrows.FindByID(ctx, esc.ID)
	if err != nil {
		return err
	}
	if fresh.PayoutHeld {
		return s.bookings.Update(ctx, booking.ID, map[string]any{"payout_note": noteHeldAfterRelease})
	}

	owner, err := s.profiles.FindByID(ctx, esc.OwnerID)
	if err != nil {
		return err
	}
	if note, ok := manualPayoutNote(owner); ok {
		if err := s.bookings.Update(ctx, booking.ID, map[string]any{"payout_note": note}); err != nil {
			return err
		}
		s.notifyOwner(ctx, owner, booking, enums.NotificationManualPayoutNeeded, note)
		return nil
	}

	transfer, err := s.gateway.CreateTransfer(ctx, stripegateway.TransferRequest{
		Destination: *owner.StripeAccountID,
		AmountCents: booking.OwnerPayoutCents,
		Currency:    booking.Currency,
		Metadata:    map[string]string{"booking_id": booking.ID.String()},
	})
	if err != nil {
		failErr := s.bookings.TransitionPayout(ctx, booking.ID,
			enums.PayoutStatusPending, enums.PayoutStatusFailed,
			map[string]any{"payout_note": err.Error()})
		if failErr != nil && s.logg != nil {
			s.logg.Error(ctx, "recording transfer failure", failErr)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating owner transfer")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.bookings.WithTx(tx).TransitionPayout(ctx, booking.ID,
			enums.PayoutStatusPending, enums.PayoutStatusProcessing,
			map[string]any{"payout_reference": transfer.ID, "payout_date": now}); err != nil {
			return err
		}
		return s.escrows.WithTx(tx).Update(ctx, esc.ID, map[string]any{"transfer_id": transfer.ID})
	})
	if err != nil {
		return err
	}

	summary.PayoutsInitiated++
	s.notifyOwner(ctx, owner, booking, enums.NotificationPayoutInitiated, "")
	return nil
}

// manualPayoutNote reports whether the owner lacks a usable transfer
// destination, and which remediation the note should steer to.
func manualPayoutNote(owner *models.Profile) (string, bool) {
	if owner.StripeAccountID == nil || *owner.StripeAccountID == "" {
		return noteNoConnectAccount, true
	}
	if !owner.PayoutsEnabled {
		return notePayoutsDisabled, true
	}
	return "", false
}

func (s *service) notifyOwner(ctx context.Context, owner *models.Profile, booking *models.Booking, kind enums.NotificationKind, note string) {
	listingName := "your listing"
	if listing, err := s.listings.FindByID(ctx, booking.ListingID); err == nil {
		listingName = listing.Title
	}
	s.notifier.Dispatch(ctx, notify.Recipient{Email: owner.Email, Name: owner.FullName}, kind, notify.Payload{
		BookingID:   booking.ID.String(),
		ListingName: listingName,
		AmountCents: booking.OwnerPayoutCents,
		Note:        note,
	})
}

// itemError renders a per-escrow failure with its full cause chain so the
// summary carries the gateway's message verbatim.
func itemError(escrowID uuid.UUID, err error) string {
	parts := []string{err.Error()}
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		parts = append(parts, cause.Error())
	}
	return escrowID.String() + ": " + strings.Join(parts, ": ")
}
